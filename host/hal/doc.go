// Package hal defines the hardware abstraction for a bit-banged USB bus host.
//
// There is no USB host controller underneath: the host stack produces every
// J, K and SE0 symbol by writing an I/O port and busy-waiting a fixed number
// of clock cycles. The HAL therefore exposes raw port access rather than
// transfers:
//
//   - Direction and latch writes for all connector slots at once
//   - Pin sampling
//   - Cycle-counted and coarse busy-wait delays
//   - Interrupt masking for the duration of a schedule
//   - A status indicator output
//
// # Timing
//
// Each [LineHAL.HoldCycles] call must account for its own cost so that the
// interval between two writes is exactly the requested cycle count. A HAL
// that cannot guarantee this with sequential calls should implement
// [Streamer] and emit the compiled schedule from a verified-latency loop.
// [Expand] does the arithmetic for such a loop up front, turning frames into
// one latch byte per driven bit and a spin count per released run.
// General-purpose schedulers and OS sleeps cannot meet the sub-microsecond
// jitter budget and must not back a LineHAL on real hardware.
//
// # Implementations
//
// A simulated HAL with a cycle clock is available in
// [github.com/ardnew/lshost/host/hal/sim]. A TinyGo HAL for the ATmega328PB
// lives under examples/tinygo-host.
package hal
