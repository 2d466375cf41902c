// Package host implements the enumeration loop of a minimal bit-banged USB
// host.
//
// The host has one job: make a low-speed peripheral believe it is attached
// to a real host so that it enters its configured (charging) state. It does
// not read descriptors or decode anything the device sends. A session is a
// fixed sequence:
//
//   - wait for exactly one slot to show a device pull-up
//   - debounce, reset the bus and send a burst of Start-of-Frame packets
//   - SET_ADDRESS, a few more frames, SET_CONFIGURATION
//   - SOF keep-alives until the sampled line state changes
//
// A change of the line state at any point ends the session and the host
// returns to polling. Every schedule is compiled by [New]; sessions replay
// precomputed symbols through the [hal.LineHAL] interface defined in
// github.com/ardnew/lshost/host/hal.
//
// # Example
//
//	h, err := host.New(boardHAL, host.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	h.Run(context.Background()) // never returns on the target
//
// A simulated HAL with a cycle clock and a model peripheral is available in
// [github.com/ardnew/lshost/host/hal/sim].
package host
