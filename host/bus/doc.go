// Package bus implements the bit-level signaling primitive of the emulated
// USB host.
//
// A [Bus] drives one of three line symbols (J, K, SE0) on every connector
// slot at once and holds it for exactly one Bit Time, derived from the HAL
// clock and the bus speed. Everything above this package is expressed as a
// [Schedule]: a list of steps whose elapsed time is known before it runs.
//
// # Ownership
//
// The lines belong either to the host (outputs) or to the device (inputs).
// Acquire and Release are the only transitions; driving while released is a
// correctness bug, so [Bus.Run] validates the whole schedule before touching
// a pin and runs it with interrupts disabled.
//
// # Notation
//
// Schedules print and parse in token form:
//
//	OUT K J K J K J K K ... X X J IN D D D
//
// OUT acquires, IN releases, X is SE0 and each D is one idle bit time.
package bus
