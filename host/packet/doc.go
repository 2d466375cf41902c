// Package packet synthesizes and decodes USB packets as line symbols.
//
// Encoding covers the sync pattern, PID, token fields, data payloads, CRC5
// and CRC16, bit stuffing and NRZI, and appends the result to a
// [bus.Schedule] ready to run. The host only ever emits a handful of
// packets, so they are built once at startup and replayed; the synthesized
// symbols for SOF frame 1337 and the SETUP, IN and ACK packets of the two
// supported control transfers match the hand-written firmware schedules
// symbol for symbol.
//
// [Decode] reverses the process. The host never decodes device traffic on
// the wire; decoding exists for the simulator and for tests.
package packet
