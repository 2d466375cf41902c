// Package sim provides a simulated [hal.LineHAL] for tests and tooling.
//
// Time is a cycle counter advanced only by the HAL's own delay calls, so a
// simulated session runs instantly while keeping exact timing. The HAL
// records:
//
//   - every host-driven line state as a [Segment] (for timing analysis)
//   - a [Record] transcript of resets, decoded host packets, plug events and
//     indicator toggles
//
// A [device.Peripheral] sits on the configured slot and consumes the decoded
// packets, so a test can check that a host sequence actually configures the
// device. A [Script] plugs and unplugs it.
//
// [Analyze] measures the recorded transitions against the bit grid using
// gonum's statistics package.
package sim
