package pkg

import "errors"

// Bus and API errors.
var (
	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrBusReleased indicates an attempt to drive or release the lines while
	// the device owns them.
	ErrBusReleased = errors.New("bus released to device")

	// ErrBusOwned indicates an attempt to acquire the lines while the host
	// already drives them.
	ErrBusOwned = errors.New("bus already driven by host")

	// ErrNoDevice indicates no device pull-up was observed.
	ErrNoDevice = errors.New("device not present")

	// ErrDisconnected indicates the sampled line state changed mid-session.
	ErrDisconnected = errors.New("device disconnected")

	// ErrCancelled indicates the caller's context ended.
	ErrCancelled = errors.New("cancelled")
)

// Trace errors. Only the simulator and tests decode line traces;
// device responses on a real bus are never checked.
var (
	// ErrSync indicates a packet did not start with the sync pattern.
	ErrSync = errors.New("missing sync pattern")

	// ErrPID indicates a PID whose check nibble does not match.
	ErrPID = errors.New("invalid PID")

	// ErrCRC indicates a CRC mismatch.
	ErrCRC = errors.New("CRC error")

	// ErrBitStuff indicates a missing stuffed bit.
	ErrBitStuff = errors.New("bit stuffing error")

	// ErrTruncated indicates a packet ended before its fields were complete.
	ErrTruncated = errors.New("packet truncated")

	// ErrAlignment indicates a data packet whose bit count is not a whole
	// number of bytes.
	ErrAlignment = errors.New("packet not byte aligned")

	// ErrCollision indicates the host drove the lines while the device was
	// answering.
	ErrCollision = errors.New("bus collision")
)
