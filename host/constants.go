package host

import (
	"fmt"
	"time"

	"github.com/ardnew/lshost/host/presence"
	"github.com/ardnew/lshost/host/transaction"
)

// Phase is the orchestrator state.
type Phase uint8

// Orchestrator phases. A session walks through them in order; a detected
// disconnect at any point returns to PhaseWaitingForDevice.
const (
	PhaseWaitingForDevice Phase = iota // Polling the slots
	PhaseResetting                     // Reset, recovery and startup frames
	PhaseEnumerating                   // SET_ADDRESS and SET_CONFIGURATION
	PhaseKeepAlive                     // SOF until the line state changes
)

// String returns a human-readable phase name.
func (p Phase) String() string {
	switch p {
	case PhaseWaitingForDevice:
		return "WaitingForDevice"
	case PhaseResetting:
		return "Resetting"
	case PhaseEnumerating:
		return "Enumerating"
	case PhaseKeepAlive:
		return "KeepAlive"
	default:
		return fmt.Sprintf("Unknown Phase (%d)", p)
	}
}

// Session defaults.
const (
	// DefaultAddress is the address assigned with SET_ADDRESS.
	DefaultAddress = 1

	// DefaultConfiguration is the value selected with SET_CONFIGURATION.
	DefaultConfiguration = 1

	// DefaultPollInterval is the wait between presence samples.
	DefaultPollInterval = time.Millisecond

	// DefaultDebounce is the wait between detecting a device and resetting
	// it (USB 2.0 Specification, section 7.1.7.3).
	DefaultDebounce = 100 * time.Millisecond

	// DefaultResetHold is the bus reset duration.
	DefaultResetHold = presence.ResetHold

	// DefaultResetRecovery is the settle time after reset.
	DefaultResetRecovery = time.Millisecond

	// DefaultStartupFrames is the SOF burst sent before the first request.
	DefaultStartupFrames = 10

	// DefaultAddressFrames is the SOF burst between the two requests.
	DefaultAddressFrames = 3

	// DefaultFrameNumber is the frame number of every SOF.
	DefaultFrameNumber = transaction.DefaultFrameNumber

	// MaxFrameNumber is the largest 11-bit frame number.
	MaxFrameNumber = 0x7FF
)
