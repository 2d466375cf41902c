package transaction

import (
	"fmt"

	"github.com/ardnew/lshost/host/bus"
	"github.com/ardnew/lshost/host/packet"
	"github.com/ardnew/lshost/pkg"
)

// Windows holds the fixed waits of a control transfer, in bit times.
type Windows struct {
	// TokenGap is the idle J between the SETUP token and DATA0.
	TokenGap uint16

	// Handshake is the time left to the device after DATA0, starting with
	// the bit in which the lines are released.
	Handshake uint16

	// DataStage is the time left to the device after the IN token, starting
	// with the bit in which the lines are released.
	DataStage uint16

	// Turnaround is the additional wait before the host sends ACK.
	Turnaround uint16
}

// DefaultWindows returns the windows that enumerate the reference
// peripheral.
func DefaultWindows() Windows {
	return Windows{
		TokenGap:   8,
		Handshake:  16,
		DataStage:  36,
		Turnaround: 12,
	}
}

// Validate checks that every response window includes the release bit.
func (w Windows) Validate() error {
	if w.Handshake == 0 || w.DataStage == 0 {
		return fmt.Errorf("%w: response windows must be at least one bit (handshake %d, data stage %d)",
			pkg.ErrInvalidParameter, w.Handshake, w.DataStage)
	}
	return nil
}

// ControlTransfer is a request compiled into its two bus schedules.
type ControlTransfer struct {
	Request Request

	// Setup is SETUP, DATA0 and the handshake window.
	Setup bus.Schedule

	// Status is IN, the data stage window and ACK.
	Status bus.Schedule
}

// Bits returns the combined length of both stages in bit times.
func (t ControlTransfer) Bits() int {
	return t.Setup.Bits() + t.Status.Bits()
}

// Build compiles req into a control transfer.
func Build(req Request, w Windows) (ControlTransfer, error) {
	if err := w.Validate(); err != nil {
		return ControlTransfer{}, err
	}
	if req.Address > MaxAddress {
		return ControlTransfer{}, fmt.Errorf("%w: address %d", pkg.ErrInvalidParameter, req.Address)
	}
	if req.Setup.Length != 0 {
		return ControlTransfer{}, fmt.Errorf("%w: %s has a data stage", pkg.ErrInvalidParameter, req)
	}
	if req.Setup.Request == RequestSetAddress && req.Setup.Value > MaxAddress {
		return ControlTransfer{}, fmt.Errorf("%w: %s", pkg.ErrInvalidParameter, req)
	}

	setup := bus.Schedule{bus.Acquire()}
	setup = packet.AppendToken(setup, packet.PIDSetup, req.Address, 0)
	setup = idle(setup, w.TokenGap)
	setup = packet.AppendData(setup, packet.PIDData0, req.Payload())
	setup = listen(setup, w.Handshake)

	status := bus.Schedule{bus.Acquire()}
	status = packet.AppendToken(status, packet.PIDIn, req.Address, 0)
	status = listen(status, w.DataStage)
	status = idle(status, w.Turnaround)
	status = append(status, bus.Acquire())
	status = packet.AppendHandshake(status, packet.PIDAck)
	status = append(status, bus.Release())

	return ControlTransfer{Request: req, Setup: setup, Status: status}, nil
}

// listen releases the lines and waits so that window bit times elapse
// including the release.
func listen(s bus.Schedule, window uint16) bus.Schedule {
	s = append(s, bus.Release())
	return idle(s, window-1)
}

func idle(s bus.Schedule, n uint16) bus.Schedule {
	if n == 0 {
		return s
	}
	return append(s, bus.Idle(n))
}
