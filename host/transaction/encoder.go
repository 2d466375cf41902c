package transaction

import (
	"fmt"
	"time"

	"github.com/ardnew/lshost/host/bus"
	"github.com/ardnew/lshost/host/packet"
	"github.com/ardnew/lshost/pkg"
)

// DefaultFrameNumber is the frame number carried by every SOF.
const DefaultFrameNumber = 1337

// FrameInterval is the low-speed frame period.
const FrameInterval = time.Millisecond

// Encoder replays transactions on a bus.
type Encoder struct {
	bus *bus.Bus
	sof bus.Schedule
}

// New creates an encoder whose SOF packets carry frame.
func New(b *bus.Bus, frame uint16) *Encoder {
	sof := bus.Schedule{bus.Acquire()}
	sof = packet.AppendSOF(sof, frame)
	sof = append(sof, bus.Release())
	return &Encoder{bus: b, sof: sof}
}

// SOFSchedule returns the precomputed keep-alive schedule.
func (e *Encoder) SOFSchedule() bus.Schedule { return e.sof }

// SOF sends count Start-of-Frame packets, one per frame interval. It samples
// the lines first and, before each frame, compares a fresh sample against
// that baseline. A difference means the device left and SOF returns false
// without sending the frame.
func (e *Encoder) SOF(count int) bool {
	baseline := e.bus.Sample()
	for i := 0; i < count; i++ {
		e.bus.Wait(FrameInterval)
		if v := e.bus.Sample(); v != baseline {
			pkg.LogDebug(pkg.ComponentTransaction, "line state changed",
				"baseline", baseline,
				"sample", v,
				"sent", i)
			return false
		}
		if err := e.bus.Run(e.sof); err != nil {
			pkg.LogError(pkg.ComponentTransaction, "SOF rejected", "error", err)
			return false
		}
	}
	return true
}

// Frames sends count Start-of-Frame packets, one per frame interval, without
// watching the lines. The device may still be answering when Frames starts,
// so a sample taken then says nothing about its presence.
func (e *Encoder) Frames(count int) error {
	for i := 0; i < count; i++ {
		e.bus.Wait(FrameInterval)
		if err := e.bus.Run(e.sof); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return nil
}

// Control runs both stages of t with one SOF between them. The device's
// answers are never checked, so only a bus error fails it.
func (e *Encoder) Control(t ControlTransfer) error {
	if err := e.bus.Run(t.Setup); err != nil {
		return fmt.Errorf("%s setup stage: %w", t.Request, err)
	}
	if err := e.Frames(1); err != nil {
		return fmt.Errorf("%s: %w", t.Request, err)
	}
	if err := e.bus.Run(t.Status); err != nil {
		return fmt.Errorf("%s status stage: %w", t.Request, err)
	}
	pkg.LogDebug(pkg.ComponentTransaction, "control transfer sent",
		"request", t.Request.String(),
		"bits", t.Bits())
	return nil
}
