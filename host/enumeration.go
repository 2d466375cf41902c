package host

import (
	"github.com/ardnew/lshost/pkg"
)

// enumerate resets the device in slot and issues both requests. The device's
// answers are not checked and the lines are not watched while the requests
// run. Once the bus is quiet again the slot is polled, and a device that left
// is reported as pkg.ErrDisconnected.
func (h *Host) enumerate(slot int) error {
	h.setPhase(PhaseResetting)
	if err := h.detector.ResetBus(h.cfg.ResetHold); err != nil {
		return err
	}
	h.bus.Wait(h.cfg.ResetRecovery)
	h.hal.ToggleIndicator()

	if err := h.encoder.Frames(h.cfg.StartupFrames); err != nil {
		return err
	}

	h.setPhase(PhaseEnumerating)
	if err := h.encoder.Control(h.setAddress); err != nil {
		return err
	}
	pkg.LogDebug(pkg.ComponentHost, "assigned address", "address", h.cfg.Address)

	if err := h.encoder.Frames(h.cfg.AddressFrames); err != nil {
		return err
	}

	if err := h.encoder.Control(h.setConfiguration); err != nil {
		return err
	}
	pkg.LogDebug(pkg.ComponentHost, "selected configuration",
		"address", h.cfg.Address,
		"configuration", h.cfg.Configuration)

	if again, ok := h.detector.Poll(); !ok || again != slot {
		return pkg.ErrDisconnected
	}
	return nil
}
