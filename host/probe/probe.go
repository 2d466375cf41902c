package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/karalabe/hid"

	"github.com/ardnew/lshost/host/hal"
	"github.com/ardnew/lshost/host/presence"
	"github.com/ardnew/lshost/pkg"
)

// VID and PID identify the MCP2221A.
const (
	VID = 0x04D8 // Microchip Technology Inc.
	PID = 0x00DD // MCP2221A
)

// MsgSize is the size of every command and response report.
const MsgSize = 64

// PinCount is the number of GPIO pins on the bridge.
const PinCount = 4

const (
	cmdGPIOGet  byte = 0x51
	statusOK    byte = 0x00
	pinNotGPIO  byte = 0xEE
	pinValueSet byte = 0x01
)

// Slots returns the bench wiring: GP0/GP1 are D+/D- of slot 0, GP2/GP3 of
// slot 1.
func Slots() []hal.PinPair {
	return []hal.PinPair{
		{DP: 1 << 0, DM: 1 << 1},
		{DP: 1 << 2, DM: 1 << 3},
	}
}

// Device is the HID report interface of the bridge.
type Device interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	Close() error
}

// Probe samples connector lines through an MCP2221A.
type Probe struct {
	dev   Device
	slots []hal.PinPair
	speed hal.Speed
}

// Attached returns the bridges currently connected.
func Attached() []hid.DeviceInfo {
	return hid.Enumerate(VID, PID)
}

// Open claims the bridge at index among Attached().
func Open(index int, speed hal.Speed) (*Probe, error) {
	if !hid.Supported() {
		return nil, fmt.Errorf("%w: HID not supported on this platform", pkg.ErrNoDevice)
	}
	info := Attached()
	if index < 0 || index >= len(info) {
		return nil, fmt.Errorf("%w: MCP2221A index %d, %d attached", pkg.ErrNoDevice, index, len(info))
	}
	dev, err := info[index].Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", info[index].Path, err)
	}
	pkg.LogDebug(pkg.ComponentProbe, "bridge opened",
		"path", info[index].Path,
		"serial", info[index].Serial)
	return New(dev, speed), nil
}

// New wraps an open bridge.
func New(dev Device, speed hal.Speed) *Probe {
	return &Probe{dev: dev, slots: Slots(), speed: speed}
}

// Close releases the bridge.
func (p *Probe) Close() error {
	return p.dev.Close()
}

// Slots returns the slots the probe reads.
func (p *Probe) Slots() []hal.PinPair { return p.slots }

// Levels reads every GPIO pin. Bit n of the result is GPn.
func (p *Probe) Levels() (hal.Levels, error) {
	cmd := make([]byte, MsgSize)
	cmd[0] = cmdGPIOGet
	if _, err := p.dev.Write(cmd); err != nil {
		return 0, fmt.Errorf("write [cmd=0x%02X]: %w", cmdGPIOGet, err)
	}

	rsp := make([]byte, MsgSize)
	n, err := p.dev.Read(rsp)
	if err != nil {
		return 0, fmt.Errorf("read [cmd=0x%02X]: %w", cmdGPIOGet, err)
	}
	if n < MsgSize {
		return 0, fmt.Errorf("read [cmd=0x%02X]: short read (%d of %d bytes)", cmdGPIOGet, n, MsgSize)
	}
	if rsp[0] != cmdGPIOGet || rsp[1] != statusOK {
		return 0, fmt.Errorf("read [cmd=0x%02X]: command failed", cmdGPIOGet)
	}

	var v hal.Levels
	for pin := 0; pin < PinCount; pin++ {
		switch rsp[2+2*pin] {
		case pinNotGPIO:
			return 0, fmt.Errorf("%w: GP%d not in GPIO mode", pkg.ErrInvalidParameter, pin)
		case pinValueSet:
			v |= 1 << pin
		}
	}
	return v, nil
}

// Poll samples the pins and reports the occupied slot.
func (p *Probe) Poll() (int, bool, error) {
	v, err := p.Levels()
	if err != nil {
		return -1, false, err
	}
	slot, ok := presence.Detect(v, p.slots, p.speed)
	return slot, ok, nil
}

// Watch polls every interval and calls fn with the first result and every
// change after it. It returns when ctx ends or a read fails.
func (p *Probe) Watch(ctx context.Context, interval time.Duration, fn func(slot int, present bool)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last, seen := -2, false
	for {
		slot, ok, err := p.Poll()
		if err != nil {
			return err
		}
		if !ok {
			slot = -1
		}
		if !seen || slot != last {
			pkg.LogInfo(pkg.ComponentProbe, "presence", "slot", slot, "present", ok)
			fn(slot, ok)
			last, seen = slot, true
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
