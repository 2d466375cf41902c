package device

import (
	"github.com/ardnew/lshost/host/hal"
	"github.com/ardnew/lshost/host/packet"
	"github.com/ardnew/lshost/pkg"
)

// Peripheral models the device side of the bus closely enough to tell
// whether a host sequence would bring a real controller into its charging
// state. It follows the standard device state machine for the two requests
// the host issues and ignores everything else.
//
// A request takes effect when the host acknowledges the zero-length status
// packet, which is when a real device commits SET_ADDRESS.
type Peripheral struct {
	state         State
	address       uint8
	configuration uint8

	stage   stage
	pending hal.SetupPacket

	frames    int // SOF packets since the last reset
	keepAlive int // SOF packets while configured
	requests  int // Completed control transfers
	ignored   int // Packets that did not fit the current state
}

// New returns a powered peripheral awaiting reset.
func New() *Peripheral {
	return &Peripheral{state: StatePowered}
}

// State returns the current device state.
func (p *Peripheral) State() State { return p.state }

// Address returns the assigned address (0 until SET_ADDRESS completes).
func (p *Peripheral) Address() uint8 { return p.address }

// Configuration returns the selected configuration value.
func (p *Peripheral) Configuration() uint8 { return p.configuration }

// Charging reports whether the peripheral is configured, which is what
// enables its charging circuit.
func (p *Peripheral) Charging() bool {
	return p.state == StateConfigured && p.configuration != 0
}

// Frames returns the SOF packets seen since the last reset.
func (p *Peripheral) Frames() int { return p.frames }

// KeepAliveFrames returns the SOF packets seen while configured.
func (p *Peripheral) KeepAliveFrames() int { return p.keepAlive }

// Requests returns the number of completed control transfers.
func (p *Peripheral) Requests() int { return p.requests }

// Ignored returns the number of packets that did not fit the device state.
func (p *Peripheral) Ignored() int { return p.ignored }

// Reset handles a bus reset: the device returns to the default state at
// address 0.
func (p *Peripheral) Reset() {
	p.state = StateDefault
	p.address = 0
	p.configuration = 0
	p.stage = stageIdle
	p.frames = 0
	p.keepAlive = 0
	pkg.LogDebug(pkg.ComponentDevice, "reset")
}

// Detach returns the peripheral to the unpowered state.
func (p *Peripheral) Detach() {
	p.state = StateDetached
	p.stage = stageIdle
}

// Handle consumes one packet sent by the host. When the packet calls for an
// answer, ok is set and reply is the PID the device puts on the lines after
// the bus turnaround: ACK for an accepted SETUP data packet and a zero-length
// DATA1 for the status-stage IN.
func (p *Peripheral) Handle(pk packet.Packet) (reply packet.PID, ok bool) {
	if p.state < StateDefault {
		p.ignored++
		return 0, false
	}

	switch pk.PID {
	case packet.PIDSOF:
		p.frames++
		if p.state == StateConfigured {
			p.keepAlive++
		}

	case packet.PIDSetup:
		if !p.addressed(pk) {
			p.stage = stageIdle
			return 0, false
		}
		p.stage = stageToken

	case packet.PIDData0:
		if p.stage != stageToken || !hal.ParseSetupPacket(pk.Data, &p.pending) {
			p.reject(pk)
			return 0, false
		}
		p.stage = stageData
		return packet.PIDAck, true

	case packet.PIDIn:
		if !p.addressed(pk) {
			p.stage = stageIdle
			return 0, false
		}
		if p.stage != stageData {
			p.reject(pk)
			return 0, false
		}
		p.stage = stageStatus
		return packet.PIDData1, true

	case packet.PIDAck:
		if p.stage != stageStatus {
			p.reject(pk)
			return 0, false
		}
		p.stage = stageIdle
		p.commit()

	default:
		p.reject(pk)
	}
	return 0, false
}

func (p *Peripheral) addressed(pk packet.Packet) bool {
	return pk.Address == p.address && pk.Endpoint == 0
}

func (p *Peripheral) reject(pk packet.Packet) {
	p.ignored++
	p.stage = stageIdle
	pkg.LogDebug(pkg.ComponentDevice, "unexpected packet",
		"packet", pk.String(),
		"state", p.state.String())
}

// commit applies the pending request once its status stage completed.
func (p *Peripheral) commit() {
	setup := p.pending
	if setup.RequestType&RequestTypeMask != RequestTypeStandard ||
		setup.RequestType&RequestDirectionDeviceToHost != 0 || setup.Length != 0 {
		p.ignored++
		return
	}

	switch setup.Request {
	case RequestSetAddress:
		if p.state == StateConfigured || setup.Value > 127 {
			p.ignored++
			return
		}
		p.address = uint8(setup.Value)
		if p.address == 0 {
			p.state = StateDefault
		} else {
			p.state = StateAddress
		}

	case RequestSetConfiguration:
		if p.state < StateAddress || setup.Value > 0xFF {
			p.ignored++
			return
		}
		p.configuration = uint8(setup.Value)
		if p.configuration == 0 {
			p.state = StateAddress
		} else {
			p.state = StateConfigured
		}

	default:
		p.ignored++
		return
	}

	p.requests++
	pkg.LogDebug(pkg.ComponentDevice, "request complete",
		"request", setup.Request,
		"state", p.state.String(),
		"address", p.address,
		"configuration", p.configuration)
}
