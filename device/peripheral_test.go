package device

import (
	"testing"

	"github.com/ardnew/lshost/host/packet"
)

func setupPacket(request byte, value byte) []packet.Packet {
	return []packet.Packet{
		{PID: packet.PIDData0, Data: []byte{0x00, request, value, 0x00, 0x00, 0x00, 0x00, 0x00}},
	}
}

// transfer returns the packets of a complete no-data control transfer to
// addr.
func transfer(addr uint8, request, value byte) []packet.Packet {
	out := []packet.Packet{{PID: packet.PIDSetup, Address: addr}}
	out = append(out, setupPacket(request, value)...)
	out = append(out,
		packet.Packet{PID: packet.PIDSOF, Frame: 1337},
		packet.Packet{PID: packet.PIDIn, Address: addr},
		packet.Packet{PID: packet.PIDAck},
	)
	return out
}

func feed(p *Peripheral, pkts []packet.Packet) {
	for _, pk := range pkts {
		p.Handle(pk)
	}
}

// =============================================================================
// State Tests
// =============================================================================

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDetached, "Detached"},
		{StatePowered, "Powered"},
		{StateDefault, "Default"},
		{StateAddress, "Address"},
		{StateConfigured, "Configured"},
		{State(42), "Unknown State (42)"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

// =============================================================================
// Enumeration Tests
// =============================================================================

func TestPeripheral_Enumeration(t *testing.T) {
	p := New()
	p.Handle(packet.Packet{PID: packet.PIDSOF})
	if p.Frames() != 0 || p.Ignored() != 1 {
		t.Errorf("powered device should ignore traffic before reset")
	}

	p.Reset()
	if p.State() != StateDefault {
		t.Fatalf("State() after reset = %s, want Default", p.State())
	}

	feed(p, transfer(0, RequestSetAddress, 1))
	if p.State() != StateAddress || p.Address() != 1 {
		t.Fatalf("after SET_ADDRESS: state=%s address=%d", p.State(), p.Address())
	}

	feed(p, transfer(1, RequestSetConfiguration, 1))
	if p.State() != StateConfigured || p.Configuration() != 1 {
		t.Fatalf("after SET_CONFIGURATION: state=%s configuration=%d", p.State(), p.Configuration())
	}
	if !p.Charging() {
		t.Error("configured peripheral should be charging")
	}
	if p.Requests() != 2 {
		t.Errorf("Requests() = %d, want 2", p.Requests())
	}

	for i := 0; i < 5; i++ {
		p.Handle(packet.Packet{PID: packet.PIDSOF, Frame: 1337})
	}
	if p.KeepAliveFrames() != 5 {
		t.Errorf("KeepAliveFrames() = %d, want 5", p.KeepAliveFrames())
	}
}

func TestPeripheral_Replies(t *testing.T) {
	p := New()
	p.Reset()

	var got []string
	for _, pk := range transfer(0, RequestSetAddress, 1) {
		if reply, ok := p.Handle(pk); ok {
			got = append(got, pk.PID.String()+">"+reply.String())
		}
	}
	want := []string{"DATA0>ACK", "IN>DATA1"}
	if len(got) != len(want) {
		t.Fatalf("replies = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("reply[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	// Another device's traffic and stray packets get no answer.
	for _, pk := range []packet.Packet{
		{PID: packet.PIDSetup, Address: 5},
		{PID: packet.PIDIn, Address: 1},
		{PID: packet.PIDSOF, Frame: 1337},
	} {
		if reply, ok := p.Handle(pk); ok {
			t.Errorf("Handle(%s) replied %s", pk, reply)
		}
	}
}

func TestPeripheral_AddressCommitsAfterStatus(t *testing.T) {
	p := New()
	p.Reset()

	pkts := transfer(0, RequestSetAddress, 1)
	feed(p, pkts[:len(pkts)-1])
	if p.Address() != 0 {
		t.Errorf("address changed before the status stage was acknowledged")
	}

	p.Handle(pkts[len(pkts)-1])
	if p.Address() != 1 {
		t.Errorf("Address() = %d after ACK, want 1", p.Address())
	}
}

func TestPeripheral_IgnoresOtherAddress(t *testing.T) {
	p := New()
	p.Reset()

	feed(p, transfer(1, RequestSetAddress, 2))
	if p.State() != StateDefault || p.Address() != 0 {
		t.Errorf("device at address 0 answered a transfer to address 1")
	}
}

func TestPeripheral_ConfigurationRequiresAddress(t *testing.T) {
	p := New()
	p.Reset()

	feed(p, transfer(0, RequestSetConfiguration, 1))
	if p.Charging() {
		t.Error("SET_CONFIGURATION in the default state must not configure the device")
	}
}

func TestPeripheral_ResetClearsSession(t *testing.T) {
	p := New()
	p.Reset()
	feed(p, transfer(0, RequestSetAddress, 1))
	feed(p, transfer(1, RequestSetConfiguration, 1))

	p.Reset()
	if p.Charging() || p.Address() != 0 || p.KeepAliveFrames() != 0 {
		t.Errorf("reset should return to the default state, got state=%s address=%d",
			p.State(), p.Address())
	}

	p.Detach()
	if p.State() != StateDetached {
		t.Errorf("State() after Detach = %s, want Detached", p.State())
	}
}
