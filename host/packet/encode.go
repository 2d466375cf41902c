package packet

import "github.com/ardnew/lshost/host/bus"

// Sync is the 8-bit synchronization pattern that starts every packet,
// transmitted least significant bit first as KJKJKJKK.
const Sync = 0x80

// MaxStuffRun is the longest run of ones allowed before a zero is stuffed.
const MaxStuffRun = 6

// encoder serializes fields least significant bit first, applying bit
// stuffing and NRZI. It assumes the line is idle (J) when a packet starts.
type encoder struct {
	s     bus.Schedule
	level bus.Symbol
	ones  int
}

func newEncoder(s bus.Schedule) *encoder {
	return &encoder{s: s, level: bus.SymbolJ}
}

// bit emits one data bit. A zero toggles the line, a one holds it.
func (e *encoder) bit(one bool) {
	if !one {
		e.level = e.level.Opposite()
		e.s = append(e.s, bus.Drive(e.level))
		e.ones = 0
		return
	}
	e.s = append(e.s, bus.Drive(e.level))
	e.ones++
	if e.ones == MaxStuffRun {
		e.level = e.level.Opposite()
		e.s = append(e.s, bus.Drive(e.level))
		e.ones = 0
	}
}

func (e *encoder) bits(v uint32, n int) {
	for i := 0; i < n; i++ {
		e.bit(v>>i&1 != 0)
	}
}

func (e *encoder) header(pid PID) {
	e.bits(Sync, 8)
	e.bits(uint32(pid), 8)
}

// eop terminates the packet with two bit times of SE0 and one of J.
func (e *encoder) eop() bus.Schedule {
	return e.s.AppendSymbols(bus.SymbolSE0, bus.SymbolSE0, bus.SymbolJ)
}

// AppendToken appends an OUT, IN or SETUP token addressed to addr and ep.
// addr is truncated to 7 bits and ep to 4.
func AppendToken(s bus.Schedule, pid PID, addr, ep uint8) bus.Schedule {
	field := uint16(addr&0x7F) | uint16(ep&0x0F)<<7
	e := newEncoder(s)
	e.header(pid)
	e.bits(uint32(field), 11)
	e.bits(uint32(CRC5(field)), 5)
	return e.eop()
}

// AppendSOF appends a Start-Of-Frame token. frame is truncated to 11 bits.
func AppendSOF(s bus.Schedule, frame uint16) bus.Schedule {
	frame &= 0x7FF
	e := newEncoder(s)
	e.header(PIDSOF)
	e.bits(uint32(frame), 11)
	e.bits(uint32(CRC5(frame)), 5)
	return e.eop()
}

// AppendData appends a DATA0 or DATA1 packet carrying payload.
func AppendData(s bus.Schedule, pid PID, payload []byte) bus.Schedule {
	e := newEncoder(s)
	e.header(pid)
	for _, b := range payload {
		e.bits(uint32(b), 8)
	}
	e.bits(uint32(CRC16(payload)), 16)
	return e.eop()
}

// AppendHandshake appends an ACK, NAK or STALL packet.
func AppendHandshake(s bus.Schedule, pid PID) bus.Schedule {
	e := newEncoder(s)
	e.header(pid)
	return e.eop()
}
