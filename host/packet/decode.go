package packet

import (
	"fmt"

	"github.com/ardnew/lshost/host/bus"
	"github.com/ardnew/lshost/pkg"
)

// Packet is a decoded packet.
type Packet struct {
	PID      PID
	Address  uint8  // Tokens other than SOF
	Endpoint uint8  // Tokens other than SOF
	Frame    uint16 // SOF only
	Data     []byte // Data packets, without CRC
}

// String returns a compact description for traces.
func (p Packet) String() string {
	switch {
	case p.PID == PIDSOF:
		return fmt.Sprintf("SOF frame=%d", p.Frame)
	case p.PID.IsToken():
		return fmt.Sprintf("%s addr=%d ep=%d", p.PID, p.Address, p.Endpoint)
	case p.PID.IsData():
		return fmt.Sprintf("%s [% x]", p.PID, p.Data)
	default:
		return p.PID.String()
	}
}

// Decode splits a stream of host-driven symbols into packets. Idle J between
// packets is skipped; each packet must start with the sync pattern and end
// with SE0. Decoding stops at the first malformed packet.
func Decode(syms []bus.Symbol) ([]Packet, error) {
	var out []Packet
	i := 0
	for {
		for i < len(syms) && syms[i] == bus.SymbolJ {
			i++
		}
		if i == len(syms) {
			return out, nil
		}
		if syms[i] != bus.SymbolK {
			return out, fmt.Errorf("%w: SE0 outside packet at symbol %d", pkg.ErrSync, i)
		}

		var (
			bits []bool
			prev = bus.SymbolJ
			ones int
		)
		for ; i < len(syms) && syms[i] != bus.SymbolSE0; i++ {
			one := syms[i] == prev
			prev = syms[i]
			if ones == MaxStuffRun {
				if one {
					return out, fmt.Errorf("%w: at symbol %d", pkg.ErrBitStuff, i)
				}
				ones = 0
				continue
			}
			bits = append(bits, one)
			if one {
				ones++
			} else {
				ones = 0
			}
		}
		if i == len(syms) {
			return out, fmt.Errorf("%w: missing end of packet", pkg.ErrTruncated)
		}
		for i < len(syms) && syms[i] == bus.SymbolSE0 {
			i++
		}

		p, err := parse(bits)
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
}

func field(bits []bool, n int) uint32 {
	var v uint32
	for i := 0; i < n; i++ {
		if bits[i] {
			v |= 1 << i
		}
	}
	return v
}

func parse(bits []bool) (Packet, error) {
	var p Packet
	if len(bits) < 16 {
		return p, fmt.Errorf("%w: %d bits", pkg.ErrTruncated, len(bits))
	}
	if field(bits, 8) != Sync {
		return p, pkg.ErrSync
	}
	p.PID = PID(field(bits[8:], 8))
	if !p.PID.Valid() {
		return p, fmt.Errorf("%w: %#02x", pkg.ErrPID, uint8(p.PID))
	}
	body := bits[16:]

	switch {
	case p.PID.IsToken():
		if len(body) != 16 {
			return p, fmt.Errorf("%w: %s token has %d bits", pkg.ErrTruncated, p.PID, len(body))
		}
		v := uint16(field(body, 11))
		if crc := uint8(field(body[11:], 5)); crc != CRC5(v) {
			return p, fmt.Errorf("%w: %s crc5 %#02x, want %#02x", pkg.ErrCRC, p.PID, crc, CRC5(v))
		}
		if p.PID == PIDSOF {
			p.Frame = v
		} else {
			p.Address = uint8(v & 0x7F)
			p.Endpoint = uint8(v >> 7)
		}

	case p.PID.IsData():
		if len(body) < 16 {
			return p, fmt.Errorf("%w: %s has %d bits", pkg.ErrTruncated, p.PID, len(body))
		}
		if len(body)%8 != 0 {
			return p, fmt.Errorf("%w: %s has %d bits", pkg.ErrAlignment, p.PID, len(body))
		}
		n := len(body)/8 - 2
		p.Data = make([]byte, n)
		for k := range p.Data {
			p.Data[k] = byte(field(body[8*k:], 8))
		}
		crc := uint16(field(body[8*n:], 16))
		if crc != CRC16(p.Data) {
			return p, fmt.Errorf("%w: %s crc16 %#04x, want %#04x", pkg.ErrCRC, p.PID, crc, CRC16(p.Data))
		}

	default:
		if len(body) != 0 {
			return p, fmt.Errorf("%w: %s carries %d extra bits", pkg.ErrTruncated, p.PID, len(body))
		}
	}
	return p, nil
}
