package packet

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ardnew/lshost/host/bus"
	"github.com/ardnew/lshost/pkg"
)

// Hand-written firmware schedules for the packets the host sends.
const (
	firmwareSOF1337     = "K J K J K J K K K J J K J J K K K J K K K K J K K J J J J J J K X X J"
	firmwareSetupAddr0  = "K J K J K J K K K J J J K K J K J K J K J K J K J K J K K J K J X X J"
	firmwareInAddr0     = "K J K J K J K K K J K K J J J K J K J K J K J K J K J K K J K J X X J"
	firmwareSetupAddr1  = "K J K J K J K K K J J J K K J K K J K J K J K J K J K K J J J J X X J"
	firmwareInAddr1     = "K J K J K J K K K J K K J J J K K J K J K J K J K J K K J J J J X X J"
	firmwareAck         = "K J K J K J K K J J K J J K K K X X J"
	firmwareDataSetAddr = "K J K J K J K K K K J K J K K K J K J K J K J K K J J K J K J K K J K" +
		" J K J K J K J K J K J K J K J K J K J K J K J K J K J K J K J K J K J" +
		" K J K J K J K J K J J J K K J J J J J K K J K K J K X X J"
	firmwareDataSetConfig = "K J K J K J K K K K J K J K K K J K J K J K J K K J K K J K J K K J K" +
		" J K J K J K J K J K J K J K J K J K J K J K J K J K J K J K J K J K J" +
		" K J K J K J K J K J J J J K J J K J J K K J K K J K X X J"
)

var (
	setAddressPayload = []byte{0x00, 0x05, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00}
	setConfigPayload  = []byte{0x00, 0x09, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00}
)

func symbols(t *testing.T, text string) []bus.Symbol {
	t.Helper()
	// Without a leading OUT, X would parse as an idle bit on a released bus.
	s, err := bus.ParseSchedule("OUT " + text)
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	return s.Symbols()
}

// =============================================================================
// PID Tests
// =============================================================================

func TestPID_Valid(t *testing.T) {
	for _, pid := range []PID{PIDOut, PIDIn, PIDSOF, PIDSetup, PIDData0, PIDData1, PIDAck, PIDNak, PIDStall} {
		if !pid.Valid() {
			t.Errorf("%s (%#02x) should be valid", pid, uint8(pid))
		}
	}
	if PID(0x2C).Valid() {
		t.Error("PID 0x2C has a bad check nibble and should be invalid")
	}
}

func TestPID_Classes(t *testing.T) {
	tests := []struct {
		pid                    PID
		token, data, handshake bool
	}{
		{PIDSetup, true, false, false},
		{PIDSOF, true, false, false},
		{PIDIn, true, false, false},
		{PIDData0, false, true, false},
		{PIDData1, false, true, false},
		{PIDAck, false, false, true},
		{PIDStall, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.pid.String(), func(t *testing.T) {
			if tt.pid.IsToken() != tt.token || tt.pid.IsData() != tt.data || tt.pid.IsHandshake() != tt.handshake {
				t.Errorf("%s classes = (%v, %v, %v), want (%v, %v, %v)", tt.pid,
					tt.pid.IsToken(), tt.pid.IsData(), tt.pid.IsHandshake(),
					tt.token, tt.data, tt.handshake)
			}
		})
	}
}

// =============================================================================
// CRC Tests
// =============================================================================

func TestCRC5(t *testing.T) {
	tests := []struct {
		name  string
		field uint16
		want  uint8
	}{
		{"address 0 endpoint 0", 0x000, 0x02},
		{"address 1 endpoint 0", 0x001, 0x1D},
		{"frame 1337", 1337, 0x0F},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CRC5(tt.field); got != tt.want {
				t.Errorf("CRC5(%#03x) = %#02x, want %#02x", tt.field, got, tt.want)
			}
		})
	}
}

func TestCRC16(t *testing.T) {
	if got := CRC16(setAddressPayload); got != 0x25EB {
		t.Errorf("CRC16(SET_ADDRESS) = %#04x, want 0x25eb", got)
	}
	if got := CRC16(setConfigPayload); got != 0x2527 {
		t.Errorf("CRC16(SET_CONFIGURATION) = %#04x, want 0x2527", got)
	}
	if got := CRC16(nil); got != 0x0000 {
		t.Errorf("CRC16(nil) = %#04x, want 0", got)
	}
}

// =============================================================================
// Encoding Tests
// =============================================================================

func TestEncodeMatchesFirmware(t *testing.T) {
	tests := []struct {
		name string
		got  bus.Schedule
		want string
	}{
		{"SOF 1337", AppendSOF(nil, 1337), firmwareSOF1337},
		{"SETUP addr 0", AppendToken(nil, PIDSetup, 0, 0), firmwareSetupAddr0},
		{"IN addr 0", AppendToken(nil, PIDIn, 0, 0), firmwareInAddr0},
		{"SETUP addr 1", AppendToken(nil, PIDSetup, 1, 0), firmwareSetupAddr1},
		{"IN addr 1", AppendToken(nil, PIDIn, 1, 0), firmwareInAddr1},
		{"ACK", AppendHandshake(nil, PIDAck), firmwareAck},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.got.String(); got != tt.want {
				t.Errorf("schedule mismatch\n got: %s\nwant: %s", got, tt.want)
			}
		})
	}
}

func TestEncodeStartsWithSync(t *testing.T) {
	s := AppendToken(nil, PIDSetup, 0, 0)
	if got := s[:8].String(); got != "K J K J K J K K" {
		t.Errorf("sync = %q, want KJKJKJKK", got)
	}
	if got := s[len(s)-3:].String(); got != "X X J" {
		t.Errorf("end of packet = %q, want X X J", got)
	}
}

func TestEncodeBitStuffing(t *testing.T) {
	s := AppendData(nil, PIDData0, []byte{0xFF, 0xFF})
	run, prev := 0, bus.SymbolJ
	for i, sym := range s.Symbols() {
		if sym == bus.SymbolSE0 {
			break
		}
		if sym == prev {
			run++
		} else {
			run = 0
		}
		if run > MaxStuffRun {
			t.Fatalf("symbol %d: line held for %d bit times without stuffing", i, run+1)
		}
		prev = sym
	}

	pkts, err := Decode(s.Symbols())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(pkts) != 1 || !bytes.Equal(pkts[0].Data, []byte{0xFF, 0xFF}) {
		t.Errorf("Decode() = %v, want one DATA0 [ff ff]", pkts)
	}
}

// =============================================================================
// Decoding Tests
// =============================================================================

func TestDecodeSetupStage(t *testing.T) {
	var s bus.Schedule
	s = AppendToken(s, PIDSetup, 0, 0)
	s = append(s, bus.Idle(8))
	s = AppendData(s, PIDData0, setAddressPayload)

	pkts, err := Decode(s.Symbols())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(pkts) != 2 {
		t.Fatalf("decoded %d packets, want 2", len(pkts))
	}
	if pkts[0].PID != PIDSetup || pkts[0].Address != 0 || pkts[0].Endpoint != 0 {
		t.Errorf("packet 0 = %v, want SETUP addr=0 ep=0", pkts[0])
	}
	if pkts[1].PID != PIDData0 || !bytes.Equal(pkts[1].Data, setAddressPayload) {
		t.Errorf("packet 1 = %v, want DATA0 [% x]", pkts[1], setAddressPayload)
	}
}

func TestDecodeFirmwareTokens(t *testing.T) {
	pkts, err := Decode(symbols(t, firmwareSOF1337+" "+firmwareSetupAddr1+" "+firmwareAck))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(pkts) != 3 {
		t.Fatalf("decoded %d packets, want 3", len(pkts))
	}
	if pkts[0].PID != PIDSOF || pkts[0].Frame != 1337 {
		t.Errorf("packet 0 = %v, want SOF frame=1337", pkts[0])
	}
	if pkts[1].PID != PIDSetup || pkts[1].Address != 1 {
		t.Errorf("packet 1 = %v, want SETUP addr=1", pkts[1])
	}
	if pkts[2].PID != PIDAck {
		t.Errorf("packet 2 = %v, want ACK", pkts[2])
	}
}

func TestEncodeDataMatchesFirmware(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    string
	}{
		{"SET_ADDRESS", setAddressPayload, firmwareDataSetAddr},
		{"SET_CONFIGURATION", setConfigPayload, firmwareDataSetConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synth := AppendData(nil, PIDData0, tt.payload)
			if got := synth.String(); got != tt.want {
				t.Errorf("DATA0 mismatch\n got: %s\nwant: %s", got, tt.want)
			}
			if got := len(synth.Symbols()); got != 99 {
				t.Errorf("DATA0 has %d symbols, want 99", got)
			}

			pkts, err := Decode(symbols(t, tt.want))
			if err != nil {
				t.Fatalf("Decode(firmware DATA0): %v", err)
			}
			if len(pkts) != 1 || pkts[0].PID != PIDData0 || !bytes.Equal(pkts[0].Data, tt.payload) {
				t.Errorf("decoded %v, want DATA0 [% x]", pkts, tt.payload)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	sof := AppendSOF(nil, 1337).Symbols()

	corrupt := append([]bus.Symbol(nil), sof...)
	corrupt[20] = corrupt[20].Opposite()

	stuffed := AppendData(nil, PIDData0, []byte{0xFF}).Symbols()
	// Symbols 14 through 19 carry six ones; symbol 20 is the stuffed zero.
	unstuffed := append([]bus.Symbol(nil), stuffed[:20]...)
	unstuffed = append(unstuffed, stuffed[19], bus.SymbolSE0, bus.SymbolSE0, bus.SymbolJ)

	tests := []struct {
		name string
		syms []bus.Symbol
		want error
	}{
		{"missing EOP", sof[:len(sof)-3], pkg.ErrTruncated},
		{"bad CRC", corrupt, pkg.ErrCRC},
		{"stray SE0", []bus.Symbol{bus.SymbolJ, bus.SymbolSE0}, pkg.ErrSync},
		{"missing stuff bit", unstuffed, pkg.ErrBitStuff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.syms); !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}
}
