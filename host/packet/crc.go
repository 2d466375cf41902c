package packet

// CRC5 returns the token checksum over the 11-bit field v (address and
// endpoint, or frame number). Bits beyond the eleventh are ignored.
func CRC5(v uint16) uint8 {
	crc := uint8(0x1F)
	for i := 0; i < 11; i++ {
		fb := (crc ^ uint8(v>>i)) & 1
		crc >>= 1
		if fb != 0 {
			crc ^= 0x14 // x^5 + x^2 + 1, reflected
		}
	}
	return crc ^ 0x1F
}

// CRC16 returns the data packet checksum over data.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		for i := 0; i < 8; i++ {
			fb := (crc ^ uint16(b>>i)) & 1
			crc >>= 1
			if fb != 0 {
				crc ^= 0xA001 // x^16 + x^15 + x^2 + 1, reflected
			}
		}
	}
	return crc ^ 0xFFFF
}
