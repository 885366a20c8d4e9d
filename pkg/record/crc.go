package record

const (
	crcPoly = 0x31
	crcInit = 0xFF
)

// Checksum computes CRC-8 over payload: polynomial 0x31, initial value 0xFF,
// MSB first, no reflection and no final XOR.
func Checksum(payload []byte) uint8 {
	crc := uint8(crcInit)
	for _, b := range payload {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ crcPoly
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
