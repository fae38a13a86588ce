/*
Package crc32 implements the MSB-first 32-bit cyclic redundancy check used to
protect compiled map artifacts.

It uses the standard CRC-32 normal polynomial without bit reflection, seeded
with all ones and without a final inversion, which is the variant commonly
known as CRC-32/MPEG-2. Unlike hash/crc32 the bytes are fed most significant
bit first, which is cheaper to verify on the target without a reflected table.
*/
package crc32

// Size of a CRC-32 checksum in bytes.
const Size = 4

const (
	polynomial = 0x04c11db7
	initial    = 0xffffffff
)

func makeTable(poly uint32) *[256]uint32 {
	t := new([256]uint32)
	for i := range t {
		crc := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}

var table = makeTable(polynomial)

// Update returns the result of adding the bytes in p to the crc.
func Update(crc uint32, p []byte) uint32 {
	for _, b := range p {
		crc = crc<<8 ^ table[byte(crc>>24)^b]
	}
	return crc
}

// Checksum returns the CRC-32 checksum of data.
func Checksum(data []byte) uint32 { return Update(initial, data) }
