/*
Package tilemap implements the compiled form of a meta-tile map.

A compiled map is a row-major sequence of 16-bit meta-tile indices together
with its width and height. It is produced offline by Compile and consumed at
start-up either as a binary artifact or as generated Go source, so no parsing
of the editor format happens at runtime. Empty cells are stored as Blank.

The binary artifact is laid out as follows, all values little-endian:

	0  8 bytes  magic "MTMAP\x00\x01\x00"
	8  2 bytes  width
	10 2 bytes  height
	12 4 bytes  CRC-32 of the tile data
	16 W*H*2    tile indices
*/
package tilemap

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bodgit/metamap/crc32"
)

// Blank is the index empty cells compile to.
const Blank uint16 = 0

const (
	magic      = "MTMAP\x00\x01\x00"
	headerSize = len(magic) + 2 + 2 + crc32.Size
)

var (
	errBadMagic    = errors.New("tilemap: bad magic")
	errNotEnough   = errors.New("tilemap: not enough map data")
	errTooMuch     = errors.New("tilemap: too much map data")
	errBadChecksum = errors.New("tilemap: checksum mismatch")
)

// Map is an immutable compiled map. It implements the
// encoding.BinaryMarshaler and encoding.BinaryUnmarshaler interfaces; the
// latter is only meant to be used on a zero Map.
type Map struct {
	width  uint16
	height uint16
	tiles  []uint16
}

// New returns a map of the given dimensions. The map takes ownership of
// tiles which must not be modified afterwards.
func New(width, height uint16, tiles []uint16) (*Map, error) {
	if len(tiles) != int(width)*int(height) {
		return nil, fmt.Errorf("%w: %d tiles for %dx%d", ErrDimensions, len(tiles), width, height)
	}
	return &Map{
		width:  width,
		height: height,
		tiles:  tiles,
	}, nil
}

// MustNew is like New but panics on error. It is used by generated code.
func MustNew(width, height uint16, tiles []uint16) *Map {
	m, err := New(width, height, tiles)
	if err != nil {
		panic(err)
	}
	return m
}

// Width returns the width of the map in meta-tiles.
func (m *Map) Width() uint16 { return m.width }

// Height returns the height of the map in meta-tiles.
func (m *Map) Height() uint16 { return m.height }

// Len returns the number of cells, always Width*Height.
func (m *Map) Len() int { return len(m.tiles) }

// At returns the meta-tile index at (x, y).
func (m *Map) At(x, y int) uint16 {
	return m.tiles[x+y*int(m.width)]
}

// Tiles returns a copy of the row-major tile indices.
func (m *Map) Tiles() []uint16 {
	return append([]uint16(nil), m.tiles...)
}

// Max returns the largest meta-tile index used within the first w columns
// and h rows, clamped to the map size.
func (m *Map) Max(w, h int) uint16 {
	w, h = clamp(w, int(m.width)), clamp(h, int(m.height))

	var hi uint16
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if t := m.At(x, y); t > hi {
				hi = t
			}
		}
	}
	return hi
}

func clamp(v, limit int) int {
	if v > limit {
		return limit
	}
	return v
}

func (m *Map) payload() []byte {
	b := make([]byte, len(m.tiles)*2)
	for i, t := range m.tiles {
		binary.LittleEndian.PutUint16(b[i*2:], t)
	}
	return b
}

// Checksum returns the CRC-32 of the tile data as stored in the artifact.
func (m *Map) Checksum() uint32 {
	return crc32.Checksum(m.payload())
}

// MarshalBinary encodes the map into its artifact form.
func (m *Map) MarshalBinary() ([]byte, error) {
	payload := m.payload()

	b := new(bytes.Buffer)
	b.Grow(headerSize + len(payload))

	b.WriteString(magic)
	if err := binary.Write(b, binary.LittleEndian, []uint16{m.width, m.height}); err != nil {
		return nil, err
	}
	if err := binary.Write(b, binary.LittleEndian, crc32.Checksum(payload)); err != nil {
		return nil, err
	}
	b.Write(payload)

	return b.Bytes(), nil
}

// UnmarshalBinary decodes the map from its artifact form.
func (m *Map) UnmarshalBinary(b []byte) error {
	if len(b) < headerSize {
		return errNotEnough
	}
	if string(b[:len(magic)]) != magic {
		return errBadMagic
	}

	width := binary.LittleEndian.Uint16(b[8:])
	height := binary.LittleEndian.Uint16(b[10:])
	crc := binary.LittleEndian.Uint32(b[12:])

	payload := b[headerSize:]
	switch n := int(width) * int(height) * 2; {
	case len(payload) < n:
		return errNotEnough
	case len(payload) > n:
		return errTooMuch
	}

	if crc32.Checksum(payload) != crc {
		return errBadChecksum
	}

	m.width, m.height = width, height
	m.tiles = make([]uint16, len(payload)/2)
	for i := range m.tiles {
		m.tiles[i] = binary.LittleEndian.Uint16(payload[i*2:])
	}

	return nil
}

// Decode returns the map held in the artifact b.
func Decode(b []byte) (*Map, error) {
	m := new(Map)
	if err := m.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return m, nil
}
