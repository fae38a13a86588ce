/*
Package bank implements the map bank written to each directory of compiled
maps.

A bank bundles every compiled map of a directory into one file so the
program can find a level by name without a filesystem. Maps are keyed by
the CRC of their upper-cased name, see CRCFilename. The layout is as
follows, all values little-endian:

	0     1024 bytes  256 CRC keys in ascending order, padded with 0xffffffff
	1024  512 bytes   256 map indices matching the keys, padded with 0xffff
	1536              per map, a 4 byte length followed by the map artifact
*/
package bank

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/bodgit/metamap/tilemap"
)

const (
	// Filename is the expected filename used when writing to disk
	Filename   = "maps.bank"
	maxEntries = 256

	noKey   = 0xffffffff
	noIndex = 0xffff
)

var (
	errDuplicate   = errors.New("bank: duplicate key")
	errTooMany     = errors.New("bank: too many maps")
	errNotEnough   = errors.New("bank: not enough data")
	errTooMuch     = errors.New("bank: too much data")
	errReservedKey = errors.New("bank: reserved key")
)

// Bank is a set of compiled maps. It implements the
// encoding.BinaryMarshaler and encoding.BinaryUnmarshaler interfaces.
type Bank struct {
	checksums map[uint32]uint16
	maps      []*tilemap.Map
}

// New returns an empty bank
func New() *Bank {
	return &Bank{
		checksums: make(map[uint32]uint16),
	}
}

// Length returns the number of maps in the bank
func (b *Bank) Length() int {
	return len(b.checksums)
}

// Set stores m under the given CRC
func (b *Bank) Set(crc uint32, m *tilemap.Map) error {
	if crc == noKey {
		return errReservedKey
	}
	if _, ok := b.checksums[crc]; ok {
		return fmt.Errorf("%w: %08x", errDuplicate, crc)
	}
	if len(b.maps) == maxEntries {
		return fmt.Errorf("%w: more than %d", errTooMany, maxEntries)
	}
	b.maps = append(b.maps, m)
	b.checksums[crc] = uint16(len(b.maps) - 1)
	return nil
}

// Get returns the map stored under the given CRC
func (b *Bank) Get(crc uint32) (*tilemap.Map, bool) {
	i, ok := b.checksums[crc]
	if !ok {
		return nil, false
	}
	return b.maps[i], true
}

// Lookup returns the map stored for the given name
func (b *Bank) Lookup(name string) (*tilemap.Map, bool) {
	return b.Get(CRCFilename(name))
}

// MarshalBinary encodes the bank into binary form and returns the result
func (b *Bank) MarshalBinary() ([]byte, error) {
	length := len(b.checksums)

	keys := make([]uint32, 0, length)
	for k := range b.checksums {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	buf := new(bytes.Buffer)

	// Write out CRC values
	if err := binary.Write(buf, binary.LittleEndian, keys); err != nil {
		return nil, err
	}
	// Pad to 1024 with 0xff's
	buf.Write(bytes.Repeat([]byte{0xff, 0xff, 0xff, 0xff}, maxEntries-length))

	// Write out map indices
	for _, k := range keys {
		if err := binary.Write(buf, binary.LittleEndian, b.checksums[k]); err != nil {
			return nil, err
		}
	}
	// Pad to 1536 with 0xff's
	buf.Write(bytes.Repeat([]byte{0xff, 0xff}, maxEntries-length))

	// Write out maps
	for _, m := range b.maps {
		a, err := m.MarshalBinary()
		if err != nil {
			return nil, err
		}
		if err := binary.Write(buf, binary.LittleEndian, uint32(len(a))); err != nil {
			return nil, err
		}
		buf.Write(a)
	}

	return buf.Bytes(), nil
}

func read(r io.Reader, v interface{}) error {
	err := binary.Read(r, binary.LittleEndian, v)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		err = errNotEnough
	}
	return err
}

// UnmarshalBinary decodes the bank from binary form
func (b *Bank) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)

	b.checksums = make(map[uint32]uint16)
	b.maps = nil

	var keys [maxEntries]uint32
	if err := read(r, keys[:]); err != nil {
		return err
	}

	var indices [maxEntries]uint16
	if err := read(r, indices[:]); err != nil {
		return err
	}

	count := 0
	for i, k := range keys {
		if k == noKey || indices[i] == noIndex {
			continue
		}
		b.checksums[k] = indices[i]
		if int(indices[i]) >= count {
			count = int(indices[i]) + 1
		}
	}

	for i := 0; i < count; i++ {
		var n uint32
		if err := read(r, &n); err != nil {
			return err
		}
		if int64(n) > int64(r.Len()) {
			return errNotEnough
		}
		a := make([]byte, n)
		if _, err := io.ReadFull(r, a); err != nil {
			return err
		}
		m, err := tilemap.Decode(a)
		if err != nil {
			return fmt.Errorf("bank: map %d: %w", i, err)
		}
		b.maps = append(b.maps, m)
	}

	if r.Len() > 0 {
		return errTooMuch
	}

	return nil
}
