/*
Package metatile implements the meta-tile table.

A meta-tile is one logical map cell which expands to a block of 4 by 2
hardware tiles. The table stores the 8 hardware tile descriptors of every
meta-tile back to back, top row first, so the descriptors of meta-tile i are
found at [i*8, i*8+8).

The binary form is a little-endian 16-bit count of meta-tiles followed by
that many groups of 8 little-endian 16-bit descriptors.
*/
package metatile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Geometry of a meta-tile in hardware tiles.
const (
	Width  = 4
	Height = 2
	Stride = Width * Height
)

var (
	// ErrIndexOutOfRange is returned when a meta-tile index is beyond the
	// end of the table.
	ErrIndexOutOfRange = errors.New("metatile: index out of range")
	// ErrBadLength is returned when the number of descriptors is not a
	// non-zero multiple of Stride.
	ErrBadLength = errors.New("metatile: descriptor count is not a multiple of 8")
	// ErrNotBlank is returned by CheckBlank.
	ErrNotBlank = errors.New("metatile: meta-tile 0 is not blank")

	errNotEnough = errors.New("metatile: not enough table data")
	errTooMuch   = errors.New("metatile: too much table data")
)

// Table is an immutable meta-tile table. It implements the
// encoding.BinaryMarshaler and encoding.BinaryUnmarshaler interfaces.
type Table struct {
	d []Descriptor
}

// NewTable returns a table holding a copy of d.
func NewTable(d []Descriptor) (*Table, error) {
	if len(d) == 0 || len(d)%Stride != 0 {
		return nil, fmt.Errorf("%w: %d", ErrBadLength, len(d))
	}
	if len(d)/Stride > math.MaxUint16+1 {
		return nil, fmt.Errorf("%w: %d meta-tiles", ErrIndexOutOfRange, len(d)/Stride)
	}
	return &Table{
		d: append([]Descriptor(nil), d...),
	}, nil
}

// Len returns the number of meta-tiles in the table.
func (t *Table) Len() int {
	return len(t.d) / Stride
}

// Lookup returns the descriptors of the meta-tile at index.
func (t *Table) Lookup(index uint16) ([Stride]Descriptor, error) {
	var d [Stride]Descriptor
	if int(index) >= t.Len() {
		return d, fmt.Errorf("%w: %d >= %d", ErrIndexOutOfRange, index, t.Len())
	}
	copy(d[:], t.d[int(index)*Stride:])
	return d, nil
}

// CheckBlank enforces the contract that meta-tile 0, which every empty map
// cell compiles to, only references hardware tile 0.
func (t *Table) CheckBlank() error {
	if t.Len() == 0 {
		return fmt.Errorf("%w: empty table", ErrBadLength)
	}
	for i, d := range t.d[:Stride] {
		if d.Tile() != 0 {
			return fmt.Errorf("%w: descriptor %d references tile %d", ErrNotBlank, i, d.Tile())
		}
	}
	return nil
}

// MarshalBinary encodes the table into binary form.
func (t *Table) MarshalBinary() ([]byte, error) {
	b := new(bytes.Buffer)
	if err := binary.Write(b, binary.LittleEndian, uint16(t.Len())); err != nil {
		return nil, err
	}
	if err := binary.Write(b, binary.LittleEndian, t.d); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// UnmarshalBinary decodes the table from binary form. A count of zero means
// 65536 meta-tiles.
func (t *Table) UnmarshalBinary(b []byte) error {
	r := bytes.NewReader(b)

	var count uint16
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return errNotEnough
	}
	n := int(count)
	if n == 0 {
		n = math.MaxUint16 + 1
	}

	d := make([]Descriptor, n*Stride)
	if err := binary.Read(r, binary.LittleEndian, d); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return errNotEnough
		}
		return err
	}
	if r.Len() != 0 {
		return errTooMuch
	}

	t.d = d
	return nil
}

// Decode returns the table held in b.
func Decode(b []byte) (*Table, error) {
	t := new(Table)
	if err := t.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return t, nil
}
