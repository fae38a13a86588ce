package metatile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequential(n int) []Descriptor {
	d := make([]Descriptor, n*Stride)
	for i := range d {
		d[i] = Descriptor(i)
	}
	return d
}

func TestDescriptor(t *testing.T) {
	d := NewDescriptor(0x2ab, 5, true, false)
	assert.Equal(t, Descriptor(0x56ab), d)
	assert.Equal(t, 0x2ab, d.Tile())
	assert.Equal(t, 5, d.Palette())
	assert.True(t, d.HFlip())
	assert.False(t, d.VFlip())
	assert.Equal(t, "683/p5/h", d.String())

	d = NewDescriptor(MaxTiles+1, MaxPalettes, false, true)
	assert.Equal(t, 1, d.Tile())
	assert.Equal(t, 0, d.Palette())
	assert.True(t, d.VFlip())
}

func TestNewTable(t *testing.T) {
	_, err := NewTable(nil)
	assert.ErrorIs(t, err, ErrBadLength)

	_, err = NewTable(make([]Descriptor, 12))
	assert.ErrorIs(t, err, ErrBadLength)

	d := sequential(2)
	table, err := NewTable(d)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())

	d[0] = 99
	got, err := table.Lookup(0)
	require.NoError(t, err)
	assert.Equal(t, Descriptor(0), got[0])
}

func TestLookup(t *testing.T) {
	table, err := NewTable(sequential(3))
	require.NoError(t, err)

	got, err := table.Lookup(2)
	require.NoError(t, err)
	assert.Equal(t, [Stride]Descriptor{16, 17, 18, 19, 20, 21, 22, 23}, got)

	_, err = table.Lookup(3)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestCheckBlank(t *testing.T) {
	d := make([]Descriptor, 2*Stride)
	d[3] = NewDescriptor(0, 2, true, true)
	d[Stride] = NewDescriptor(7, 0, false, false)

	table, err := NewTable(d)
	require.NoError(t, err)
	assert.NoError(t, table.CheckBlank())

	d[5] = NewDescriptor(1, 0, false, false)
	table, err = NewTable(d)
	require.NoError(t, err)
	assert.ErrorIs(t, table.CheckBlank(), ErrNotBlank)

	assert.ErrorIs(t, new(Table).CheckBlank(), ErrBadLength)
}

func TestBinary(t *testing.T) {
	table, err := NewTable(sequential(2))
	require.NoError(t, err)

	b, err := table.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, 2+2*Stride*2)
	assert.Equal(t, []byte{2, 0, 0, 0, 1, 0}, b[:6])

	got, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, table, got)

	_, err = Decode(b[:1])
	assert.Equal(t, errNotEnough, err)

	_, err = Decode(b[:len(b)-2])
	assert.Equal(t, errNotEnough, err)

	_, err = Decode(append(b, 0))
	assert.Equal(t, errTooMuch, err)
}
