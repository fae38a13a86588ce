package bank

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/bodgit/metamap/tilemap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const headerSize = maxEntries * (4 + 2)

func TestCRCFilename(t *testing.T) {
	assert.Equal(t, CRCFilename("level1"), CRCFilename("LEVEL1"))
	assert.NotEqual(t, CRCFilename("level1"), CRCFilename("level2"))

	long := strings.Repeat("a", filenameTrim)
	assert.Equal(t, CRCFilename(long), CRCFilename(long+"b"))
}

func TestSetGet(t *testing.T) {
	b := New()
	m := tilemap.MustNew(2, 1, []uint16{1, 2})

	require.NoError(t, b.Set(CRCFilename("level1"), m))
	assert.Equal(t, 1, b.Length())

	got, ok := b.Lookup("Level1")
	assert.True(t, ok)
	assert.Same(t, m, got)

	_, ok = b.Lookup("level2")
	assert.False(t, ok)

	assert.ErrorIs(t, b.Set(CRCFilename("LEVEL1"), m), errDuplicate)
	assert.Equal(t, errReservedKey, b.Set(noKey, m))
}

func TestTooMany(t *testing.T) {
	b := New()
	m := tilemap.MustNew(1, 1, []uint16{0})
	for i := 0; i < maxEntries; i++ {
		require.NoError(t, b.Set(uint32(i), m))
	}
	assert.ErrorIs(t, b.Set(maxEntries, m), errTooMany)
}

func TestBinary(t *testing.T) {
	b := New()
	require.NoError(t, b.Set(CRCFilename("b"), tilemap.MustNew(2, 2, []uint16{1, 2, 3, 4})))
	require.NoError(t, b.Set(CRCFilename("a"), tilemap.MustNew(1, 3, []uint16{0, 5, 0})))

	data, err := b.MarshalBinary()
	require.NoError(t, err)

	// Keys are sorted, padding follows
	k0 := binary.LittleEndian.Uint32(data[0:])
	k1 := binary.LittleEndian.Uint32(data[4:])
	assert.Less(t, k0, k1)
	assert.Equal(t, uint32(noKey), binary.LittleEndian.Uint32(data[8:]))
	assert.Equal(t, uint16(noIndex), binary.LittleEndian.Uint16(data[maxEntries*4+4:]))

	got := New()
	require.NoError(t, got.UnmarshalBinary(data))
	assert.Equal(t, 2, got.Length())

	m, ok := got.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, []uint16{1, 2, 3, 4}, m.Tiles())

	m, ok = got.Lookup("A")
	require.True(t, ok)
	assert.Equal(t, uint16(1), m.Width())
	assert.Equal(t, uint16(5), m.At(0, 1))

	assert.Equal(t, errNotEnough, got.UnmarshalBinary(data[:headerSize-1]))
	assert.Equal(t, errNotEnough, got.UnmarshalBinary(data[:len(data)-1]))
	assert.Equal(t, errTooMuch, got.UnmarshalBinary(append(data, 0)))

	// Corrupt the last tile of the last map
	bad := append([]byte(nil), data...)
	bad[len(bad)-1] ^= 0xff
	assert.Error(t, got.UnmarshalBinary(bad))
}

func TestEmpty(t *testing.T) {
	data, err := New().MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, data, headerSize)

	b := New()
	require.NoError(t, b.UnmarshalBinary(data))
	assert.Equal(t, 0, b.Length())
}
