package charset

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/bodgit/metamap/metatile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	red   = color.RGBA{0xff, 0x00, 0x00, 0xff}
	green = color.RGBA{0x00, 0xff, 0x00, 0xff}
)

// paint fills hardware tile (tx, ty) of m using f.
func paint(m *image.NRGBA, tx, ty int, f func(x, y int) color.Color) {
	for y := 0; y < tileHeight; y++ {
		for x := 0; x < tileWidth; x++ {
			if c := f(x, y); c != nil {
				m.Set(tx*tileWidth+x, ty*tileHeight+y, c)
			}
		}
	}
}

func corner(x, y int) color.Color {
	if x == 0 && y == 0 {
		return red
	}
	return nil
}

func solid(x, y int) color.Color {
	return green
}

func TestTile(t *testing.T) {
	var tile Tile
	tile.Set(0, 0, 1)
	tile.Set(1, 0, 2)
	tile.Set(7, 7, 15)

	assert.Equal(t, byte(0x21), tile[0])
	assert.Equal(t, uint8(1), tile.At(0, 0))
	assert.Equal(t, uint8(2), tile.At(1, 0))
	assert.Equal(t, uint8(15), tile.At(7, 7))

	h := tile.hflip()
	assert.Equal(t, uint8(1), h.At(7, 0))
	assert.Equal(t, uint8(2), h.At(6, 0))
	assert.Equal(t, uint8(15), h.At(0, 7))

	v := tile.vflip()
	assert.Equal(t, uint8(1), v.At(0, 7))
	assert.Equal(t, uint8(15), v.At(7, 0))

	assert.Equal(t, tile, tile.hflip().hflip())
	assert.Equal(t, tile, tile.vflip().vflip())
}

func TestBuild(t *testing.T) {
	// Meta-tile 0 is transparent, meta-tile 1 exercises deduplication
	m := image.NewNRGBA(image.Rect(0, 0, 2*metaWidth, metaHeight))
	paint(m, 4, 0, corner)
	paint(m, 5, 0, func(x, y int) color.Color { return corner(tileWidth-1-x, y) })
	paint(m, 6, 0, func(x, y int) color.Color { return corner(x, tileHeight-1-y) })
	paint(m, 7, 0, func(x, y int) color.Color { return corner(tileWidth-1-x, tileHeight-1-y) })
	paint(m, 4, 1, corner)
	paint(m, 6, 1, solid)
	paint(m, 7, 1, solid)

	cs, table, err := Build(m, 1)
	require.NoError(t, err)

	require.Len(t, cs.Tiles, 3)
	assert.Equal(t, Tile{}, cs.Tiles[0])
	require.Len(t, cs.Palettes, 1)
	assert.Len(t, cs.Palettes[0], colorsPerPalette)
	assert.Equal(t, color.Palette{color.RGBA{}, red, green}, cs.Palettes[0][:3])

	assert.Equal(t, 2, table.Len())
	assert.NoError(t, table.CheckBlank())

	blank, err := table.Lookup(0)
	require.NoError(t, err)
	assert.Equal(t, [metatile.Stride]metatile.Descriptor{}, blank)

	d, err := table.Lookup(1)
	require.NoError(t, err)
	assert.Equal(t, [metatile.Stride]metatile.Descriptor{
		metatile.NewDescriptor(1, 0, false, false),
		metatile.NewDescriptor(1, 0, true, false),
		metatile.NewDescriptor(1, 0, false, true),
		metatile.NewDescriptor(1, 0, true, true),
		metatile.NewDescriptor(1, 0, false, false),
		0,
		metatile.NewDescriptor(2, 0, false, false),
		metatile.NewDescriptor(2, 0, false, false),
	}, d)

	assert.Equal(t, color.Color(red), cs.DescriptorPixel(d[1], 7, 0))
	assert.Equal(t, color.Color(red), cs.DescriptorPixel(d[3], 7, 7))
	assert.Nil(t, cs.DescriptorPixel(d[3], 0, 0))
	assert.Equal(t, color.Color(green), cs.DescriptorPixel(d[6], 3, 4))
}

func TestBuildPalettes(t *testing.T) {
	m := image.NewNRGBA(image.Rect(0, 0, metaWidth, metaHeight))
	paint(m, 0, 0, func(x, y int) color.Color {
		return color.NRGBA{uint8(8 * (1 + (x+y*tileWidth)%usableColors)), 0, 0, 0xff}
	})
	paint(m, 1, 0, func(x, y int) color.Color {
		return color.NRGBA{0, uint8(8 * (1 + (x+y*tileWidth)%usableColors)), 0, 0xff}
	})

	cs, table, err := Build(m, 2)
	require.NoError(t, err)
	require.Len(t, cs.Palettes, 2)

	d, err := table.Lookup(0)
	require.NoError(t, err)
	assert.NotEqual(t, d[0].Palette(), d[1].Palette())
	assert.Equal(t, metatile.Descriptor(0), d[2])

	// Lossless, so every pixel comes back
	for y := 0; y < tileHeight; y++ {
		for x := 0; x < tileWidth; x++ {
			assert.Equal(t, hardware(m.At(x, y)), cs.DescriptorPixel(d[0], x, y))
			assert.Equal(t, hardware(m.At(tileWidth+x, y)), cs.DescriptorPixel(d[1], x, y))
		}
	}

	cs, table, err = Build(m, 1)
	require.NoError(t, err)
	require.Len(t, cs.Palettes, 1)

	d, err = table.Lookup(0)
	require.NoError(t, err)
	for _, desc := range d {
		assert.Equal(t, 0, desc.Palette())
	}
}

func TestBuildErrors(t *testing.T) {
	_, _, err := Build(image.NewNRGBA(image.Rect(0, 0, metaWidth, metaHeight)), 0)
	assert.ErrorIs(t, err, errPalettes)

	_, _, err = Build(image.NewNRGBA(image.Rect(0, 0, metaWidth, metaHeight)), metatile.MaxPalettes+1)
	assert.ErrorIs(t, err, errPalettes)

	_, _, err = Build(image.NewNRGBA(image.Rect(0, 0, metaWidth-8, metaHeight)), 1)
	assert.ErrorIs(t, err, errWrongSize)

	_, _, err = Build(image.NewNRGBA(image.Rect(0, 0, 0, 0)), 1)
	assert.ErrorIs(t, err, errWrongSize)
}

func TestEncodeDecode(t *testing.T) {
	m := image.NewNRGBA(image.Rect(0, 0, metaWidth, metaHeight))
	paint(m, 0, 0, corner)
	paint(m, 1, 1, solid)

	cs, _, err := Build(m, 1)
	require.NoError(t, err)

	b := new(bytes.Buffer)
	require.NoError(t, Encode(b, cs))
	assert.Equal(t, 4+len(cs.Tiles)*tileBytes+len(cs.Palettes)*colorsPerPalette*2, b.Len())

	got, err := Decode(bytes.NewReader(b.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, cs, got)

	_, err = Decode(bytes.NewReader(b.Bytes()[:b.Len()-1]))
	assert.Equal(t, errNotEnough, err)
}

func TestHardware(t *testing.T) {
	assert.Equal(t, transparent, hardware(color.NRGBA{0xff, 0xff, 0xff, 0x10}))
	assert.Equal(t, color.RGBA{0xff, 0xff, 0xff, 0xff}, hardware(color.White))
	assert.Equal(t, color.RGBA{0x08, 0x10, 0x18, 0xff}, hardware(color.RGBA{0x0b, 0x12, 0x1c, 0xff}))
	assert.Equal(t, uint16(0x7fff), pack(color.White))
	assert.Equal(t, color.RGBA{0x08, 0x10, 0x18, 0xff}, unpack(pack(color.RGBA{0x08, 0x10, 0x18, 0xff})))
}
