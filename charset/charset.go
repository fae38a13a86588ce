/*
Package charset builds the hardware character set and meta-tile table for a
tileset image.

The image is cut into meta-tiles of 32 by 16 pixels, read left to right and
top to bottom, so the meta-tile index matches the tile identifier Tiled uses
for the same image. Each meta-tile is cut into eight 8 by 8 hardware tiles.

Hardware tiles are stored as 4 bits per pixel, left pixel in the low nibble,
and each tile uses one of up to 16 palette banks of 16 colors where color 0
is transparent. Colors are stored as packed 15-bit 0BBBBBGGGGGRRRRR values.
Identical tiles, including horizontally and/or vertically mirrored copies,
are stored once. Tile 0 is always the fully transparent tile, so a fully
transparent meta-tile 0 satisfies the blank contract of the meta-tile table.

The encoded character set is a little-endian 16-bit tile count and 16-bit
palette count, followed by 32 bytes per tile and 32 bytes per palette.
*/
package charset

import (
	"encoding/binary"
	"errors"
	"image/color"
	"io"

	"github.com/bodgit/metamap/metatile"
)

const (
	tileWidth        = 8
	tileHeight       = tileWidth
	tilePixels       = tileWidth * tileHeight
	tileBytes        = tilePixels >> 1
	colorsPerPalette = 16
	metaWidth        = tileWidth * metatile.Width
	metaHeight       = tileHeight * metatile.Height
)

var (
	errWrongSize    = errors.New("charset: image size is not a multiple of a meta-tile")
	errTooManyTiles = errors.New("charset: too many unique tiles")
	errPalettes     = errors.New("charset: invalid number of palettes")
	errNotEnough    = errors.New("charset: not enough data")
)

// Tile is one hardware tile at 4 bits per pixel.
type Tile [tileBytes]byte

// At returns the color index of the pixel at (x, y).
func (t *Tile) At(x, y int) uint8 {
	b := t[(y*tileWidth+x)>>1]
	if x&1 == 0 {
		return b & 0x0f
	}
	return b >> 4
}

// Set sets the color index of the pixel at (x, y).
func (t *Tile) Set(x, y int, v uint8) {
	i := (y*tileWidth + x) >> 1
	if x&1 == 0 {
		t[i] = t[i]&0xf0 | v&0x0f
	} else {
		t[i] = t[i]&0x0f | v<<4
	}
}

func (t Tile) hflip() Tile {
	var f Tile
	for y := 0; y < tileHeight; y++ {
		for x := 0; x < tileWidth; x++ {
			f.Set(tileWidth-1-x, y, t.At(x, y))
		}
	}
	return f
}

func (t Tile) vflip() Tile {
	var f Tile
	for y := 0; y < tileHeight; y++ {
		copy(f[(tileHeight-1-y)*tileWidth>>1:], t[y*tileWidth>>1:(y+1)*tileWidth>>1])
	}
	return f
}

// Charset is a set of hardware tiles and the palettes they use.
type Charset struct {
	Tiles    []Tile
	Palettes []color.Palette // Each exactly 16 colors, color 0 transparent
}

// Pixel returns the color of the pixel at (x, y) of tile drawn with palette
// bank p, or nil if the pixel is transparent.
func (cs *Charset) Pixel(tile, p, x, y int) color.Color {
	if tile >= len(cs.Tiles) || p >= len(cs.Palettes) {
		return nil
	}
	i := cs.Tiles[tile].At(x, y)
	if i == 0 {
		return nil
	}
	return cs.Palettes[p][i]
}

// DescriptorPixel is like Pixel but takes the tile, palette bank and flip
// attributes from d.
func (cs *Charset) DescriptorPixel(d metatile.Descriptor, x, y int) color.Color {
	if d.HFlip() {
		x = tileWidth - 1 - x
	}
	if d.VFlip() {
		y = tileHeight - 1 - y
	}
	return cs.Pixel(d.Tile(), d.Palette(), x, y)
}

func pack(c color.Color) uint16 {
	r, g, b, _ := c.RGBA()
	return uint16(r>>11) | uint16(g>>11)<<5 | uint16(b>>11)<<10
}

func expand5(v uint16) uint8 {
	v &= 0x1f
	return uint8(v<<3 | v>>2)
}

func unpack(v uint16) color.RGBA {
	return color.RGBA{expand5(v), expand5(v >> 5), expand5(v >> 10), 0xff}
}

// Encode writes cs to w.
func Encode(w io.Writer, cs *Charset) error {
	if err := binary.Write(w, binary.LittleEndian, []uint16{uint16(len(cs.Tiles)), uint16(len(cs.Palettes))}); err != nil {
		return err
	}

	for i := range cs.Tiles {
		if _, err := w.Write(cs.Tiles[i][:]); err != nil {
			return err
		}
	}

	var tmp [colorsPerPalette]uint16
	for _, p := range cs.Palettes {
		for i := range tmp {
			tmp[i] = 0
			if i > 0 && i < len(p) {
				tmp[i] = pack(p[i])
			}
		}
		if err := binary.Write(w, binary.LittleEndian, tmp[:]); err != nil {
			return err
		}
	}

	return nil
}

func readFull(r io.Reader, b []byte) error {
	_, err := io.ReadFull(r, b)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		err = errNotEnough
	}
	return err
}

// Decode reads a character set from r.
func Decode(r io.Reader) (*Charset, error) {
	var hdr [4]byte
	if err := readFull(r, hdr[:]); err != nil {
		return nil, err
	}

	cs := &Charset{
		Tiles:    make([]Tile, binary.LittleEndian.Uint16(hdr[0:])),
		Palettes: make([]color.Palette, binary.LittleEndian.Uint16(hdr[2:])),
	}

	for i := range cs.Tiles {
		if err := readFull(r, cs.Tiles[i][:]); err != nil {
			return nil, err
		}
	}

	var tmp [colorsPerPalette * 2]byte
	for i := range cs.Palettes {
		if err := readFull(r, tmp[:]); err != nil {
			return nil, err
		}
		p := make(color.Palette, colorsPerPalette)
		p[0] = color.RGBA{}
		for j := 1; j < colorsPerPalette; j++ {
			p[j] = unpack(binary.LittleEndian.Uint16(tmp[j*2:]))
		}
		cs.Palettes[i] = p
	}

	return cs, nil
}
