package metatile

import "fmt"

// Descriptor is a hardware tile reference plus its rendering attributes,
// laid out as a screen entry:
//
//	bits 0-9   tile number
//	bit  10    horizontal flip
//	bit  11    vertical flip
//	bits 12-15 palette bank
type Descriptor uint16

const (
	tileMask     = 0x03ff
	hflipBit     = 1 << 10
	vflipBit     = 1 << 11
	paletteShift = 12

	// MaxTiles is the number of addressable hardware tiles.
	MaxTiles = tileMask + 1
	// MaxPalettes is the number of addressable palette banks.
	MaxPalettes = 16
)

// NewDescriptor packs a descriptor. tile and palette are truncated to their
// field widths.
func NewDescriptor(tile, palette int, hflip, vflip bool) Descriptor {
	d := Descriptor(tile&tileMask) | Descriptor(palette&(MaxPalettes-1))<<paletteShift
	if hflip {
		d |= hflipBit
	}
	if vflip {
		d |= vflipBit
	}
	return d
}

// Tile returns the hardware tile number.
func (d Descriptor) Tile() int { return int(d & tileMask) }

// Palette returns the palette bank.
func (d Descriptor) Palette() int { return int(d >> paletteShift) }

// HFlip reports whether the tile is mirrored horizontally.
func (d Descriptor) HFlip() bool { return d&hflipBit != 0 }

// VFlip reports whether the tile is mirrored vertically.
func (d Descriptor) VFlip() bool { return d&vflipBit != 0 }

func (d Descriptor) String() string {
	s := fmt.Sprintf("%d/p%d", d.Tile(), d.Palette())
	if d.HFlip() {
		s += "/h"
	}
	if d.VFlip() {
		s += "/v"
	}
	return s
}
