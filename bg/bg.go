/*
Package bg implements the background layers of the display.

A layer is a fixed 64 by 64 grid of hardware tile descriptors. Coordinates
wrap at the edges of the grid in the same way the hardware tile map wraps
when a background is scrolled, so any integer coordinate addresses a cell.
*/
package bg

import (
	"fmt"
	"strings"

	"github.com/bodgit/metamap/metatile"
)

// Size is the width and height of a layer in hardware tiles.
const Size = 64

// ID identifies one of the two backgrounds driven by the expander.
type ID int

const (
	// Even carries the even logical map rows.
	Even ID = iota
	// Odd carries the odd logical map rows.
	Odd
	// NumLayers is the number of backgrounds.
	NumLayers
)

func (id ID) String() string {
	switch id {
	case Even:
		return "BG0"
	case Odd:
		return "BG1"
	}
	return fmt.Sprintf("BG(%d)", int(id))
}

// Layer is a single background layer. The zero value is a layer filled with
// descriptor 0.
type Layer struct {
	cells [Size * Size]metatile.Descriptor
}

// Layers is the pair of backgrounds, indexed by ID.
type Layers [NumLayers]Layer

func wrap(v int) int {
	return v & (Size - 1)
}

// Set stores d at (x, y).
func (l *Layer) Set(x, y int, d metatile.Descriptor) {
	l.cells[wrap(y)*Size+wrap(x)] = d
}

// At returns the descriptor at (x, y).
func (l *Layer) At(x, y int) metatile.Descriptor {
	return l.cells[wrap(y)*Size+wrap(x)]
}

// Row returns a copy of row y.
func (l *Layer) Row(y int) [Size]metatile.Descriptor {
	var r [Size]metatile.Descriptor
	copy(r[:], l.cells[wrap(y)*Size:])
	return r
}

// Used returns the number of cells holding a descriptor other than 0.
func (l *Layer) Used() int {
	n := 0
	for _, d := range l.cells {
		if d != 0 {
			n++
		}
	}
	return n
}

// String dumps the layer as rows of hexadecimal descriptors.
func (l *Layer) String() string {
	var sb strings.Builder
	for y := 0; y < Size; y++ {
		for x, d := range l.Row(y) {
			if x > 0 {
				sb.WriteByte(' ')
			}
			fmt.Fprintf(&sb, "%04x", uint16(d))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
