package tilemap

import (
	"errors"
	"fmt"
	"math"

	"github.com/bodgit/metamap/tmx"
)

var (
	// ErrDimensions is returned when the width or height does not fit in
	// 16 bits or disagrees with the number of cells.
	ErrDimensions = errors.New("tilemap: invalid dimensions")
	// ErrIndexOverflow is returned when a tile identifier does not fit in
	// 16 bits.
	ErrIndexOverflow = errors.New("tilemap: tile index overflows 16 bits")
	// ErrBlankCollision is returned in strict mode when a present tile has
	// the same index as an empty cell.
	ErrBlankCollision = errors.New("tilemap: tile collides with blank index")
)

type options struct {
	strictBlank bool
}

// Option configures Compile.
type Option func(*options)

// WithStrictBlank rejects maps where a present tile compiles to Blank, so
// that an empty cell and a real tile 0 can never be confused.
func WithStrictBlank() Option {
	return func(o *options) {
		o.strictBlank = true
	}
}

// Collisions returns the number of present cells in g whose identifier is
// the same as Blank.
func Collisions(g *tmx.Grid) int {
	n := 0
	for _, c := range g.Cells {
		if !c.Empty && c.ID == uint32(Blank) {
			n++
		}
	}
	return n
}

// Compile flattens the grid into a compiled map, rows top to bottom and
// columns left to right. Empty cells become Blank.
func Compile(g *tmx.Grid, opts ...Option) (*Map, error) {
	o := new(options)
	for _, opt := range opts {
		opt(o)
	}

	if g.Width < 0 || g.Width > math.MaxUint16 || g.Height < 0 || g.Height > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %dx%d", ErrDimensions, g.Width, g.Height)
	}
	if len(g.Cells) != g.Width*g.Height {
		return nil, fmt.Errorf("%w: %d cells for %dx%d", ErrDimensions, len(g.Cells), g.Width, g.Height)
	}

	tiles := make([]uint16, 0, len(g.Cells))
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			c := g.At(x, y)
			switch {
			case c.Empty:
				tiles = append(tiles, Blank)
			case c.ID > math.MaxUint16:
				return nil, fmt.Errorf("%w: %d at (%d, %d)", ErrIndexOverflow, c.ID, x, y)
			case o.strictBlank && c.ID == uint32(Blank):
				return nil, fmt.Errorf("%w: (%d, %d)", ErrBlankCollision, x, y)
			default:
				tiles = append(tiles, uint16(c.ID))
			}
		}
	}

	return New(uint16(g.Width), uint16(g.Height), tiles)
}
