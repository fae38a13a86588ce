package tmx

import "fmt"

// Cell is a decoded layer entry.
type Cell struct {
	ID             uint32 // Tile identifier local to Tileset
	Tileset        int    // Index into Map.Tilesets
	HorizontalFlip bool
	VerticalFlip   bool
	DiagonalFlip   bool
	Empty          bool
}

// Grid is a rectangular row-major grid of cells taken from a tile layer.
type Grid struct {
	Width  int
	Height int
	Cells  []Cell
}

// At returns the cell at (x, y).
func (g *Grid) At(x, y int) Cell {
	return g.Cells[x+y*g.Width]
}

// DecodeGID resolves a GID against the tilesets of the map. A zero GID
// decodes to an empty cell.
func (m *Map) DecodeGID(gid GID) (Cell, error) {
	if gid == 0 {
		return Cell{Empty: true}, nil
	}

	bare := gid &^ flipMask

	for i := len(m.Tilesets) - 1; i >= 0; i-- {
		if m.Tilesets[i].FirstGID <= bare {
			return Cell{
				ID:             uint32(bare - m.Tilesets[i].FirstGID),
				Tileset:        i,
				HorizontalFlip: gid&FlipHorizontal != 0,
				VerticalFlip:   gid&FlipVertical != 0,
				DiagonalFlip:   gid&FlipDiagonal != 0,
			}, nil
		}
	}

	return Cell{}, fmt.Errorf("%w: %d", ErrInvalidGID, gid)
}

// Grid extracts the cells of the layer at index, counting every layer-like
// element in document order.
func (m *Map) Grid(index int) (*Grid, error) {
	if index < 0 || index >= len(m.Layers) {
		return nil, fmt.Errorf("%w: index %d", ErrLayerNotFound, index)
	}
	return m.grid(&m.Layers[index])
}

// GridByName extracts the cells of the first layer with the given name.
func (m *Map) GridByName(name string) (*Grid, error) {
	for i := range m.Layers {
		if m.Layers[i].Name == name {
			return m.grid(&m.Layers[i])
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrLayerNotFound, name)
}

func (m *Map) grid(l *Layer) (*Grid, error) {
	if l.Kind != KindTile {
		return nil, fmt.Errorf("%w: %q (%s)", ErrNotTileLayer, l.Name, l.Kind)
	}

	g := &Grid{
		Width:  l.Width,
		Height: l.Height,
		Cells:  make([]Cell, len(l.GIDs)),
	}
	for i, gid := range l.GIDs {
		c, err := m.DecodeGID(gid)
		if err != nil {
			return nil, err
		}
		g.Cells[i] = c
	}

	return g, nil
}
