package charset

import (
	"fmt"
	"image"
	"image/color"

	"github.com/bodgit/metamap/metatile"
)

type builder struct {
	cs    *Charset
	index map[Tile]int
}

// add returns a descriptor for t, storing t unless it or a mirrored copy is
// already present.
func (b *builder) add(t Tile, palette int) (metatile.Descriptor, error) {
	variants := []struct {
		tile         Tile
		hflip, vflip bool
	}{
		{t, false, false},
		{t.hflip(), true, false},
		{t.vflip(), false, true},
		{t.hflip().vflip(), true, true},
	}
	for _, v := range variants {
		if i, ok := b.index[v.tile]; ok {
			if i == 0 {
				// The transparent tile looks the same whatever the
				// palette or flip
				return 0, nil
			}
			return metatile.NewDescriptor(i, palette, v.hflip, v.vflip), nil
		}
	}

	if len(b.cs.Tiles) == metatile.MaxTiles {
		return 0, fmt.Errorf("%w: more than %d", errTooManyTiles, metatile.MaxTiles)
	}

	i := len(b.cs.Tiles)
	b.cs.Tiles = append(b.cs.Tiles, t)
	b.index[t] = i

	return metatile.NewDescriptor(i, palette, false, false), nil
}

// Build cuts m into meta-tiles and returns the deduplicated character set
// along with the meta-tile table describing every meta-tile. No more than
// maxPalettes palette banks are used, the colors of m are reduced until
// they fit.
func Build(m image.Image, maxPalettes int) (*Charset, *metatile.Table, error) {
	if maxPalettes < 1 || maxPalettes > metatile.MaxPalettes {
		return nil, nil, fmt.Errorf("%w: %d", errPalettes, maxPalettes)
	}

	r := m.Bounds()
	if r.Dx() == 0 || r.Dy() == 0 || r.Dx()%metaWidth != 0 || r.Dy()%metaHeight != 0 {
		return nil, nil, fmt.Errorf("%w: %dx%d", errWrongSize, r.Dx(), r.Dy())
	}

	pm, banks, assign := reduce(normalise(m), maxPalettes)

	cs := &Charset{
		Tiles: []Tile{{}},
	}
	for _, bank := range banks {
		p := color.Palette{transparent}
		p = append(p, bank...)
		for len(p) < colorsPerPalette {
			p = append(p, color.RGBA{0, 0, 0, 0xff})
		}
		cs.Palettes = append(cs.Palettes, p)
	}

	b := builder{
		cs:    cs,
		index: map[Tile]int{{}: 0},
	}

	tilesX := r.Dx() / tileWidth
	metaX, metaY := r.Dx()/metaWidth, r.Dy()/metaHeight

	descriptors := make([]metatile.Descriptor, 0, metaX*metaY*metatile.Stride)
	for my := 0; my < metaY; my++ {
		for mx := 0; mx < metaX; mx++ {
			for row := 0; row < metatile.Height; row++ {
				for col := 0; col < metatile.Width; col++ {
					tx, ty := mx*metatile.Width+col, my*metatile.Height+row
					bank := assign[ty*tilesX+tx]

					var t Tile
					for y := 0; y < tileHeight; y++ {
						for x := 0; x < tileWidth; x++ {
							c := pm.RGBAAt(tx*tileWidth+x, ty*tileHeight+y)
							if c == transparent {
								continue
							}
							t.Set(x, y, uint8(cs.Palettes[bank].Index(c)))
						}
					}

					d, err := b.add(t, bank)
					if err != nil {
						return nil, nil, err
					}
					descriptors = append(descriptors, d)
				}
			}
		}
	}

	table, err := metatile.NewTable(descriptors)
	if err != nil {
		return nil, nil, err
	}

	return cs, table, nil
}
