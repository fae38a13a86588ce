package charset

import (
	"image"
	"image/color"
	"image/draw"
	"sort"

	"github.com/ericpauley/go-quantize/quantize"
)

// Usable colors in a palette bank, color 0 is reserved for transparency.
const usableColors = colorsPerPalette - 1

var transparent = color.RGBA{}

// hardware rounds c to the nearest 15-bit color. Anything less than half
// opaque becomes transparent.
func hardware(c color.Color) color.RGBA {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	if n.A < 0x80 {
		return transparent
	}
	return color.RGBA{
		expand5(uint16(n.R >> 3)),
		expand5(uint16(n.G >> 3)),
		expand5(uint16(n.B >> 3)),
		0xff,
	}
}

// normalise returns a copy of m using only hardware colors with its
// top-left corner at (0, 0).
func normalise(m image.Image) *image.RGBA {
	b := m.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			dst.SetRGBA(x, y, hardware(m.At(b.Min.X+x, b.Min.Y+y)))
		}
	}
	return dst
}

func countColors(m *image.RGBA, r image.Rectangle) map[color.Color]int {
	colors := make(map[color.Color]int)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if c := m.RGBAAt(x, y); c != transparent {
				colors[c]++
			}
		}
	}
	return colors
}

func uniqueColors(m *image.RGBA, r image.Rectangle) color.Palette {
	h := countColors(m, r)
	p := make(color.Palette, 0, len(h))
	for c := range h {
		p = append(p, c)
	}
	// Map iteration order is random, keep the output stable
	sort.Slice(p, func(i, j int) bool { return pack(p[i]) < pack(p[j]) })
	return p
}

// Copied from color.sqDiff
func sqDiff(x, y uint32) uint32 {
	d := x - y
	return (d * d) >> 2
}

// Return the two closest colors in a given palette
func closestColors(p color.Palette) (color.Color, color.Color) {
	var rc1, rc2 color.Color
	bestSum := uint32(1<<32 - 1)
	for i, c1 := range p {
		r1, g1, b1, _ := c1.RGBA()
		for j := i + 1; j < len(p); j++ {
			r2, g2, b2, _ := p[j].RGBA()
			sum := sqDiff(r1, r2) + sqDiff(g1, g2) + sqDiff(b1, b2)
			if sum < bestSum {
				bestSum, rc1, rc2 = sum, c1, p[j]
			}
		}
	}
	return rc1, rc2
}

// Replace all occurrences of one color in an image with another
func replaceColor(m *image.RGBA, o, n color.Color) {
	b := m.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if m.RGBAAt(x, y) == o {
				m.Set(x, y, n)
			}
		}
	}
}

// Colors in p2 but not in p1
func paletteDifference(p1, p2 color.Palette) (d color.Palette) {
	m := make(map[color.Color]struct{})
	for _, c := range p1 {
		m[c] = struct{}{}
	}
	for _, c := range p2 {
		if _, ok := m[c]; !ok {
			d = append(d, c)
		}
	}
	return
}

type paletteMap struct {
	palette color.Palette
	tiles   []int
}

// First Fit Decreasing bin packing of the tile palettes into at most
// maxPalettes banks of usableColors each. in must be sorted biggest first.
func packPalettes(in []paletteMap, maxPalettes int) ([]paletteMap, bool) {
	var out []paletteMap
	for _, p := range in {
		placed := false
		for i := range out {
			// Either the candidate palette is a subset or the
			// difference fits in the current bank
			d := paletteDifference(out[i].palette, p.palette)
			if len(d)+len(out[i].palette) <= usableColors {
				out[i].palette = append(out[i].palette, d...)
				out[i].tiles = append(out[i].tiles, p.tiles...)
				placed = true
				break
			}
		}
		if !placed {
			if len(out) == maxPalettes {
				return nil, false
			}
			out = append(out, paletteMap{
				palette: append(color.Palette(nil), p.palette...),
				tiles:   append([]int(nil), p.tiles...),
			})
		}
	}
	return out, true
}

func tileRect(tx, ty int) image.Rectangle {
	return image.Rect(tx*tileWidth, ty*tileHeight, (tx+1)*tileWidth, (ty+1)*tileHeight)
}

// reducePalette merges the closest colors of every tile until each tile
// uses no more than usableColors, then tries to pack the per-tile palettes
// into maxPalettes banks. It returns the modified image, the banks and the
// bank of each tile in row-major order.
func reducePalette(m *image.RGBA, maxPalettes int) (*image.RGBA, []color.Palette, []int, bool) {
	b := m.Bounds()
	tilesX, tilesY := b.Dx()/tileWidth, b.Dy()/tileHeight

	// Create a copy of the image
	dup := image.NewRGBA(b)
	draw.Draw(dup, b, m, b.Min, draw.Src)

	// Map of colors to frequency of occurrence
	global := countColors(dup, b)

	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			p := uniqueColors(dup, tileRect(tx, ty))
			for len(p) > usableColors {
				c1, c2 := closestColors(p)

				// Keep whichever color appears more frequently
				// in the image and replace any occurrence of
				// the other color
				var c color.Color
				if global[c1] > global[c2] {
					replaceColor(dup, c2, c1)
					global[c1] += global[c2]
					c = c2
				} else {
					replaceColor(dup, c1, c2)
					global[c2] += global[c1]
					c = c1
				}

				// Forget the replaced color
				for i := range p {
					if p[i] == c {
						p = append(p[:i], p[i+1:]...)
						break
					}
				}
				delete(global, c)
			}
		}
	}

	var palettes []paletteMap
	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			palettes = append(palettes, paletteMap{
				palette: uniqueColors(dup, tileRect(tx, ty)),
				tiles:   []int{ty*tilesX + tx},
			})
		}
	}

	// Sort with biggest palettes first
	sort.SliceStable(palettes, func(i, j int) bool {
		return len(palettes[i].palette) > len(palettes[j].palette)
	})

	packed, ok := packPalettes(palettes, maxPalettes)
	if !ok {
		return nil, nil, nil, false
	}

	banks := make([]color.Palette, len(packed))
	assign := make([]int, tilesX*tilesY)
	for i, p := range packed {
		banks[i] = p.palette
		for _, t := range p.tiles {
			assign[t] = i
		}
	}

	return dup, banks, assign, true
}

// quantized returns a copy of m reduced to at most n opaque colors.
func quantized(m *image.RGBA, n int) *image.RGBA {
	b := m.Bounds()

	// Paint transparent pixels with the most common color so they do
	// not skew the quantizer
	var common color.Color = color.Black
	best := 0
	for c, count := range countColors(m, b) {
		if count > best || count == best && pack(c) < pack(common) {
			common, best = c, count
		}
	}
	opaque := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if c := m.RGBAAt(x, y); c != transparent {
				opaque.SetRGBA(x, y, c)
			} else {
				opaque.Set(x, y, common)
			}
		}
	}

	q := quantize.MedianCutQuantizer{}
	p := q.Quantize(make(color.Palette, 0, n), opaque)

	dst := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if c := m.RGBAAt(x, y); c != transparent {
				dst.SetRGBA(x, y, hardware(p.Convert(c)))
			}
		}
	}
	return dst
}

// reduce finds a palette layout for m, quantizing it with progressively
// fewer colors until the per-tile palettes fit in maxPalettes banks.
func reduce(m *image.RGBA, maxPalettes int) (*image.RGBA, []color.Palette, []int) {
	limit := usableColors * maxPalettes
	unique := len(uniqueColors(m, m.Bounds()))
	if unique <= limit {
		if dup, banks, assign, ok := reducePalette(m, maxPalettes); ok {
			return dup, banks, assign
		}
	}
	if unique < limit {
		limit = unique
	}

	for i := limit; i > usableColors; i-- {
		if dup, banks, assign, ok := reducePalette(quantized(m, i), maxPalettes); ok {
			return dup, banks, assign
		}
	}

	// A single bank always fits
	dup, banks, assign, _ := reducePalette(quantized(m, usableColors), 1)
	return dup, banks, assign
}
