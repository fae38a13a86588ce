package metamap

import (
	"fmt"

	"github.com/bodgit/metamap/bg"
	"github.com/bodgit/metamap/metatile"
	"github.com/bodgit/metamap/tilemap"
)

// Hardware tile shift applied to the even rows so the two layers interleave.
const evenShift = 2

// Visible returns the number of columns and rows of m that are expanded.
// Anything beyond the size of a background layer is dropped.
func Visible(m *tilemap.Map) (int, int) {
	w, h := int(m.Width()), int(m.Height())
	if w > bg.Size {
		w = bg.Size
	}
	if h > bg.Size {
		h = bg.Size
	}
	return w, h
}

// Origin returns the layer and hardware tile position of the top-left
// corner of the meta-tile at (x, y).
func Origin(x, y int) (bg.ID, int, int) {
	if y&1 == 0 {
		return bg.Even, x*metatile.Width + evenShift, y
	}
	return bg.Odd, x * metatile.Width, y
}

// Expand writes every visible meta-tile of m into layers. Even rows go to
// bg.Even shifted right by two hardware tiles, odd rows go to bg.Odd. Each
// meta-tile writes its top four descriptors to hardware row y and the bottom
// four to row y+1.
//
// The whole visible region is checked against t first; an index beyond the
// table fails with metatile.ErrIndexOutOfRange and layers is left untouched.
// Every cell in the region is overwritten, so repeating the call with the
// same inputs leaves the layers unchanged.
func Expand(m *tilemap.Map, t *metatile.Table, layers *bg.Layers) error {
	w, h := Visible(m)

	if hi := m.Max(w, h); int(hi) >= t.Len() {
		return fmt.Errorf("metamap: %w: %d >= %d", metatile.ErrIndexOutOfRange, hi, t.Len())
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			d, err := t.Lookup(m.At(x, y))
			if err != nil {
				panic(err) // checked above
			}

			id, rx, ry := Origin(x, y)
			l := &layers[id]
			for r := 0; r < metatile.Height; r++ {
				for c := 0; c < metatile.Width; c++ {
					l.Set(rx+c, ry+r, d[r*metatile.Width+c])
				}
			}
		}
	}

	return nil
}
