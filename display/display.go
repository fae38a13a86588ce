/*
Package display implements a software model of the tile display the
expanded background layers are presented on.

A Screen holds the committed copy of each background together with the
registers that affect how it is drawn: visibility, priority and scroll.
Render composes the visible backgrounds into a 240 by 160 image in the same
way the hardware does, so the result of a start-up sequence can be checked
or viewed without the target.
*/
package display

import (
	"image"
	"image/color"
	"sort"
	"sync"

	"github.com/bodgit/metamap/bg"
	"github.com/bodgit/metamap/charset"
)

const (
	// Width of the screen in pixels.
	Width = 240
	// Height of the screen in pixels.
	Height = 160

	tileSize = 8
	// Layers wrap after this many pixels in either direction.
	span = bg.Size * tileSize
)

type background struct {
	layer    bg.Layer
	visible  bool
	priority int
	x, y     int
}

// Screen is a display with one background per bg.ID. It implements the
// metamap.Presenter interface and is safe for concurrent use.
type Screen struct {
	mu       sync.Mutex
	bgs      [bg.NumLayers]background
	backdrop color.Color
}

// NewScreen returns a screen with every background hidden, at priority 0
// and with no scroll. The backdrop is black.
func NewScreen() *Screen {
	return &Screen{
		backdrop: color.Black,
	}
}

// Commit copies l to background id. Later changes to l are not seen until
// it is committed again.
func (s *Screen) Commit(id bg.ID, l *bg.Layer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bgs[id].layer = *l
}

// SetVisible shows or hides background id.
func (s *Screen) SetVisible(id bg.ID, visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bgs[id].visible = visible
}

// Visible reports whether background id is shown.
func (s *Screen) Visible(id bg.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bgs[id].visible
}

// SetPriority sets the priority of background id. Lower values are drawn on
// top, a tie is won by the lower id.
func (s *Screen) SetPriority(id bg.ID, priority int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bgs[id].priority = priority
}

// SetScroll sets the pixel offset of the top-left corner of the screen
// within background id.
func (s *Screen) SetScroll(id bg.ID, x, y int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bgs[id].x, s.bgs[id].y = x, y
}

// SetBackdrop sets the color shown where every background is transparent.
func (s *Screen) SetBackdrop(c color.Color) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backdrop = c
}

// Layer returns a copy of the committed contents of background id.
func (s *Screen) Layer(id bg.ID) bg.Layer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bgs[id].layer
}

// order returns the visible backgrounds, bottom first.
func (s *Screen) order() []bg.ID {
	ids := make([]bg.ID, 0, bg.NumLayers)
	for id := bg.ID(0); id < bg.NumLayers; id++ {
		if s.bgs[id].visible {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.bgs[ids[i]], s.bgs[ids[j]]
		if a.priority != b.priority {
			return a.priority > b.priority
		}
		return ids[i] > ids[j]
	})
	return ids
}

// Render draws the screen using the tiles and palettes in cs.
func (s *Screen) Render(cs *charset.Charset) *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := image.NewRGBA(image.Rect(0, 0, Width, Height))
	backdrop := color.RGBAModel.Convert(s.backdrop).(color.RGBA)
	for i := 0; i < len(m.Pix); i += 4 {
		m.Pix[i], m.Pix[i+1], m.Pix[i+2], m.Pix[i+3] = backdrop.R, backdrop.G, backdrop.B, backdrop.A
	}

	for _, id := range s.order() {
		b := &s.bgs[id]
		for py := 0; py < Height; py++ {
			ly := (py + b.y) & (span - 1)
			for px := 0; px < Width; px++ {
				lx := (px + b.x) & (span - 1)
				d := b.layer.At(lx/tileSize, ly/tileSize)
				if c := cs.DescriptorPixel(d, lx%tileSize, ly%tileSize); c != nil {
					m.Set(px, py, c)
				}
			}
		}
	}

	return m
}
