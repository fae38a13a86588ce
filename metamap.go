/*
Package metamap is a library for building meta-tile maps for tile based
displays and expanding them into hardware background layers.

Maps are authored in Tiled, compiled offline into a compact artifact of
16-bit meta-tile indices and expanded once at start-up into two background
layers, even map rows on one and odd rows on the other.
*/
package metamap

import (
	"log"

	"github.com/bodgit/metamap/bg"
	"github.com/bodgit/metamap/metatile"
	"github.com/bodgit/metamap/tilemap"
)

// Presenter is the display the expanded layers are handed to.
type Presenter interface {
	// Commit copies the layer to the active display surface.
	Commit(id bg.ID, l *bg.Layer)
	// SetVisible shows or hides a background.
	SetVisible(id bg.ID, visible bool)
}

// VBlanker blocks until the display is next in its vertical blank.
type VBlanker interface {
	WaitForVBlank()
}

// Start expands m with t into a new pair of background layers, waits for the
// next vertical blank, then commits both layers to p and makes them
// visible. It is meant to be called once, before the per-frame loop.
func Start(m *tilemap.Map, t *metatile.Table, p Presenter, v VBlanker, logger *log.Logger) (*bg.Layers, error) {
	layers := new(bg.Layers)
	if err := Expand(m, t, layers); err != nil {
		return nil, err
	}

	w, h := Visible(m)
	if w < int(m.Width()) || h < int(m.Height()) {
		logger.Printf("Map is %dx%d, only %dx%d is expanded\n", m.Width(), m.Height(), w, h)
	}
	logger.Printf("Expanded %d meta-tiles, %d and %d cells in use\n", w*h, layers[bg.Even].Used(), layers[bg.Odd].Used())

	v.WaitForVBlank()

	for id := bg.ID(0); id < bg.NumLayers; id++ {
		p.Commit(id, &layers[id])
		p.SetVisible(id, true)
	}

	return layers, nil
}
