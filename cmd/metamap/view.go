package main

import (
	"log"

	"github.com/bodgit/metamap/charset"
	"github.com/bodgit/metamap/config"
	"github.com/bodgit/metamap/display"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/urfave/cli/v2"
)

// viewer shows a display.Screen in a window. Each game update is treated as
// the vertical blank of the display.
type viewer struct {
	screen *display.Screen
	cs     *charset.Charset
	frame  *ebiten.Image
	vblank chan struct{}
	errc   chan error
}

func (v *viewer) WaitForVBlank() {
	<-v.vblank
}

func (v *viewer) Update() error {
	select {
	case v.vblank <- struct{}{}:
	default:
	}

	select {
	case err := <-v.errc:
		if err != nil {
			return err
		}
	default:
	}

	if ebiten.IsKeyPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}

	return nil
}

func (v *viewer) Draw(dst *ebiten.Image) {
	if v.frame == nil {
		v.frame = ebiten.NewImage(display.Width, display.Height)
	}
	v.frame.WritePixels(v.screen.Render(v.cs).Pix)
	dst.DrawImage(v.frame, nil)
}

func (v *viewer) Layout(int, int) (int, int) {
	return display.Width, display.Height
}

func view(c *cli.Context, cfg *config.Config, cs *charset.Charset, logger *log.Logger) error {
	v := &viewer{
		screen: display.NewScreen(),
		cs:     cs,
		vblank: make(chan struct{}),
		errc:   make(chan error, 1),
	}

	// The layers appear once the first frame has been shown
	go func() {
		v.errc <- start(c, cfg, v.screen, v, logger)
	}()

	scale := c.Int("scale")
	if scale < 1 {
		scale = 1
	}
	ebiten.SetWindowSize(display.Width*scale, display.Height*scale)
	ebiten.SetWindowTitle(c.Args().First())

	return ebiten.RunGame(v)
}
