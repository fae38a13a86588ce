/*
Package config loads the project file describing where map sources live and
how they are built and displayed.

A project file is YAML, for example:

	maps: levels
	output: build
	format: go
	package: levels
	bank: true
	tileset: art/tiles.png
	palettes: 4
	strict_blank: true
	cache: .metamap.db
	backdrop: "#102040"
	bg1:
	  priority: 1
	  scroll_y: 8

Any key left out keeps its value from Default.
*/
package config

import (
	"bytes"
	"errors"
	"fmt"
	"go/token"
	"image/color"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/bodgit/metamap"
	"github.com/bodgit/metamap/bg"
	"github.com/bodgit/metamap/metatile"
	"gopkg.in/yaml.v3"
)

// MaxPriority is the lowest priority a background can have.
const MaxPriority = 3

var errInvalid = errors.New("config: invalid")

// Background holds the display registers of one background.
type Background struct {
	Priority int `yaml:"priority"`
	ScrollX  int `yaml:"scroll_x"`
	ScrollY  int `yaml:"scroll_y"`
}

// Config is a project configuration.
type Config struct {
	Maps        string     `yaml:"maps"`
	Output      string     `yaml:"output"`
	Format      string     `yaml:"format"`
	Package     string     `yaml:"package"`
	Layer       string     `yaml:"layer"`
	Bank        bool       `yaml:"bank"`
	Tileset     string     `yaml:"tileset"`
	Palettes    int        `yaml:"palettes"`
	StrictBlank bool       `yaml:"strict_blank"`
	Cache       string     `yaml:"cache"`
	Backdrop    string     `yaml:"backdrop"`
	BG0         Background `yaml:"bg0"`
	BG1         Background `yaml:"bg1"`
}

// Default returns the configuration used when there is no project file.
func Default() *Config {
	return &Config{
		Maps:     ".",
		Format:   metamap.FormatBinary.String(),
		Palettes: metatile.MaxPalettes,
	}
}

// Load reads the project file name on top of Default and validates it.
func Load(name string) (*Config, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", name, err)
	}

	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: unmarshal %s: %w", name, err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", name, err)
	}

	return c, nil
}

// Validate checks every value is usable.
func (c *Config) Validate() error {
	if c.Maps == "" {
		return fmt.Errorf("%w maps: must not be empty", errInvalid)
	}
	if _, err := metamap.ParseFormat(c.Format); err != nil {
		return fmt.Errorf("%w format: %w", errInvalid, err)
	}
	if c.Package != "" && !token.IsIdentifier(c.Package) {
		return fmt.Errorf("%w package: %q is not an identifier", errInvalid, c.Package)
	}
	if c.Palettes < 1 || c.Palettes > metatile.MaxPalettes {
		return fmt.Errorf("%w palettes: %d not between 1 and %d", errInvalid, c.Palettes, metatile.MaxPalettes)
	}
	if _, err := c.BackdropColor(); err != nil {
		return fmt.Errorf("%w backdrop: %w", errInvalid, err)
	}
	for id := bg.ID(0); id < bg.NumLayers; id++ {
		if p := c.Background(id).Priority; p < 0 || p > MaxPriority {
			return fmt.Errorf("%w %s priority: %d not between 0 and %d", errInvalid, id, p, MaxPriority)
		}
	}
	return nil
}

// Background returns the registers of background id.
func (c *Config) Background(id bg.ID) Background {
	if id == bg.Odd {
		return c.BG1
	}
	return c.BG0
}

// BackdropColor returns the "#rrggbb" backdrop as a color, or nil if there
// is none.
func (c *Config) BackdropColor() (color.Color, error) {
	if c.Backdrop == "" {
		return nil, nil
	}
	s := strings.TrimPrefix(c.Backdrop, "#")
	if len(s) != 6 {
		return nil, fmt.Errorf("%q is not #rrggbb", c.Backdrop)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("%q is not #rrggbb: %w", c.Backdrop, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

// BuildOptions returns the options for a metamap.Builder.
func (c *Config) BuildOptions() (metamap.BuildOptions, error) {
	f, err := metamap.ParseFormat(c.Format)
	if err != nil {
		return metamap.BuildOptions{}, err
	}
	return metamap.BuildOptions{
		Output:      c.Output,
		Format:      f,
		Package:     c.Package,
		Layer:       c.Layer,
		StrictBlank: c.StrictBlank,
		Bank:        c.Bank,
	}, nil
}
