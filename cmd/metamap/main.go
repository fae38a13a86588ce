package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/bodgit/metamap"
	"github.com/bodgit/metamap/bank"
	"github.com/bodgit/metamap/bg"
	"github.com/bodgit/metamap/charset"
	"github.com/bodgit/metamap/config"
	"github.com/bodgit/metamap/display"
	"github.com/bodgit/metamap/metatile"
	"github.com/bodgit/metamap/tilemap"
	"github.com/urfave/cli/v2"
)

const (
	defaultConfig = "metamap.yaml"

	charsetExt = ".chr"
	tableExt   = ".mtt"
	bankExt    = ".bank"
)

var errNoMap = errors.New("no such map in bank")

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "print the version",
	}
}

func newLogger(c *cli.Context) *log.Logger {
	logger := log.New(io.Discard, "", 0)
	if c.Bool("verbose") {
		logger.SetOutput(os.Stderr)
	}
	return logger
}

// loadConfig reads the project file. A missing default project file is not
// an error, a missing named one is.
func loadConfig(c *cli.Context) (*config.Config, error) {
	name := c.String("config")
	if !c.IsSet("config") {
		if _, err := os.Stat(name); errors.Is(err, os.ErrNotExist) {
			return config.Default(), nil
		}
	}
	return config.Load(name)
}

// buildOptions merges any command line flags over the project file.
func buildOptions(c *cli.Context, cfg *config.Config) (metamap.BuildOptions, error) {
	if c.IsSet("format") {
		cfg.Format = c.String("format")
	}
	if c.IsSet("package") {
		cfg.Package = c.String("package")
	}
	if c.IsSet("layer") {
		cfg.Layer = c.String("layer")
	}
	if c.IsSet("strict-blank") {
		cfg.StrictBlank = c.Bool("strict-blank")
	}
	if c.IsSet("output") {
		cfg.Output = c.String("output")
	}
	if c.IsSet("bank") {
		cfg.Bank = c.Bool("bank")
	}
	if err := cfg.Validate(); err != nil {
		return metamap.BuildOptions{}, err
	}
	return cfg.BuildOptions()
}

var compileFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "format",
		Usage: "artifact format, bin or go",
	},
	&cli.StringFlag{
		Name:  "package",
		Usage: "package name of generated Go source",
	},
	&cli.StringFlag{
		Name:  "layer",
		Usage: "name of the tile layer to compile, instead of the first layer",
	},
	&cli.BoolFlag{
		Name:  "strict-blank",
		Usage: "reject maps using tile 0",
	},
	&cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "output directory",
	},
}

var unblankFlag = &cli.BoolFlag{
	Name:  "allow-unblank",
	Usage: "accept a meta-tile table whose meta-tile 0 is not blank",
}

var nameFlag = &cli.StringFlag{
	Name:  "name",
	Usage: "name of the map to use when MAP is a bank",
}

func checkBlank(c *cli.Context, t *metatile.Table, logger *log.Logger) error {
	err := t.CheckBlank()
	if err != nil && c.Bool("allow-unblank") {
		logger.Printf("Ignoring: %v\n", err)
		return nil
	}
	return err
}

func stem(file string) string {
	return strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
}

// loadMap reads the first argument as a map source, a compiled map or a
// bank. A map is picked from a bank with --name.
func loadMap(c *cli.Context, b *metamap.Builder) (*tilemap.Map, error) {
	file := c.Args().First()
	if strings.EqualFold(filepath.Ext(file), metamap.Extension) {
		return b.Compile(file)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(file), bankExt) {
		mb := bank.New()
		if err := mb.UnmarshalBinary(data); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		m, ok := mb.Lookup(c.String("name"))
		if !ok {
			return nil, fmt.Errorf("%s: %w: %q", file, errNoMap, c.String("name"))
		}
		return m, nil
	}

	m, err := tilemap.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return m, nil
}

func loadTable(file string) (*metatile.Table, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	t, err := metatile.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return t, nil
}

func loadCharset(file string) (*charset.Charset, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cs, err := charset.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return cs, nil
}

// start configures s from the project file and expands the map onto it.
func start(c *cli.Context, cfg *config.Config, s *display.Screen, v metamap.VBlanker, logger *log.Logger) error {
	o, err := buildOptions(c, cfg)
	if err != nil {
		return err
	}

	m, err := loadMap(c, metamap.NewBuilder(nil, logger, o))
	if err != nil {
		return err
	}

	t, err := loadTable(c.Args().Get(2))
	if err != nil {
		return err
	}
	if err := checkBlank(c, t, logger); err != nil {
		return err
	}

	bd, err := cfg.BackdropColor()
	if err != nil {
		return err
	}
	if bd != nil {
		s.SetBackdrop(bd)
	}

	for id := bg.ID(0); id < bg.NumLayers; id++ {
		r := cfg.Background(id)
		s.SetPriority(id, r.Priority)
		s.SetScroll(id, r.ScrollX, r.ScrollY)
	}

	_, err = metamap.Start(m, t, s, v, logger)
	return err
}

func main() {
	app := cli.NewApp()

	app.Name = "metamap"
	app.Usage = "Meta-tile map compiler and background layer tool"
	app.Version = "1.0.0"

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			EnvVars: []string{"METAMAP_CONFIG"},
			Value:   defaultConfig,
			Usage:   "path to project file",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "increase verbosity",
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:        "compile",
			Usage:       "Compile a single map source",
			Description: "Compiles the first tile layer of a TMX file into a binary or Go source artifact.",
			ArgsUsage:   "FILE",
			Flags:       compileFlags,
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				logger := newLogger(c)

				cfg, err := loadConfig(c)
				if err != nil {
					return cli.Exit(err, 1)
				}

				o, err := buildOptions(c, cfg)
				if err != nil {
					return cli.Exit(err, 1)
				}

				file := c.Args().First()
				m, err := metamap.NewBuilder(nil, logger, o).Compile(file)
				if err != nil {
					return cli.Exit(err, 1)
				}

				out := o.Output
				if out == "" {
					out = filepath.Dir(file)
				}

				b := new(bytes.Buffer)
				switch o.Format {
				case metamap.FormatGo:
					pkg := o.Package
					if pkg == "" {
						pkg = metamap.PackageName(out)
					}
					err = tilemap.WriteGo(b, m, pkg, tilemap.Identifier(stem(file)))
				default:
					var data []byte
					if data, err = m.MarshalBinary(); err == nil {
						b.Write(data)
					}
				}
				if err != nil {
					return cli.Exit(err, 1)
				}

				name := filepath.Join(out, stem(file)+o.Format.Ext())
				if err := os.WriteFile(name, b.Bytes(), 0o644); err != nil {
					return cli.Exit(err, 1)
				}
				logger.Printf("Wrote %s (%dx%d)\n", name, m.Width(), m.Height())

				return nil
			},
		},
		{
			Name:        "build",
			Usage:       "Compile every map source under a directory",
			Description: "Walks the maps directory and compiles every TMX file, optionally watching for changes.",
			ArgsUsage:   "[DIRECTORY]",
			Flags: append([]cli.Flag{
				&cli.BoolFlag{
					Name:  "bank",
					Usage: "also write a map bank per directory",
				},
				&cli.StringFlag{
					Name:  "cache",
					Usage: "path to build cache",
				},
				&cli.BoolFlag{
					Name:  "clean",
					Usage: "empty the build cache first",
				},
				&cli.BoolFlag{
					Name:  "watch",
					Usage: "rebuild when map sources change",
				},
			}, compileFlags...),
			Action: func(c *cli.Context) error {
				logger := newLogger(c)

				cfg, err := loadConfig(c)
				if err != nil {
					return cli.Exit(err, 1)
				}

				o, err := buildOptions(c, cfg)
				if err != nil {
					return cli.Exit(err, 1)
				}

				dir := cfg.Maps
				if c.NArg() > 0 {
					dir = c.Args().First()
				}

				file := cfg.Cache
				if c.IsSet("cache") {
					file = c.String("cache")
				}

				var cache *metamap.Cache
				if file != "" {
					if cache, err = metamap.NewCache(file); err != nil {
						return cli.Exit(err, 1)
					}
					defer cache.Close()

					if c.Bool("clean") {
						if err := cache.Purge(); err != nil {
							return cli.Exit(err, 1)
						}
						logger.Printf("Emptied cache \"%s\"\n", file)
					}
				}

				ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
				defer stop()

				b := metamap.NewBuilder(cache, logger, o)
				if c.Bool("watch") {
					err = b.Watch(ctx, dir)
				} else {
					err = b.Build(ctx, dir)
				}
				if err != nil {
					return cli.Exit(err, 1)
				}

				return nil
			},
		},
		{
			Name:        "tileset",
			Usage:       "Convert a tileset image into a character set and meta-tile table",
			Description: "Cuts the image into 32x16 meta-tiles and writes NAME.chr and NAME.mtt.",
			ArgsUsage:   "[IMAGE]",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "palettes",
					Usage: "maximum number of palette banks",
				},
				&cli.StringFlag{
					Name:    "output",
					Aliases: []string{"o"},
					Usage:   "output directory",
				},
				unblankFlag,
			},
			Action: func(c *cli.Context) error {
				logger := newLogger(c)

				cfg, err := loadConfig(c)
				if err != nil {
					return cli.Exit(err, 1)
				}

				file := cfg.Tileset
				if c.NArg() > 0 {
					file = c.Args().First()
				}
				if file == "" {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}
				if c.IsSet("palettes") {
					cfg.Palettes = c.Int("palettes")
				}

				f, err := os.Open(file)
				if err != nil {
					return cli.Exit(err, 1)
				}
				defer f.Close()

				img, _, err := image.Decode(f)
				if err != nil {
					return cli.Exit(err, 1)
				}

				cs, t, err := charset.Build(img, cfg.Palettes)
				if err != nil {
					return cli.Exit(err, 1)
				}
				if err := checkBlank(c, t, logger); err != nil {
					return cli.Exit(err, 1)
				}
				logger.Printf("%d meta-tiles, %d tiles, %d palettes\n", t.Len(), len(cs.Tiles), len(cs.Palettes))

				out := c.String("output")
				if out == "" {
					out = filepath.Dir(file)
				}

				b := new(bytes.Buffer)
				if err := charset.Encode(b, cs); err != nil {
					return cli.Exit(err, 1)
				}
				if err := os.WriteFile(filepath.Join(out, stem(file)+charsetExt), b.Bytes(), 0o644); err != nil {
					return cli.Exit(err, 1)
				}

				data, err := t.MarshalBinary()
				if err != nil {
					return cli.Exit(err, 1)
				}
				if err := os.WriteFile(filepath.Join(out, stem(file)+tableExt), data, 0o644); err != nil {
					return cli.Exit(err, 1)
				}

				return nil
			},
		},
		{
			Name:        "expand",
			Usage:       "Expand a map and dump both background layers",
			Description: "MAP is a compiled map, a TMX file or a bank.",
			ArgsUsage:   "MAP TABLE",
			Flags:       []cli.Flag{unblankFlag, nameFlag},
			Action: func(c *cli.Context) error {
				if c.NArg() < 2 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				logger := newLogger(c)

				cfg, err := loadConfig(c)
				if err != nil {
					return cli.Exit(err, 1)
				}

				o, err := cfg.BuildOptions()
				if err != nil {
					return cli.Exit(err, 1)
				}

				m, err := loadMap(c, metamap.NewBuilder(nil, logger, o))
				if err != nil {
					return cli.Exit(err, 1)
				}

				t, err := loadTable(c.Args().Get(1))
				if err != nil {
					return cli.Exit(err, 1)
				}
				if err := checkBlank(c, t, logger); err != nil {
					return cli.Exit(err, 1)
				}

				layers := new(bg.Layers)
				if err := metamap.Expand(m, t, layers); err != nil {
					return cli.Exit(err, 1)
				}

				for id := bg.ID(0); id < bg.NumLayers; id++ {
					fmt.Fprintf(c.App.Writer, "%s:\n%s", id, layers[id].String())
				}

				return nil
			},
		},
		{
			Name:        "render",
			Usage:       "Expand a map and render the screen to a PNG",
			Description: "MAP is a compiled map, a TMX file or a bank. Priority and scroll come from the project file.",
			ArgsUsage:   "MAP CHARSET TABLE",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "output",
					Aliases: []string{"o"},
					Value:   "screen.png",
					Usage:   "output image",
				},
				unblankFlag,
				nameFlag,
			},
			Action: func(c *cli.Context) error {
				if c.NArg() < 3 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				logger := newLogger(c)

				cfg, err := loadConfig(c)
				if err != nil {
					return cli.Exit(err, 1)
				}

				cs, err := loadCharset(c.Args().Get(1))
				if err != nil {
					return cli.Exit(err, 1)
				}

				ticker := display.NewTicker(display.RefreshRate)
				defer ticker.Stop()

				s := display.NewScreen()
				if err := start(c, cfg, s, ticker, logger); err != nil {
					return cli.Exit(err, 1)
				}

				f, err := os.Create(c.String("output"))
				if err != nil {
					return cli.Exit(err, 1)
				}
				defer f.Close()

				if err := png.Encode(f, s.Render(cs)); err != nil {
					return cli.Exit(err, 1)
				}

				return nil
			},
		},
		{
			Name:        "view",
			Usage:       "Expand a map and show the screen in a window",
			Description: "MAP is a compiled map, a TMX file or a bank. Press Escape to quit.",
			ArgsUsage:   "MAP CHARSET TABLE",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "scale",
					Value: 3,
					Usage: "window scale",
				},
				unblankFlag,
				nameFlag,
			},
			Action: func(c *cli.Context) error {
				if c.NArg() < 3 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				logger := newLogger(c)

				cfg, err := loadConfig(c)
				if err != nil {
					return cli.Exit(err, 1)
				}

				cs, err := loadCharset(c.Args().Get(1))
				if err != nil {
					return cli.Exit(err, 1)
				}

				if err := view(c, cfg, cs, logger); err != nil {
					return cli.Exit(err, 1)
				}

				return nil
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
