package metamap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/bodgit/metamap/bank"
	"github.com/bodgit/metamap/tilemap"
	"github.com/bodgit/metamap/tmx"
)

// Extension is the file extension of map sources.
const Extension = ".tmx"

const workers = 10

var (
	errUnknownFormat = errors.New("metamap: unknown format")
	errNotDirectory  = errors.New("metamap: not a directory")
	errWalkCancelled = errors.New("metamap: walk cancelled")
)

// Format selects the artifact written for each compiled map.
type Format int

const (
	// FormatBinary writes <name>.map binary artifacts.
	FormatBinary Format = iota
	// FormatGo writes <name>.go source files.
	FormatGo
)

var formatNames = map[Format]string{
	FormatBinary: "bin",
	FormatGo:     "go",
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return "Format(" + strconv.Itoa(int(f)) + ")"
}

// ParseFormat returns the Format called s.
func ParseFormat(s string) (Format, error) {
	for f, name := range formatNames {
		if name == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", errUnknownFormat, s)
}

// Ext returns the file extension of artifacts of this format.
func (f Format) Ext() string {
	if f == FormatGo {
		return ".go"
	}
	return ".map"
}

// BuildOptions configures a Builder.
type BuildOptions struct {
	// Output is the directory artifacts are written to, mirroring the
	// source tree. If empty, artifacts are written next to their sources.
	Output string
	// Format of the per-map artifacts.
	Format Format
	// Package is the Go package of generated source, defaulting to the
	// name of the directory.
	Package string
	// Layer names the tile layer to compile. If empty the first layer is
	// used and must be a tile layer.
	Layer string
	// StrictBlank rejects maps using tile 0, see tilemap.WithStrictBlank.
	StrictBlank bool
	// Bank also writes a bank of every map in each directory.
	Bank bool
}

// Builder compiles trees of map sources into artifacts.
type Builder struct {
	cache   *Cache
	logger  *log.Logger
	options BuildOptions
}

// NewBuilder returns a Builder. cache may be nil to always compile.
func NewBuilder(cache *Cache, logger *log.Logger, options BuildOptions) *Builder {
	return &Builder{
		cache:   cache,
		logger:  logger,
		options: options,
	}
}

func (b *Builder) grid(m *tmx.Map) (*tmx.Grid, error) {
	if b.options.Layer != "" {
		return m.GridByName(b.options.Layer)
	}
	return m.Grid(0)
}

func (b *Builder) key(file string) (string, error) {
	return KeyFile(file, b.options.Layer, strconv.FormatBool(b.options.StrictBlank))
}

// Compile compiles a single map source, using the cache if there is one.
func (b *Builder) Compile(file string) (*tilemap.Map, error) {
	var key string
	if b.cache != nil {
		var err error
		if key, err = b.key(file); err != nil {
			return nil, err
		}
		a, err := b.cache.Lookup(key)
		if err != nil {
			return nil, err
		}
		if a != nil {
			if m, err := tilemap.Decode(a); err == nil {
				return m, nil
			}
			b.logger.Printf("Ignoring bad cache entry for \"%s\"\n", file)
		}
	}

	src, err := tmx.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}

	g, err := b.grid(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}

	var opts []tilemap.Option
	if b.options.StrictBlank {
		opts = append(opts, tilemap.WithStrictBlank())
	} else if n := tilemap.Collisions(g); n > 0 {
		b.logger.Printf("\"%s\" uses tile 0 in %d cells, they will render as empty\n", file, n)
	}

	m, err := tilemap.Compile(g, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}

	if b.cache != nil {
		a, err := m.MarshalBinary()
		if err != nil {
			return nil, err
		}
		if err := b.cache.Store(key, a); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (b *Builder) outputDir(base, dir string) (string, error) {
	if b.options.Output == "" {
		return dir, nil
	}
	rel, err := filepath.Rel(base, dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(b.options.Output, rel), nil
}

func (b *Builder) packageName(dir string) string {
	if b.options.Package != "" {
		return b.options.Package
	}
	return PackageName(dir)
}

// PackageName returns the default Go package name for artifacts written to
// dir, which is named after the directory itself.
func PackageName(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return tilemap.PackageName(filepath.Base(dir))
}

func (b *Builder) writeArtifact(out, pkg, name string, m *tilemap.Map) error {
	var data []byte
	switch b.options.Format {
	case FormatGo:
		buf := new(bytes.Buffer)
		if err := tilemap.WriteGo(buf, m, pkg, tilemap.Identifier(name)); err != nil {
			return err
		}
		data = buf.Bytes()
	default:
		var err error
		if data, err = m.MarshalBinary(); err != nil {
			return err
		}
	}
	return os.WriteFile(filepath.Join(out, name+b.options.Format.Ext()), data, 0o644)
}

// sources returns the map sources at the top of dir, sorted by name.
func sources(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		// Ignore any hidden files, otherwise we end up fighting with things like Spotlight, etc.
		if e.Name()[0] == '.' || !e.Type().IsRegular() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), Extension) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	return files, nil
}

// BuildDir compiles every map source at the top of dir, which must be
// within base. It returns the number of maps compiled.
func (b *Builder) BuildDir(base, dir string) (int, error) {
	files, err := sources(dir)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, nil
	}

	out, err := b.outputDir(base, dir)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return 0, err
	}

	pkg := b.packageName(out)
	mb := bank.New()

	for _, file := range files {
		m, err := b.Compile(file)
		if err != nil {
			return 0, err
		}

		name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		if err := b.writeArtifact(out, pkg, name, m); err != nil {
			return 0, err
		}
		b.logger.Printf("Compiled \"%s\" (%dx%d)\n", file, m.Width(), m.Height())

		if b.options.Bank {
			if err := mb.Set(bank.CRCFilename(name), m); err != nil {
				return 0, fmt.Errorf("%s: %w", file, err)
			}
		}
	}

	if mb.Length() > 0 {
		data, err := mb.MarshalBinary()
		if err != nil {
			return 0, err
		}
		if err := os.WriteFile(filepath.Join(out, bank.Filename), data, 0o644); err != nil {
			return 0, err
		}
	}

	return len(files), nil
}

// directories returns every directory under base that is not hidden or the
// output directory.
func (b *Builder) directories(base string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(base, func(dir string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if dir != base && (d.Name()[0] == '.' || b.isOutput(dir)) {
			return filepath.SkipDir
		}
		dirs = append(dirs, dir)
		return nil
	})
	return dirs, err
}

func (b *Builder) findDirectories(ctx context.Context, base string) (<-chan string, <-chan error, error) {
	info, err := os.Stat(base)
	if err != nil {
		return nil, nil, err
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("%w: %s", errNotDirectory, base)
	}

	out := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		errc <- filepath.WalkDir(base, func(dir string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}

			// Ignore anything that isn't a directory
			if !d.IsDir() {
				return nil
			}

			// Ignore any hidden directories, including the output
			if dir != base && (d.Name()[0] == '.' || b.isOutput(dir)) {
				return filepath.SkipDir
			}

			select {
			case out <- dir:
			case <-ctx.Done():
				return errWalkCancelled
			}

			return nil
		})
	}()
	return out, errc, nil
}

func (b *Builder) isOutput(dir string) bool {
	if b.options.Output == "" {
		return false
	}
	a, err1 := filepath.Abs(dir)
	o, err2 := filepath.Abs(b.options.Output)
	return err1 == nil && err2 == nil && a == o
}

func (b *Builder) directoryWorker(ctx context.Context, base string, in <-chan string, total *counter) (<-chan error, error) {
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		for dir := range in {
			if err := ctx.Err(); err != nil {
				errc <- err
				return
			}
			n, err := b.BuildDir(base, dir)
			if err != nil {
				errc <- err
				return
			}
			total.add(n)
		}
	}()
	return errc, nil
}

type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) add(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n += n
}

func waitForPipeline(errs ...<-chan error) error {
	errc := mergeErrors(errs...)
	for err := range errc {
		if err != nil {
			return err
		}
	}
	return nil
}

func mergeErrors(cs ...<-chan error) <-chan error {
	var wg sync.WaitGroup
	out := make(chan error, len(cs))
	wg.Add(len(cs))
	for _, c := range cs {
		go func(c <-chan error) {
			for n := range c {
				out <- n
			}
			wg.Done()
		}(c)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// Build compiles every map source in every directory under path. The first
// error stops the walk and is returned.
func (b *Builder) Build(ctx context.Context, path string) error {
	base, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	var errcList []<-chan error

	dirs, errc, err := b.findDirectories(ctx, base)
	if err != nil {
		return err
	}
	errcList = append(errcList, errc)

	total := new(counter)
	for i := 0; i < workers; i++ {
		errc, err := b.directoryWorker(ctx, base, dirs, total)
		if err != nil {
			return err
		}
		errcList = append(errcList, errc)
	}

	if err := waitForPipeline(errcList...); err != nil {
		return err
	}

	b.logger.Printf("Compiled %d maps under \"%s\"\n", total.n, base)

	return nil
}
