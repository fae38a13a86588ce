package metamap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bodgit/metamap/bank"
	"github.com/bodgit/metamap/tilemap"
	"github.com/bodgit/metamap/tmx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = log.New(io.Discard, "", 0)

// source returns a 2x2 TMX document with the given GIDs in csv form.
func source(gids ...int) string {
	s := make([]string, len(gids))
	for i, g := range gids {
		s[i] = fmt.Sprint(g)
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<map version="1.10" orientation="orthogonal" width="2" height="2" tilewidth="32" tileheight="16" infinite="0">
 <tileset firstgid="1" name="tiles" tilewidth="32" tileheight="16" tilecount="16"/>
 <layer id="1" name="ground" width="2" height="2">
  <data encoding="csv">%s</data>
 </layer>
</map>`, strings.Join(s, ","))
}

func writeSource(t *testing.T, name string, gids ...int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
	require.NoError(t, os.WriteFile(name, []byte(source(gids...)), 0o644))
}

func readMap(t *testing.T, name string) *tilemap.Map {
	t.Helper()
	b, err := os.ReadFile(name)
	require.NoError(t, err)
	m, err := tilemap.Decode(b)
	require.NoError(t, err)
	return m
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("go")
	require.NoError(t, err)
	assert.Equal(t, FormatGo, f)
	assert.Equal(t, ".go", f.Ext())
	assert.Equal(t, "go", f.String())

	f, err = ParseFormat("bin")
	require.NoError(t, err)
	assert.Equal(t, FormatBinary, f)
	assert.Equal(t, ".map", f.Ext())

	_, err = ParseFormat("json")
	assert.ErrorIs(t, err, errUnknownFormat)
	assert.Equal(t, "Format(7)", Format(7).String())
}

func TestCompile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "level.tmx")

	// [[5, empty], [empty, 5]] with tile ids offset by the firstgid of 1
	writeSource(t, file, 6, 0, 0, 6)

	m, err := NewBuilder(nil, discard, BuildOptions{}).Compile(file)
	require.NoError(t, err)
	assert.Equal(t, []uint16{5, 0, 0, 5}, m.Tiles())

	// Tile 0 collides with empty cells
	writeSource(t, file, 1, 0, 0, 6)

	m, err = NewBuilder(nil, discard, BuildOptions{}).Compile(file)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0, 0, 0, 5}, m.Tiles())

	_, err = NewBuilder(nil, discard, BuildOptions{StrictBlank: true}).Compile(file)
	assert.ErrorIs(t, err, tilemap.ErrBlankCollision)

	_, err = NewBuilder(nil, discard, BuildOptions{Layer: "sky"}).Compile(file)
	assert.ErrorIs(t, err, tmx.ErrLayerNotFound)

	_, err = NewBuilder(nil, discard, BuildOptions{}).Compile(filepath.Join(dir, "missing.tmx"))
	assert.ErrorIs(t, err, tmx.ErrSourceUnreadable)
}

func TestCompileNotTileLayer(t *testing.T) {
	file := filepath.Join(t.TempDir(), "objects.tmx")
	require.NoError(t, os.WriteFile(file, []byte(`<map width="1" height="1" tilewidth="32" tileheight="16">
 <tileset firstgid="1" name="tiles"/>
 <objectgroup name="spawns"/>
 <layer name="ground"><data encoding="csv">1</data></layer>
</map>`), 0o644))

	_, err := NewBuilder(nil, discard, BuildOptions{}).Compile(file)
	assert.ErrorIs(t, err, tmx.ErrNotTileLayer)

	m, err := NewBuilder(nil, discard, BuildOptions{Layer: "ground"}).Compile(file)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0}, m.Tiles())
}

func TestCompileCache(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "level.tmx")
	writeSource(t, file, 2, 3, 4, 5)

	c, err := NewCache(filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
	defer c.Close()

	b := NewBuilder(c, discard, BuildOptions{})
	m, err := b.Compile(file)
	require.NoError(t, err)

	n, err := c.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	key, err := b.key(file)
	require.NoError(t, err)
	a, err := c.Lookup(key)
	require.NoError(t, err)
	cached, err := tilemap.Decode(a)
	require.NoError(t, err)
	assert.Equal(t, m, cached)

	// Served from the cache
	again, err := b.Compile(file)
	require.NoError(t, err)
	assert.Equal(t, m, again)

	n, err = c.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Different options are a different entry
	_, err = NewBuilder(c, discard, BuildOptions{StrictBlank: true}).Compile(file)
	require.NoError(t, err)
	n, err = c.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestBuild(t *testing.T) {
	src := t.TempDir()
	writeSource(t, filepath.Join(src, "level1.tmx"), 6, 0, 0, 6)
	writeSource(t, filepath.Join(src, "world", "level2.tmx"), 2, 2, 2, 2)
	writeSource(t, filepath.Join(src, ".hidden", "level3.tmx"), 2, 2, 2, 2)
	require.NoError(t, os.WriteFile(filepath.Join(src, "notes.txt"), nil, 0o644))

	b := NewBuilder(nil, discard, BuildOptions{Bank: true})
	require.NoError(t, b.Build(context.Background(), src))

	assert.Equal(t, []uint16{5, 0, 0, 5}, readMap(t, filepath.Join(src, "level1.map")).Tiles())
	assert.Equal(t, []uint16{1, 1, 1, 1}, readMap(t, filepath.Join(src, "world", "level2.map")).Tiles())
	assert.NoFileExists(t, filepath.Join(src, ".hidden", "level3.map"))

	data, err := os.ReadFile(filepath.Join(src, "world", bank.Filename))
	require.NoError(t, err)
	mb := bank.New()
	require.NoError(t, mb.UnmarshalBinary(data))
	m, ok := mb.Lookup("LEVEL2")
	require.True(t, ok)
	assert.Equal(t, []uint16{1, 1, 1, 1}, m.Tiles())
}

func TestBuildGo(t *testing.T) {
	src := t.TempDir()
	out := filepath.Join(src, "out")
	writeSource(t, filepath.Join(src, "first-level.tmx"), 6, 0, 0, 6)

	b := NewBuilder(nil, discard, BuildOptions{Output: out, Format: FormatGo, Package: "levels"})
	require.NoError(t, b.Build(context.Background(), src))

	data, err := os.ReadFile(filepath.Join(out, "first-level.go"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "package levels\n")
	assert.Contains(t, string(data), "var FirstLevel = tilemap.MustNew(FirstLevelWidth, FirstLevelHeight, []uint16{")
	assert.NoFileExists(t, filepath.Join(out, bank.Filename))

	// Building again must not descend into the output
	require.NoError(t, b.Build(context.Background(), src))
	assert.NoDirExists(t, filepath.Join(out, "out"))
}

func TestBuildGoPackage(t *testing.T) {
	src := t.TempDir()
	b := NewBuilder(nil, discard, BuildOptions{Format: FormatGo})

	for dir, pkg := range map[string]string{
		"map":     "map_",
		"type":    "type_",
		"World-1": "world1",
	} {
		writeSource(t, filepath.Join(src, dir, "level.tmx"), 2, 2, 2, 2)

		n, err := b.BuildDir(src, filepath.Join(src, dir))
		require.NoError(t, err, dir)
		assert.Equal(t, 1, n)

		data, err := os.ReadFile(filepath.Join(src, dir, "level.go"))
		require.NoError(t, err, dir)
		assert.Contains(t, string(data), "package "+pkg+"\n", dir)
	}

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, tilemap.PackageName(filepath.Base(wd)), PackageName("."))
	assert.NotEqual(t, "map", PackageName("."))
}

func TestBuildErrors(t *testing.T) {
	src := t.TempDir()
	file := filepath.Join(src, "bad.tmx")
	require.NoError(t, os.WriteFile(file, []byte("<map"), 0o644))

	b := NewBuilder(nil, discard, BuildOptions{})
	assert.ErrorIs(t, b.Build(context.Background(), src), tmx.ErrSourceUnreadable)
	assert.ErrorIs(t, b.Build(context.Background(), file), errNotDirectory)
	assert.Error(t, b.Build(context.Background(), filepath.Join(src, "missing")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, b.Build(ctx, t.TempDir()))
}

func TestWatch(t *testing.T) {
	src := t.TempDir()
	file := filepath.Join(src, "level.tmx")
	writeSource(t, file, 2, 2, 2, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewBuilder(nil, discard, BuildOptions{})
	errc := make(chan error, 1)
	go func() {
		errc <- b.Watch(ctx, src)
	}()

	// Keep touching the source as the watcher may not be ready yet, slower
	// than Settle so the change is picked up
	assert.Eventually(t, func() bool {
		if err := os.WriteFile(file, []byte(source(8, 8, 8, 8)), 0o644); err != nil {
			return false
		}
		data, err := os.ReadFile(filepath.Join(src, "level.map"))
		if err != nil {
			return false
		}
		m, err := tilemap.Decode(data)
		return err == nil && m.At(0, 0) == 7
	}, 10*time.Second, 2*Settle)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatchTree(t *testing.T) {
	src := t.TempDir()
	file := filepath.Join(src, "level.tmx")
	writeSource(t, file, 2, 2, 2, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewBuilder(nil, discard, BuildOptions{Bank: true})
	errc := make(chan error, 1)
	go func() {
		errc <- b.Watch(ctx, src)
	}()

	// Wait for the watcher to be ready
	assert.Eventually(t, func() bool {
		if err := os.WriteFile(file, []byte(source(8, 8, 8, 8)), 0o644); err != nil {
			return false
		}
		data, err := os.ReadFile(filepath.Join(src, "level.map"))
		if err != nil {
			return false
		}
		m, err := tilemap.Decode(data)
		return err == nil && m.At(0, 0) == 7
	}, 10*time.Second, 2*Settle)

	// A directory created while watching is picked up
	world := filepath.Join(src, "world")
	writeSource(t, filepath.Join(world, "level2.tmx"), 3, 3, 3, 3)
	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(world, "level2.map"))
		return err == nil
	}, 10*time.Second, Settle)
	assert.FileExists(t, filepath.Join(world, bank.Filename))

	// Changes within it are rebuilt
	require.NoError(t, os.WriteFile(filepath.Join(world, "level2.tmx"), []byte(source(4, 4, 4, 4)), 0o644))
	assert.Eventually(t, func() bool {
		data, err := os.ReadFile(filepath.Join(world, "level2.map"))
		if err != nil {
			return false
		}
		m, err := tilemap.Decode(data)
		return err == nil && m.At(0, 0) == 3
	}, 10*time.Second, Settle)

	// Removing the source removes its artifact and the now empty bank
	require.NoError(t, os.Remove(filepath.Join(world, "level2.tmx")))
	assert.Eventually(t, func() bool {
		_, err1 := os.Stat(filepath.Join(world, "level2.map"))
		_, err2 := os.Stat(filepath.Join(world, bank.Filename))
		return errors.Is(err1, os.ErrNotExist) && errors.Is(err2, os.ErrNotExist)
	}, 10*time.Second, Settle)
	assert.FileExists(t, filepath.Join(src, "level.map"))

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestRemove(t *testing.T) {
	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")
	writeSource(t, filepath.Join(src, "a.tmx"), 2, 2, 2, 2)
	writeSource(t, filepath.Join(src, "b.tmx"), 2, 2, 2, 2)

	b := NewBuilder(nil, discard, BuildOptions{Output: out, Bank: true})
	require.NoError(t, b.Build(context.Background(), src))
	require.FileExists(t, filepath.Join(out, "a.map"))

	require.NoError(t, os.Remove(filepath.Join(src, "a.tmx")))
	require.NoError(t, b.remove(src, filepath.Join(src, "a.tmx")))
	assert.NoFileExists(t, filepath.Join(out, "a.map"))
	assert.FileExists(t, filepath.Join(out, bank.Filename))

	require.NoError(t, os.Remove(filepath.Join(src, "b.tmx")))
	require.NoError(t, b.remove(src, filepath.Join(src, "b.tmx")))
	assert.NoFileExists(t, filepath.Join(out, "b.map"))
	assert.NoFileExists(t, filepath.Join(out, bank.Filename))

	// Already gone
	assert.NoError(t, b.remove(src, filepath.Join(src, "b.tmx")))
}
