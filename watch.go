package metamap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bodgit/metamap/bank"
	"github.com/fsnotify/fsnotify"
)

// Settle is how long the tree must be quiet before a change is rebuilt.
const Settle = 250 * time.Millisecond

// Change is a change seen by a Watcher.
type Change struct {
	Path string
	// Dir is set when Path is a new directory.
	Dir bool
	// Removed is set when the map source at Path has gone.
	Removed bool
}

// Watcher reports changes to map sources in a set of directories, and any
// directories created within them.
type Watcher struct {
	watcher *fsnotify.Watcher
	Events  chan Change
	Errors  chan error
	closeCh chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewWatcher starts watching dirs. It does not recurse.
func NewWatcher(dirs ...string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return nil, err
		}
	}

	watcher := &Watcher{
		watcher: w,
		Events:  make(chan Change, 16),
		Errors:  make(chan error, 1),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go watcher.run()
	return watcher, nil
}

// Add starts watching dir as well.
func (w *Watcher) Add(dir string) error {
	return w.watcher.Add(dir)
}

// Close stops the watcher and closes the Events and Errors channels.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.closeCh)
		err = w.watcher.Close()
		<-w.done
	})
	return err
}

func change(event fsnotify.Event) (Change, bool) {
	if event.Has(fsnotify.Create) {
		if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
			return Change{Path: event.Name, Dir: true}, true
		}
	}
	if !isSource(event.Name) {
		return Change{}, false
	}
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return Change{Path: event.Name, Removed: true}, true
	case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
		return Change{Path: event.Name}, true
	}
	return Change{}, false
}

func (w *Watcher) run() {
	defer close(w.done)
	defer close(w.Errors)
	defer close(w.Events)

	last := make(map[string]time.Time)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			c, ok := change(event)
			if !ok {
				continue
			}
			if c.Removed {
				delete(last, c.Path)
			} else if !c.Dir {
				// Editors tend to write a file several times when saving
				now := time.Now()
				if t, ok := last[c.Path]; ok && now.Sub(t) < 100*time.Millisecond {
					continue
				}
				last[c.Path] = now
			}
			select {
			case w.Events <- c:
			case <-w.closeCh:
				return
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.Errors <- err:
			case <-w.closeCh:
				return
			}
		case <-w.closeCh:
			return
		}
	}
}

func isSource(path string) bool {
	return strings.EqualFold(filepath.Ext(path), Extension)
}

// remove deletes the artifact compiled from the map source file. The bank
// of the directory is deleted too once no sources are left in it.
func (b *Builder) remove(base, file string) error {
	dir := filepath.Dir(file)
	out, err := b.outputDir(base, dir)
	if err != nil {
		return err
	}

	name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	if err := os.Remove(filepath.Join(out, name+b.options.Format.Ext())); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	b.logger.Printf("Removed artifact of \"%s\"\n", file)

	if !b.options.Bank {
		return nil
	}
	files, err := sources(dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if len(files) > 0 {
		return nil
	}
	if err := os.Remove(filepath.Join(out, bank.Filename)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Watch builds everything under path, then rebuilds the directory of every
// map source that changes until ctx is cancelled. New directories are
// watched as they appear and the artifact of a removed source is deleted.
// Errors after the first build are logged rather than returned so an
// invalid edit does not stop the watch.
func (b *Builder) Watch(ctx context.Context, path string) error {
	base, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	if err := b.Build(ctx, base); err != nil {
		return err
	}

	dirs, err := b.directories(base)
	if err != nil {
		return err
	}

	w, err := NewWatcher(dirs...)
	if err != nil {
		return err
	}
	defer w.Close()

	b.logger.Printf("Watching %d directories under \"%s\"\n", len(dirs), base)

	pending := make(map[string]struct{})
	timer := time.NewTimer(Settle)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case c, ok := <-w.Events:
			if !ok {
				return nil
			}
			switch {
			case c.Dir:
				if filepath.Base(c.Path)[0] == '.' || b.isOutput(c.Path) {
					continue
				}
				dirs, err := b.directories(c.Path)
				if err != nil {
					b.logger.Printf("Watching \"%s\": %v\n", c.Path, err)
					continue
				}
				for _, dir := range dirs {
					if err := w.Add(dir); err != nil {
						b.logger.Printf("Watching \"%s\": %v\n", dir, err)
						continue
					}
					b.logger.Printf("Watching \"%s\"\n", dir)
					pending[dir] = struct{}{}
				}
			case c.Removed:
				if err := b.remove(base, c.Path); err != nil {
					b.logger.Printf("Removing artifact of \"%s\": %v\n", c.Path, err)
				}
				pending[filepath.Dir(c.Path)] = struct{}{}
			default:
				pending[filepath.Dir(c.Path)] = struct{}{}
			}
			timer.Reset(Settle)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			b.logger.Printf("Watch error: %v\n", err)
		case <-timer.C:
			for dir := range pending {
				if _, err := b.BuildDir(base, dir); err != nil && !errors.Is(err, os.ErrNotExist) {
					b.logger.Printf("Rebuilding \"%s\": %v\n", dir, err)
				}
				delete(pending, dir)
			}
		}
	}
}
