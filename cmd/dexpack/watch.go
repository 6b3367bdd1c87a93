package main

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dhamidi/dexpack/dx"
)

const rebuildDelay = 200 * time.Millisecond

// watch packs once, then repacks whenever a class file or archive below one
// of the inputs changes, until ctx is done.
func (p *packer) watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, in := range p.inputs {
		if err := addWatches(watcher, in); err != nil {
			return err
		}
	}

	var mu sync.Mutex
	rebuild := func() {
		mu.Lock()
		defer mu.Unlock()
		if _, err := p.pack(); err != nil {
			p.log.Errorf("rebuild failed: %s", err)
		}
	}
	rebuild()

	d := &debouncer{delay: rebuildDelay, fn: rebuild}
	defer d.stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addWatches(watcher, event.Name); err != nil {
						p.log.Warningf("cannot watch %s: %s", event.Name, err)
					}
				}
			}
			if !relevantEvent(event, p.cfg.Output) {
				continue
			}
			p.log.Debugf("change: %s", event)
			d.trigger()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.log.Errorf("watch error: %s", err)
		}
	}
}

// addWatches watches every directory below root, or the directory holding
// root when it is a file.
func addWatches(watcher *fsnotify.Watcher, root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return watcher.Add(filepath.Dir(root))
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

func relevantEvent(event fsnotify.Event, output string) bool {
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return false
	}
	if filepath.Clean(event.Name) == filepath.Clean(output) {
		return false
	}
	return strings.HasSuffix(event.Name, dx.ClassSuffix) || isArchive(event.Name)
}

// debouncer runs fn once, delay after the last of a burst of triggers.
// stop waits for a run already in progress.
type debouncer struct {
	delay time.Duration
	fn    func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
	pending sync.WaitGroup
}

func (d *debouncer) trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil && d.timer.Stop() {
		d.pending.Done()
	}
	d.pending.Add(1)
	d.timer = time.AfterFunc(d.delay, func() {
		defer d.pending.Done()
		d.fn()
	})
}

func (d *debouncer) stop() {
	d.mu.Lock()
	d.stopped = true
	if d.timer != nil && d.timer.Stop() {
		d.pending.Done()
	}
	d.timer = nil
	d.mu.Unlock()

	d.pending.Wait()
}
