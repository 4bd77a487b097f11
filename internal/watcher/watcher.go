// Package watcher monitors a coding-assistant's session directory for new
// and changed transcript files and publishes change events for the session
// cache to invalidate against.
package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/langmartai/lmassist/internal/sessioncache"
)

var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "subagents": true,
}

// Watch starts watching root for *.jsonl transcript changes and publishes
// debounced ChangeEvents to cache's event bus. It invalidates the cache
// entry for any changed path so the next Get re-parses. Blocks until the
// watcher's channels close; watch errors are logged and watching continues.
func Watch(cache *sessioncache.Cache, root string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	dirs := walkDirs(root)
	for _, d := range dirs {
		if err := w.Add(d); err != nil {
			fmt.Fprintf(os.Stderr, "lmassist: could not watch %s: %v\n", d, err)
		}
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]sessioncache.ChangeKind)
		timer   *time.Timer
	)
	const debounceDelay = 1 * time.Second

	flush := func() {
		mu.Lock()
		events := make(map[string]sessioncache.ChangeKind, len(pending))
		for p, k := range pending {
			events[p] = k
		}
		pending = make(map[string]sessioncache.ChangeKind)
		mu.Unlock()

		for path, kind := range events {
			cache.Invalidate(path) // force re-parse (or removal) on next Get
			cache.Events().Publish(sessioncache.ChangeEvent{Path: path, Kind: kind})
		}
	}

	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(event.Name, ".jsonl") {
				if event.Has(fsnotify.Create) {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						if !skipDirs[filepath.Base(event.Name)] {
							w.Add(event.Name)
						}
					}
				}
				continue
			}

			var kind sessioncache.ChangeKind
			switch {
			case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
				kind = sessioncache.ChangeDelete
			case event.Has(fsnotify.Create):
				kind = sessioncache.ChangeCreate
			case event.Has(fsnotify.Write):
				kind = sessioncache.ChangeModify
			default:
				continue
			}

			mu.Lock()
			pending[event.Name] = kind
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceDelay, flush)
			mu.Unlock()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "lmassist: watch error: %v\n", err)
		}
	}
}

func walkDirs(root string) []string {
	var dirs []string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if skipDirs[name] {
				return filepath.SkipDir
			}
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs
}
