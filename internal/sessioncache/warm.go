package sessioncache

import (
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// WarmOptions configures a warming pass.
type WarmOptions struct {
	Root       string        // walked recursively for *.jsonl files
	Within     time.Duration // only parse files modified within this window (0 = no limit)
	Concurrent int           // parallel parses (default 8)
}

// WarmResult summarizes one warming pass.
type WarmResult struct {
	Scanned int
	Parsed  int
	Skipped int
	Errors  int
}

// Warm walks root for session transcripts modified within the window and
// parses each into the cache, so subsequent Get calls are O(1). It returns
// once every candidate file has been attempted; callers can await this
// before serving requests that depend on a warm cache.
func (c *Cache) Warm(opts WarmOptions) WarmResult {
	concurrency := opts.Concurrent
	if concurrency <= 0 {
		concurrency = 8
	}

	var paths []string
	cutoff := time.Time{}
	if opts.Within > 0 {
		cutoff = time.Now().Add(-opts.Within)
	}

	filepath.WalkDir(opts.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), "subagents") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".jsonl") {
			return nil
		}
		if !cutoff.IsZero() {
			info, err := d.Info()
			if err != nil || info.ModTime().Before(cutoff) {
				return nil
			}
		}
		paths = append(paths, path)
		return nil
	})

	result := WarmResult{Scanned: len(paths)}
	var mu sync.Mutex
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, p := range paths {
		wg.Add(1)
		sem <- struct{}{}
		go func(path string) {
			defer wg.Done()
			defer func() { <-sem }()
			if c.Get(path) != nil {
				mu.Lock()
				result.Skipped++
				mu.Unlock()
				return
			}
			_, err := c.GetOrParse(path)
			mu.Lock()
			if err != nil {
				result.Errors++
			} else {
				result.Parsed++
			}
			mu.Unlock()
		}(p)
	}
	wg.Wait()
	return result
}
