// Package repofiles caches the project's version-control-tracked file list.
//
// The list comes from `git ls-files` and is cached until invalidated, either
// explicitly (repo-map updates from the worker) or by a filesystem watch on
// the .git directory picking up index changes.
package repofiles

import (
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agusx1211/amux/internal/debug"
)

const debounceDelay = 150 * time.Millisecond

// Cache is the tracked-file cache for one project base directory.
type Cache struct {
	baseDir string

	mu     sync.Mutex
	files  []string
	loaded bool

	watcher *fsnotify.Watcher
	closeCh chan struct{}
}

// NewCache returns an unloaded cache for baseDir.
func NewCache(baseDir string) *Cache {
	return &Cache{baseDir: baseDir}
}

// Files returns the tracked file paths, running git ls-files on first use
// or after invalidation. A git failure degrades to an empty list.
func (c *Cache) Files() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		c.files = listTracked(c.baseDir)
		c.loaded = true
	}
	return append([]string(nil), c.files...)
}

// Filter returns the tracked files matching pattern. A bad pattern is
// logged and degrades to "show all" — it never fails the call.
func (c *Cache) Filter(pattern string) []string {
	files := c.Files()
	if strings.TrimSpace(pattern) == "" {
		return files
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		debug.LogKV("repofiles", "bad filter pattern, showing all", "pattern", pattern, "err", err)
		return files
	}
	out := files[:0:0]
	for _, f := range files {
		if re.MatchString(f) {
			out = append(out, f)
		}
	}
	return out
}

// Invalidate drops the cached listing; the next Files call re-runs git.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.files = nil
	c.mu.Unlock()
}

// Watch starts a filesystem watch on the project's .git directory so index
// updates (commits, adds, checkouts) invalidate the cache. Events are
// debounced; watch setup failure is returned but non-fatal to callers.
func (c *Cache) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	gitDir := filepath.Join(c.baseDir, ".git")
	if err := watcher.Add(gitDir); err != nil {
		_ = watcher.Close()
		return err
	}

	c.mu.Lock()
	c.watcher = watcher
	c.closeCh = make(chan struct{})
	closeCh := c.closeCh
	c.mu.Unlock()

	go func() {
		var debounce *time.Timer
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				// Git rewrites the index via rename; any touch of
				// index/HEAD means the tracked set may have changed.
				base := filepath.Base(ev.Name)
				if base != "index" && base != "HEAD" {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDelay, c.Invalidate)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				debug.LogKV("repofiles", "watch error", "base_dir", c.baseDir, "err", err)
			case <-closeCh:
				return
			}
		}
	}()
	return nil
}

// Close stops the watcher if one is running.
func (c *Cache) Close() {
	c.mu.Lock()
	watcher := c.watcher
	closeCh := c.closeCh
	c.watcher = nil
	c.closeCh = nil
	c.mu.Unlock()

	if closeCh != nil {
		close(closeCh)
	}
	if watcher != nil {
		_ = watcher.Close()
	}
}

func listTracked(baseDir string) []string {
	cmd := exec.Command("git", "ls-files", "-z")
	cmd.Dir = baseDir
	out, err := cmd.Output()
	if err != nil {
		debug.LogKV("repofiles", "git ls-files failed", "base_dir", baseDir, "err", err)
		return nil
	}
	parts := strings.Split(string(out), "\x00")
	files := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			files = append(files, p)
		}
	}
	return files
}
