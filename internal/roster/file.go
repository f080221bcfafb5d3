package roster

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

type fileSnapshot struct {
	Users  map[string]Card `json:"users"`
	Topics map[string]Card `json:"topics"`
}

// FileRoster serves profiles from a JSON file maintained by the account
// sync process. The file is watched; an external rewrite is picked up
// without restarting the engine.
type FileRoster struct {
	path string

	mu       sync.RWMutex
	snapshot fileSnapshot

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

func NewFileRoster(path string) (*FileRoster, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidInput
	}
	r := &FileRoster{
		path: path,
		snapshot: fileSnapshot{
			Users:  map[string]Card{},
			Topics: map[string]Card{},
		},
		done: make(chan struct{}),
	}
	if err := r.reload(); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory, not the file: atomic rewrites (tmp+rename)
	// replace the inode the file watch would be bound to.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	r.watcher = watcher
	r.wg.Add(1)
	go r.watch()
	return r, nil
}

func (r *FileRoster) UserGet(id string) (*Card, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	card, ok := r.snapshot.Users[strings.TrimSpace(id)]
	if !ok {
		return nil, false
	}
	clone := card
	return &clone, true
}

func (r *FileRoster) TopicGet(name string) (*Card, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	card, ok := r.snapshot.Topics[strings.TrimSpace(name)]
	if !ok {
		return nil, false
	}
	clone := card
	return &clone, true
}

func (r *FileRoster) Close() error {
	if r == nil {
		return nil
	}
	close(r.done)
	var err error
	if r.watcher != nil {
		err = r.watcher.Close()
	}
	r.wg.Wait()
	return err
}

func (r *FileRoster) reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var snapshot fileSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return err
	}
	if snapshot.Users == nil {
		snapshot.Users = map[string]Card{}
	}
	if snapshot.Topics == nil {
		snapshot.Topics = map[string]Card{}
	}
	r.mu.Lock()
	r.snapshot = snapshot
	r.mu.Unlock()
	return nil
}

func (r *FileRoster) watch() {
	defer r.wg.Done()
	target := filepath.Clean(r.path)
	for {
		select {
		case <-r.done:
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// A stale or half-written snapshot is not fatal; keep
			// serving the previous one.
			_ = r.reload()
		case _, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}
