package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"SyncFM/logger"

	"github.com/fsnotify/fsnotify"
)

// File is a Store backed by a single JSON file, for setups without Redis.
// Writers from other processes are observed through fsnotify, so the change
// subscription still fires across process boundaries. It does not implement
// Atomic; the ownership election falls back to its broadcast convention.
type File struct {
	path string

	mu      sync.RWMutex
	values  map[string]string
	subs    map[string][]*memorySub
	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
}

// NewFile opens (or creates) the store file at path and starts watching it.
func NewFile(path string) (*File, error) {
	f := &File{
		path:   path,
		values: make(map[string]string),
		subs:   make(map[string][]*memorySub),
		done:   make(chan struct{}),
	}
	if err := f.load(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create store watcher: %w", err)
	}
	// Watch the directory: editors and atomic renames replace the file node.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch store directory: %w", err)
	}
	f.watcher = watcher
	go f.watch()
	return f, nil
}

func (f *File) Get(_ context.Context, key string) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (f *File) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	f.values[key] = value
	err := f.save()
	subs := append([]*memorySub(nil), f.subs[key]...)
	f.mu.Unlock()
	if err != nil {
		return err
	}

	for _, s := range subs {
		s.handler(value)
	}
	return nil
}

func (f *File) Clear(_ context.Context, key string) error {
	f.mu.Lock()
	_, existed := f.values[key]
	delete(f.values, key)
	err := f.save()
	subs := append([]*memorySub(nil), f.subs[key]...)
	f.mu.Unlock()
	if err != nil {
		return err
	}

	if existed {
		for _, s := range subs {
			s.handler("")
		}
	}
	return nil
}

func (f *File) Subscribe(key string, handler func(string)) (func(), error) {
	sub := &memorySub{handler: handler}

	f.mu.Lock()
	f.subs[key] = append(f.subs[key], sub)
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		subs := f.subs[key]
		for i, s := range subs {
			if s == sub {
				f.subs[key] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
	}
	return cancel, nil
}

func (f *File) Close() error {
	var err error
	f.once.Do(func() {
		close(f.done)
		if f.watcher != nil {
			err = f.watcher.Close()
		}
	})
	return err
}

// load reads the current file contents. A missing file is an empty store.
func (f *File) load() error {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read store file: %w", err)
	}
	values := make(map[string]string)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &values); err != nil {
			return fmt.Errorf("failed to parse store file: %w", err)
		}
	}
	f.values = values
	return nil
}

// save writes the store atomically via rename. Caller holds the lock.
func (f *File) save() error {
	data, err := json.MarshalIndent(f.values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}

// watch reloads the file on external writes and notifies handlers of
// changed keys.
func (f *File) watch() {
	for {
		select {
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(f.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			f.reload()
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("store watcher error", logger.ErrorField(err))
		case <-f.done:
			return
		}
	}
}

func (f *File) reload() {
	f.mu.Lock()
	old := f.values
	if err := f.load(); err != nil {
		f.mu.Unlock()
		logger.Warn("failed to reload store file", logger.ErrorField(err))
		return
	}

	type change struct {
		handlers []*memorySub
		value    string
	}
	var changes []change
	for key, v := range f.values {
		if old[key] != v {
			changes = append(changes, change{append([]*memorySub(nil), f.subs[key]...), v})
		}
	}
	for key := range old {
		if _, still := f.values[key]; !still {
			changes = append(changes, change{append([]*memorySub(nil), f.subs[key]...), ""})
		}
	}
	f.mu.Unlock()

	for _, c := range changes {
		for _, s := range c.handlers {
			s.handler(c.value)
		}
	}
}
