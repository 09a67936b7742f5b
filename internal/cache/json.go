package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const jsonVersion = "1.0"

type jsonFile struct {
	Version string  `json:"version"`
	Entries []Entry `json:"entries"`
}

// JSONStore keeps the cache in memory and writes it as one JSON file.
type JSONStore struct {
	path    string
	entries map[string]Entry
	dirty   bool
	closed  bool
	mu      sync.RWMutex
}

// OpenJSON loads the cache file at path. A missing file starts an empty
// cache; an empty path gives a memory-only store.
func OpenJSON(path string) (*JSONStore, error) {
	s := &JSONStore{
		path:    path,
		entries: make(map[string]Entry),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *JSONStore) load() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cache file: %w", err)
	}

	var f jsonFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse cache file %s: %w", s.path, err)
	}
	for _, e := range f.Entries {
		s.entries[e.Hash] = e
	}
	return nil
}

// Get implements Store.
func (s *JSONStore) Get(lang, text string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[Key(lang, text)]
	if !ok {
		return "", false
	}
	return e.Translation, true
}

// Set implements Store.
func (s *JSONStore) Set(lang, text, translation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	hash := Key(lang, text)
	s.entries[hash] = Entry{
		Hash:        hash,
		Language:    lang,
		Original:    text,
		Translation: translation,
		CreatedAt:   time.Now(),
	}
	s.dirty = true
	return nil
}

// Len implements Store.
func (s *JSONStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Save writes the file when entries were added since the last save. The
// file is replaced atomically.
func (s *JSONStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *JSONStore) saveLocked() error {
	if s.path == "" || !s.dirty {
		return nil
	}

	entries := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Hash < entries[j].Hash })

	data, err := json.MarshalIndent(jsonFile{Version: jsonVersion, Entries: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	s.dirty = false
	return nil
}

// Close implements Store.
func (s *JSONStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.saveLocked()
}

// Path returns the cache file path.
func (s *JSONStore) Path() string {
	return s.path
}
