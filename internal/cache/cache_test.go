package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestKey(t *testing.T) {
	k := Key("hi", "Hello")
	if len(k) != 64 {
		t.Fatalf("key length = %d, want 64", len(k))
	}
	if Key("hi", "Hello") != k || Key("HI", "Hello") != k {
		t.Error("key not stable across calls and case of the language code")
	}

	distinct := []string{Key("kn", "Hello"), Key("hi", "hello"), Key("hi", "Hello "), Key("h", "iHello")}
	for _, other := range distinct {
		if other == k {
			t.Errorf("collision with %s", other)
		}
	}
}

// storeFactories opens each backend in a fresh directory.
func storeFactories(t *testing.T) map[string]func(path string) Store {
	t.Helper()
	return map[string]func(path string) Store{
		"json": func(path string) Store {
			s, err := OpenJSON(path + ".json")
			if err != nil {
				t.Fatal(err)
			}
			return s
		},
		"sqlite": func(path string) Store {
			s, err := OpenSQLite(path + ".db")
			if err != nil {
				t.Fatal(err)
			}
			return s
		},
	}
}

func TestStoreSetGet(t *testing.T) {
	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := open(filepath.Join(t.TempDir(), "cache"))
			defer s.Close()

			if _, ok := s.Get("hi", "Hello"); ok {
				t.Error("empty store returned a hit")
			}
			if err := s.Set("hi", "Hello", "नमस्ते"); err != nil {
				t.Fatal(err)
			}
			if err := s.Set("kn", "Hello", "ನಮಸ್ಕಾರ"); err != nil {
				t.Fatal(err)
			}

			if got, ok := s.Get("hi", "Hello"); !ok || got != "नमस्ते" {
				t.Errorf("Get(hi) = %q, %v", got, ok)
			}
			if got, ok := s.Get("kn", "Hello"); !ok || got != "ನಮಸ್ಕಾರ" {
				t.Errorf("Get(kn) = %q, %v", got, ok)
			}
			if s.Len() != 2 {
				t.Errorf("Len() = %d, want 2", s.Len())
			}

			if err := s.Set("hi", "Hello", "हैलो"); err != nil {
				t.Fatal(err)
			}
			if got, _ := s.Get("hi", "Hello"); got != "हैलो" {
				t.Errorf("overwrite not visible: %q", got)
			}
			if s.Len() != 2 {
				t.Errorf("overwrite changed Len to %d", s.Len())
			}
		})
	}
}

func TestStorePersistsAcrossOpen(t *testing.T) {
	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cache")

			s := open(path)
			if err := s.Set("ta", "Results", "முடிவுகள்"); err != nil {
				t.Fatal(err)
			}
			if err := s.Close(); err != nil {
				t.Fatal(err)
			}
			if err := s.Set("ta", "late", "x"); err != ErrClosed {
				t.Errorf("Set after Close = %v, want ErrClosed", err)
			}

			reopened := open(path)
			defer reopened.Close()
			if got, ok := reopened.Get("ta", "Results"); !ok || got != "முடிவுகள்" {
				t.Errorf("after reopen Get = %q, %v", got, ok)
			}
		})
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := open(filepath.Join(t.TempDir(), "cache"))
			defer s.Close()

			var wg sync.WaitGroup
			for w := 0; w < 4; w++ {
				wg.Add(1)
				go func(w int) {
					defer wg.Done()
					for i := 0; i < 25; i++ {
						text := fmt.Sprintf("block %d-%d", w, i)
						if err := s.Set("hi", text, "t:"+text); err != nil {
							t.Error(err)
							return
						}
						s.Get("hi", text)
					}
				}(w)
			}
			wg.Wait()

			if s.Len() != 100 {
				t.Errorf("Len() = %d, want 100", s.Len())
			}
		})
	}
}

func TestJSONStoreSaveOnlyWhenDirty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.json")
	s, err := OpenJSON(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Save(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("clean store should not create a file")
	}

	s.Set("hi", "a", "b")
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("dirty store not saved: %v", err)
	}
	if s.Path() != path {
		t.Errorf("Path() = %s", s.Path())
	}
}

func TestOpenJSONCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenJSON(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestOpenBackends(t *testing.T) {
	dir := t.TempDir()

	for _, backend := range []string{"", "none"} {
		s, err := Open(backend, "")
		if err != nil || s != nil {
			t.Errorf("Open(%q) = %v, %v, want nil store", backend, s, err)
		}
	}

	s, err := Open("json", filepath.Join(dir, "c.json"))
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open("sqlite", filepath.Join(dir, "c.db"))
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	if _, err := Open("redis", ""); err == nil {
		t.Error("unknown backend accepted")
	}
	if s, err := Open("sqlite", ""); err == nil || s != nil {
		t.Error("sqlite without path accepted")
	}
}
