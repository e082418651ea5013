package lore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/go-mudlib/client/pkg/protocol"
	"gopkg.in/yaml.v3"
)

const fileExt = ".yaml"

var ErrNotFound = errors.New("lore: no such record")

// Store keeps one YAML file per object. Read-modify-write cycles are
// serialized per object key.
type Store struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore opens (or creates) a store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("lore: create store: %w", err)
	}
	return &Store{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

func (s *Store) Dir() string { return s.dir }

// Key turns an object name into a file-safe key: lowercase letters and
// digits, any other run of characters collapsed to one underscore.
func Key(name string) string {
	var b strings.Builder
	gap := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if gap && b.Len() > 0 {
				b.WriteByte('_')
			}
			gap = false
			b.WriteRune(r)
			continue
		}
		gap = true
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

func (s *Store) path(key string) string { return filepath.Join(s.dir, key+fileExt) }

func (s *Store) lock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// Get loads the record stored for name.
func (s *Store) Get(name string) (protocol.LoreRecord, error) {
	key := Key(name)
	l := s.lock(key)
	l.Lock()
	defer l.Unlock()
	return s.read(key)
}

// Put stores rec. A stored comment survives when rec carries none.
func (s *Store) Put(rec protocol.LoreRecord) error {
	return s.update(rec.Name, func(old *protocol.LoreRecord, found bool) {
		if rec.Comment == "" && found {
			rec.Comment = old.Comment
		}
		*old = rec
	})
}

// Comment sets the comment of name, creating a bare record if none exists.
// An empty comment clears it.
func (s *Store) Comment(name, comment string) (protocol.LoreRecord, error) {
	var out protocol.LoreRecord
	err := s.update(name, func(rec *protocol.LoreRecord, found bool) {
		if !found {
			rec.Name = strings.TrimSpace(name)
		}
		rec.Comment = strings.TrimSpace(comment)
		out = *rec
	})
	return out, err
}

// Search returns the records whose name contains query, case-insensitively,
// sorted by name. An empty query matches everything.
func (s *Store) Search(query string) ([]protocol.LoreRecord, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	var out []protocol.LoreRecord
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != fileExt {
			return nil
		}
		key := strings.TrimSuffix(d.Name(), fileExt)
		rec, rerr := s.Get(key)
		if rerr != nil {
			return nil
		}
		if q == "" || strings.Contains(strings.ToLower(rec.Name), q) {
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("lore: search: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) update(name string, fn func(rec *protocol.LoreRecord, found bool)) error {
	key := Key(name)
	l := s.lock(key)
	l.Lock()
	defer l.Unlock()

	rec, err := s.read(key)
	found := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	fn(&rec, found)
	return s.write(key, rec)
}

func (s *Store) read(key string) (protocol.LoreRecord, error) {
	var rec protocol.LoreRecord
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return rec, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return rec, fmt.Errorf("lore: read %s: %w", key, err)
	}
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("lore: parse %s: %w", key, err)
	}
	return rec, nil
}

// write replaces the file through a rename so readers never see half a record.
func (s *Store) write(key string, rec protocol.LoreRecord) error {
	data, err := yaml.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("lore: encode %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("lore: write %s: %w", key, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("lore: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("lore: write %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("lore: write %s: %w", key, err)
	}
	return nil
}
