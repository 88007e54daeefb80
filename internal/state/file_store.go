package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

const lockRetryDelay = 50 * time.Millisecond

// document is the on-disk layout: owner -> key -> value.
type document map[string]map[string]string

// FileStore keeps state in a YAML file. A sibling .lock file serializes
// access between processes; a mutex serializes goroutines.
type FileStore struct {
	path string
	lock *flock.Flock
	mu   sync.Mutex
}

// NewFileStore returns a FileStore at path. The file is created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Path returns the backing file location.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Get(ctx context.Context, owner, key string) (string, bool, error) {
	var (
		val   string
		found bool
	)
	err := s.withLock(ctx, false, func(doc document) error {
		val, found = doc[owner][key]
		return nil
	})
	return val, found, err
}

func (s *FileStore) Set(ctx context.Context, owner, key, value string) error {
	return s.withLock(ctx, true, func(doc document) error {
		if doc[owner] == nil {
			doc[owner] = map[string]string{}
		}
		doc[owner][key] = value
		return nil
	})
}

func (s *FileStore) Delete(ctx context.Context, owner, key string) error {
	return s.withLock(ctx, true, func(doc document) error {
		delete(doc[owner], key)
		if len(doc[owner]) == 0 {
			delete(doc, owner)
		}
		return nil
	})
}

// All returns every entry of owner.
func (s *FileStore) All(ctx context.Context, owner string) (map[string]string, error) {
	out := map[string]string{}
	err := s.withLock(ctx, false, func(doc document) error {
		for k, v := range doc[owner] {
			out[k] = v
		}
		return nil
	})
	return out, err
}

func (s *FileStore) withLock(ctx context.Context, write bool, fn func(document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("locking %s: %w", s.path, err)
	}

	var (
		ok  bool
		err error
	)
	if write {
		ok, err = s.lock.TryLockContext(ctx, lockRetryDelay)
	} else {
		ok, err = s.lock.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil || !ok {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s", ErrLocked, s.path)
		}
		return fmt.Errorf("locking %s: %w", s.path, err)
	}
	defer func() { _ = s.lock.Unlock() }()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	if !write {
		return nil
	}
	return s.save(doc)
}

func (s *FileStore) load() (document, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}
	doc := document{}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.path, err)
	}
	return doc, nil
}

// save writes through a temp file and renames it into place.
func (s *FileStore) save(doc document) error {
	b, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	return os.Rename(tmp, s.path)
}

var _ Store = (*FileStore)(nil)
