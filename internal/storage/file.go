package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/deusflow/sitewatch/internal/news"
)

// FileStore keeps one JSON document per source in a directory:
// a list of identifier strings (set mode) or a single string (hash mode).
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the state file of a source.
func (fs *FileStore) Path(source string) string {
	return filepath.Join(fs.dir, source+".json")
}

func (fs *FileStore) Load(ctx context.Context, source string, maxItems int) (news.State, error) {
	st := news.NewState(maxItems)

	data, err := os.ReadFile(fs.Path(source))
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("read state file: %w", err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return st, nil
	}

	switch data[0] {
	case '"':
		if err := json.Unmarshal(data, &st.Hash); err != nil {
			return st, fmt.Errorf("decode state file: %w", err)
		}
	case '[':
		var ids []string
		if err := json.Unmarshal(data, &ids); err != nil {
			return st, fmt.Errorf("decode state file: %w", err)
		}
		st.Sent = news.SentSetFrom(ids, maxItems)
	default:
		return st, fmt.Errorf("decode state file: unexpected document starting with %q", data[0])
	}
	return st, nil
}

// Save writes to a temp file in the same directory, syncs it and renames it
// over the previous document, so readers see either the old or the new state.
func (fs *FileStore) Save(ctx context.Context, source string, mode news.Mode, st news.State) error {
	var doc any
	if mode == news.ModeHash {
		doc = st.Hash
	} else {
		ids := []string{}
		if st.Sent != nil {
			ids = st.Sent.IDs()
		}
		doc = ids
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return &PersistError{Source: source, Err: err}
	}
	if err := writeAtomic(fs.Path(source), data); err != nil {
		return &PersistError{Source: source, Err: err}
	}
	return nil
}

func (fs *FileStore) Close() error { return nil }

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	cleanup := func() { _ = os.Remove(name) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(name, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
