package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/dharsanguruparan/FlatDrop/internal/signing"
)

// LocalStore keeps artifacts as files under one output directory.
type LocalStore struct {
	signedLocator
	dir string
}

// NewLocalStore creates dir if needed. A nil signer produces unsigned links.
func NewLocalStore(dir string, signer *signing.Signer) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &LocalStore{signedLocator: signedLocator{signer: signer}, dir: dir}, nil
}

func (s *LocalStore) Kind() string { return "local" }

// Path returns the file backing id.
func (s *LocalStore) Path(id string) string {
	return filepath.Join(s.dir, id)
}

// Put writes to a temp file first so a reader never sees partial bytes.
func (s *LocalStore) Put(ctx context.Context, id string, data []byte) error {
	if !ValidID(id) {
		return fmt.Errorf("put %q: %w", id, ErrInvalidID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".partial-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path(id)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish artifact: %w", err)
	}
	return nil
}

func (s *LocalStore) Locator(_ context.Context, id string, expiresAt time.Time) (string, error) {
	return s.locator(id, expiresAt)
}

// Delete removes the file. A file that is already gone is not an error.
func (s *LocalStore) Delete(_ context.Context, id string) error {
	if !ValidID(id) {
		return fmt.Errorf("delete %q: %w", id, ErrInvalidID)
	}
	if err := os.Remove(s.Path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}

func (s *LocalStore) Open(_ context.Context, id string) (*Object, error) {
	if !ValidID(id) {
		return nil, ErrNotFound
	}
	f, err := os.Open(s.Path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat artifact: %w", err)
	}
	return &Object{Content: f, Size: info.Size(), ModTime: info.ModTime()}, nil
}
