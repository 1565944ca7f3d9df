// Package storage holds the artifact store contract and the stores that
// serve artifacts from this process: the local filesystem and memory.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"time"

	"github.com/dharsanguruparan/FlatDrop/internal/signing"
)

var (
	// ErrNotFound is returned when an artifact is not in the store.
	ErrNotFound = errors.New("artifact not found")
	// ErrInvalidID rejects ids that could escape the store's namespace.
	ErrInvalidID = errors.New("invalid artifact id")
)

// DownloadPrefix is the route under which in-process stores are served.
const DownloadPrefix = "/downloads/"

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,254}$`)

// ValidID reports whether id is safe to use as a file name or object key.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// ArtifactStore persists generated documents and hands out locators.
type ArtifactStore interface {
	// Kind names the backend for logs and the audit journal.
	Kind() string
	Put(ctx context.Context, id string, data []byte) error
	// Locator returns where the artifact can be fetched until expiresAt. The
	// result may be relative to the serving host.
	Locator(ctx context.Context, id string, expiresAt time.Time) (string, error)
	Delete(ctx context.Context, id string) error
}

// Object is an open artifact ready to be streamed.
type Object struct {
	Content io.ReadSeekCloser
	Size    int64
	ModTime time.Time
}

// Downloadable is implemented by stores whose artifacts are served by this
// process behind the bearer gate.
type Downloadable interface {
	Open(ctx context.Context, id string) (*Object, error)
	VerifyLink(id string, q url.Values, now time.Time) error
}

// signedLocator builds /downloads/<id>?expires=..&signature=.. links.
type signedLocator struct {
	signer *signing.Signer
}

func (l signedLocator) locator(id string, expiresAt time.Time) (string, error) {
	if !ValidID(id) {
		return "", fmt.Errorf("locator %q: %w", id, ErrInvalidID)
	}
	if l.signer == nil {
		return DownloadPrefix + url.PathEscape(id), nil
	}
	return DownloadPrefix + url.PathEscape(id) + "?" + l.signer.Query(id, expiresAt).Encode(), nil
}

func (l signedLocator) VerifyLink(id string, q url.Values, now time.Time) error {
	if l.signer == nil {
		return nil
	}
	return l.signer.Verify(id, q, now)
}
