// Package model contains the types shared across FlatDrop packages.
package model

import (
	"time"
)

// Artifact is a generated, downloadable document. It is never mutated after
// creation; the expiration registry decides whether it is still available.
type Artifact struct {
	ID        string    `json:"id"`
	Store     string    `json:"store"`
	Pages     int       `json:"pages"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	// Locator is the download location handed out by the artifact store. It
	// may be relative to the serving host.
	Locator string `json:"-"`
}
