// Package repository records artifact lifecycles in Postgres.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dharsanguruparan/FlatDrop/internal/model"
)

// ErrNotFound is returned when no row matches.
var ErrNotFound = errors.New("artifact record not found")

// execQuerier is the slice of *pgxpool.Pool used here.
type execQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Record is one row of the artifacts table.
type Record struct {
	model.Artifact
	ExpiredAt *time.Time `json:"expiredAt,omitempty"`
}

// ArtifactRepository wraps the SQL for the audit journal. It satisfies both
// processing.Journal and expiry.Journal.
type ArtifactRepository struct {
	db execQuerier
}

// NewArtifactRepository constructs a repository.
func NewArtifactRepository(db execQuerier) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// Create inserts a freshly registered artifact.
func (r *ArtifactRepository) Create(ctx context.Context, a *model.Artifact) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO artifacts (id, store, pages, size_bytes, created_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, a.ID, a.Store, a.Pages, a.Size, a.CreatedAt.UTC(), a.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

// MarkExpired stamps the expiry time. Unknown ids are ignored: the artifact
// may predate the journal.
func (r *ArtifactRepository) MarkExpired(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE artifacts SET expired_at=$1 WHERE id=$2 AND expired_at IS NULL`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("mark artifact expired: %w", err)
	}
	return nil
}

// Get returns the record for id.
func (r *ArtifactRepository) Get(ctx context.Context, id string) (*Record, error) {
	var rec Record
	row := r.db.QueryRow(ctx, `
		SELECT id, store, pages, size_bytes, created_at, expires_at, expired_at
		FROM artifacts WHERE id=$1
	`, id)
	if err := row.Scan(&rec.ID, &rec.Store, &rec.Pages, &rec.Size, &rec.CreatedAt, &rec.ExpiresAt, &rec.ExpiredAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("artifact %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("select artifact: %w", err)
	}
	return &rec, nil
}
