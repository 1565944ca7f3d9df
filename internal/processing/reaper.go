package processing

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dharsanguruparan/FlatDrop/internal/storage"
)

// Cleaner physically removes an expired artifact and its page images.
type Cleaner struct {
	store   storage.ArtifactStore
	workDir string
}

// NewCleaner returns a Cleaner for artifacts in store with intermediates
// under workDir.
func NewCleaner(store storage.ArtifactStore, workDir string) *Cleaner {
	if workDir == "" {
		workDir = "images"
	}
	return &Cleaner{store: store, workDir: workDir}
}

// Reap deletes both the stored document and the intermediates. Either may
// already be gone.
func (c *Cleaner) Reap(ctx context.Context, id string) error {
	if !storage.ValidID(id) {
		return fmt.Errorf("reap %q: %w", id, storage.ErrInvalidID)
	}
	var errs []error
	if err := c.store.Delete(ctx, id); err != nil {
		errs = append(errs, fmt.Errorf("delete artifact: %w", err))
	}
	if err := os.RemoveAll(WorkDirFor(c.workDir, id)); err != nil {
		errs = append(errs, fmt.Errorf("remove intermediates: %w", err))
	}
	return errors.Join(errs...)
}
