package processing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/FlatDrop/internal/clock"
	"github.com/dharsanguruparan/FlatDrop/internal/imaging"
	"github.com/dharsanguruparan/FlatDrop/internal/metrics"
	"github.com/dharsanguruparan/FlatDrop/internal/model"
	"github.com/dharsanguruparan/FlatDrop/internal/storage"
)

// DefaultTTL is how long a converted artifact stays downloadable.
const DefaultTTL = 5 * time.Minute

// Registrar makes an artifact available for a fixed lifetime.
type Registrar interface {
	Register(ctx context.Context, id string, ttl time.Duration) (time.Time, error)
}

// Journal records created artifacts outside the process. Optional.
type Journal interface {
	Create(ctx context.Context, a *model.Artifact) error
}

// Input is one conversion request.
type Input struct {
	// UploadPath is the uploaded source document. It is removed once
	// rasterized.
	UploadPath string
}

// Options tunes a Pipeline. Zero values pick defaults.
type Options struct {
	TTL     time.Duration
	WorkDir string
	Clock   clock.Clock
	Journal Journal
	Metrics metrics.Metrics
	Logger  zerolog.Logger
}

// Pipeline converts uploads into registered, downloadable artifacts.
type Pipeline struct {
	renderer *Renderer
	store    storage.ArtifactStore
	registry Registrar

	ttl     time.Duration
	workDir string
	clock   clock.Clock
	journal Journal
	metrics metrics.Metrics
	log     zerolog.Logger
	newID   func(time.Time) string
}

// NewPipeline wires a Pipeline.
func NewPipeline(r *Renderer, store storage.ArtifactStore, registry Registrar, opts Options) *Pipeline {
	p := &Pipeline{
		renderer: r,
		store:    store,
		registry: registry,
		ttl:      opts.TTL,
		workDir:  opts.WorkDir,
		clock:    opts.Clock,
		journal:  opts.Journal,
		metrics:  opts.Metrics,
		log:      opts.Logger,
		newID:    NewID,
	}
	if p.ttl <= 0 {
		p.ttl = DefaultTTL
	}
	if p.workDir == "" {
		p.workDir = "images"
	}
	if p.clock == nil {
		p.clock = clock.Real{}
	}
	if p.metrics == nil {
		p.metrics = metrics.Noop{}
	}
	return p
}

// NewID returns a fresh artifact id: converted_<unix millis>_<uuid>.pdf.
func NewID(now time.Time) string {
	return fmt.Sprintf("converted_%d_%s.pdf", now.UnixMilli(), uuid.NewString())
}

// WorkDirFor is where the intermediate page images of id live.
func WorkDirFor(root, id string) string {
	return filepath.Join(root, strings.TrimSuffix(id, filepath.Ext(id)))
}

// Convert runs one conversion end to end. Nothing is registered unless every
// step up to registration succeeds.
func (p *Pipeline) Convert(ctx context.Context, in Input) (*model.Artifact, error) {
	start := p.clock.Now()
	artifact, err := p.convert(ctx, in)
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	p.metrics.ObserveConversion(outcome, p.clock.Now().Sub(start).Seconds())
	return artifact, err
}

func (p *Pipeline) convert(ctx context.Context, in Input) (*model.Artifact, error) {
	removeUpload := func() {
		if err := os.Remove(in.UploadPath); err != nil && !os.IsNotExist(err) {
			p.log.Warn().Err(err).Str("path", in.UploadPath).Msg("remove upload")
		}
	}
	rendered, err := p.renderer.Render(ctx, in.UploadPath, removeUpload)
	if err != nil {
		return nil, err
	}

	id := p.newID(p.clock.Now())
	log := p.log.With().Str("artifact", id).Logger()
	dir := WorkDirFor(p.workDir, id)

	stored := false
	fail := func(stage string, err error) (*model.Artifact, error) {
		if stored {
			if derr := p.store.Delete(context.WithoutCancel(ctx), id); derr != nil {
				log.Warn().Err(derr).Msg("remove stored artifact after failure")
			}
		}
		if rerr := os.RemoveAll(dir); rerr != nil {
			log.Warn().Err(rerr).Msg("remove intermediates after failure")
		}
		return nil, model.ConversionError(stage, err)
	}

	if err := writePages(dir, rendered.Pages); err != nil {
		return fail(StageImages, err)
	}
	if err := p.store.Put(ctx, id, rendered.Document); err != nil {
		return fail(StageStore, err)
	}
	stored = true

	expiresAt, err := p.registry.Register(ctx, id, p.ttl)
	if err != nil {
		return fail(StageRegister, err)
	}

	artifact := &model.Artifact{
		ID:        id,
		Store:     p.store.Kind(),
		Pages:     len(rendered.Pages),
		Size:      int64(len(rendered.Document)),
		CreatedAt: expiresAt.Add(-p.ttl),
		ExpiresAt: expiresAt,
	}
	if p.journal != nil {
		if err := p.journal.Create(ctx, artifact); err != nil {
			log.Warn().Err(err).Msg("journal artifact")
		}
	}

	// Registered ids are only ever removed by their scheduled expiry, so a
	// locator failure leaves the artifact for the reaper.
	loc, err := p.store.Locator(ctx, id, expiresAt)
	if err != nil {
		log.Warn().Err(err).Time("expires_at", expiresAt).Msg("artifact left for expiry after locator failure")
		return nil, model.ConversionError(StageLocate, err)
	}
	artifact.Locator = loc

	log.Info().
		Int("pages", artifact.Pages).
		Int64("bytes", artifact.Size).
		Time("expires_at", expiresAt).
		Msg("artifact created")
	return artifact, nil
}

func writePages(dir string, pages []imaging.Page) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	for i, page := range pages {
		name := filepath.Join(dir, fmt.Sprintf("page-%03d.png", i+1))
		if err := os.WriteFile(name, page.PNG, 0o640); err != nil {
			return fmt.Errorf("write page %d: %w", i+1, err)
		}
	}
	return nil
}
