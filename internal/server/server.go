// Package server is FlatDrop's HTTP surface: uploads in, download and
// time-remaining locators out.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/FlatDrop/internal/clock"
	"github.com/dharsanguruparan/FlatDrop/internal/metrics"
	"github.com/dharsanguruparan/FlatDrop/internal/model"
	"github.com/dharsanguruparan/FlatDrop/internal/processing"
	"github.com/dharsanguruparan/FlatDrop/internal/storage"
)

// Converter runs one conversion.
type Converter interface {
	Convert(ctx context.Context, in processing.Input) (*model.Artifact, error)
}

// Availability answers whether an artifact is still downloadable.
type Availability interface {
	TimeRemaining(id string) (time.Duration, error)
}

// Options configures a Server.
type Options struct {
	Address     string
	AuthToken   string
	MaxFileSize int64
	UploadDir   string
	// OpenTimeRemaining serves time-remaining without the bearer check. Used
	// with the remote store, whose links are signed by the blob backend.
	OpenTimeRemaining bool
	// Downloads serves /downloads when the store keeps artifacts in-process.
	Downloads storage.Downloadable
	// StreamInterval is the tick of the websocket countdown.
	StreamInterval time.Duration

	Clock          clock.Clock
	Metrics        metrics.Metrics
	MetricsHandler http.Handler
	Logger         zerolog.Logger
}

// Server hosts HTTP handlers for FlatDrop.
type Server struct {
	conv   Converter
	avail  Availability
	opts   Options
	clock  clock.Clock
	mtr    metrics.Metrics
	log    zerolog.Logger
	server *http.Server
}

// New creates a configured server.
func New(conv Converter, avail Availability, opts Options) (*Server, error) {
	if opts.AuthToken == "" {
		return nil, errors.New("server: auth token is required")
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = 50 << 20
	}
	if opts.UploadDir == "" {
		opts.UploadDir = "uploads"
	}
	if opts.StreamInterval <= 0 {
		opts.StreamInterval = time.Second
	}
	if err := os.MkdirAll(opts.UploadDir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	s := &Server{
		conv:  conv,
		avail: avail,
		opts:  opts,
		clock: opts.Clock,
		mtr:   opts.Metrics,
		log:   opts.Logger,
	}
	if s.clock == nil {
		s.clock = clock.Real{}
	}
	if s.mtr == nil {
		s.mtr = metrics.Noop{}
	}
	return s, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

// Serve launches the HTTP server until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.opts.Address,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.log.Info().Str("address", s.opts.Address).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
