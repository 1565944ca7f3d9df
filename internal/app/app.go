// Package app assembles FlatDrop's components from a Config.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dharsanguruparan/FlatDrop/internal/clock"
	"github.com/dharsanguruparan/FlatDrop/internal/config"
	"github.com/dharsanguruparan/FlatDrop/internal/database"
	"github.com/dharsanguruparan/FlatDrop/internal/expiry"
	"github.com/dharsanguruparan/FlatDrop/internal/imaging"
	"github.com/dharsanguruparan/FlatDrop/internal/logging"
	"github.com/dharsanguruparan/FlatDrop/internal/metrics"
	pdfutil "github.com/dharsanguruparan/FlatDrop/internal/pdf"
	"github.com/dharsanguruparan/FlatDrop/internal/processing"
	"github.com/dharsanguruparan/FlatDrop/internal/queue"
	"github.com/dharsanguruparan/FlatDrop/internal/repository"
	"github.com/dharsanguruparan/FlatDrop/internal/s3storage"
	"github.com/dharsanguruparan/FlatDrop/internal/server"
	"github.com/dharsanguruparan/FlatDrop/internal/signing"
	"github.com/dharsanguruparan/FlatDrop/internal/storage"
	"github.com/dharsanguruparan/FlatDrop/internal/worker"
)

// App is a fully wired FlatDrop instance.
type App struct {
	Config   *config.Config
	Store    storage.ArtifactStore
	Registry *expiry.Registry
	Pipeline *processing.Pipeline
	Server   *server.Server

	log         zerolog.Logger
	heap        *expiry.HeapScheduler
	asynqClient *asynq.Client
	asynqServer *asynq.Server
	asynqMux    *asynq.ServeMux
	pool        *pgxpool.Pool
}

// NewRenderer builds the rasterize/encode/assemble chain described by cfg.
func NewRenderer(cfg *config.Config) *processing.Renderer {
	r := &processing.Renderer{
		Rasterizer: pdfutil.NewFitzRasterizer(cfg.RasterScale),
		Encoder:    imaging.NewFitter(cfg.ResizeWidth, cfg.ResizeHeight),
		Assembler:  pdfutil.NewAssembler(cfg.PageWidth, cfg.PageHeight, cfg.Placement),
		Workers:    cfg.EncodeWorkers,
	}
	if cfg.VerifyOutput {
		r.Verify = pdfutil.PageCount
	}
	return r
}

// Build wires every component. Call Close when done.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{Config: cfg, log: log}
	built := false
	defer func() {
		if !built {
			a.Close()
		}
	}()

	prom := metrics.NewProm("flatdrop")
	signer := signing.NewSigner(cfg.SigningSecret)

	store, downloads, err := buildStore(ctx, cfg, signer)
	if err != nil {
		return nil, err
	}
	a.Store = store

	var (
		regOpts  = []expiry.Option{expiry.WithMetrics(prom), expiry.WithLogger(logging.Component(log, "expiry"))}
		pipeOpts = processing.Options{
			TTL:     cfg.TTL,
			WorkDir: cfg.WorkDir,
			Metrics: prom,
			Logger:  logging.Component(log, "pipeline"),
		}
	)
	if cfg.DatabaseURL != "" {
		a.pool, err = database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if err := database.EnsureSchema(ctx, a.pool); err != nil {
			return nil, err
		}
		repo := repository.NewArtifactRepository(a.pool)
		regOpts = append(regOpts, expiry.WithJournal(repo))
		pipeOpts.Journal = repo
	}

	var sched expiry.Scheduler
	switch cfg.Reaper {
	case config.ReaperAsynq:
		redis := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
		a.asynqClient = asynq.NewClient(redis)
		sched = queue.NewScheduler(a.asynqClient)
	default:
		a.heap = expiry.NewHeapScheduler(clock.Real{}, logging.Component(log, "scheduler"))
		sched = a.heap
	}

	a.Registry = expiry.NewRegistry(clock.Real{}, sched, processing.NewCleaner(store, cfg.WorkDir), regOpts...)
	a.Pipeline = processing.NewPipeline(NewRenderer(cfg), store, a.Registry, pipeOpts)

	if cfg.Reaper == config.ReaperAsynq {
		a.asynqServer = worker.NewServer(worker.Options{
			RedisAddr:     cfg.RedisAddr,
			RedisPassword: cfg.RedisPassword,
			RedisDB:       cfg.RedisDB,
		}, logging.Component(log, "worker"))
		a.asynqMux = worker.NewProcessor(a.Registry.Expire, logging.Component(log, "worker")).Handler()
	}

	a.Server, err = server.New(a.Pipeline, a.Registry, server.Options{
		Address:           cfg.Address,
		AuthToken:         cfg.AuthToken,
		MaxFileSize:       cfg.MaxFileSize,
		UploadDir:         cfg.UploadDir,
		OpenTimeRemaining: !cfg.ServesDownloads(),
		Downloads:         downloads,
		Metrics:           prom,
		MetricsHandler:    metrics.Handler(),
		Logger:            logging.Component(log, "http"),
	})
	if err != nil {
		return nil, err
	}
	built = true
	return a, nil
}

// buildStore returns the configured store and, for in-process stores, the
// download side of it.
func buildStore(ctx context.Context, cfg *config.Config, signer *signing.Signer) (storage.ArtifactStore, storage.Downloadable, error) {
	switch cfg.Store {
	case config.StoreRemote:
		s3, err := s3storage.New(cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			return nil, nil, err
		}
		return s3, nil, nil
	case config.StoreMemory:
		m := storage.NewMemoryStore(signer)
		return m, m, nil
	default:
		l, err := storage.NewLocalStore(cfg.OutputDir, signer)
		if err != nil {
			return nil, nil, err
		}
		return l, l, nil
	}
}

// Run serves HTTP and drives expiries until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.asynqServer != nil {
		if err := a.asynqServer.Start(a.asynqMux); err != nil {
			return fmt.Errorf("start expiry worker: %w", err)
		}
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Server.Serve(gctx)
	})
	if a.heap != nil {
		g.Go(func() error {
			if err := a.heap.Run(gctx, a.Registry.Expire); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	if a.asynqServer != nil {
		g.Go(func() error {
			<-gctx.Done()
			a.asynqServer.Shutdown()
			return nil
		})
	}
	a.log.Info().
		Str("store", a.Store.Kind()).
		Str("reaper", a.Config.Reaper).
		Dur("ttl", a.Config.TTL).
		Msg("flatdrop started")
	return g.Wait()
}

// Close releases external connections.
func (a *App) Close() {
	if a.asynqClient != nil {
		_ = a.asynqClient.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
