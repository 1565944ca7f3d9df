// Package worker consumes durable expiry tasks and hands them to the
// expiration registry.
package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/FlatDrop/internal/expiry"
	"github.com/dharsanguruparan/FlatDrop/internal/queue"
)

// Processor is plugged into the asynq worker loop.
type Processor struct {
	fire expiry.ExpireFunc
	log  zerolog.Logger
}

// NewProcessor routes expiry tasks to fire, normally Registry.Expire.
func NewProcessor(fire expiry.ExpireFunc, log zerolog.Logger) *Processor {
	return &Processor{fire: fire, log: log}
}

// Handler registers the expire task handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ExpireArtifactTask, p.handleExpire)
	return mux
}

func (p *Processor) handleExpire(ctx context.Context, task *asynq.Task) error {
	var payload queue.ExpirePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		// Retrying cannot fix a bad payload.
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.ArtifactID == "" {
		return fmt.Errorf("empty artifact id: %w", asynq.SkipRetry)
	}
	p.log.Debug().Str("artifact", payload.ArtifactID).Msg("expire task received")
	p.fire(ctx, payload.ArtifactID)
	return nil
}

// Options configures the embedded asynq server.
type Options struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
}

// NewServer builds an asynq server that only consumes the expiry queue.
func NewServer(opts Options, log zerolog.Logger) *asynq.Server {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	return asynq.NewServer(asynq.RedisClientOpt{
		Addr:     opts.RedisAddr,
		Password: opts.RedisPassword,
		DB:       opts.RedisDB,
	}, asynq.Config{
		Concurrency: opts.Concurrency,
		Queues:      map[string]int{queue.ExpiryQueue: 1},
		Logger:      asynqLogger{log: log},
	})
}

// asynqLogger adapts zerolog to asynq.Logger.
type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Fatal().Msg(fmt.Sprint(args...)) }
