package repository

import (
	"context"
	"sync/atomic"
	"time"

	"korty/internal/domain"
	"korty/internal/events"

	"github.com/rs/zerolog"
)

// FailoverFanout prefers the primary transport and falls back when it
// errors. After recoveryAfter it probes the primary again on the next
// publish, so a redis restart heals without intervention.
type FailoverFanout struct {
	primary       domain.EventFanout
	fallback      domain.EventFanout
	logger        *zerolog.Logger
	isDown        atomic.Bool
	lastCheck     atomic.Int64 // unix nanos
	recoveryAfter time.Duration
}

func NewFailoverFanout(primary, fallback domain.EventFanout, logger *zerolog.Logger) *FailoverFanout {
	return &FailoverFanout{
		primary:       primary,
		fallback:      fallback,
		logger:        logger,
		recoveryAfter: time.Minute,
	}
}

func (f *FailoverFanout) Publish(ctx context.Context, env *events.Envelope) error {
	if !f.isDown.Load() {
		err := f.primary.Publish(ctx, env)
		if err == nil {
			return nil
		}
		f.logger.Error().Err(err).Msg("Primary event fanout failed, falling back to memory")
		f.isDown.Store(true)
		f.lastCheck.Store(time.Now().UnixNano())
	}

	// Try to recover after the cooldown.
	if f.isDown.Load() && time.Since(time.Unix(0, f.lastCheck.Load())) > f.recoveryAfter {
		if err := f.primary.Publish(ctx, env); err == nil {
			f.isDown.Store(false)
			return nil
		}
		f.lastCheck.Store(time.Now().UnixNano())
	}

	return f.fallback.Publish(ctx, env)
}
