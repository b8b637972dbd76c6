package repository

import (
	"context"

	"korty/internal/events"
	"korty/internal/realtime"
)

// MemoryFanout delivers straight to the local hub. On its own it serves
// single-instance deployments; under failover it keeps this instance's
// streams alive while redis is down.
type MemoryFanout struct {
	hub *realtime.Hub
}

func NewMemoryFanout(hub *realtime.Hub) *MemoryFanout {
	return &MemoryFanout{hub: hub}
}

func (f *MemoryFanout) Publish(ctx context.Context, env *events.Envelope) error {
	f.hub.Publish(env)
	return nil
}
