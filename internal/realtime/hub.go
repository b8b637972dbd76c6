package realtime

import (
	"sync"

	"korty/internal/events"
	"korty/internal/metrics"

	"github.com/rs/zerolog"
)

// Subscription is one connected stream. Events arrive on C; Close detaches
// from every room and closes the channel.
type Subscription struct {
	C     chan *events.Envelope
	rooms []string

	hub  *Hub
	once sync.Once
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
	})
}

// Hub routes envelopes to in-process subscribers by room. Delivery to a
// subscriber whose buffer is full drops the frame for that subscriber only;
// the hub never blocks on a slow consumer.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Subscription]struct{}
	buffer int
	logger *zerolog.Logger
}

func NewHub(buffer int, logger *zerolog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe joins the given rooms. The room list comes from an
// authenticated capability; the hub itself does no authorization.
func (h *Hub) Subscribe(rooms []string) *Subscription {
	sub := &Subscription{
		C:     make(chan *events.Envelope, h.buffer),
		rooms: rooms,
		hub:   h,
	}

	h.mu.Lock()
	for _, room := range rooms {
		if h.rooms[room] == nil {
			h.rooms[room] = make(map[*Subscription]struct{})
		}
		h.rooms[room][sub] = struct{}{}
	}
	h.mu.Unlock()

	metrics.StreamConnected()
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	for _, room := range sub.rooms {
		if members := h.rooms[room]; members != nil {
			delete(members, sub)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	h.mu.Unlock()

	close(sub.C)
	metrics.StreamDisconnected()
}

// Publish delivers the envelope to every subscriber of its room.
func (h *Hub) Publish(env *events.Envelope) {
	h.mu.RLock()
	members := make([]*Subscription, 0, len(h.rooms[env.Room]))
	for sub := range h.rooms[env.Room] {
		members = append(members, sub)
	}
	h.mu.RUnlock()

	for _, sub := range members {
		select {
		case sub.C <- env:
		default:
			h.logger.Warn().
				Str("room", env.Room).
				Str("kind", env.Kind).
				Msg("Dropping event for slow subscriber")
		}
	}
}

// SubscriberCount reports how many subscriptions a room currently has.
func (h *Hub) SubscriberCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
