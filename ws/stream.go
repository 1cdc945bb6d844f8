// Package ws bridges enrollment progress from the daemon goroutine to the
// websocket consumer.
package ws

import (
	"context"
	"sync"

	"go-fprint-manager/models"
)

// Stream is a buffered, single-producer event stream for one enrollment
// session. Events published before the consumer attaches are replayed in
// order, so a client that connects after the first scan misses nothing.
type Stream struct {
	mu     sync.Mutex
	buf    []models.EnrollEvent
	closed bool
	wake   chan struct{}
}

func NewStream() *Stream {
	return &Stream{wake: make(chan struct{}, 1)}
}

// Publish appends an event. Publishing after Close is a no-op.
func (s *Stream) Publish(ev models.EnrollEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.buf = append(s.buf, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Close marks the stream finished. Buffered events remain readable.
func (s *Stream) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Next returns the next event in order. ok is false once the stream is
// closed and fully drained. Waiting is bounded by ctx.
func (s *Stream) Next(ctx context.Context) (ev models.EnrollEvent, ok bool, err error) {
	for {
		s.mu.Lock()
		if len(s.buf) > 0 {
			ev = s.buf[0]
			s.buf = s.buf[1:]
			s.mu.Unlock()
			return ev, true, nil
		}
		if s.closed {
			s.mu.Unlock()
			return models.EnrollEvent{}, false, nil
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return models.EnrollEvent{}, false, ctx.Err()
		case <-s.wake:
		}
	}
}

// Hub tracks the live stream of each enrollment session.
type Hub struct {
	mu      sync.Mutex
	streams map[string]*Stream
}

func NewHub() *Hub {
	return &Hub{streams: make(map[string]*Stream)}
}

// Create registers a fresh stream for the session, replacing any stale one.
func (h *Hub) Create(sessionID string) *Stream {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := NewStream()
	h.streams[sessionID] = s
	return s
}

// Get returns the stream for a session, if one is live.
func (h *Hub) Get(sessionID string) (*Stream, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.streams[sessionID]
	return s, ok
}

// Remove closes the session's stream and forgets it.
func (h *Hub) Remove(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.streams[sessionID]; ok {
		s.Close()
		delete(h.streams, sessionID)
	}
}
