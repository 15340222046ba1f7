package stream

import (
	"context"
	"sync"
	"time"

	"github.com/wingleeio/chat-zeron/internal/event"
)

// Memory is an in-process stream implementation with the same contract as
// Publisher: append-only, terminal statuses reject writes, readers replay
// then follow. Used by tests and single-node development runs.
type Memory struct {
	mu         sync.Mutex
	streams    map[string]*memStream
	staleAfter time.Duration
}

type memStream struct {
	frames    []event.Frame
	status    Status
	updatedAt time.Time
	waiters   []chan struct{}
}

// NewMemory creates an in-memory stream backend.
func NewMemory(staleAfter time.Duration) *Memory {
	return &Memory{streams: make(map[string]*memStream), staleAfter: staleAfter}
}

// notifyLocked wakes all blocked followers. Callers hold mu.
func (s *memStream) notifyLocked() {
	for _, w := range s.waiters {
		close(w)
	}
	s.waiters = nil
}

// Create registers a stream id with status pending.
func (m *Memory) Create(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.streams[id]; ok {
		return nil
	}
	m.streams[id] = &memStream{status: StatusPending, updatedAt: time.Now()}
	return nil
}

// Append publishes one frame, rejecting writes to terminal streams.
func (m *Memory) Append(_ context.Context, id string, frame event.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[id]
	if !ok {
		return ErrNotFound
	}
	if s.status.Terminal() {
		return ErrFinished
	}
	s.frames = append(s.frames, frame)
	s.status = StatusStreaming
	s.updatedAt = time.Now()
	s.notifyLocked()
	return nil
}

// Finish transitions to a terminal status; the first terminal status wins.
func (m *Memory) Finish(_ context.Context, id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[id]
	if !ok {
		return ErrNotFound
	}
	if s.status.Terminal() {
		return ErrFinished
	}
	s.status = status
	s.notifyLocked()
	return nil
}

// Status reports the stream's status, lazily timing out stale streams.
func (m *Memory) Status(_ context.Context, id string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[id]
	if !ok {
		return "", ErrNotFound
	}
	if !s.status.Terminal() && m.staleAfter > 0 && time.Since(s.updatedAt) > m.staleAfter {
		s.status = StatusTimeout
		s.notifyLocked()
	}
	return s.status, nil
}

// Frames returns a copy of everything published so far.
func (m *Memory) Frames(id string) []event.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[id]
	if !ok {
		return nil
	}
	out := make([]event.Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

// Follow replays published frames and then follows live output until the
// stream reaches a terminal status or ctx is canceled.
func (m *Memory) Follow(ctx context.Context, id string) (<-chan event.Frame, error) {
	m.mu.Lock()
	if _, ok := m.streams[id]; !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	m.mu.Unlock()

	out := make(chan event.Frame)
	go func() {
		defer close(out)
		next := 0
		for {
			m.mu.Lock()
			s := m.streams[id]
			for next < len(s.frames) {
				f := s.frames[next]
				m.mu.Unlock()
				select {
				case out <- f:
				case <-ctx.Done():
					return
				}
				next++
				m.mu.Lock()
			}
			if s.status.Terminal() {
				m.mu.Unlock()
				return
			}
			wait := make(chan struct{})
			s.waiters = append(s.waiters, wait)
			m.mu.Unlock()

			select {
			case <-wait:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
