package store

import (
	"context"
	"sync"

	"github.com/gameshowlab/podium/internal/session"
)

// MemoryStore keeps session state in process memory. It backs tests and
// single-run deployments where persistence across restarts is not needed.
type MemoryStore struct {
	mu      sync.RWMutex
	current string
	seats   map[string]map[session.SeatID]SeatRecord
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		seats: make(map[string]map[session.SeatID]SeatRecord),
	}
}

func (m *MemoryStore) CurrentCode(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == "" {
		return "", ErrNotFound
	}
	return m.current, nil
}

func (m *MemoryStore) SetCurrentCode(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = code
	return nil
}

func (m *MemoryStore) Seat(ctx context.Context, code string, seat session.SeatID) (SeatRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.seats[code][seat]
	if !ok {
		return SeatRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore) PutSeat(ctx context.Context, code string, seat session.SeatID, rec SeatRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seats[code] == nil {
		m.seats[code] = make(map[session.SeatID]SeatRecord)
	}
	m.seats[code][seat] = rec
	return nil
}

func (m *MemoryStore) SessionSeats(ctx context.Context, code string) (map[session.SeatID]SeatRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[session.SeatID]SeatRecord, len(m.seats[code]))
	for id, rec := range m.seats[code] {
		out[id] = rec
	}
	return out, nil
}

func (m *MemoryStore) ResetSession(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seats, code)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
