package status

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the controller's externally visible state.
type State string

const (
	StateInitialized       State = "initialized"
	StateMonitoring        State = "monitoring"
	StateFailoverInitiated State = "failover_initiated"
	StateFailoverCompleted State = "failover_completed"
	StateFailoverFailed    State = "failover_failed"
	StateRestoreInProgress State = "restore_in_progress"
	StateRestoreCompleted  State = "restore_completed"
)

// RecoveryStatus is the single mutable record describing what the controller
// is doing right now. It is overwritten on every transition (last-writer-wins)
// and polled by external dashboards, so the schema must stay stable.
type RecoveryStatus struct {
	CurrentStatus     State     `json:"current_status"`
	Message           string    `json:"message"`
	UpdatedAt         time.Time `json:"updated_at"`
	PrimaryEndpoint   string    `json:"primary_endpoint"`
	SecondaryEndpoint string    `json:"secondary_endpoint"`
	LastHealthCheck   time.Time `json:"last_health_check"`
}

// ErrNotFound is returned by Read before the first write.
var ErrNotFound = errors.New("recovery status not found")

// Store persists the recovery status record.
type Store interface {
	Write(ctx context.Context, rs RecoveryStatus) error
	Read(ctx context.Context) (RecoveryStatus, error)
}

// MemoryStore is an in-process store for tests and dry runs.
type MemoryStore struct {
	mu      sync.RWMutex
	current RecoveryStatus
	written bool
	writes  int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Write(ctx context.Context, rs RecoveryStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = rs
	s.written = true
	s.writes++
	return nil
}

func (s *MemoryStore) Read(ctx context.Context) (RecoveryStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.written {
		return RecoveryStatus{}, ErrNotFound
	}
	return s.current, nil
}

// Writes returns how many writes were observed (test hook).
func (s *MemoryStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}
