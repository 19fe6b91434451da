package failover

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Attempt is the append-only record of one orchestration run. It is created
// when the failover opens and finalized exactly once at a terminal state.
type Attempt struct {
	AttemptID        string    `json:"attempt_id"`
	Reason           string    `json:"reason"`
	StartedAt        time.Time `json:"started_at"`
	EndedAt          time.Time `json:"ended_at"`
	DurationSeconds  int64     `json:"duration_seconds"`
	Success          bool      `json:"success"`
	RTOTargetSeconds int64     `json:"rto_target_seconds"`
	RTOMet           bool      `json:"rto_met"`
	FailedStep       string    `json:"failed_step,omitempty"`
}

// finalize closes the record and derives duration and RTO compliance.
func (a *Attempt) finalize(endedAt time.Time, success bool, failedStep string) {
	a.EndedAt = endedAt
	a.Success = success
	a.FailedStep = failedStep

	d := endedAt.Sub(a.StartedAt)
	if d < 0 {
		d = 0
	}
	a.DurationSeconds = int64(d.Seconds())
	a.RTOMet = a.DurationSeconds <= a.RTOTargetSeconds
}

// AttemptLog persists finalized attempts.
type AttemptLog interface {
	Append(attempt Attempt) error
	Recent(limit int) ([]Attempt, error)
}

// FileAttemptLog appends attempts to a JSONL file, one record per line.
type FileAttemptLog struct {
	path string
	mu   sync.Mutex
}

// NewFileAttemptLog creates a file-backed attempt log.
func NewFileAttemptLog(path string) (*FileAttemptLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create attempt log dir: %w", err)
	}
	return &FileAttemptLog{path: path}, nil
}

func (l *FileAttemptLog) Append(attempt Attempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640) // #nosec G302,G304
	if err != nil {
		return fmt.Errorf("open attempt log: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append attempt: %w", err)
	}
	return nil
}

func (l *FileAttemptLog) Recent(limit int) ([]Attempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open attempt log: %w", err)
	}
	defer func() { _ = f.Close() }()

	var all []Attempt
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var a Attempt
		if err := json.Unmarshal(scanner.Bytes(), &a); err != nil {
			continue // skip corrupt lines, keep serving the rest
		}
		all = append(all, a)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan attempt log: %w", err)
	}

	if limit <= 0 || limit >= len(all) {
		return all, nil
	}
	return all[len(all)-limit:], nil
}

// MemoryAttemptLog keeps attempts in memory for tests.
type MemoryAttemptLog struct {
	mu       sync.Mutex
	attempts []Attempt
}

// NewMemoryAttemptLog creates an empty in-memory log.
func NewMemoryAttemptLog() *MemoryAttemptLog {
	return &MemoryAttemptLog{}
}

func (l *MemoryAttemptLog) Append(attempt Attempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = append(l.attempts, attempt)
	return nil
}

func (l *MemoryAttemptLog) Recent(limit int) ([]Attempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit <= 0 || limit >= len(l.attempts) {
		out := make([]Attempt, len(l.attempts))
		copy(out, l.attempts)
		return out, nil
	}
	out := make([]Attempt, limit)
	copy(out, l.attempts[len(l.attempts)-limit:])
	return out, nil
}
