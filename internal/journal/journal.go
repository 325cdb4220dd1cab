// Package journal records per-tensor transfer progress.
package journal

import (
	"context"
	"errors"
	"time"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSending Status = "sending"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

var ErrNotFound = errors.New("journal: entry not found")

// Entry tracks one tensor by its stable tensor id.
type Entry struct {
	TensorID       uint32    `json:"tensor_id"`
	Status         Status    `json:"status"`
	TotalLength    int       `json:"total_length"`
	TotalFragments uint32    `json:"total_fragments"`
	Transmissions  int       `json:"transmissions"`
	Timeouts       int       `json:"timeouts"`
	Nacks          int       `json:"nacks"`
	Resyncs        int       `json:"resyncs"`
	Attempts       int       `json:"attempts"`
	LastError      string    `json:"last_error,omitempty"`
	RunID          string    `json:"run_id,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Store is safe for concurrent use. List is ordered by tensor id.
type Store interface {
	Put(ctx context.Context, e Entry) error
	Get(ctx context.Context, tensorID uint32) (Entry, error)
	List(ctx context.Context) ([]Entry, error)
}

// Done reports whether tensorID finished in an earlier run.
func Done(ctx context.Context, s Store, tensorID uint32) (bool, error) {
	e, err := s.Get(ctx, tensorID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return e.Status == StatusDone, nil
}
