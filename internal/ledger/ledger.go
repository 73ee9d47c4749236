package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Transfer outcomes
const (
	OutcomeComplete    = "complete"
	OutcomeAborted     = "aborted"
	OutcomeDecodeError = "decode_error"
	OutcomeWriteError  = "write_error"
)

// Record describes one finished transfer.
type Record struct {
	ID         uuid.UUID `json:"id"`
	RemoteAddr string    `json:"remote_addr"`
	Path       string    `json:"path"`
	Sequence   int       `json:"sequence"`
	Bytes      int64     `json:"bytes"`
	WireBytes  int64     `json:"wire_bytes"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcome    string    `json:"outcome"`
}

// Recorder persists transfer records.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

// Noop is used when no ledger is configured.
type Noop struct{}

func (Noop) Record(ctx context.Context, rec Record) error {
	return nil
}

// Multi fans a record out to every recorder and joins their errors.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, rec Record) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
