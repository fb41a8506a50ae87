// Package ledger appends one row per processed video to a remote table,
// retrying transient failures.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/framegrab/internal/model"
	"github.com/dharsanguruparan/framegrab/internal/retry"
)

// ErrEmptyRow is returned when Append is called without data.
var ErrEmptyRow = errors.New("empty ledger row")

// Backend is the remote table.
type Backend interface {
	ReadRange(ctx context.Context) ([][]string, error)
	AppendRow(ctx context.Context, row []string) error
}

// Writer wraps a Backend with the retry policy.
type Writer struct {
	backend Backend
	policy  retry.Policy
	log     zerolog.Logger
}

// NewWriter constructs a Writer.
func NewWriter(backend Backend, policy retry.Policy, log zerolog.Logger) *Writer {
	return &Writer{
		backend: backend,
		policy:  policy,
		log:     log.With().Str("component", "ledger").Logger(),
	}
}

// Append writes row, retrying transient failures. Exhaustion is logged and
// returned; callers count it and move on.
func (w *Writer) Append(ctx context.Context, row model.LedgerRow) error {
	if row.IsZero() {
		return ErrEmptyRow
	}
	return w.appendValues(ctx, row.Values())
}

func (w *Writer) appendValues(ctx context.Context, values []string) error {
	err := w.policy.Do(ctx, func(ctx context.Context) error {
		return w.backend.AppendRow(ctx, values)
	}, func(attempt int, err error, wait time.Duration) {
		w.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("ledger append failed, retrying")
	})
	if err != nil {
		w.log.Error().Err(err).Strs("row", values).Msg("could not write ledger row")
		return fmt.Errorf("append ledger row: %w", err)
	}
	w.log.Info().Str("thumbnail", values[0]).Msg("ledger row written")
	return nil
}

// EnsureHeader writes the header row when the ledger is empty. A failed read
// is logged and ignored so the run can still proceed.
func (w *Writer) EnsureHeader(ctx context.Context) error {
	rows, err := w.backend.ReadRange(ctx)
	if err != nil {
		w.log.Warn().Err(err).Msg("could not check ledger for a header row, continuing")
		return nil
	}
	if len(rows) > 0 {
		return nil
	}
	w.log.Info().Msg("ledger is empty, writing header")
	return w.appendValues(ctx, model.LedgerHeader)
}
