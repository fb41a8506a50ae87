package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/framegrab/internal/retry"
)

// columns is the fixed width of a ledger row.
const columns = 3

// LedgerRepository keeps ledger rows in Postgres, scoped by ledger id and
// sheet name so several ledgers can share one table. Rows, the header
// included, come back in insertion order.
type LedgerRepository struct {
	pool   *pgxpool.Pool
	ledger string
	sheet  string
	now    func() time.Time
}

// NewLedgerRepository constructs a repository for one ledger.
func NewLedgerRepository(pool *pgxpool.Pool, ledger, sheet string) *LedgerRepository {
	return &LedgerRepository{pool: pool, ledger: ledger, sheet: sheet, now: time.Now}
}

// ReadRange returns every row of the ledger.
func (r *LedgerRepository) ReadRange(ctx context.Context) ([][]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT thumbnail_name, original_path, thumbnail_link
		FROM ledger_rows WHERE ledger=$1 AND sheet=$2
		ORDER BY seq
	`, r.ledger, r.sheet)
	if err != nil {
		return nil, classify(fmt.Errorf("select ledger rows: %w", err))
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		row := make([]string, columns)
		if err := rows.Scan(&row[0], &row[1], &row[2]); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterate ledger rows: %w", err))
	}
	return out, nil
}

// AppendRow inserts one row. Short rows are padded, long rows rejected.
func (r *LedgerRepository) AppendRow(ctx context.Context, row []string) error {
	vals, err := fit(row)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO ledger_rows (id, ledger, sheet, thumbnail_name, original_path, thumbnail_link, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, uuid.NewString(), r.ledger, r.sheet, vals[0], vals[1], vals[2], r.now().UTC())
	if err != nil {
		return classify(fmt.Errorf("insert ledger row: %w", err))
	}
	return nil
}

func fit(row []string) ([columns]string, error) {
	var vals [columns]string
	if len(row) > columns {
		return vals, fmt.Errorf("ledger row has %d values, want at most %d", len(row), columns)
	}
	copy(vals[:], row)
	return vals, nil
}

// classify marks connection, resource and operator errors as transient.
// Constraint and syntax errors are permanent. Errors that never reached the
// server are network trouble and also transient.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if transientClass(pgErr.Code) {
			return retry.MarkTransient(err)
		}
		return err
	}
	return retry.MarkTransient(err)
}

// transientClass matches SQLSTATE classes 08 (connection), 40 (rollback),
// 53 (insufficient resources) and 57 (operator intervention).
func transientClass(code string) bool {
	if len(code) < 2 {
		return false
	}
	switch code[:2] {
	case "08", "40", "53", "57":
		return true
	}
	return false
}
