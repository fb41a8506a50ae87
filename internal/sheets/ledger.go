// Package sheets stores ledger rows in a Google Sheets tab.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"

	"github.com/dharsanguruparan/framegrab/internal/retry"
)

// Ledger reads and appends rows of one sheet.
type Ledger struct {
	svc           *sheets.Service
	spreadsheetID string
	sheetName     string
}

// New creates a Sheets client bound to spreadsheetID and sheetName.
func New(ctx context.Context, spreadsheetID, sheetName string, opts ...option.ClientOption) (*Ledger, error) {
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("init sheets: %w", err)
	}
	return &Ledger{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName}, nil
}

// ReadRange returns every populated row of the sheet.
func (l *Ledger) ReadRange(ctx context.Context) ([][]string, error) {
	res, err := l.svc.Spreadsheets.Values.Get(l.spreadsheetID, l.sheetName).Context(ctx).Do()
	if err != nil {
		return nil, classify(fmt.Errorf("read %s: %w", l.sheetName, err))
	}
	rows := make([][]string, 0, len(res.Values))
	for _, r := range res.Values {
		row := make([]string, len(r))
		for i, v := range r {
			row[i] = fmt.Sprint(v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// AppendRow appends one row after the last populated row. Values are entered
// as if typed by a user.
func (l *Ledger) AppendRow(ctx context.Context, row []string) error {
	values := make([]interface{}, len(row))
	for i, v := range row {
		values[i] = v
	}
	vr := &sheets.ValueRange{Values: [][]interface{}{values}}
	_, err := l.svc.Spreadsheets.Values.Append(l.spreadsheetID, l.sheetName+"!A1", vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return classify(fmt.Errorf("append row: %w", err))
	}
	return nil
}

// classify marks every API error and network failure as transient.
func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return retry.MarkTransient(err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return retry.MarkTransient(err)
	}
	return err
}
