package sheets

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/dharsanguruparan/framegrab/internal/retry"
)

type fakeSheets struct {
	values   [][]any
	appended []map[string]any
	queries  []string
	status   int
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if f.status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		_, _ = io.WriteString(w, `{"error":{"code":429,"message":"quota"}}`)
		return
	}
	if !strings.HasPrefix(r.URL.Path, "/v4/spreadsheets/sheet-id/values/") {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":append"):
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.appended = append(f.appended, body)
		f.queries = append(f.queries, r.URL.Query().Get("valueInputOption")+","+r.URL.Query().Get("insertDataOption"))
		_ = json.NewEncoder(w).Encode(map[string]any{"spreadsheetId": "sheet-id"})
	case r.Method == http.MethodGet:
		_ = json.NewEncoder(w).Encode(map[string]any{"range": "Sheet1!A1:C2", "values": f.values})
	default:
		http.NotFound(w, r)
	}
}

func newTestLedger(t *testing.T, h http.Handler) *Ledger {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	l, err := New(context.Background(), "sheet-id", "Sheet1", option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	require.NoError(t, err)
	return l
}

func TestReadRangeStringifiesCells(t *testing.T) {
	fake := &fakeSheets{values: [][]any{{"Thumbnail Name", "Original Video Path", "Link to Thumbnail"}, {"a_Thumbnail.jpg", 42}}}
	l := newTestLedger(t, fake)

	rows, err := l.ReadRange(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Link to Thumbnail", rows[0][2])
	assert.Equal(t, []string{"a_Thumbnail.jpg", "42"}, rows[1])
}

func TestReadRangeEmptySheet(t *testing.T) {
	l := newTestLedger(t, &fakeSheets{})
	rows, err := l.ReadRange(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestAppendRowSendsUserEnteredRow(t *testing.T) {
	fake := &fakeSheets{}
	l := newTestLedger(t, fake)

	err := l.AppendRow(context.Background(), []string{"a_Thumbnail.jpg", "Root/Clips", "https://link"})
	require.NoError(t, err)
	require.Len(t, fake.appended, 1)
	assert.Equal(t, []any{[]any{"a_Thumbnail.jpg", "Root/Clips", "https://link"}}, fake.appended[0]["values"])
	assert.Equal(t, []string{"USER_ENTERED,INSERT_ROWS"}, fake.queries)
}

func TestAPIErrorsAreTransient(t *testing.T) {
	l := newTestLedger(t, &fakeSheets{status: http.StatusTooManyRequests})

	err := l.AppendRow(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.True(t, retry.IsTransient(err))

	_, err = l.ReadRange(context.Background())
	require.Error(t, err)
	assert.True(t, retry.IsTransient(err))
}
