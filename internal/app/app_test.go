package app

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/framegrab/internal/config"
	"github.com/dharsanguruparan/framegrab/internal/frame"
	"github.com/dharsanguruparan/framegrab/internal/metrics"
	"github.com/dharsanguruparan/framegrab/internal/model"
	"github.com/dharsanguruparan/framegrab/internal/retry"
	"github.com/dharsanguruparan/framegrab/internal/storage"
)

// rateExtractor reads the downloaded bytes as a key into rates.
type rateExtractor struct {
	rates   map[string]float64
	indexes []int
}

func (e *rateExtractor) Open(_ context.Context, path string) (frame.Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &rateClip{ex: e, rate: e.rates[string(data)]}, nil
}

type rateClip struct {
	ex   *rateExtractor
	rate float64
}

func (c *rateClip) FrameRate() float64 { return c.rate }

func (c *rateClip) Frame(_ context.Context, index int) (image.Image, error) {
	c.ex.indexes = append(c.ex.indexes, index)
	return image.NewRGBA(image.Rect(0, 0, 16, 9)), nil
}

func (c *rateClip) Close() error { return nil }

type env struct {
	cfg    *config.Config
	store  *storage.MemoryStore
	ledger *storage.MemoryLedger
	ex     *rateExtractor
	clips  string
	runner *Runner
}

// newEnv builds Root/Clips/{a.mp4,notes.txt} plus a Thumbs folder outside the
// scanned tree.
func newEnv(t *testing.T) *env {
	t.Helper()
	store := storage.NewMemoryStore("root", "Root")
	thumbs := store.AddFolder("drive", "Thumbs")
	clips := store.AddFolder("root", "Clips")
	store.AddFile(clips, "a.mp4", "video/mp4", []byte("thirty"))
	store.AddFile(clips, "notes.txt", "text/plain", []byte("hello"))

	tmp := t.TempDir()
	cfg := &config.Config{
		StartFolderID:     "root",
		ThumbnailFolderID: thumbs,
		SpreadsheetID:     "sheet",
		SheetName:         "Sheet1",
		CaptureSeconds:    2.0,
		TempDir:           tmp,
		AppendAttempts:    5,
		AppendBackoff:     0,
		MetricsFile:       filepath.Join(t.TempDir(), "framegrab.prom"),
	}
	e := &env{
		cfg:    cfg,
		store:  store,
		ledger: storage.NewMemoryLedger(),
		ex:     &rateExtractor{rates: map[string]float64{"thirty": 30, "zero": 0}},
		clips:  clips,
	}
	e.runner = NewRunner(cfg, Deps{Store: store, Ledger: e.ledger, Extractor: e.ex, Metrics: metrics.New()}, zerolog.Nop())
	return e
}

func TestRunEndToEnd(t *testing.T) {
	e := newEnv(t)

	sum, err := e.runner.Run(context.Background())
	require.NoError(t, err)

	rows := e.ledger.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, model.LedgerHeader, rows[0])
	assert.Equal(t, "a_Thumbnail.jpg", rows[1][0])
	assert.Equal(t, "Root/Clips", rows[1][1])
	assert.NotEmpty(t, rows[1][2])

	assert.Equal(t, []int{60}, e.ex.indexes)
	require.Len(t, e.store.Uploads(), 1)
	assert.Equal(t, e.cfg.ThumbnailFolderID, e.store.Uploads()[0].FolderID)

	assert.Equal(t, 1, sum.Videos)
	assert.Equal(t, 1, sum.Processed)
	assert.Equal(t, 2, sum.Folders)

	entries, err := os.ReadDir(e.cfg.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	prom, err := os.ReadFile(e.cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "framegrab_videos_total")
}

func TestRunZeroFrameRateContinuesWithSiblings(t *testing.T) {
	e := newEnv(t)
	e.store.AddFile(e.clips, "broken.mp4", "video/mp4", []byte("zero"))
	e.store.AddFile(e.clips, "b.mp4", "video/mp4", []byte("thirty"))

	sum, err := e.runner.Run(context.Background())
	require.NoError(t, err)

	rows := e.ledger.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, "a_Thumbnail.jpg", rows[1][0])
	assert.Equal(t, "b_Thumbnail.jpg", rows[2][0])
	assert.Len(t, e.store.Uploads(), 2)
	assert.Equal(t, 1, sum.Skipped)
}

func TestRunTwiceDuplicatesRows(t *testing.T) {
	e := newEnv(t)

	_, err := e.runner.Run(context.Background())
	require.NoError(t, err)
	_, err = e.runner.Run(context.Background())
	require.NoError(t, err)

	rows := e.ledger.Rows()
	require.Len(t, rows, 3, "header once, then one row per run")
	assert.Equal(t, model.LedgerHeader, rows[0])
	assert.Equal(t, rows[1][0], rows[2][0])
	assert.Equal(t, rows[1][1], rows[2][1])
	assert.NotEqual(t, rows[1][2], rows[2][2], "each run uploads a new thumbnail")
	assert.Len(t, e.store.Uploads(), 2)
}

func TestRunToleratesHeaderReadFailure(t *testing.T) {
	e := newEnv(t)
	e.ledger.ReadErr = errors.New("403 forbidden")

	sum, err := e.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Processed)

	rows := e.ledger.Rows()
	require.Len(t, rows, 1, "no header is written when the read fails")
	assert.Equal(t, "a_Thumbnail.jpg", rows[0][0])
}

func TestRunRootNameFailureStopsBeforeWalking(t *testing.T) {
	e := newEnv(t)
	e.cfg.StartFolderID = "missing"

	_, err := e.runner.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Zero(t, e.store.ListCalls("missing"))
	assert.Empty(t, e.store.Uploads())
}

func TestRunRetriesTransientLedgerFailures(t *testing.T) {
	e := newEnv(t)
	e.ledger.FailAppends = 2
	e.ledger.AppendErr = retry.MarkTransient(errors.New("503 backend error"))

	sum, err := e.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.LedgerFailures)
	assert.Equal(t, 4, e.ledger.AppendCalls(), "two failed header attempts, header, row")
	assert.Len(t, e.ledger.Rows(), 2)
}

func TestRunCountsExhaustedLedgerAppends(t *testing.T) {
	e := newEnv(t)
	e.cfg.AppendAttempts = 2
	e.store.AddFile(e.clips, "b.mp4", "video/mp4", []byte("thirty"))
	e.ledger.FailAppends = 100
	e.ledger.AppendErr = retry.MarkTransient(errors.New("503 backend error"))

	sum, err := e.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Processed)
	assert.Equal(t, 2, sum.LedgerFailures)
	assert.Equal(t, 6, e.ledger.AppendCalls())
	assert.Empty(t, e.ledger.Rows())
}

func TestPolicyFromConfig(t *testing.T) {
	p := Policy(&config.Config{AppendAttempts: 3, AppendBackoff: 0})
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Zero(t, p.BaseDelay)
	assert.Equal(t, 2.0, p.Multiplier)
}
