package walker

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/framegrab/internal/metrics"
	"github.com/dharsanguruparan/framegrab/internal/model"
	"github.com/dharsanguruparan/framegrab/internal/pipeline"
	"github.com/dharsanguruparan/framegrab/internal/storage"
)

type visit struct {
	name string
	path string
}

// scriptedProcessor returns a processed row unless the video name has a
// scripted outcome.
type scriptedProcessor struct {
	visits   []visit
	outcomes map[string]pipeline.Outcome
	onVisit  func()
}

func (p *scriptedProcessor) Process(_ context.Context, v model.DirectoryEntry, parent model.PathContext) pipeline.Outcome {
	p.visits = append(p.visits, visit{name: v.Name, path: parent.String()})
	if p.onVisit != nil {
		p.onVisit()
	}
	if out, ok := p.outcomes[v.Name]; ok {
		return out
	}
	return pipeline.Outcome{Status: pipeline.StatusProcessed, Row: model.LedgerRow{
		ThumbnailName: pipeline.ThumbnailName(v.Name),
		OriginalPath:  parent.String(),
		ThumbnailLink: "link:" + v.ID,
	}}
}

type recordingLedger struct {
	rows []model.LedgerRow
	err  error
}

func (l *recordingLedger) Append(_ context.Context, row model.LedgerRow) error {
	if l.err != nil {
		return l.err
	}
	l.rows = append(l.rows, row)
	return nil
}

// tree builds:
//
//	Root/
//	  v1.mp4
//	  A/
//	    B/
//	      v4.mp4
//	    v3.mov
//	    readme.txt
//	  v2.mp4
//	  C/
func tree() (*storage.MemoryStore, map[string]string) {
	s := storage.NewMemoryStore("root", "Root")
	ids := map[string]string{}
	s.AddFile("root", "v1.mp4", "video/mp4", nil)
	ids["A"] = s.AddFolder("root", "A")
	ids["B"] = s.AddFolder(ids["A"], "B")
	s.AddFile(ids["B"], "v4.mp4", "video/mp4", nil)
	s.AddFile(ids["A"], "v3.mov", "video/quicktime", nil)
	s.AddFile(ids["A"], "readme.txt", "text/plain", nil)
	s.AddFile("root", "v2.mp4", "video/mp4", nil)
	ids["C"] = s.AddFolder("root", "C")
	return s, ids
}

func TestWalkVisitsEverythingOnceInPreorder(t *testing.T) {
	store, ids := tree()
	store.PageSize = 1
	proc := &scriptedProcessor{}
	led := &recordingLedger{}
	m := metrics.New()
	w := New(store, proc, led, m, zerolog.Nop())

	sum, err := w.Walk(context.Background(), "root", model.NewPathContext("Root"))
	require.NoError(t, err)

	assert.Equal(t, []visit{
		{"v1.mp4", "Root"},
		{"v4.mp4", "Root/A/B"},
		{"v3.mov", "Root/A"},
		{"v2.mp4", "Root"},
	}, proc.visits)

	for _, id := range []string{"root", ids["A"], ids["B"], ids["C"]} {
		assert.Positive(t, store.ListCalls(id), "folder %s not listed", id)
	}
	// page size 1: one listing call per child, empty folders take one call
	assert.Equal(t, 4, store.ListCalls("root"))
	assert.Equal(t, 1, store.ListCalls(ids["C"]))

	assert.Equal(t, 4, sum.Folders)
	assert.Equal(t, 4, sum.Videos)
	assert.Equal(t, 4, sum.Processed)
	assert.Len(t, led.rows, 4)
	assert.Equal(t, "v4_Thumbnail.jpg", led.rows[1].ThumbnailName)
	assert.Equal(t, "Root/A/B", led.rows[1].OriginalPath)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.FoldersVisited))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Videos.WithLabelValues("processed")))
}

func TestWalkSkipsFailedSubtreeOnly(t *testing.T) {
	store, ids := tree()
	store.ListErr[ids["A"]] = errors.New("500 backend error")
	proc := &scriptedProcessor{}
	led := &recordingLedger{}
	w := New(store, proc, led, nil, zerolog.Nop())

	sum, err := w.Walk(context.Background(), "root", model.NewPathContext("Root"))
	require.NoError(t, err)

	assert.Equal(t, []visit{{"v1.mp4", "Root"}, {"v2.mp4", "Root"}}, proc.visits)
	assert.Equal(t, 1, sum.FolderErrors)
	assert.Equal(t, 2, sum.Folders)
	assert.Zero(t, store.ListCalls(ids["B"]))
	assert.Equal(t, 1, store.ListCalls(ids["A"]), "listing failures are not retried")
}

func TestWalkRootListingFailure(t *testing.T) {
	store, _ := tree()
	store.ListErr["root"] = errors.New("404 not found")
	proc := &scriptedProcessor{}
	w := New(store, proc, &recordingLedger{}, nil, zerolog.Nop())

	sum, err := w.Walk(context.Background(), "root", model.NewPathContext("Root"))
	require.NoError(t, err)
	assert.Empty(t, proc.visits)
	assert.Equal(t, 1, sum.FolderErrors)
}

func TestWalkOnlyAppendsProcessedRows(t *testing.T) {
	store, _ := tree()
	proc := &scriptedProcessor{outcomes: map[string]pipeline.Outcome{
		"v1.mp4": {Status: pipeline.StatusSkipped, Reason: "no frame rate"},
		"v4.mp4": {Status: pipeline.StatusFailed, Reason: "download", Err: errors.New("boom")},
	}}
	led := &recordingLedger{}
	w := New(store, proc, led, nil, zerolog.Nop())

	sum, err := w.Walk(context.Background(), "root", model.NewPathContext("Root"))
	require.NoError(t, err)

	assert.Len(t, proc.visits, 4, "failures must not stop siblings")
	assert.Equal(t, 2, sum.Processed)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 1, sum.Failed)
	require.Len(t, led.rows, 2)
	assert.Equal(t, "v3_Thumbnail.jpg", led.rows[0].ThumbnailName)
	assert.Equal(t, "v2_Thumbnail.jpg", led.rows[1].ThumbnailName)
}

func TestWalkContinuesAfterLedgerFailure(t *testing.T) {
	store, _ := tree()
	proc := &scriptedProcessor{}
	led := &recordingLedger{err: errors.New("append ledger row: 503")}
	w := New(store, proc, led, nil, zerolog.Nop())

	sum, err := w.Walk(context.Background(), "root", model.NewPathContext("Root"))
	require.NoError(t, err)
	assert.Len(t, proc.visits, 4)
	assert.Equal(t, 4, sum.LedgerFailures)
}

func TestWalkStopsWhenCancelled(t *testing.T) {
	store, _ := tree()
	ctx, cancel := context.WithCancel(context.Background())
	proc := &scriptedProcessor{onVisit: cancel}
	w := New(store, proc, &recordingLedger{}, nil, zerolog.Nop())

	sum, err := w.Walk(ctx, "root", model.NewPathContext("Root"))
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, proc.visits, 1)
	assert.Equal(t, 1, sum.Videos)
	assert.False(t, sum.FinishedAt.IsZero())
}
