// Package walker traverses a remote folder tree depth first and feeds every
// video it finds through the pipeline and into the ledger.
package walker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/framegrab/internal/metrics"
	"github.com/dharsanguruparan/framegrab/internal/model"
	"github.com/dharsanguruparan/framegrab/internal/pipeline"
)

// Lister lists one page of a folder's non-trashed children.
type Lister interface {
	ListChildren(ctx context.Context, folderID, pageToken string) (model.Page, error)
}

// Processor runs the per-video pipeline.
type Processor interface {
	Process(ctx context.Context, video model.DirectoryEntry, parent model.PathContext) pipeline.Outcome
}

// Appender writes ledger rows.
type Appender interface {
	Append(ctx context.Context, row model.LedgerRow) error
}

// Walker drives a traversal.
type Walker struct {
	lister  Lister
	proc    Processor
	ledger  Appender
	metrics *metrics.Metrics
	log     zerolog.Logger
	now     func() time.Time
}

// New constructs a Walker. m may be nil.
func New(lister Lister, proc Processor, ledger Appender, m *metrics.Metrics, log zerolog.Logger) *Walker {
	return &Walker{
		lister:  lister,
		proc:    proc,
		ledger:  ledger,
		metrics: m,
		log:     log.With().Str("component", "walker").Logger(),
		now:     time.Now,
	}
}

// frame is one folder being walked: its listed children and how far we got.
type frame struct {
	path    model.PathContext
	entries []model.DirectoryEntry
	next    int
}

// Walk visits folderID and everything below it in preorder. Sub-folders are
// finished before later siblings are looked at. Only a cancelled context
// stops the walk early; every other failure is confined to one folder or one
// video.
func (w *Walker) Walk(ctx context.Context, folderID string, path model.PathContext) (model.Summary, error) {
	sum := model.Summary{StartedAt: w.now()}

	var stack []frame
	if entries, ok := w.list(ctx, folderID, path, &sum); ok {
		stack = append(stack, frame{path: path, entries: entries})
	}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			sum.FinishedAt = w.now()
			return sum, err
		}
		top := &stack[len(stack)-1]
		if top.next >= len(top.entries) {
			stack = stack[:len(stack)-1]
			continue
		}
		entry := top.entries[top.next]
		top.next++
		parent := top.path

		switch entry.Kind() {
		case model.KindFolder:
			child := parent.Child(entry.Name)
			if entries, ok := w.list(ctx, entry.ID, child, &sum); ok {
				stack = append(stack, frame{path: child, entries: entries})
			}
		case model.KindVideo:
			sum.Videos++
			if err := w.video(ctx, entry, parent, &sum); err != nil {
				sum.FinishedAt = w.now()
				return sum, err
			}
		}
	}
	sum.FinishedAt = w.now()
	return sum, nil
}

// list follows page tokens until the folder is exhausted. Any failure drops
// the whole folder.
func (w *Walker) list(ctx context.Context, folderID string, path model.PathContext, sum *model.Summary) ([]model.DirectoryEntry, bool) {
	w.log.Info().Str("folder", path.String()).Msg("scanning folder")
	var entries []model.DirectoryEntry
	token := ""
	for {
		page, err := w.lister.ListChildren(ctx, folderID, token)
		if err != nil {
			err = fmt.Errorf("list folder %s: %w", folderID, err)
			w.log.Error().Err(err).Str("folder", path.String()).Msg("skipping folder")
			sum.FolderErrors++
			w.metrics.FolderFailed()
			return nil, false
		}
		entries = append(entries, page.Entries...)
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}
	sum.Folders++
	w.metrics.FolderVisited()
	return entries, true
}

func (w *Walker) video(ctx context.Context, entry model.DirectoryEntry, parent model.PathContext, sum *model.Summary) error {
	out := w.proc.Process(ctx, entry, parent)
	w.metrics.VideoDone(string(out.Status))

	switch out.Status {
	case pipeline.StatusProcessed:
		sum.Processed++
		w.log.Debug().Strs("row", out.Row.Values()).Msg("row to log")
		if err := w.ledger.Append(ctx, out.Row); err != nil {
			sum.LedgerFailures++
			w.metrics.LedgerAppend(false)
		} else {
			w.metrics.LedgerAppend(true)
		}
	case pipeline.StatusSkipped:
		sum.Skipped++
	default:
		sum.Failed++
	}
	return ctx.Err()
}
