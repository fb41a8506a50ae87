// Package app wires configuration, backends and the walker into one run.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/framegrab/internal/config"
	"github.com/dharsanguruparan/framegrab/internal/frame"
	"github.com/dharsanguruparan/framegrab/internal/ledger"
	"github.com/dharsanguruparan/framegrab/internal/metrics"
	"github.com/dharsanguruparan/framegrab/internal/model"
	"github.com/dharsanguruparan/framegrab/internal/pipeline"
	"github.com/dharsanguruparan/framegrab/internal/retry"
	"github.com/dharsanguruparan/framegrab/internal/walker"
)

// RootFallbackName labels the root folder when its name cannot be shown.
const RootFallbackName = "<root>"

// Store is everything a run needs from the remote store.
type Store interface {
	walker.Lister
	pipeline.Store
	Name(ctx context.Context, fileID string) (string, error)
}

// Deps are the clients a run talks to. Metrics may be nil.
type Deps struct {
	Store     Store
	Ledger    ledger.Backend
	Extractor frame.Extractor
	Metrics   *metrics.Metrics
}

// Runner executes one full scan.
type Runner struct {
	cfg  *config.Config
	deps Deps
	log  zerolog.Logger
	now  func() time.Time
}

// NewRunner constructs a Runner. cfg must already be validated.
func NewRunner(cfg *config.Config, deps Deps, log zerolog.Logger) *Runner {
	return &Runner{cfg: cfg, deps: deps, log: log, now: time.Now}
}

// Policy builds the ledger retry policy from cfg.
func Policy(cfg *config.Config) retry.Policy {
	p := retry.Default()
	p.MaxAttempts = cfg.AppendAttempts
	p.BaseDelay = cfg.AppendBackoff
	return p
}

// Run checks the ledger header, resolves the root folder name and walks the
// tree. Per-folder and per-video failures only show up in the summary; the
// returned error is reserved for a missing root or a cancelled run.
func (r *Runner) Run(ctx context.Context) (model.Summary, error) {
	log := r.log
	cfg := r.cfg

	writer := ledger.NewWriter(r.deps.Ledger, Policy(cfg), log)
	if err := writer.EnsureHeader(ctx); err != nil {
		log.Warn().Err(err).Msg("could not write ledger header, continuing")
	}

	rootName, err := r.deps.Store.Name(ctx, cfg.StartFolderID)
	if err != nil {
		return model.Summary{}, fmt.Errorf("resolve root folder %s: %w", cfg.StartFolderID, err)
	}
	if rootName == "" {
		rootName = RootFallbackName
	}
	log.Info().Str("root", rootName).Str("folder_id", cfg.StartFolderID).Msg("starting scan")

	proc := pipeline.New(r.deps.Store, r.deps.Extractor, pipeline.Options{
		ThumbnailFolderID: cfg.ThumbnailFolderID,
		CaptureSeconds:    cfg.CaptureSeconds,
		TempDir:           cfg.TempDir,
	}, log)
	w := walker.New(r.deps.Store, proc, writer, r.deps.Metrics, log)

	sum, walkErr := w.Walk(ctx, cfg.StartFolderID, model.NewPathContext(rootName))

	r.deps.Metrics.RunFinished(sum.StartedAt, sum.FinishedAt)
	if cfg.MetricsFile != "" && r.deps.Metrics != nil {
		if err := r.deps.Metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			log.Warn().Err(err).Str("path", cfg.MetricsFile).Msg("could not write metrics file")
		}
	}

	log.Info().
		Int("folders", sum.Folders).
		Int("folder_errors", sum.FolderErrors).
		Int("videos", sum.Videos).
		Int("processed", sum.Processed).
		Int("skipped", sum.Skipped).
		Int("failed", sum.Failed).
		Int("ledger_failures", sum.LedgerFailures).
		Dur("elapsed", sum.FinishedAt.Sub(sum.StartedAt)).
		Msg("run summary")

	if walkErr != nil {
		return sum, fmt.Errorf("walk: %w", walkErr)
	}
	log.Info().Msg("process complete")
	return sum, nil
}
