package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/dharsanguruparan/framegrab/internal/config"
	"github.com/dharsanguruparan/framegrab/internal/database"
	"github.com/dharsanguruparan/framegrab/internal/drive"
	"github.com/dharsanguruparan/framegrab/internal/frame"
	"github.com/dharsanguruparan/framegrab/internal/gauth"
	"github.com/dharsanguruparan/framegrab/internal/metrics"
	"github.com/dharsanguruparan/framegrab/internal/repository"
	"github.com/dharsanguruparan/framegrab/internal/s3storage"
	"github.com/dharsanguruparan/framegrab/internal/sheets"
)

// Build creates the clients selected by cfg. The returned cleanup releases
// them and is safe to call when Build fails.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Deps, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var google option.ClientOption
	if cfg.NeedsGoogleCredentials() {
		key, err := cfg.CredentialsJSON()
		if err != nil {
			return Deps{}, cleanup, err
		}
		google, err = gauth.ClientOption(ctx, key)
		if err != nil {
			return Deps{}, cleanup, &config.Error{Code: config.ErrCodeCredentials, Err: err}
		}
	}

	deps := Deps{Metrics: metrics.New()}

	switch cfg.Store {
	case config.StoreS3:
		s, err := s3storage.New(cfg)
		if err != nil {
			return Deps{}, cleanup, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return Deps{}, cleanup, err
		}
		deps.Store = s
	default:
		s, err := drive.New(ctx, google)
		if err != nil {
			return Deps{}, cleanup, err
		}
		deps.Store = s
	}
	log.Debug().Str("store", cfg.Store).Msg("store ready")

	switch cfg.Ledger {
	case config.LedgerPostgres:
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return Deps{}, cleanup, err
		}
		closers = append(closers, pool.Close)
		if err := database.EnsureSchema(ctx, pool); err != nil {
			return Deps{}, cleanup, err
		}
		deps.Ledger = repository.NewLedgerRepository(pool, cfg.SpreadsheetID, cfg.SheetName)
	default:
		l, err := sheets.New(ctx, cfg.SpreadsheetID, cfg.SheetName, google)
		if err != nil {
			return Deps{}, cleanup, err
		}
		deps.Ledger = l
	}
	log.Debug().Str("ledger", cfg.Ledger).Msg("ledger ready")

	ff := frame.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath)
	if err := ff.Available(); err != nil {
		return Deps{}, cleanup, fmt.Errorf("frame extractor: %w", err)
	}
	deps.Extractor = ff

	return deps, cleanup, nil
}
