// Package pipeline turns one remote video into one uploaded thumbnail and a
// ledger row: download, extract a frame, upload, build the row.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/framegrab/internal/frame"
	"github.com/dharsanguruparan/framegrab/internal/model"
)

// ThumbnailSuffix replaces the video extension in the thumbnail name.
const ThumbnailSuffix = "_Thumbnail.jpg"

// Store is the part of the remote store the pipeline needs.
type Store interface {
	Download(ctx context.Context, fileID string, w io.Writer) (int64, error)
	Upload(ctx context.Context, req model.UploadRequest) (model.RemoteFile, error)
}

// Status is how a pipeline run ended.
type Status string

const (
	// StatusProcessed carries a row to append.
	StatusProcessed Status = "processed"
	// StatusSkipped is a data-quality failure; never retried.
	StatusSkipped Status = "skipped"
	// StatusFailed is a remote or local I/O failure.
	StatusFailed Status = "failed"
)

// Outcome is the result of Process. Row is only set when Status is
// StatusProcessed.
type Outcome struct {
	Status Status
	Row    model.LedgerRow
	Reason string
	Err    error
}

func processed(row model.LedgerRow) Outcome { return Outcome{Status: StatusProcessed, Row: row} }

func skipped(reason string, err error) Outcome {
	return Outcome{Status: StatusSkipped, Reason: reason, Err: err}
}

func failed(reason string, err error) Outcome {
	return Outcome{Status: StatusFailed, Reason: reason, Err: err}
}

// Options configures a Pipeline.
type Options struct {
	ThumbnailFolderID string
	CaptureSeconds    float64
	TempDir           string
}

// Pipeline processes one video at a time.
type Pipeline struct {
	store     Store
	extractor frame.Extractor
	opts      Options
	log       zerolog.Logger
}

// New constructs a Pipeline.
func New(store Store, extractor frame.Extractor, opts Options, log zerolog.Logger) *Pipeline {
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	return &Pipeline{
		store:     store,
		extractor: extractor,
		opts:      opts,
		log:       log.With().Str("component", "pipeline").Logger(),
	}
}

// Process downloads video, grabs the frame at the configured timestamp,
// uploads it and returns the row describing it. parent is the path of the
// folder holding the video. Local temp files are gone when Process returns.
func (p *Pipeline) Process(ctx context.Context, video model.DirectoryEntry, parent model.PathContext) Outcome {
	log := p.log.With().Str("video", video.Name).Str("file_id", video.ID).Logger()
	log.Info().Msg("processing video")

	var videoPath, thumbPath string
	defer func() {
		p.cleanup(log, videoPath)
		p.cleanup(log, thumbPath)
	}()

	videoPath = p.tempPath(filepath.Ext(video.Name))
	if err := p.download(ctx, log, video, videoPath); err != nil {
		log.Error().Err(err).Msg("download failed")
		return failed("download", err)
	}

	img, index, err := frame.Grab(ctx, p.extractor, videoPath, p.opts.CaptureSeconds)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return failed("cancelled", ctxErr)
		}
		if errors.Is(err, frame.ErrNoFrameRate) {
			log.Warn().Err(err).Msg("could not get frame rate, skipping")
			return skipped("no frame rate", err)
		}
		log.Warn().Err(err).Int("frame", index).Msg("could not grab frame, skipping")
		return skipped("no frame", err)
	}

	thumbName := ThumbnailName(video.Name)
	thumbPath = p.tempPath(".jpg")
	if err := frame.EncodeJPEG(img, thumbPath); err != nil {
		log.Error().Err(err).Msg("encode thumbnail failed")
		return failed("encode", err)
	}

	uploaded, err := p.upload(ctx, thumbName, thumbPath)
	if err != nil {
		log.Error().Err(err).Str("thumbnail", thumbName).Msg("upload failed")
		return failed("upload", err)
	}
	log.Info().Str("thumbnail_id", uploaded.ID).Int("frame", index).Msg("thumbnail created")

	return processed(model.LedgerRow{
		ThumbnailName: uploaded.Name,
		OriginalPath:  parent.String(),
		ThumbnailLink: uploaded.Link,
	})
}

func (p *Pipeline) download(ctx context.Context, log zerolog.Logger, video model.DirectoryEntry, dst string) error {
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create temp video: %w", err)
	}
	pw := &progressWriter{w: f, total: video.Size, log: log}
	if _, err := p.store.Download(ctx, video.ID, pw); err != nil {
		f.Close()
		return fmt.Errorf("download video: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp video: %w", err)
	}
	return nil
}

func (p *Pipeline) upload(ctx context.Context, name, path string) (model.RemoteFile, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return model.RemoteFile{}, fmt.Errorf("detect thumbnail type: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return model.RemoteFile{}, fmt.Errorf("open thumbnail: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return model.RemoteFile{}, fmt.Errorf("stat thumbnail: %w", err)
	}
	p.log.Info().Str("thumbnail", name).Msg("uploading thumbnail")
	rf, err := p.store.Upload(ctx, model.UploadRequest{
		FolderID: p.opts.ThumbnailFolderID,
		Name:     name,
		MimeType: mt.String(),
		Body:     f,
		Size:     info.Size(),
	})
	if err != nil {
		return model.RemoteFile{}, fmt.Errorf("upload thumbnail: %w", err)
	}
	return rf, nil
}

func (p *Pipeline) tempPath(ext string) string {
	return filepath.Join(p.opts.TempDir, "framegrab-"+uuid.NewString()+strings.ToLower(ext))
}

func (p *Pipeline) cleanup(log zerolog.Logger, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("path", path).Msg("could not remove temp file")
	}
}

// ThumbnailName swaps the video extension for ThumbnailSuffix.
func ThumbnailName(videoName string) string {
	return strings.TrimSuffix(videoName, filepath.Ext(videoName)) + ThumbnailSuffix
}

// progressWriter logs download progress in quarter steps when the size is
// known.
type progressWriter struct {
	w       io.Writer
	total   int64
	written int64
	step    int64
	log     zerolog.Logger
}

func (pw *progressWriter) Write(b []byte) (int, error) {
	n, err := pw.w.Write(b)
	pw.written += int64(n)
	if pw.total > 0 {
		step := pw.written * 4 / pw.total
		if step > pw.step {
			pw.step = step
			pw.log.Debug().Int64("percent", pw.written*100/pw.total).Msg("download progress")
		}
	}
	return n, err
}
