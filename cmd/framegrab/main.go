package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/framegrab/internal/app"
	"github.com/dharsanguruparan/framegrab/internal/config"
	"github.com/dharsanguruparan/framegrab/internal/frame"
	"github.com/dharsanguruparan/framegrab/internal/logging"
	"github.com/dharsanguruparan/framegrab/internal/pipeline"
)

var envFiles []string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "framegrab: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "framegrab",
		Short: "Capture a still frame from every video in a folder tree",
		Long: `framegrab walks a Drive folder (or S3 prefix), grabs the frame at a fixed
timestamp from every video it finds, uploads it as <name>_Thumbnail.jpg and
appends a row describing it to a spreadsheet (or Postgres) ledger.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			loadEnvFiles(envFiles)
		},
	}
	cmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "Env files to load when present")
	cmd.AddCommand(
		newRunCmd(),
		newGrabCmd(),
	)
	return cmd
}

func newRunCmd() *cobra.Command {
	var (
		root       string
		thumbnails string
		ledgerID   string
		sheet      string
		at         float64
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scan the configured folder tree and log every thumbnail",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Parse()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("root") {
				cfg.StartFolderID = root
			}
			if flags.Changed("thumbnails") {
				cfg.ThumbnailFolderID = thumbnails
			}
			if flags.Changed("ledger") {
				cfg.SpreadsheetID = ledgerID
			}
			if flags.Changed("sheet") {
				cfg.SheetName = sheet
			}
			if flags.Changed("at") {
				cfg.CaptureSeconds = at
			}
			cfg.Normalize()
			if err := cfg.Validate(); err != nil {
				return err
			}

			log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return &config.Error{Code: config.ErrCodeInvalid, Key: "FRAMEGRAB_LOG_FORMAT", Err: err}
			}

			deps, cleanup, err := app.Build(ctx, cfg, log)
			defer cleanup()
			if err != nil {
				log.Error().Err(err).Msg("startup failed")
				return err
			}
			_, err = app.NewRunner(cfg, deps, log).Run(ctx)
			return err
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "Folder to scan (overrides START_FOLDER_ID)")
	cmd.Flags().StringVar(&thumbnails, "thumbnails", "", "Destination folder (overrides THUMBNAIL_FOLDER_ID)")
	cmd.Flags().StringVar(&ledgerID, "ledger", "", "Ledger id (overrides SPREADSHEET_ID)")
	cmd.Flags().StringVar(&sheet, "sheet", "", "Ledger tab (overrides SHEET_NAME)")
	cmd.Flags().Float64Var(&at, "at", 0, "Capture timestamp in seconds (overrides CAPTURE_TIMESTAMP_SECONDS)")
	return cmd
}

func newGrabCmd() *cobra.Command {
	var (
		at      float64
		out     string
		ffmpeg  string
		ffprobe string
	)
	cmd := &cobra.Command{
		Use:   "grab <video>",
		Short: "Write the thumbnail of one local video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			video := args[0]
			if out == "" {
				out = filepath.Join(filepath.Dir(video), pipeline.ThumbnailName(filepath.Base(video)))
			}
			ex := frame.NewFFmpeg(ffmpeg, ffprobe)
			if err := ex.Available(); err != nil {
				return err
			}
			img, index, err := frame.Grab(cmd.Context(), ex, video, at)
			if err != nil {
				return err
			}
			if err := frame.EncodeJPEG(img, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "frame %d -> %s\n", index, out)
			return nil
		},
	}
	cmd.Flags().Float64Var(&at, "at", 2, "Capture timestamp in seconds")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output JPEG (default <stem>_Thumbnail.jpg next to the video)")
	cmd.Flags().StringVar(&ffmpeg, "ffmpeg", "ffmpeg", "ffmpeg binary")
	cmd.Flags().StringVar(&ffprobe, "ffprobe", "ffprobe", "ffprobe binary")
	return cmd
}

func loadEnvFiles(paths []string) {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
