package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dropkit/dropkit/pkg/clients/presign"
	"github.com/dropkit/dropkit/pkg/digest"
	"github.com/dropkit/dropkit/pkg/transfer"
	"github.com/dropkit/dropkit/pkg/uploader"
)

func NewUploadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload [files...]",
		Short: "Upload files to object storage",
		Long: `Upload one or more files. Each file is hashed, deduplicated by content,
negotiated against the backend in a single batch and transferred with a
bounded number of concurrent uploads.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd, args)
		},
	}

	return cmd
}

func runUpload(cmd *cobra.Command, args []string) error {
	config, err := LoadConfig()
	if err != nil {
		return err
	}
	if override, _ := cmd.Flags().GetString("base-url"); override != "" {
		config.BaseURL = override
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	lib := uploader.Library{
		Hasher: digest.NewSHA256Hasher(),
		Negotiator: presign.NewClient(
			presign.WithBaseURL(config.BaseURL),
			presign.WithEndpoint(config.Endpoint),
			presign.WithHeaders(config.Headers),
		),
		Transferrer: transfer.NewClient(),
	}

	manager := uploader.NewManager(lib,
		uploader.WithMaxFiles(config.MaxFiles),
		uploader.WithMaxFileSize(config.MaxFileSize),
		uploader.WithConcurrency(config.Concurrency),
		uploader.WithOnUploadComplete(func(records []uploader.FileRecord) {
			for _, rec := range records {
				fmt.Printf("✅ %s (%s)\n", rec.Name, humanize.Bytes(uint64(rec.Size)))
			}
		}),
		uploader.WithOnUploadError(func(failures []uploader.FailedUpload) {
			for _, f := range failures {
				fmt.Printf("❌ %s: %s\n", f.Source.Name(), f.Err.Message)
			}
		}),
	)
	defer manager.RemoveAll()

	sources := make([]uploader.Source, 0, len(args))
	for _, path := range args {
		contentType := ""
		if mtype, err := mimetype.DetectFile(path); err == nil {
			contentType = mtype.String()
		}
		src, err := uploader.NewFileSource(path, contentType)
		if err != nil {
			return err
		}
		sources = append(sources, src)
	}

	log.Info().Int("files", len(sources)).Str("base_url", config.BaseURL).Msg("starting uploads")

	manager.AddFiles(ctx, sources...)

	if err := manager.Wait(ctx); err != nil {
		return fmt.Errorf("uploads interrupted: %w", err)
	}

	for _, entry := range manager.Errors() {
		fmt.Printf("⚠️  %s\n", entry.Err.Message)
	}

	if manager.HasFailed() {
		return fmt.Errorf("some uploads failed")
	}
	return nil
}
