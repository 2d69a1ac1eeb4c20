package main

import (
	"context"
	"fmt"

	"github.com/ethpandaops/reportoor/pkg/config"
	"github.com/ethpandaops/reportoor/pkg/store"
	"github.com/ethpandaops/reportoor/pkg/upload"
)

// postRun indexes and uploads the evidence directory after a run, according
// to configuration. Both steps are optional.
func postRun(ctx context.Context, cfg *config.Config) error {
	if cfg.Index != nil && cfg.Index.Enabled {
		if err := indexEvidence(ctx, cfg, cfg.Output.Dir); err != nil {
			return err
		}
	}

	if cfg.Upload != nil && cfg.Upload.S3 != nil && cfg.Upload.S3.Enabled {
		if err := uploadEvidence(ctx, cfg, cfg.Output.Dir); err != nil {
			return err
		}
	}

	return nil
}

// indexEvidence scans dir into the configured index database.
func indexEvidence(ctx context.Context, cfg *config.Config, dir string) error {
	st := store.NewStore(log, &cfg.Index.Database)
	if err := st.Start(ctx); err != nil {
		return fmt.Errorf("starting index store: %w", err)
	}

	defer func() {
		if err := st.Stop(); err != nil {
			log.WithError(err).Warn("Stopping index store")
		}
	}()

	indexed, err := store.IndexDirectory(ctx, log, st, dir, config.DefaultUploadConcurrency)
	if err != nil {
		return fmt.Errorf("indexing evidence directory: %w", err)
	}

	log.WithField("results", indexed).Info("Evidence indexed")

	return nil
}

// uploadEvidence uploads dir to the configured S3 bucket.
func uploadEvidence(ctx context.Context, cfg *config.Config, dir string) error {
	uploader, err := upload.NewS3Uploader(log, cfg.Upload.S3)
	if err != nil {
		return fmt.Errorf("creating S3 uploader: %w", err)
	}

	if err := uploader.Upload(ctx, dir); err != nil {
		return fmt.Errorf("uploading evidence: %w", err)
	}

	return nil
}
