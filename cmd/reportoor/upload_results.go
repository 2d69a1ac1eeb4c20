package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/reportoor/pkg/upload"
)

var (
	uploadMethod string
	uploadDir    string
)

var uploadResultsCmd = &cobra.Command{
	Use:   "upload-results",
	Short: "Upload an evidence directory to remote storage",
	Long:  `Upload a local evidence directory to S3-compatible storage using the config file settings.`,
	RunE:  runUploadResults,
}

func init() {
	rootCmd.AddCommand(uploadResultsCmd)
	uploadResultsCmd.Flags().StringVar(&uploadMethod, "method", "s3",
		"Upload method (currently only \"s3\")")
	uploadResultsCmd.Flags().StringVar(&uploadDir, "dir", "",
		"Path to the evidence directory to upload")

	_ = uploadResultsCmd.MarkFlagRequired("dir")
}

func runUploadResults(cmd *cobra.Command, args []string) error {
	if uploadMethod != "s3" {
		return fmt.Errorf("unsupported method %q (only \"s3\" is supported)", uploadMethod)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.Upload == nil || cfg.Upload.S3 == nil || !cfg.Upload.S3.Enabled {
		return fmt.Errorf("S3 upload is not configured or not enabled in config")
	}

	uploader, err := upload.NewS3Uploader(log, cfg.Upload.S3)
	if err != nil {
		return fmt.Errorf("creating S3 uploader: %w", err)
	}

	ctx := cmd.Context()

	log.WithField("dir", uploadDir).Info("Uploading evidence")

	if err := uploader.Preflight(ctx); err != nil {
		return fmt.Errorf("verifying S3 access: %w", err)
	}

	if err := uploader.Upload(ctx, uploadDir); err != nil {
		return fmt.Errorf("uploading evidence: %w", err)
	}

	log.Info("Upload completed successfully")

	return nil
}
