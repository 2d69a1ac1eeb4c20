package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var indexDir string

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index persisted results into the configured database",
	Long:  `Scan an evidence directory for result files and upsert them into the index database from the config file.`,
	RunE:  runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().StringVar(&indexDir, "dir", "",
		"Evidence directory to index (defaults to the configured output dir)")
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.Index == nil || !cfg.Index.Enabled {
		return fmt.Errorf("index is not configured or not enabled in config")
	}

	dir := indexDir
	if dir == "" {
		dir = cfg.Output.Dir
	}

	log.WithField("dir", dir).Info("Indexing evidence")

	return indexEvidence(cmd.Context(), cfg, dir)
}
