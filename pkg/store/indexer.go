package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/reportoor/pkg/sink"
)

// resultFileSuffix identifies result files in an evidence directory.
const resultFileSuffix = "-result.json"

// IndexDirectory scans an evidence directory and upserts one record per
// result file. Files that fail to parse are skipped with a warning so one
// corrupt file does not hide the rest of the evidence.
func IndexDirectory(
	ctx context.Context,
	log logrus.FieldLogger,
	st Store,
	dir string,
	concurrency int,
) (int, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading evidence directory: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	indexed := 0

	results := make(chan *ResultRecord, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), resultFileSuffix) {
			continue
		}

		name := entry.Name()

		g.Go(func() error {
			rec, err := recordFromFile(filepath.Join(dir, name))
			if err != nil {
				log.WithField("file", name).WithError(err).Warn("Skipping unparseable result file")

				return nil
			}

			select {
			case results <- rec:
			case <-gCtx.Done():
				return gCtx.Err()
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("scanning evidence directory: %w", err)
	}

	close(results)

	for rec := range results {
		if err := st.UpsertResult(ctx, rec); err != nil {
			return indexed, err
		}

		indexed++
	}

	return indexed, nil
}

// recordFromFile parses one persisted result into its index record.
func recordFromFile(path string) (*ResultRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading result file: %w", err)
	}

	var res sink.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("parsing result file: %w", err)
	}

	rec := &ResultRecord{
		ResultID:        res.ID,
		Name:            res.Name,
		Status:          string(res.Status),
		Start:           res.Start,
		Stop:            res.Stop,
		File:            filepath.Base(path),
		StepCount:       countSteps(res.Steps),
		AttachmentCount: countAttachments(&res),
		IndexedAt:       time.Now(),
	}

	for _, label := range res.Labels {
		if label.Key == "synthetic" && label.Value == "true" {
			rec.Synthetic = true
		}
	}

	return rec, nil
}

func countSteps(steps []*sink.Step) int {
	count := len(steps)
	for _, step := range steps {
		count += countSteps(step.Steps)
	}

	return count
}

func countAttachments(res *sink.Result) int {
	count := len(res.Attachments)

	var walk func(steps []*sink.Step)

	walk = func(steps []*sink.Step) {
		for _, step := range steps {
			count += len(step.Attachments)
			walk(step.Steps)
		}
	}

	walk(res.Steps)

	return count
}
