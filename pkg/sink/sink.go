package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/reportoor/pkg/events"
)

// Sink receives structured evidence and persists result containers.
type Sink interface {
	Start(ctx context.Context) error
	Stop() error

	// Emit processes one event on the normal per-event path. Step and
	// attachment events attach to the innermost open container; emitting
	// them with no container open is an error.
	Emit(ev events.Event) error

	// WriteResult persists a fully built result and its attachment files.
	// It is synchronous, touches only the local filesystem and is safe to
	// call from a process-exit handler.
	WriteResult(res *Result) error
}

// Config for the file sink.
type Config struct {
	// OutputDir is the directory receiving result and attachment files.
	OutputDir string
}

// NewFileSink creates a sink that writes one JSON file per result container
// plus sibling attachment files into the configured output directory.
func NewFileSink(log logrus.FieldLogger, cfg *Config) Sink {
	return &fileSink{
		log: log.WithField("component", "sink"),
		cfg: cfg,
	}
}

type fileSink struct {
	log logrus.FieldLogger
	cfg *Config

	// open is the stack of currently open containers, innermost last.
	open []*openContainer
}

type openContainer struct {
	result  *Result
	builder *StepBuilder
	started time.Time
}

// Ensure interface compliance.
var _ Sink = (*fileSink)(nil)

// Start creates the output directory and writes the environment snapshot.
func (s *fileSink) Start(ctx context.Context) error {
	if err := os.MkdirAll(s.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	if err := writeEnvironment(ctx, s.cfg.OutputDir); err != nil {
		s.log.WithError(err).Warn("Failed to write environment snapshot")
	}

	s.log.WithField("dir", s.cfg.OutputDir).Debug("Sink started")

	return nil
}

// Stop warns about containers that never closed.
func (s *fileSink) Stop() error {
	for _, c := range s.open {
		s.log.WithField("container", c.result.Name).Warn("Container still open at sink shutdown")
	}

	s.open = nil

	return nil
}

// Emit routes one event to the innermost open container.
func (s *fileSink) Emit(ev events.Event) error {
	switch e := ev.(type) {
	case events.ContainerStart:
		id := e.ID
		if id == "" {
			id = uuid.NewString()
		}

		now := time.Now()
		s.open = append(s.open, &openContainer{
			result: &Result{
				ID:    id,
				Name:  e.Name,
				Start: ToMillis(now),
			},
			builder: NewStepBuilder(),
			started: now,
		})

		return nil
	case events.ContainerEnd:
		return s.closeContainer(e)
	case events.StepStart:
		c, err := s.current()
		if err != nil {
			return err
		}

		c.builder.StartStep(e.Name, time.Now())

		return nil
	case events.StepStop:
		c, err := s.current()
		if err != nil {
			return err
		}

		c.builder.StopStep(e.Status, time.Now())

		return nil
	case events.AttachmentContent:
		c, err := s.current()
		if err != nil {
			return err
		}

		body, err := e.DecodeBody()
		if err != nil {
			return fmt.Errorf("decoding attachment %q: %w", e.Name, err)
		}

		c.builder.Attach(Attachment{
			Name:        e.Name,
			ContentType: e.ContentType,
			Body:        body,
		}, time.Now())

		return nil
	case events.Metadata:
		c, err := s.current()
		if err != nil {
			return err
		}

		c.result.Labels = upsertLabel(c.result.Labels, e.Key, e.Value)

		return nil
	default:
		return fmt.Errorf("unhandled event type %q", ev.Type())
	}
}

// closeContainer pops the innermost container, finalizes its step forest and
// persists it.
func (s *fileSink) closeContainer(e events.ContainerEnd) error {
	c, err := s.current()
	if err != nil {
		return err
	}

	if e.ID != "" && e.ID != c.result.ID {
		s.log.WithFields(logrus.Fields{
			"open":   c.result.ID,
			"closed": e.ID,
		}).Warn("Container end does not match innermost open container")
	}

	s.open = s.open[:len(s.open)-1]

	status := e.Status
	if status == "" {
		status = events.StatusPassed
	}

	c.result.Steps = c.builder.Close(status)
	c.result.Status = status
	c.result.Stop = ToMillis(time.Now())

	return s.WriteResult(c.result)
}

// WriteResult writes attachment files and the result JSON file.
func (s *fileSink) WriteResult(res *Result) error {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}

	index := 0
	if err := s.writeAttachments(res.ID, &index, res.Attachments); err != nil {
		return err
	}

	for _, step := range res.Steps {
		if err := s.writeStepAttachments(res.ID, &index, step); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	path := filepath.Join(s.cfg.OutputDir, res.ID+"-result.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing result file: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"result": res.Name,
		"status": res.Status,
		"file":   filepath.Base(path),
	}).Debug("Result persisted")

	return nil
}

// writeAttachments persists attachment bodies as sibling files, assigning
// generated names from the container identity and a per-record index.
func (s *fileSink) writeAttachments(resultID string, index *int, atts []Attachment) error {
	for i := range atts {
		att := &atts[i]
		if att.Source != "" || att.Body == nil {
			continue
		}

		att.Source = fmt.Sprintf("%s-attachment-%d%s", resultID, *index, ExtensionFor(att.ContentType))
		*index++

		path := filepath.Join(s.cfg.OutputDir, att.Source)
		if err := os.WriteFile(path, att.Body, 0644); err != nil {
			return fmt.Errorf("writing attachment file: %w", err)
		}
	}

	return nil
}

func (s *fileSink) writeStepAttachments(resultID string, index *int, step *Step) error {
	if err := s.writeAttachments(resultID, index, step.Attachments); err != nil {
		return err
	}

	for _, child := range step.Steps {
		if err := s.writeStepAttachments(resultID, index, child); err != nil {
			return err
		}
	}

	return nil
}

func (s *fileSink) current() (*openContainer, error) {
	if len(s.open) == 0 {
		return nil, fmt.Errorf("no active result container")
	}

	return s.open[len(s.open)-1], nil
}

// upsertLabel keeps label keys unique within one result, last write wins.
func upsertLabel(labels []Label, key, value string) []Label {
	for i := range labels {
		if labels[i].Key == key {
			labels[i].Value = value

			return labels
		}
	}

	return append(labels, Label{Key: key, Value: value})
}

// extensions maps declared content types to attachment file extensions.
var extensions = map[string]string{
	"image/png":        ".png",
	"image/jpeg":       ".jpg",
	"text/plain":       ".txt",
	"text/html":        ".html",
	"application/json": ".json",
	"video/mp4":        ".mp4",
}

// ExtensionFor derives a file extension from a declared content type.
func ExtensionFor(contentType string) string {
	if ext, ok := extensions[contentType]; ok {
		return ext
	}

	return ".bin"
}
