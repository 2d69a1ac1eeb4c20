// Package synth materializes self-contained result records from buffered
// evidence. It is the last-resort path for evidence whose lifecycle never
// produced a natural result container.
package synth

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/reportoor/pkg/events"
	"github.com/ethpandaops/reportoor/pkg/sink"
)

// ConsoleAttachmentName labels the captured console text attachment on a
// synthetic result.
const ConsoleAttachmentName = "hook console output"

// Input describes one materialization.
type Input struct {
	Name    string
	Status  events.Status
	Message string
	Trace   string

	// Events is the drained buffer content, in capture order.
	Events []events.BufferedEvent

	// ConsoleText is the accumulated stream capture, attached as a
	// text/plain attachment when non-empty.
	ConsoleText string

	// Labels are applied on top of any metadata events in the buffer.
	Labels map[string]string
}

// Materializer builds synthetic results from buffered events.
type Materializer struct {
	log logrus.FieldLogger
}

// NewMaterializer creates a materializer.
func NewMaterializer(log logrus.FieldLogger) *Materializer {
	return &Materializer{
		log: log.WithField("component", "materializer"),
	}
}

// Build replays the buffered events into a new immutable result record. The
// step forest reconstructs the exact open/close structure implied by the
// start/stop pairs; unterminated steps are closed at the buffer's last
// timestamp. Timestamps fall back to the call time when the buffer is empty.
func (m *Materializer) Build(in Input) *sink.Result {
	start, stop := events.BoundsOf(in.Events)

	res := &sink.Result{
		ID:     uuid.NewString(),
		Name:   in.Name,
		Status: in.Status,
		Start:  sink.ToMillis(start),
		Stop:   sink.ToMillis(stop),
	}

	if in.Message != "" || in.Trace != "" {
		res.StatusDetails = &sink.StatusDetails{
			Message: in.Message,
			Trace:   in.Trace,
		}
	}

	builder := sink.NewStepBuilder()
	labels := make([]sink.Label, 0, len(in.Labels))

	for _, item := range in.Events {
		switch ev := item.Event.(type) {
		case events.StepStart:
			builder.StartStep(ev.Name, item.CapturedAt)
		case events.StepStop:
			builder.StopStep(ev.Status, item.CapturedAt)
		case events.AttachmentContent:
			body, err := ev.DecodeBody()
			if err != nil {
				m.log.WithError(err).WithField("attachment", ev.Name).
					Debug("Dropping undecodable attachment")

				continue
			}

			builder.Attach(sink.Attachment{
				Name:        ev.Name,
				ContentType: ev.ContentType,
				Body:        body,
			}, item.CapturedAt)
		case events.Metadata:
			labels = appendLabel(labels, ev.Key, ev.Value)
		case events.ContainerStart, events.ContainerEnd:
			// Container boundaries have no meaning inside a synthetic
			// record; the record itself is the container.
		}
	}

	stepStatus := in.Status
	if stepStatus == "" {
		stepStatus = events.StatusBroken
	}

	res.Steps = builder.Close(stepStatus)

	if in.ConsoleText != "" {
		res.Attachments = append(res.Attachments, sink.Attachment{
			Name:        ConsoleAttachmentName,
			ContentType: "text/plain",
			Body:        []byte(in.ConsoleText),
		})
	}

	for k, v := range in.Labels {
		labels = appendLabel(labels, k, v)
	}

	res.Labels = labels

	if res.Stop < res.Start {
		res.Stop = res.Start
	}

	if len(in.Events) == 0 && in.ConsoleText == "" {
		now := sink.ToMillis(time.Now())
		res.Start, res.Stop = now, now
	}

	return res
}

// appendLabel keeps keys unique within one record, last write wins.
func appendLabel(labels []sink.Label, key, value string) []sink.Label {
	for i := range labels {
		if labels[i].Key == key {
			labels[i].Value = value

			return labels
		}
	}

	return append(labels, sink.Label{Key: key, Value: value})
}
