// Package events defines the structured evidence events exchanged between
// the runner, the reporter and the sink, plus the ordered buffers that hold
// them while no result container is open.
package events

import "time"

// Status is the outcome attached to steps and containers.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
	StatusBroken Status = "broken"
)

// Event is a single message on the structured event channel. The set of
// implementations is closed; the classifier and the materializer switch
// exhaustively over it.
type Event interface {
	// Type returns the wire tag of the event.
	Type() string

	kind()
}

// StepStart opens a new step nested under the innermost open step.
type StepStart struct {
	Name string `json:"name"`
}

// StepStop closes the innermost open step.
type StepStop struct {
	Status Status `json:"status"`
}

// AttachmentContent carries an attachment body in its transport encoding.
type AttachmentContent struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	// Encoding is the transport encoding of Body, currently "base64" or "utf8".
	Encoding string `json:"encoding,omitempty"`
	Body     string `json:"body"`
}

// Metadata attaches a label to the current container.
type Metadata struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ContainerStart opens a result container in the sink.
type ContainerStart struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ContainerEnd closes a result container in the sink.
type ContainerEnd struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

// Wire tags for the event channel.
const (
	TypeStepStart         = "step-start"
	TypeStepStop          = "step-stop"
	TypeAttachmentContent = "attachment-content"
	TypeMetadata          = "metadata"
	TypeContainerStart    = "container-start"
	TypeContainerEnd      = "container-end"
)

func (StepStart) Type() string         { return TypeStepStart }
func (StepStop) Type() string          { return TypeStepStop }
func (AttachmentContent) Type() string { return TypeAttachmentContent }
func (Metadata) Type() string          { return TypeMetadata }
func (ContainerStart) Type() string    { return TypeContainerStart }
func (ContainerEnd) Type() string      { return TypeContainerEnd }

func (StepStart) kind()         {}
func (StepStop) kind()          {}
func (AttachmentContent) kind() {}
func (Metadata) kind()          {}
func (ContainerStart) kind()    {}
func (ContainerEnd) kind()      {}

// BufferedEvent is an event captured outside an active result container,
// stamped with its capture time. Insertion order defines nesting and replay
// order.
type BufferedEvent struct {
	Event      Event
	CapturedAt time.Time
}
