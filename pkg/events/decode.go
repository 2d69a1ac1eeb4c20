package events

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire shape of a single event on the structured channel.
type Envelope struct {
	Kind string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Decode parses an envelope into its typed event.
func Decode(env Envelope) (Event, error) {
	switch env.Kind {
	case TypeStepStart:
		var ev StepStart
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("parsing step-start event: %w", err)
		}

		return ev, nil
	case TypeStepStop:
		var ev StepStop
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("parsing step-stop event: %w", err)
		}

		return ev, nil
	case TypeAttachmentContent:
		var ev AttachmentContent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("parsing attachment-content event: %w", err)
		}

		return ev, nil
	case TypeMetadata:
		var ev Metadata
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("parsing metadata event: %w", err)
		}

		return ev, nil
	case TypeContainerStart:
		var ev ContainerStart
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("parsing container-start event: %w", err)
		}

		return ev, nil
	case TypeContainerEnd:
		var ev ContainerEnd
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("parsing container-end event: %w", err)
		}

		return ev, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Kind)
	}
}

// Encode wraps a typed event back into its wire envelope.
func Encode(ev Event) (Envelope, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshaling %s event: %w", ev.Type(), err)
	}

	return Envelope{Kind: ev.Type(), Data: data}, nil
}
