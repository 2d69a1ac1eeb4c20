// Package bridge synthesizes attachment events for driver commands that do
// not emit one themselves during the setup window.
package bridge

import (
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/reportoor/pkg/events"
)

// DefaultScreenshotCommand is the driver command the bridge listens for.
const DefaultScreenshotCommand = "takeScreenshot"

// Target is where synthesized attachment events land. The reporter
// implements it: events go to whichever buffer is currently open.
type Target interface {
	// CaptureWindowOpen reports whether the idle-window or setup-hook
	// predicate is true.
	CaptureWindowOpen() bool

	// AppendCaptured appends a synthesized event to the open buffer.
	AppendCaptured(ev events.Event)
}

// Bridge listens for post-command notifications from the driver.
type Bridge struct {
	log     logrus.FieldLogger
	command string
	target  Target
}

// NewBridge creates a bridge for the given screenshot command name. An empty
// command falls back to DefaultScreenshotCommand.
func NewBridge(log logrus.FieldLogger, command string, target Target) *Bridge {
	if command == "" {
		command = DefaultScreenshotCommand
	}

	return &Bridge{
		log:     log.WithField("component", "screenshot-bridge"),
		command: command,
		target:  target,
	}
}

// OnCommandResult handles one post-command notification. It only acts while
// the capture window is open and the command matches the screenshot command;
// malformed payloads are dropped, never propagated.
func (b *Bridge) OnCommandResult(command string, result json.RawMessage) {
	if command != b.command || !b.target.CaptureWindowOpen() {
		return
	}

	payload, ok := extractPayload(result)
	if !ok {
		b.log.WithField("command", command).Debug("Dropping screenshot with unrecognized payload shape")

		return
	}

	b.target.AppendCaptured(events.AttachmentContent{
		Name:        "screenshot",
		ContentType: "image/png",
		Encoding:    "base64",
		Body:        payload,
	})
}

// extractPayload accepts both result shapes the driver transport produces:
// a bare base64 string or a {"value": "..."} wrapper.
func extractPayload(result json.RawMessage) (string, bool) {
	if len(result) == 0 {
		return "", false
	}

	var bare string
	if err := json.Unmarshal(result, &bare); err == nil && bare != "" {
		return bare, true
	}

	var wrapped struct {
		Value string `json:"value"`
	}

	if err := json.Unmarshal(result, &wrapped); err == nil && wrapped.Value != "" {
		return wrapped.Value, true
	}

	return "", false
}
