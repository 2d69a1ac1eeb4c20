package reporter

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/reportoor/pkg/events"
	"github.com/ethpandaops/reportoor/pkg/synth"
)

// genericExitMessage is the fallback message when no structured error and no
// recognizable console error line are available.
const genericExitMessage = "setup failed before any test result was recorded"

// errorLinePattern matches typical runtime error lines in captured console
// text, used to derive a more specific message for the exit fallback.
var errorLinePattern = regexp.MustCompile(`(?m)^.*\b(?:[A-Za-z]*Error|FAIL(?:ED)?):\s+.+$`)

// OnProcessExit synthesizes one last result when the process ends with
// buffered evidence and no result container ever opened. The whole pass is
// synchronous file I/O; persistence failures are swallowed because raising
// here would mask the real failure. Guarded to run at most once.
func (r *reporter) OnProcessExit() {
	if r.exitRan {
		return
	}

	r.exitRan = true

	if r.tracker.RealResultStarted() {
		return
	}

	consoleText := r.takeCapturedOutput()

	buffered := append(r.globalBuf.Drain(), r.hookBuf.Drain()...)
	if len(buffered) == 0 && consoleText == "" {
		return
	}

	r.isFlushing = true
	defer func() { r.isFlushing = false }()

	name := FixtureName + " failure"
	if r.lastHookErr != nil && r.tracker.HookScope() != "" {
		name = r.tracker.HookScope() + ": " + string(r.tracker.HookKind()) + " failure"
	}

	res := r.materializer.Build(synth.Input{
		Name:        name,
		Status:      events.StatusBroken,
		Message:     r.deriveExitMessage(consoleText),
		Events:      buffered,
		ConsoleText: consoleText,
		Labels:      r.syntheticLabels(string(r.tracker.HookKind())),
	})

	if err := r.sink.WriteResult(res); err != nil {
		r.log.WithError(err).Warn("Failed to persist exit fallback result")

		return
	}

	r.log.WithFields(logrus.Fields{
		"result": res.Name,
		"events": len(buffered),
	}).Info("Materialized exit fallback result")
}

// deriveExitMessage picks the most specific available error: the tracked
// hook error, then a pattern-matched console line, then the generic message.
func (r *reporter) deriveExitMessage(consoleText string) string {
	if r.lastHookErr != nil {
		return r.lastHookErr.Error()
	}

	if line := errorLinePattern.FindString(consoleText); line != "" {
		return strings.TrimSpace(line)
	}

	return genericExitMessage
}
