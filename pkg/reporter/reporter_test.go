package reporter

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/reportoor/pkg/events"
	"github.com/ethpandaops/reportoor/pkg/sink"
)

// recordingSink records everything the reporter sends to the sink.
type recordingSink struct {
	emitted []events.Event
	written []*sink.Result

	// onEmit, when set, is invoked for every Emit before recording. Used to
	// simulate a sink that re-triggers the reporter synchronously.
	onEmit func(ev events.Event)
}

func (s *recordingSink) Start(_ context.Context) error { return nil }
func (s *recordingSink) Stop() error                   { return nil }

func (s *recordingSink) Emit(ev events.Event) error {
	if s.onEmit != nil {
		s.onEmit(ev)
	}

	s.emitted = append(s.emitted, ev)

	return nil
}

func (s *recordingSink) WriteResult(res *sink.Result) error {
	s.written = append(s.written, res)

	return nil
}

func newTestReporter(snk sink.Sink) Reporter {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	return NewReporter(log, nil, snk)
}

func emittedTypes(evs []events.Event) []string {
	types := make([]string, 0, len(evs))
	for _, ev := range evs {
		types = append(types, ev.Type())
	}

	return types
}

// Scenario: a setup hook runs steps and throws.
func TestFailedSetupHookMaterializesSyntheticResult(t *testing.T) {
	snk := &recordingSink{}
	r := newTestReporter(snk)

	var console bytes.Buffer

	out := r.InstallOutputTap(&console)

	r.OnSuiteStart("login suite")
	r.OnHookStart(`"before all" hook for "login suite"`)

	r.OnEvent(events.StepStart{Name: "connect db"})
	r.OnEvent(events.StepStop{Status: events.StatusPassed})
	r.OnEvent(events.StepStart{Name: "seed fixtures"})
	r.OnEvent(events.StepStop{Status: events.StatusFailed})

	_, err := out.Write([]byte("Error: database unreachable\n"))
	require.NoError(t, err)

	r.OnHookEnd(`"before all" hook for "login suite"`, errors.New("database unreachable"))

	assert.Empty(t, snk.emitted, "hook evidence is materialized, not emitted")
	require.Len(t, snk.written, 1)

	res := snk.written[0]
	assert.Equal(t, "login suite: before all failure", res.Name)
	assert.Equal(t, events.StatusBroken, res.Status)
	require.NotNil(t, res.StatusDetails)
	assert.Equal(t, "database unreachable", res.StatusDetails.Message)

	require.Len(t, res.Steps, 2)
	assert.Equal(t, "connect db", res.Steps[0].Name)
	assert.Equal(t, "seed fixtures", res.Steps[1].Name)

	for _, step := range res.Steps {
		assert.NotZero(t, step.Stop, "all steps are closed")
	}

	require.Len(t, res.Attachments, 1)
	assert.Contains(t, string(res.Attachments[0].Body), "database unreachable")
}

// Scenario: global pre-lifecycle evidence replays as a passing fixture.
func TestGlobalBufferReplaysAsFixture(t *testing.T) {
	snk := &recordingSink{}
	r := newTestReporter(snk)

	body := base64.StdEncoding.EncodeToString([]byte("img"))

	r.OnEvent(events.StepStart{Name: "launch browser"})
	r.OnEvent(events.StepStop{Status: events.StatusPassed})
	r.OnEvent(events.StepStart{Name: "load session"})
	r.OnEvent(events.StepStop{Status: events.StatusPassed})
	r.AppendCaptured(events.AttachmentContent{Name: "screenshot", ContentType: "image/png", Body: body})

	assert.Empty(t, snk.emitted, "idle-window evidence is buffered, not emitted")

	r.OnSuiteStart("first suite")

	assert.Equal(t, []string{
		events.TypeContainerStart,
		events.TypeStepStart,
		events.TypeStepStop,
		events.TypeStepStart,
		events.TypeStepStop,
		events.TypeAttachmentContent,
		events.TypeContainerEnd,
	}, emittedTypes(snk.emitted), "replay preserves capture order, bracketed by the fixture container")

	start := snk.emitted[0].(events.ContainerStart)
	end := snk.emitted[len(snk.emitted)-1].(events.ContainerEnd)
	assert.Equal(t, FixtureName, start.Name)
	assert.Equal(t, start.ID, end.ID)
	assert.Equal(t, events.StatusPassed, end.Status)
	assert.Empty(t, snk.written, "fixture replay goes through the emission path")
}

func TestGlobalReplayIsIdempotent(t *testing.T) {
	snk := &recordingSink{}
	r := newTestReporter(snk)

	r.OnEvent(events.StepStart{Name: "warmup"})
	r.OnEvent(events.StepStop{Status: events.StatusPassed})

	r.OnSuiteStart("suite-1")
	count := len(snk.emitted)
	require.NotZero(t, count)

	// Repeated suite starts and the first result start must not replay again.
	r.OnSuiteStart("suite-2")
	r.OnResultStart("r1", "first test")

	assert.Len(t, snk.emitted, count, "buffers are consumed exactly once per disposition")
}

// Scenario: a setup hook passes.
func TestPassedSetupHookDiscardsBuffer(t *testing.T) {
	snk := &recordingSink{}
	r := newTestReporter(snk)

	r.OnSuiteStart("suite")
	r.OnHookStart(`"before all" hook for "suite"`)
	r.OnEvent(events.StepStart{Name: "setup work"})
	r.OnEvent(events.StepStop{Status: events.StatusPassed})
	r.OnHookEnd(`"before all" hook for "suite"`, nil)

	assert.Empty(t, snk.written, "no synthetic record for a passing hook")
	assert.Empty(t, snk.emitted, "hook evidence is folded into the sink's own fixture handling")

	// Normal per-test evidence is untouched.
	r.OnResultStart("r1", "first test")
	r.OnEvent(events.StepStart{Name: "test step"})

	require.Len(t, snk.emitted, 1)
	assert.Equal(t, events.TypeStepStart, snk.emitted[0].Type())

	// The exit fallback has nothing left to do.
	r.OnProcessExit()
	assert.Empty(t, snk.written)
}

// Scenario: the process exits with buffered evidence and no result.
func TestProcessExitFallback(t *testing.T) {
	snk := &recordingSink{}
	r := newTestReporter(snk)

	r.OnEvent(events.StepStart{Name: "bootstrap"})
	r.OnEvent(events.StepStop{Status: events.StatusFailed})

	r.OnProcessExit()
	r.OnProcessExit()

	require.Len(t, snk.written, 1, "exit fallback runs at most once")

	res := snk.written[0]
	assert.Equal(t, events.StatusBroken, res.Status)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, "bootstrap", res.Steps[0].Name)
	require.NotNil(t, res.StatusDetails)
	assert.Equal(t, genericExitMessage, res.StatusDetails.Message)
}

func TestProcessExitMessagePriority(t *testing.T) {
	t.Run("tracked hook error wins", func(t *testing.T) {
		snk := &recordingSink{}
		r := newTestReporter(snk)

		r.OnHookStart(`"before all" hook for "suite"`)
		r.OnEvent(events.StepStart{Name: "setup"})
		r.OnHookEnd(`"before all" hook for "suite"`, errors.New("boom"))

		// The hook failure already materialized; seed new evidence so the
		// exit fallback has something to persist.
		r.OnEvent(events.Metadata{Key: "k", Value: "v"})
		r.OnProcessExit()

		require.Len(t, snk.written, 2)
		assert.Equal(t, "boom", snk.written[1].StatusDetails.Message)
	})

	t.Run("console pattern match when no tracked error", func(t *testing.T) {
		snk := &recordingSink{}
		r := newTestReporter(snk)

		var console bytes.Buffer

		out := r.InstallOutputTap(&console)
		_, err := out.Write([]byte("starting up\nTypeError: cannot read property\n"))
		require.NoError(t, err)

		r.OnProcessExit()

		require.Len(t, snk.written, 1)
		assert.Equal(t, "TypeError: cannot read property", snk.written[0].StatusDetails.Message)
	})
}

func TestProcessExitSkipsWhenRealResultStarted(t *testing.T) {
	snk := &recordingSink{}
	r := newTestReporter(snk)

	r.OnEvent(events.Metadata{Key: "k", Value: "v"})
	r.OnResultStart("r1", "test")

	r.OnProcessExit()

	// The metadata replayed as a fixture at result start; the fallback must
	// not produce a second record for it.
	assert.Empty(t, snk.written)
}

func TestNoCrossWindowLeakage(t *testing.T) {
	snk := &recordingSink{}
	r := newTestReporter(snk)

	r.OnSuiteStart("suite")
	r.OnResultStart("r1", "test")

	r.OnEvent(events.StepStart{Name: "live step"})
	r.OnEvent(events.StepStop{Status: events.StatusPassed})

	require.Len(t, snk.emitted, 2, "events with an active result pass straight through")

	r.OnResultEnd("r1", events.StatusPassed)
	r.OnEvent(events.Metadata{Key: "after", Value: "test"})

	assert.Len(t, snk.emitted, 3, "idle window never reopens after a real result")

	r.OnProcessExit()
	assert.Empty(t, snk.written)
}

func TestReentrantEmissionIsDropped(t *testing.T) {
	snk := &recordingSink{}
	r := newTestReporter(snk)

	// The sink synchronously re-triggers the reporter on every emission,
	// like a shared event bus would.
	snk.onEmit = func(ev events.Event) {
		r.OnEvent(ev)
	}

	r.OnEvent(events.StepStart{Name: "looped"})
	r.OnEvent(events.StepStop{Status: events.StatusPassed})

	r.OnSuiteStart("suite")

	// One container pair plus the two replayed events; the re-entrant
	// deliveries were dropped by the flushing guard instead of recursing or
	// re-entering a buffer.
	assert.Len(t, snk.emitted, 4)
}

func TestHookFailureAfterRealResultIsAnomalous(t *testing.T) {
	snk := &recordingSink{}
	r := newTestReporter(snk)

	r.OnSuiteStart("suite")
	r.OnResultStart("r1", "test")
	r.OnResultEnd("r1", events.StatusPassed)

	r.OnHookStart(`"after all" hook for "suite"`)
	r.OnEvent(events.StepStart{Name: "teardown"})
	r.OnHookEnd(`"after all" hook for "suite"`, errors.New("teardown broke"))

	assert.Empty(t, snk.written, "no synthetic record once a real result exists")
}

func TestStopRunsExitFallbackOnce(t *testing.T) {
	snk := &recordingSink{}
	r := newTestReporter(snk)

	require.NoError(t, r.Start(context.Background()))

	r.OnEvent(events.StepStart{Name: "orphaned"})

	require.NoError(t, r.Stop())
	r.OnProcessExit()

	assert.Len(t, snk.written, 1)
}

func TestInstallOutputTapIsIdempotent(t *testing.T) {
	snk := &recordingSink{}
	r := newTestReporter(snk)

	var console bytes.Buffer

	out := r.InstallOutputTap(&console)

	_, err := out.Write([]byte("early setup output\n"))
	require.NoError(t, err)

	// A second installation with the raw writer must return the existing
	// layer, not wrap a fresh one over the accumulated text.
	again := r.InstallOutputTap(&console)
	assert.Same(t, out, again)

	r.OnHookStart(`"before all" hook for "suite"`)
	r.OnHookEnd(`"before all" hook for "suite"`, errors.New("setup broke"))

	require.Len(t, snk.written, 1)
	require.Len(t, snk.written[0].Attachments, 1)
	assert.Contains(t, string(snk.written[0].Attachments[0].Body), "early setup output")
}

func TestCaptureWindowOpen(t *testing.T) {
	snk := &recordingSink{}
	r := newTestReporter(snk)

	assert.True(t, r.CaptureWindowOpen(), "idle window is a capture window")

	r.OnSuiteStart("suite")
	assert.False(t, r.CaptureWindowOpen())

	r.OnHookStart(`"before all" hook for "suite"`)
	assert.True(t, r.CaptureWindowOpen(), "setup hook is a capture window")

	r.OnHookEnd(`"before all" hook for "suite"`, nil)
	assert.False(t, r.CaptureWindowOpen())
}

func TestSetupHookEvidenceRoutesToHookBuffer(t *testing.T) {
	snk := &recordingSink{}
	r := newTestReporter(snk)

	r.OnSuiteStart("suite")
	r.OnHookStart(`"before all" hook for "suite"`)
	r.AppendCaptured(events.AttachmentContent{
		Name:        "screenshot",
		ContentType: "image/png",
		Body:        base64.StdEncoding.EncodeToString([]byte("png")),
	})
	r.OnHookEnd(`"before all" hook for "suite"`, errors.New("failed after screenshot"))

	require.Len(t, snk.written, 1)

	res := snk.written[0]
	require.Len(t, res.Steps, 1, "root attachment becomes a step-with-attachment")
	require.Len(t, res.Steps[0].Attachments, 1)
	assert.Equal(t, "screenshot", res.Steps[0].Attachments[0].Name)
}
