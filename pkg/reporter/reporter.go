// Package reporter implements the evidence buffering and replay engine. It
// classifies inbound evidence against the lifecycle window, buffers whatever
// has no active result container, and on lifecycle transitions decides each
// buffer's disposition: discard, replay as a passing fixture, or materialize
// a synthetic result.
package reporter

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/reportoor/pkg/events"
	"github.com/ethpandaops/reportoor/pkg/lifecycle"
	"github.com/ethpandaops/reportoor/pkg/sink"
	"github.com/ethpandaops/reportoor/pkg/stream"
	"github.com/ethpandaops/reportoor/pkg/synth"
)

// FixtureName is the name of the passing fixture that carries replayed
// pre-lifecycle evidence.
const FixtureName = "global setup"

// Reporter consumes lifecycle callbacks and structured events from the
// runner. One instance exists per worker process; all callbacks arrive
// sequenced from the host, so no locking is involved.
type Reporter interface {
	Start(ctx context.Context) error
	Stop() error

	// Lifecycle callbacks.
	OnSuiteStart(name string)
	OnSuiteEnd(name string)
	OnHookStart(title string)
	OnHookEnd(title string, hookErr error)
	OnResultStart(id, name string)
	OnResultEnd(id string, status events.Status)

	// OnEvent classifies one event from the structured channel.
	OnEvent(ev events.Event)

	// OnProcessExit runs the last-resort materialization. It is safe to
	// call from an exit handler and runs at most once per process.
	OnProcessExit()

	// InstallOutputTap chains the output multiplexer in front of the given
	// writer and returns the writer to install in its place.
	InstallOutputTap(downstream io.Writer) io.Writer

	// CaptureWindowOpen and AppendCaptured let the screenshot bridge feed
	// synthesized events into the open buffer.
	CaptureWindowOpen() bool
	AppendCaptured(ev events.Event)
}

// Config for the reporter.
type Config struct {
	// Labels are applied to every synthetic result this reporter produces.
	Labels map[string]string
}

// NewReporter creates a reporter writing through the given sink.
func NewReporter(log logrus.FieldLogger, cfg *Config, snk sink.Sink) Reporter {
	if cfg == nil {
		cfg = &Config{}
	}

	return &reporter{
		log:          log.WithField("component", "reporter"),
		cfg:          cfg,
		sink:         snk,
		tracker:      lifecycle.NewTracker(),
		materializer: synth.NewMaterializer(log),
	}
}

type reporter struct {
	log          logrus.FieldLogger
	cfg          *Config
	sink         sink.Sink
	tracker      *lifecycle.Tracker
	materializer *synth.Materializer
	mux          *stream.Multiplexer

	globalBuf events.Buffer
	hookBuf   events.Buffer

	// isFlushing is held for the full duration of any replay pass so events
	// emitted during replay are not fed back into a buffer.
	isFlushing bool

	// globalReplayed marks the global buffer's one-time fixture replay.
	globalReplayed bool

	// exitRan guards the process-exit fallback against double firing.
	exitRan bool

	lastHookErr error
}

// Ensure interface compliance.
var _ Reporter = (*reporter)(nil)

// Start is part of the service lifecycle; the reporter has no resources to
// acquire.
func (r *reporter) Start(_ context.Context) error {
	r.log.Debug("Reporter started")

	return nil
}

// Stop runs the process-exit fallback if it has not fired yet.
func (r *reporter) Stop() error {
	r.OnProcessExit()

	r.log.Debug("Reporter stopped")

	return nil
}

// InstallOutputTap wraps downstream with the output multiplexer. Installing
// twice returns the already installed layer, keeping its accumulated text.
func (r *reporter) InstallOutputTap(downstream io.Writer) io.Writer {
	if r.mux != nil {
		return r.mux
	}

	r.mux = stream.Wrap(r.log, downstream,
		func() bool {
			return r.tracker.InSetupHook() || !r.tracker.RealResultStarted()
		},
		r.tracker.RealResultStarted,
	)

	return r.mux
}

// OnSuiteStart replays pending pre-lifecycle evidence, then opens the suite
// scope.
func (r *reporter) OnSuiteStart(name string) {
	r.replayGlobalFixture()
	r.tracker.SuiteOpened(name)
}

// OnSuiteEnd closes the suite scope.
func (r *reporter) OnSuiteEnd(name string) {
	r.tracker.SuiteClosed(name)
}

// OnHookStart opens the hook scope and, for before-all/after-all hooks,
// enters the setup-hook window.
func (r *reporter) OnHookStart(title string) {
	r.tracker.HookOpened(title)

	if kind, scope := lifecycle.ParseHookTitle(title); lifecycle.IsSetupHook(kind) {
		r.tracker.EnterSetupHook(scope, kind)
	}
}

// OnHookEnd closes the hook scope and decides the hook buffer's disposition.
func (r *reporter) OnHookEnd(title string, hookErr error) {
	r.tracker.HookClosed(title)

	kind, scope := lifecycle.ParseHookTitle(title)
	if !lifecycle.IsSetupHook(kind) {
		return
	}

	r.tracker.ExitSetupHook()

	switch {
	case hookErr == nil:
		// Hook passed: the sink's own fixture handling covers the evidence.
		r.hookBuf.Clear()
	case !r.tracker.RealResultStarted():
		r.lastHookErr = hookErr
		r.materializeHookFailure(scope, kind, hookErr)
	default:
		// A setup hook cannot fail after a real result has started in this
		// model; treat as discard.
		r.log.WithFields(logrus.Fields{
			"hook":  title,
			"scope": scope,
		}).WithError(hookErr).Warn("Setup hook failed after a real result started, discarding buffer")

		r.hookBuf.Clear()
	}
}

// OnResultStart replays pending pre-lifecycle evidence so the fixture lands
// before the result's own steps, then opens the result container.
func (r *reporter) OnResultStart(id, _ string) {
	r.replayGlobalFixture()
	r.tracker.ResultOpened(id)
}

// OnResultEnd closes the result container.
func (r *reporter) OnResultEnd(id string, _ events.Status) {
	r.tracker.ResultClosed(id)
}

// OnEvent routes one inbound event: dropped while a replay pass is running,
// buffered while no container can hold it, passed straight through
// otherwise. Normal events are never delayed.
func (r *reporter) OnEvent(ev events.Event) {
	if r.isFlushing {
		return
	}

	switch {
	case r.tracker.IdleWindow():
		r.globalBuf.Append(ev)
	case r.tracker.InSetupHook():
		r.hookBuf.Append(ev)
	default:
		if err := r.sink.Emit(ev); err != nil {
			r.log.WithField("event", ev.Type()).WithError(err).Debug("Sink rejected pass-through event")
		}
	}
}

// CaptureWindowOpen implements bridge.Target.
func (r *reporter) CaptureWindowOpen() bool {
	return r.tracker.IdleWindow() || r.tracker.InSetupHook()
}

// AppendCaptured implements bridge.Target: synthesized events land in
// whichever buffer is currently open.
func (r *reporter) AppendCaptured(ev events.Event) {
	switch {
	case r.tracker.InSetupHook():
		r.hookBuf.Append(ev)
	case r.tracker.IdleWindow():
		r.globalBuf.Append(ev)
	}
}

// replayGlobalFixture replays the global buffer as a passing fixture
// attached to the next result. Idempotent: repeated suite-start or
// result-start callbacks replay at most once per process.
func (r *reporter) replayGlobalFixture() {
	if r.globalBuf.Len() == 0 || r.tracker.RealResultStarted() || r.globalReplayed {
		return
	}

	r.globalReplayed = true

	r.isFlushing = true
	defer func() { r.isFlushing = false }()

	id := uuid.NewString()
	items := r.globalBuf.Drain()

	r.emit(events.ContainerStart{ID: id, Name: FixtureName})

	for _, item := range items {
		r.emit(item.Event)
	}

	r.emit(events.ContainerEnd{ID: id, Status: events.StatusPassed})

	r.log.WithField("events", len(items)).Debug("Replayed pre-lifecycle evidence as fixture")
}

// materializeHookFailure builds and persists a synthetic result for a failed
// setup hook.
func (r *reporter) materializeHookFailure(scope string, kind lifecycle.HookKind, hookErr error) {
	r.isFlushing = true
	defer func() { r.isFlushing = false }()

	if scope == "" {
		scope = "global"
	}

	res := r.materializer.Build(synth.Input{
		Name:        fmt.Sprintf("%s: %s failure", scope, kind),
		Status:      events.StatusBroken,
		Message:     hookErr.Error(),
		Events:      r.hookBuf.Drain(),
		ConsoleText: r.takeCapturedOutput(),
		Labels:      r.syntheticLabels(string(kind)),
	})

	if err := r.sink.WriteResult(res); err != nil {
		r.log.WithError(err).Warn("Failed to persist synthetic hook failure result")
	} else {
		r.log.WithFields(logrus.Fields{
			"result": res.Name,
			"scope":  scope,
		}).Info("Materialized synthetic result for failed setup hook")
	}
}

func (r *reporter) emit(ev events.Event) {
	if err := r.sink.Emit(ev); err != nil {
		r.log.WithField("event", ev.Type()).WithError(err).Warn("Failed to emit replayed event")
	}
}

func (r *reporter) takeCapturedOutput() string {
	if r.mux == nil {
		return ""
	}

	return r.mux.TakeCaptured()
}

func (r *reporter) syntheticLabels(hookKind string) map[string]string {
	labels := map[string]string{"synthetic": "true"}
	if hookKind != "" {
		labels["hook"] = hookKind
	}

	for k, v := range r.cfg.Labels {
		labels[k] = v
	}

	return labels
}
