// Package lifecycle tracks the moving window of open suites, hooks and
// result containers so the reporter can decide where inbound evidence
// belongs. Pure bookkeeping, no I/O.
package lifecycle

// HookKind distinguishes the suite-level hook flavors.
type HookKind string

const (
	HookBeforeAll  HookKind = "before all"
	HookAfterAll   HookKind = "after all"
	HookBeforeEach HookKind = "before each"
	HookAfterEach  HookKind = "after each"
	HookUnknown    HookKind = ""
)

// Tracker maintains the set of currently open scopes and the two mode flags
// the classifier routes on. All mutations arrive from lifecycle callbacks;
// none of the operations can fail.
type Tracker struct {
	openSuites  map[string]struct{}
	openHooks   map[string]struct{}
	openResults map[string]struct{}

	inSetupHook bool
	hookScope   string
	hookKind    HookKind

	// hasRealResultStarted is monotonic: once a real result container has
	// opened it never reverts within the process.
	hasRealResultStarted bool
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		openSuites:  make(map[string]struct{}),
		openHooks:   make(map[string]struct{}),
		openResults: make(map[string]struct{}),
	}
}

// SuiteOpened records a suite scope opening.
func (t *Tracker) SuiteOpened(id string) {
	t.openSuites[id] = struct{}{}
}

// SuiteClosed records a suite scope closing.
func (t *Tracker) SuiteClosed(id string) {
	delete(t.openSuites, id)
}

// HookOpened records a hook scope opening.
func (t *Tracker) HookOpened(id string) {
	t.openHooks[id] = struct{}{}
}

// HookClosed records a hook scope closing.
func (t *Tracker) HookClosed(id string) {
	delete(t.openHooks, id)
}

// ResultOpened records a real result container opening. This flips the
// monotonic hasRealResultStarted flag.
func (t *Tracker) ResultOpened(id string) {
	t.openResults[id] = struct{}{}
	t.hasRealResultStarted = true
}

// ResultClosed records a result container closing.
func (t *Tracker) ResultClosed(id string) {
	delete(t.openResults, id)
}

// EnterSetupHook marks the start of a before-all/after-all hook callback.
func (t *Tracker) EnterSetupHook(scope string, kind HookKind) {
	t.inSetupHook = true
	t.hookScope = scope
	t.hookKind = kind
}

// ExitSetupHook marks the end of the current setup hook callback.
func (t *Tracker) ExitSetupHook() {
	t.inSetupHook = false
}

// InSetupHook reports whether a before-all/after-all hook callback is
// currently between start and end.
func (t *Tracker) InSetupHook() bool {
	return t.inSetupHook
}

// RealResultStarted reports whether any real result container has ever
// opened in this process.
func (t *Tracker) RealResultStarted() bool {
	return t.hasRealResultStarted
}

// HookScope returns the suite scope of the most recent setup hook.
func (t *Tracker) HookScope() string {
	return t.hookScope
}

// HookKind returns the kind of the most recent setup hook.
func (t *Tracker) HookKind() HookKind {
	return t.hookKind
}

// IdleWindow reports whether no suite, hook or result is open and no real
// result has started. Evidence produced in this window has no natural
// container and is routed to the global buffer.
func (t *Tracker) IdleWindow() bool {
	return len(t.openSuites) == 0 &&
		len(t.openHooks) == 0 &&
		len(t.openResults) == 0 &&
		!t.inSetupHook &&
		!t.hasRealResultStarted
}
