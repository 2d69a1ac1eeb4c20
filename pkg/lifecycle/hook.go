package lifecycle

import "strings"

// ParseHookTitle splits a runner hook title into its kind and suite scope.
// Runners encode both in the title string, e.g.
//
//	"before all" hook for "login suite"
//	"after each" hook in "checkout"
//
// Titles that do not quote a scope fall back to an empty scope, and titles
// without a recognized kind yield HookUnknown.
func ParseHookTitle(title string) (kind HookKind, scope string) {
	for _, k := range []HookKind{HookBeforeAll, HookAfterAll, HookBeforeEach, HookAfterEach} {
		if strings.Contains(title, string(k)) {
			kind = k

			break
		}
	}

	// The scope is the last quoted segment that is not the kind itself.
	parts := strings.Split(title, `"`)
	for i := len(parts) - 2; i > 0; i -= 2 {
		if HookKind(parts[i]) != kind {
			scope = parts[i]

			break
		}
	}

	return kind, scope
}

// IsSetupHook reports whether the kind runs outside any individual test's
// scope (before-all/after-all).
func IsSetupHook(kind HookKind) bool {
	return kind == HookBeforeAll || kind == HookAfterAll
}
