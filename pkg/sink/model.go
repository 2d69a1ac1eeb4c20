// Package sink persists result containers and their evidence. It exposes the
// per-event emission path used during normal operation and the low-level
// WriteResult primitive used by the materialized fallback paths.
package sink

import (
	"time"

	"github.com/ethpandaops/reportoor/pkg/events"
)

// Label is a key/value annotation on a result. Keys should be unique within
// one result but need not be unique across results.
type Label struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Attachment references evidence content attached to a result or step.
// Source is the generated sibling file name; it is assigned when the result
// is persisted. Body holds the decoded content until then and is never
// serialized.
type Attachment struct {
	Name        string `json:"name"`
	Source      string `json:"source"`
	ContentType string `json:"type"`

	Body []byte `json:"-"`
}

// StatusDetails carries the user-visible failure information of a result.
type StatusDetails struct {
	Message string `json:"message,omitempty"`
	Trace   string `json:"trace,omitempty"`
}

// Step is one node in the nested step forest of a result.
type Step struct {
	Name        string        `json:"name"`
	Status      events.Status `json:"status"`
	Start       int64         `json:"start"`
	Stop        int64         `json:"stop"`
	Steps       []*Step       `json:"steps,omitempty"`
	Attachments []Attachment  `json:"attachments,omitempty"`
}

// Result is the persisted unit of record: one result container with its
// identity, outcome, step forest, attachments and labels. Timestamps are
// unix milliseconds. A Result is immutable once handed to WriteResult.
type Result struct {
	ID            string         `json:"uuid"`
	Name          string         `json:"name"`
	Status        events.Status  `json:"status"`
	StatusDetails *StatusDetails `json:"statusDetails,omitempty"`
	Start         int64          `json:"start"`
	Stop          int64          `json:"stop"`
	Steps         []*Step        `json:"steps,omitempty"`
	Attachments   []Attachment   `json:"attachments,omitempty"`
	Labels        []Label        `json:"labels,omitempty"`
}

// ToMillis converts a timestamp to the unix millisecond representation used
// in persisted results.
func ToMillis(t time.Time) int64 {
	return t.UnixMilli()
}
