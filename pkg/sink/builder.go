package sink

import (
	"time"

	"github.com/ethpandaops/reportoor/pkg/events"
)

// StepBuilder reconstructs a nested step forest from a flat sequence of
// step-start/step-stop/attachment events using an explicit open-step stack.
// The same builder serves live emission and buffered replay; insertion order
// of the fed events defines both nesting and sibling order.
type StepBuilder struct {
	roots []*Step
	stack []*Step

	lastSeen time.Time
}

// NewStepBuilder creates an empty builder.
func NewStepBuilder() *StepBuilder {
	return &StepBuilder{}
}

// StartStep pushes a new open step, attached as a child of the innermost
// open step or as a new root when the stack is empty.
func (b *StepBuilder) StartStep(name string, at time.Time) {
	b.touch(at)

	step := &Step{
		Name:  name,
		Start: ToMillis(at),
	}

	if top := b.top(); top != nil {
		top.Steps = append(top.Steps, step)
	} else {
		b.roots = append(b.roots, step)
	}

	b.stack = append(b.stack, step)
}

// StopStep pops and closes the innermost open step. A stop without a
// matching start is ignored.
func (b *StepBuilder) StopStep(status events.Status, at time.Time) {
	b.touch(at)

	top := b.top()
	if top == nil {
		return
	}

	top.Status = status
	top.Stop = ToMillis(at)
	b.stack = b.stack[:len(b.stack)-1]
}

// Attach adds an attachment to the innermost open step, or records it as a
// root-level step-with-attachment when no step is open.
func (b *StepBuilder) Attach(att Attachment, at time.Time) {
	b.touch(at)

	if top := b.top(); top != nil {
		top.Attachments = append(top.Attachments, att)

		return
	}

	b.roots = append(b.roots, &Step{
		Name:        att.Name,
		Status:      events.StatusPassed,
		Start:       ToMillis(at),
		Stop:        ToMillis(at),
		Attachments: []Attachment{att},
	})
}

// Close terminates the build. Steps still open are closed at the last seen
// timestamp rather than left open; steps that never saw a stop inherit the
// given status.
func (b *StepBuilder) Close(status events.Status) []*Step {
	end := b.lastSeen
	if end.IsZero() {
		end = time.Now()
	}

	for i := len(b.stack) - 1; i >= 0; i-- {
		step := b.stack[i]
		step.Stop = ToMillis(end)

		if step.Status == "" {
			step.Status = status
		}
	}

	b.stack = nil

	return b.roots
}

// Open reports how many steps are currently open.
func (b *StepBuilder) Open() int {
	return len(b.stack)
}

func (b *StepBuilder) top() *Step {
	if len(b.stack) == 0 {
		return nil
	}

	return b.stack[len(b.stack)-1]
}

func (b *StepBuilder) touch(at time.Time) {
	if at.After(b.lastSeen) {
		b.lastSeen = at
	}
}
