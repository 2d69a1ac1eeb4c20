package sink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/reportoor/pkg/events"
)

func TestStepBuilderNesting(t *testing.T) {
	b := NewStepBuilder()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	b.StartStep("outer", base)
	b.StartStep("inner", base.Add(time.Second))
	b.StopStep(events.StatusPassed, base.Add(2*time.Second))
	b.StopStep(events.StatusPassed, base.Add(3*time.Second))
	b.StartStep("sibling", base.Add(4*time.Second))
	b.StopStep(events.StatusFailed, base.Add(5*time.Second))

	steps := b.Close(events.StatusPassed)
	require.Len(t, steps, 2)

	outer := steps[0]
	assert.Equal(t, "outer", outer.Name)
	assert.Equal(t, events.StatusPassed, outer.Status)
	require.Len(t, outer.Steps, 1)
	assert.Equal(t, "inner", outer.Steps[0].Name)

	sibling := steps[1]
	assert.Equal(t, "sibling", sibling.Name)
	assert.Equal(t, events.StatusFailed, sibling.Status)

	// Relative order and timing are preserved.
	assert.Less(t, outer.Start, sibling.Start)
	assert.LessOrEqual(t, outer.Start, outer.Stop)
}

func TestStepBuilderClosesUnterminatedSteps(t *testing.T) {
	b := NewStepBuilder()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	b.StartStep("never closed", base)
	b.StartStep("also never closed", base.Add(time.Second))

	steps := b.Close(events.StatusBroken)
	require.Len(t, steps, 1)

	outer := steps[0]
	assert.Equal(t, events.StatusBroken, outer.Status)
	assert.Equal(t, ToMillis(base.Add(time.Second)), outer.Stop,
		"unterminated steps close at the last seen timestamp")
	require.Len(t, outer.Steps, 1)
	assert.Equal(t, events.StatusBroken, outer.Steps[0].Status)
}

func TestStepBuilderAttachmentPlacement(t *testing.T) {
	b := NewStepBuilder()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	// Attachment with no open step becomes a root-level step-with-attachment.
	b.Attach(Attachment{Name: "rootshot", ContentType: "image/png"}, base)

	b.StartStep("step", base.Add(time.Second))
	b.Attach(Attachment{Name: "stepshot", ContentType: "image/png"}, base.Add(2*time.Second))
	b.StopStep(events.StatusPassed, base.Add(3*time.Second))

	steps := b.Close(events.StatusPassed)
	require.Len(t, steps, 2)

	assert.Equal(t, "rootshot", steps[0].Name)
	require.Len(t, steps[0].Attachments, 1)

	require.Len(t, steps[1].Attachments, 1)
	assert.Equal(t, "stepshot", steps[1].Attachments[0].Name)
}

func TestStepBuilderStopWithoutStartIsIgnored(t *testing.T) {
	b := NewStepBuilder()

	b.StopStep(events.StatusPassed, time.Now())

	steps := b.Close(events.StatusPassed)
	assert.Empty(t, steps)
}
