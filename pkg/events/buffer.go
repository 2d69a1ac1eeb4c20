package events

import "time"

// Buffer is an ordered sequence of buffered events. A buffer is appended to
// during its capture window and then consumed exactly once: either drained
// for replay or cleared without emission. It is owned by a single reporter
// instance and needs no locking.
type Buffer struct {
	items []BufferedEvent
}

// Append records an event at the current time.
func (b *Buffer) Append(ev Event) {
	b.AppendAt(ev, time.Now())
}

// AppendAt records an event with an explicit capture time.
func (b *Buffer) AppendAt(ev Event, at time.Time) {
	b.items = append(b.items, BufferedEvent{Event: ev, CapturedAt: at})
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int {
	return len(b.items)
}

// Drain moves all events out of the buffer and clears it. The returned slice
// is owned by the caller.
func (b *Buffer) Drain() []BufferedEvent {
	items := b.items
	b.items = nil

	return items
}

// Clear discards all buffered events without emission.
func (b *Buffer) Clear() {
	b.items = nil
}

// Bounds reconstructs the start/stop window covered by the buffer. For a
// non-empty buffer start is the earliest capture time and stop the latest.
// For an empty buffer both equal the call time.
func (b *Buffer) Bounds() (start, stop time.Time) {
	if len(b.items) == 0 {
		now := time.Now()

		return now, now
	}

	return BoundsOf(b.items)
}

// BoundsOf computes the start/stop window of an already drained event list.
// An empty list yields the call time for both bounds.
func BoundsOf(items []BufferedEvent) (start, stop time.Time) {
	if len(items) == 0 {
		now := time.Now()

		return now, now
	}

	start = items[0].CapturedAt
	stop = items[0].CapturedAt

	for _, it := range items[1:] {
		if it.CapturedAt.Before(start) {
			start = it.CapturedAt
		}

		if it.CapturedAt.After(stop) {
			stop = it.CapturedAt
		}
	}

	return start, stop
}
