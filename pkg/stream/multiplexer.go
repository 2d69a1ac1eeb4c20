// Package stream taps process-level output streams so console text produced
// before any result container exists can be recovered later. The multiplexer
// is one layer in a decorator chain of writers: it always forwards writes to
// whatever was installed before it and never replaces or reorders them.
package stream

import (
	"bytes"
	"io"

	"github.com/sirupsen/logrus"
)

const (
	// BeginMarker brackets the start of replayed hook output.
	BeginMarker = "----- begin hook output -----"

	// EndMarker brackets the end of replayed hook output.
	EndMarker = "----- end hook output -----"
)

// Multiplexer conditionally accumulates written text into a side buffer
// while the pre-test window or a setup hook is open, and always forwards the
// original write unmodified to the downstream writer.
type Multiplexer struct {
	log        logrus.FieldLogger
	downstream io.Writer

	// capturing reports whether the capture window is open (setup hook
	// active or no real result started yet).
	capturing func() bool

	// realResultStarted reports whether a real result container has opened.
	realResultStarted func() bool

	buf     bytes.Buffer
	flushed bool
}

var _ io.Writer = (*Multiplexer)(nil)
var _ io.StringWriter = (*Multiplexer)(nil)

// Wrap installs a multiplexer in front of downstream. The previous writer is
// stored and every write is forwarded to it, so interceptors already chained
// onto the stream keep working. If downstream is already a Multiplexer the
// existing layer is returned unchanged (installation is idempotent).
func Wrap(
	log logrus.FieldLogger,
	downstream io.Writer,
	capturing func() bool,
	realResultStarted func() bool,
) *Multiplexer {
	if m, ok := downstream.(*Multiplexer); ok {
		return m
	}

	return &Multiplexer{
		log:               log.WithField("component", "stream-multiplexer"),
		downstream:        downstream,
		capturing:         capturing,
		realResultStarted: realResultStarted,
	}
}

// Write forwards p downstream unmodified and, while the capture window is
// open, also appends it to the side buffer. The first write observed after a
// real result has started triggers the bracketed flush, unless the write is
// one of our own markers.
func (m *Multiplexer) Write(p []byte) (int, error) {
	if m.realResultStarted() && !m.flushed && !isMarker(p) {
		m.flush()
	}

	if m.capturing() {
		m.buf.Write(p)
	}

	return m.downstream.Write(p)
}

// WriteString accepts the string call shape of the write API.
func (m *Multiplexer) WriteString(s string) (int, error) {
	return m.Write([]byte(s))
}

// Captured returns the text accumulated so far without consuming it.
func (m *Multiplexer) Captured() string {
	return m.buf.String()
}

// TakeCaptured returns the accumulated text and clears the side buffer.
func (m *Multiplexer) TakeCaptured() string {
	s := m.buf.String()
	m.buf.Reset()

	return s
}

// flush emits the accumulated text as a bracketed block through the
// downstream writer, then clears the buffer. Runs at most once.
func (m *Multiplexer) flush() {
	m.flushed = true

	if m.buf.Len() == 0 {
		return
	}

	block := BeginMarker + "\n" + m.buf.String()
	if !bytes.HasSuffix(m.buf.Bytes(), []byte("\n")) {
		block += "\n"
	}

	block += EndMarker + "\n"

	if _, err := io.WriteString(m.downstream, block); err != nil {
		m.log.WithError(err).Debug("Failed to flush captured hook output")
	}

	m.buf.Reset()
}

// isMarker filters out the multiplexer's own diagnostic markers so a flush
// cannot trigger on them and recurse.
func isMarker(p []byte) bool {
	trimmed := bytes.TrimSpace(p)

	return bytes.Equal(trimmed, []byte(BeginMarker)) ||
		bytes.Equal(trimmed, []byte(EndMarker)) ||
		bytes.HasPrefix(trimmed, []byte(BeginMarker))
}
