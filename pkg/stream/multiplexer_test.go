package stream

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMux(downstream *bytes.Buffer, capturing, started *bool) *Multiplexer {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	return Wrap(log, downstream,
		func() bool { return *capturing },
		func() bool { return *started },
	)
}

func TestWrapIsIdempotent(t *testing.T) {
	var downstream bytes.Buffer

	capturing, started := true, false
	m := newTestMux(&downstream, &capturing, &started)

	log := logrus.New()
	again := Wrap(log, m, nil, nil)
	assert.Same(t, m, again, "wrapping an installed multiplexer returns it unchanged")
}

func TestWriteAlwaysForwardsDownstream(t *testing.T) {
	var downstream bytes.Buffer

	capturing, started := false, false
	m := newTestMux(&downstream, &capturing, &started)

	n, err := m.Write([]byte("plain output\n"))
	require.NoError(t, err)
	assert.Equal(t, len("plain output\n"), n)
	assert.Equal(t, "plain output\n", downstream.String())
	assert.Empty(t, m.Captured(), "nothing accumulated outside the capture window")
}

func TestCaptureWindowAccumulates(t *testing.T) {
	var downstream bytes.Buffer

	capturing, started := true, false
	m := newTestMux(&downstream, &capturing, &started)

	_, err := m.Write([]byte("hook line 1\n"))
	require.NoError(t, err)
	_, err = m.WriteString("hook line 2\n")
	require.NoError(t, err)

	assert.Equal(t, "hook line 1\nhook line 2\n", m.Captured())
	assert.Equal(t, "hook line 1\nhook line 2\n", downstream.String(),
		"capture multiplexes, it does not swallow")
}

func TestFlushOnFirstRealWrite(t *testing.T) {
	var downstream bytes.Buffer

	capturing, started := true, false
	m := newTestMux(&downstream, &capturing, &started)

	_, err := m.Write([]byte("setup noise\n"))
	require.NoError(t, err)

	// A real result starts; the next write triggers the bracketed flush.
	started = true
	capturing = false

	_, err = m.Write([]byte("test output\n"))
	require.NoError(t, err)

	out := downstream.String()
	beginIdx := strings.Index(out, BeginMarker)
	endIdx := strings.Index(out, EndMarker)
	testIdx := strings.Index(out, "test output")

	require.GreaterOrEqual(t, beginIdx, 0)
	require.Greater(t, endIdx, beginIdx)
	assert.Greater(t, testIdx, endIdx, "bracketed block emitted before the triggering write")
	assert.Contains(t, out[beginIdx:endIdx], "setup noise")

	// Flush runs exactly once.
	_, err = m.Write([]byte("more output\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(downstream.String(), BeginMarker))
}

func TestFlushSkipsOwnMarkers(t *testing.T) {
	var downstream bytes.Buffer

	capturing, started := true, false
	m := newTestMux(&downstream, &capturing, &started)

	_, err := m.Write([]byte("captured\n"))
	require.NoError(t, err)

	started = true
	capturing = false

	// A marker line must not count as the first real write.
	_, err = m.Write([]byte(BeginMarker + "\n"))
	require.NoError(t, err)
	assert.NotContains(t, downstream.String(), "captured\n"+EndMarker,
		"marker write alone does not flush")
	assert.Equal(t, "captured", m.Captured()[:8])

	_, err = m.Write([]byte("real write\n"))
	require.NoError(t, err)
	assert.Contains(t, downstream.String(), EndMarker)
	assert.Empty(t, m.Captured())
}

func TestCaptureDuringLateSetupHook(t *testing.T) {
	var downstream bytes.Buffer

	capturing, started := false, true
	m := newTestMux(&downstream, &capturing, &started)

	_, err := m.Write([]byte("test output\n"))
	require.NoError(t, err)
	assert.Empty(t, m.Captured())

	// A setup hook opens after the first real result; its output must still
	// accumulate even though the flush already ran.
	capturing = true

	_, err = m.Write([]byte("teardown hook line\n"))
	require.NoError(t, err)
	assert.Equal(t, "teardown hook line\n", m.Captured())
	assert.Contains(t, downstream.String(), "teardown hook line\n")
}

func TestFlushWithEmptyBufferEmitsNothing(t *testing.T) {
	var downstream bytes.Buffer

	capturing, started := false, true
	m := newTestMux(&downstream, &capturing, &started)

	_, err := m.Write([]byte("only output\n"))
	require.NoError(t, err)
	assert.Equal(t, "only output\n", downstream.String())
	assert.NotContains(t, downstream.String(), BeginMarker)
}

func TestTakeCaptured(t *testing.T) {
	var downstream bytes.Buffer

	capturing, started := true, false
	m := newTestMux(&downstream, &capturing, &started)

	_, err := m.Write([]byte("a"))
	require.NoError(t, err)

	assert.Equal(t, "a", m.TakeCaptured())
	assert.Empty(t, m.Captured())
}
