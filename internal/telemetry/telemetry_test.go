package telemetry

import (
	"testing"

	"github.com/segmentio/analytics-go/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	msgs   []analytics.Message
	closed bool
}

func (f *fakeClient) Enqueue(m analytics.Message) error {
	f.msgs = append(f.msgs, m)
	return nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func TestDisabledLoggerDropsEvents(t *testing.T) {
	l := New("", t.TempDir(), true)
	l.LogUsage("buildDiskImage", map[string]interface{}{"success": true})
	assert.NoError(t, l.Close())

	var nilLogger *Logger
	nilLogger.LogUsage("pullImage", nil)
	assert.NoError(t, nilLogger.Close())
}

func TestLogUsage(t *testing.T) {
	fc := &fakeClient{}
	l := &Logger{client: fc, anonymousID: "anon"}

	l.LogUsage("buildDiskImage", map[string]interface{}{"type": "qcow2", "success": true})
	require.Len(t, fc.msgs, 1)

	track, ok := fc.msgs[0].(analytics.Track)
	require.True(t, ok)
	assert.Equal(t, "buildDiskImage", track.Event)
	assert.Equal(t, "anon", track.AnonymousId)
	assert.Equal(t, "qcow2", track.Properties["type"])
	assert.Equal(t, true, track.Properties["success"])

	require.NoError(t, l.Close())
	assert.True(t, fc.closed)
}

func TestAnonymousIDIsStable(t *testing.T) {
	dir := t.TempDir()
	first := anonymousID(dir)
	assert.NotEmpty(t, first)
	assert.Equal(t, first, anonymousID(dir))
}
