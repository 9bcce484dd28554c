package build

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bootcforge/bootcforge/internal/podman"
)

func TestWaitRetriesExceeded(t *testing.T) {
	eng := newFakeEngine()
	w := &Watcher{Engine: eng, Interval: time.Millisecond, MaxRetries: 2, Timeout: time.Minute}

	err := w.Wait(context.Background(), "", "missing")
	assert.True(t, IsKind(err, KindContainerNotFoundRetriesExceeded), "got %v", err)
	assert.Equal(t, 2, eng.listCalls)
}

func TestWaitExitedZero(t *testing.T) {
	eng := newFakeEngine()
	eng.containers = []podman.PSEntry{{ID: "c1", State: "exited", Status: "Exited (0) 2 seconds ago"}}
	w := &Watcher{Engine: eng, Interval: time.Millisecond, MaxRetries: 2}

	assert.NoError(t, w.Wait(context.Background(), "", "c1"))
	assert.Equal(t, 1, eng.listCalls)
}

func TestWaitExitedNonZero(t *testing.T) {
	eng := newFakeEngine()
	eng.containers = []podman.PSEntry{{ID: "c1", State: "exited", Status: "Exited (1) 2 seconds ago"}}
	w := &Watcher{Engine: eng, Interval: time.Millisecond}

	err := w.Wait(context.Background(), "", "c1")
	assert.True(t, IsKind(err, KindContainerExitedNonZero), "got %v", err)
}

func TestWaitTimeout(t *testing.T) {
	eng := newFakeEngine()
	eng.containers = []podman.PSEntry{{ID: "c1", State: "running", Status: "Up 3 seconds"}}
	w := &Watcher{Engine: eng, Interval: 5 * time.Millisecond, Timeout: 30 * time.Millisecond}

	err := w.Wait(context.Background(), "", "c1")
	assert.True(t, IsKind(err, KindTimeout), "got %v", err)
}

func TestWaitCanceled(t *testing.T) {
	eng := newFakeEngine()
	eng.containers = []podman.PSEntry{{ID: "c1", State: "running"}}
	w := &Watcher{Engine: eng, Interval: 5 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	err := w.Wait(ctx, "", "c1")
	assert.True(t, IsKind(err, KindCanceled), "got %v", err)
}

func TestTimeoutMessage(t *testing.T) {
	w := &Watcher{}
	err := w.doneErr(context.Background(), 60*time.Minute)
	assert.EqualError(t, err, "Timeout after 60 minutes")
}
