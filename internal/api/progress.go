package api

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/bootcforge/bootcforge/internal/build"
	"github.com/bootcforge/bootcforge/pkg/types"
)

// Tracker keeps the live progress of builds started through the API and
// fans it out to watchers.
type Tracker struct {
	mu     sync.Mutex
	builds map[string]*trackedBuild
	subs   map[int]chan types.BuildProgress
	next   int
}

type trackedBuild struct {
	progress types.BuildProgress
	cancel   context.CancelFunc // nil once the build returned
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		builds: make(map[string]*trackedBuild),
		subs:   make(map[int]chan types.BuildProgress),
	}
}

// Begin registers a build. It returns false if a build with the same id is
// still running.
func (t *Tracker) Begin(id, image string, cancel context.CancelFunc) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if b, ok := t.builds[id]; ok && b.cancel != nil {
		return false
	}
	b := &trackedBuild{
		progress: types.BuildProgress{ID: id, Image: image, Status: types.BuildStatusCreating},
		cancel:   cancel,
	}
	t.builds[id] = b
	t.publish(b.progress)
	return true
}

// Update records progress reported by the orchestrator.
func (t *Tracker) Update(p types.BuildProgress) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.builds[p.ID]
	if !ok {
		b = &trackedBuild{}
		t.builds[p.ID] = b
	}
	if p.Message == "" {
		p.Message = b.progress.Message
	}
	b.progress = p
	t.publish(p)
}

// Finish marks the build as returned with err. A build deleted while it ran
// is forgotten.
func (t *Tracker) Finish(id string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.builds[id]
	if !ok {
		return
	}
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	if errors.Is(err, build.ErrBuildDeleted) {
		delete(t.builds, id)
		return
	}

	p := &b.progress
	if err != nil {
		p.Status = types.BuildStatusError
		p.Message = err.Error()
	} else {
		p.Status = types.BuildStatusSuccess
		p.Percent = build.ProgressDone
	}
	t.publish(*p)
}

// Cancel cancels a running build. It returns false if no build with id is
// running.
func (t *Tracker) Cancel(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.builds[id]
	if !ok || b.cancel == nil {
		return false
	}
	b.cancel()
	return true
}

// Get returns the progress of the build with id.
func (t *Tracker) Get(id string) (types.BuildProgress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.builds[id]
	if !ok {
		return types.BuildProgress{}, false
	}
	return b.progress, true
}

// List returns the progress of every tracked build ordered by id.
func (t *Tracker) List() []types.BuildProgress {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]types.BuildProgress, 0, len(t.builds))
	for _, b := range t.builds {
		out = append(out, b.progress)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Subscribe returns a channel receiving every progress change. Slow
// subscribers miss updates. Call the returned func to unsubscribe.
func (t *Tracker) Subscribe() (<-chan types.BuildProgress, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.next
	t.next++
	ch := make(chan types.BuildProgress, 32)
	t.subs[id] = ch

	return ch, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if c, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(c)
		}
	}
}

// publish must be called with t.mu held.
func (t *Tracker) publish(p types.BuildProgress) {
	for _, ch := range t.subs {
		select {
		case ch <- p:
		default:
		}
	}
}
