package build

import (
	"strings"
	"sync"
)

// Marker maps a substring of the builder's log output to a progress percentage.
type Marker struct {
	Substring string
	Percent   int
}

// DefaultMarkers are osbuild stage names printed by bootc-image-builder. They
// are a heuristic: if the builder changes its output, progress just stops
// advancing until completion.
var DefaultMarkers = []Marker{
	{"org.osbuild.rpm", 8},
	{"org.osbuild.selinux", 25},
	{"org.osbuild.ostree.config", 48},
	{"org.osbuild.qemu", 59},
	{"Build complete!", 98},
}

// Orchestrator milestones.
const (
	ProgressPulled       = 4
	ProgressStaleRemoved = 5
	ProgressCreated      = 6
	ProgressWaiting      = 7
	ProgressDone         = 100
)

// ProgressState is a snapshot of one build attempt's progress.
type ProgressState struct {
	Log     string
	Percent int
	Done    bool
	Success bool
	Err     string
}

// Tap accumulates a container's log stream and derives progress from it.
// Write is called from the log stream goroutine; every other method may be
// called concurrently.
type Tap struct {
	markers    []Marker
	onProgress func(int)
	sink       func(string)

	mu      sync.Mutex
	log     strings.Builder
	percent int
	done    bool
	success bool
	err     string
}

// NewTap creates a tap. onProgress is invoked whenever the percentage
// increases; sink receives every chunk verbatim. Both may be nil.
func NewTap(markers []Marker, onProgress func(int), sink func(string)) *Tap {
	if markers == nil {
		markers = DefaultMarkers
	}
	return &Tap{markers: markers, onProgress: onProgress, sink: sink}
}

// Write consumes one chunk of log output.
func (t *Tap) Write(chunk string) {
	if chunk == "" {
		return
	}

	best := 0
	for _, m := range t.markers {
		if m.Percent > best && strings.Contains(chunk, m.Substring) {
			best = m.Percent
		}
	}

	t.mu.Lock()
	t.log.WriteString(chunk)
	t.mu.Unlock()

	if t.sink != nil {
		t.sink(chunk)
	}
	if best > 0 {
		t.Advance(best)
	}
}

// AppendLog adds text to the accumulated log without progress matching.
func (t *Tap) AppendLog(s string) {
	t.mu.Lock()
	t.log.WriteString(s)
	t.mu.Unlock()
}

// Advance raises progress to p. Lower values are ignored.
func (t *Tap) Advance(p int) {
	t.mu.Lock()
	if p <= t.percent {
		t.mu.Unlock()
		return
	}
	t.percent = p
	t.mu.Unlock()

	if t.onProgress != nil {
		t.onProgress(p)
	}
}

// Finish marks the attempt terminal.
func (t *Tap) Finish(err error) {
	t.mu.Lock()
	t.done = true
	t.success = err == nil
	if err != nil {
		t.err = err.Error()
	}
	t.mu.Unlock()
}

// Percent returns the current progress.
func (t *Tap) Percent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.percent
}

// Log returns everything written so far.
func (t *Tap) Log() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.log.String()
}

// State returns a snapshot of the tap.
func (t *Tap) State() ProgressState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return ProgressState{
		Log:     t.log.String(),
		Percent: t.percent,
		Done:    t.done,
		Success: t.success,
		Err:     t.err,
	}
}
