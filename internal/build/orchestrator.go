package build

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bootcforge/bootcforge/internal/metrics"
	"github.com/bootcforge/bootcforge/pkg/types"
)

// History is the ledger the orchestrator reports build state to.
type History interface {
	AddOrUpdate(rec types.BuildRecord) error
	Remove(match types.BuildRecord) (int, error)
	All() []types.BuildRecord
}

// PrereqChecker gates builds on the host environment.
type PrereqChecker interface {
	Check(ctx context.Context) error
}

// EventSink receives build lifecycle events.
type EventSink interface {
	LogEvent(eventType string, payload interface{}) error
}

// Options configures an Orchestrator.
type Options struct {
	Engine       Engine
	History      History
	Prompt       Prompt
	Prereqs      PrereqChecker // optional
	Events       EventSink     // optional
	Usage        UsageLogger   // optional
	BuilderImage string
	HomeDir      string

	PollInterval time.Duration
	MaxRetries   int
	Timeout      time.Duration

	// OnProgress is called whenever a build's status or percentage changes.
	OnProgress func(types.BuildProgress)
}

// Orchestrator runs disk image builds end to end.
type Orchestrator struct {
	lifecycle    *Lifecycle
	watcher      *Watcher
	history      History
	prompt       Prompt
	prereqs      PrereqChecker
	events       EventSink
	usage        UsageLogger
	builderImage string
	homeDir      string
	onProgress   func(types.BuildProgress)

	// cleanupTimeout bounds the best-effort cleanup after a build.
	cleanupTimeout time.Duration
	// logGrace is how long the log stream may lag behind container exit.
	logGrace time.Duration

	slotsMu sync.Mutex
	slots   map[string]*sync.Mutex
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	usage := opts.Usage
	if usage == nil {
		usage = nopUsage{}
	}
	prompt := opts.Prompt
	if prompt == nil {
		prompt = AutoPrompt{}
	}
	builderImage := opts.BuilderImage
	if builderImage == "" {
		builderImage = BuilderImageCentOS
	}
	return &Orchestrator{
		lifecycle: NewLifecycle(opts.Engine, usage),
		watcher: &Watcher{
			Engine:     opts.Engine,
			Interval:   opts.PollInterval,
			MaxRetries: opts.MaxRetries,
			Timeout:    opts.Timeout,
		},
		history:        opts.History,
		prompt:         prompt,
		prereqs:        opts.Prereqs,
		events:         opts.Events,
		usage:          usage,
		builderImage:   builderImage,
		homeDir:        opts.HomeDir,
		onProgress:     opts.OnProgress,
		cleanupTimeout: 2 * time.Minute,
		logGrace:       5 * time.Second,
		slots:          make(map[string]*sync.Mutex),
	}
}

// Lifecycle returns the container lifecycle client used by the orchestrator.
func (o *Orchestrator) Lifecycle() *Lifecycle {
	return o.lifecycle
}

// Result describes a successful build.
type Result struct {
	AttemptID   string
	ImagePath   string
	LogPath     string
	ContainerID string
}

// Failure is returned when a build got past its preconditions and then
// failed. Error returns the sentence shown to the user.
type Failure struct {
	Message string
	LogPath string
	Err     error
}

func (f *Failure) Error() string { return f.Message }
func (f *Failure) Unwrap() error { return f.Err }

// slot returns the mutex serializing builds on engineID.
func (o *Orchestrator) slot(engineID string) *sync.Mutex {
	o.slotsMu.Lock()
	defer o.slotsMu.Unlock()
	m, ok := o.slots[engineID]
	if !ok {
		m = &sync.Mutex{}
		o.slots[engineID] = m
	}
	return m
}

// Build runs one build attempt for req. Validation, prerequisite and
// overwrite failures return before anything is created. Once the history
// entry exists, every outcome writes the build log, records a terminal
// status and removes the builder container and its volumes.
func (o *Orchestrator) Build(ctx context.Context, req types.BuildRequest) (*Result, error) {
	if err := Validate(req); err != nil {
		o.prompt.Error(errorText(err))
		return nil, err
	}

	if o.prereqs != nil {
		if err := o.prereqs.Check(ctx); err != nil {
			o.prompt.Error(errorText(err))
			return nil, err
		}
	}

	imagePath, err := ImagePath(req.Folder, req.Type[0])
	if err != nil {
		return nil, err
	}
	if !req.Overwrite && Exists(req.Folder, req.Type) {
		ok, err := o.prompt.Confirm(ctx, "File already exists, do you want to overwrite?")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrOverwriteDeclined
		}
	}

	slot := o.slot(req.EngineID)
	slot.Lock()
	defer slot.Unlock()

	a := &attempt{
		o:       o,
		id:      uuid.NewString(),
		rec:     req.Record(),
		started: time.Now(),
	}
	a.rec.Timestamp = a.started
	return a.run(ctx, imagePath)
}

// attempt carries the state of one running build.
type attempt struct {
	o       *Orchestrator
	id      string
	rec     types.BuildRecord
	started time.Time
	tap     *Tap
}

func (a *attempt) setStatus(s types.BuildStatus) error {
	a.rec.Status = s
	if err := a.o.history.AddOrUpdate(a.rec); err != nil {
		return err
	}
	a.report()
	return nil
}

func (a *attempt) report() {
	if a.o.onProgress == nil {
		return
	}
	pct := 0
	if a.tap != nil {
		pct = a.tap.Percent()
	}
	a.o.onProgress(types.BuildProgress{
		ID:      a.rec.ID,
		Image:   a.rec.Image,
		Status:  a.rec.Status,
		Percent: pct,
	})
}

func (a *attempt) emit(eventType string, extra map[string]interface{}) {
	if a.o.events == nil {
		return
	}
	payload := map[string]interface{}{
		"attempt_id": a.id,
		"build_id":   a.rec.ID,
		"image":      a.rec.Image + ":" + a.rec.Tag,
		"engine_id":  a.rec.EngineID,
		"status":     a.rec.Status,
	}
	for k, v := range extra {
		payload[k] = v
	}
	if err := a.o.events.LogEvent(eventType, payload); err != nil {
		log.Printf("build: failed to record %s event: %v", eventType, err)
	}
}

func (a *attempt) run(ctx context.Context, imagePath string) (*Result, error) {
	o := a.o
	rec := &a.rec

	if err := a.setStatus(types.BuildStatusCreating); err != nil {
		return nil, newError(KindFileSystem, "Unable to record the build in history", err)
	}
	a.emit("build.created", nil)

	logPath, err := prepareLog(rec.Folder)
	if err != nil {
		a.finishStatus(types.BuildStatusError)
		o.prompt.Error(errorText(err))
		return nil, err
	}

	metrics.BuildsActive.WithLabelValues(rec.EngineID).Inc()
	defer metrics.BuildsActive.WithLabelValues(rec.EngineID).Dec()

	name := UnusedName(ctx, o.lifecycle.Engine(), rec.EngineID, ContainerName(rec.Image))
	spec, specErr := NewContainerSpec(name, o.builderImage, o.homeDir, *rec)

	header := "Build Image Log " + logSeparator
	if specErr == nil {
		header = logHeader(*rec, spec)
	}
	_ = writeLog(logPath, header)

	appender := newLogAppender(logPath)
	a.tap = NewTap(DefaultMarkers, func(p int) {
		metrics.BuildProgress.WithLabelValues(rec.ID).Set(float64(p))
		a.report()
	}, appender.Append)
	a.tap.AppendLog(header)

	containerID, buildErr := a.execute(ctx, spec, specErr)
	appender.Close()

	// Finalize. Everything below is best-effort and never replaces buildErr.
	a.tap.Finish(buildErr)
	_ = writeLog(logPath, a.tap.Log())

	if spec.Name != "" {
		cctx, cancel := context.WithTimeout(context.Background(), o.cleanupTimeout)
		if err := o.lifecycle.RemoveWithVolumes(cctx, rec.EngineID, spec.Name); err != nil {
			log.Printf("build: cleanup of %s failed: %v", spec.Name, err)
		}
		cancel()
	}

	a.tap.Advance(ProgressDone)
	metrics.BuildProgress.DeleteLabelValues(rec.ID)

	if errors.Is(buildErr, ErrBuildDeleted) {
		a.logUsage(buildErr)
		return nil, buildErr
	}

	status := types.BuildStatusSuccess
	if buildErr != nil {
		status = types.BuildStatusError
	}
	a.finishStatus(status)
	a.logUsage(buildErr)
	a.observe(status)
	a.emit("build.finished", map[string]interface{}{
		"container_id": containerID,
		"duration_ms":  time.Since(a.started).Milliseconds(),
		"error":        errString(buildErr),
	})

	if buildErr != nil {
		msg := errorText(buildErr)
		if !strings.HasSuffix(msg, ".") {
			msg += "."
		}
		full := fmt.Sprintf("There was an error building the image: %s Check logs at %s", msg, logPath)
		o.prompt.Error(full)
		return nil, &Failure{Message: full, LogPath: logPath, Err: buildErr}
	}

	o.prompt.Info(fmt.Sprintf("Success! A disk image derived from your bootable container has been successfully created in %s", rec.Folder))
	return &Result{
		AttemptID:   a.id,
		ImagePath:   imagePath,
		LogPath:     logPath,
		ContainerID: containerID,
	}, nil
}

// execute runs the container part of the build and returns the builder
// container id, if one was created, with the first error encountered.
func (a *attempt) execute(ctx context.Context, spec ContainerSpec, specErr error) (string, error) {
	o := a.o
	rec := &a.rec

	if specErr != nil {
		return "", specErr
	}

	a.tap.Advance(ProgressPulled)
	if err := o.lifecycle.Pull(ctx, rec.EngineID, spec.Image); err != nil {
		return "", err
	}

	a.tap.Advance(ProgressStaleRemoved)
	if err := o.lifecycle.RemoveIfExists(ctx, rec.EngineID, spec.Name); err != nil {
		return "", err
	}

	a.tap.Advance(ProgressCreated)
	if err := a.setStatus(types.BuildStatusRunning); err != nil {
		log.Printf("build: failed to update history: %v", err)
	}
	containerID, err := o.lifecycle.CreateAndStart(ctx, rec.EngineID, spec)
	if containerID != "" {
		rec.BuildContainerID = containerID
		if herr := a.setStatus(types.BuildStatusRunning); herr != nil {
			log.Printf("build: failed to update history: %v", herr)
		}
	}
	if err != nil {
		return containerID, err
	}
	a.emit("build.started", map[string]interface{}{"container_id": containerID, "container_name": spec.Name})

	logCtx, cancelLogs := context.WithCancel(ctx)
	defer cancelLogs()
	logsDone := make(chan struct{})
	go func() {
		defer close(logsDone)
		if err := o.lifecycle.Engine().Logs(logCtx, rec.EngineID, containerID, a.tap.Write); err != nil && logCtx.Err() == nil {
			log.Printf("build: log stream for %s ended: %v", containerID, err)
		}
	}()

	a.tap.Advance(ProgressWaiting)
	waitErr := o.watcher.Wait(ctx, rec.EngineID, containerID)

	// Let the stream drain what the container printed before exiting.
	select {
	case <-logsDone:
	case <-time.After(o.logGrace):
		cancelLogs()
		<-logsDone
	}

	if waitErr != nil {
		if !a.tracked(containerID) {
			log.Printf("build: container %s for build %s:%s failed but has no history entry; it was removed during the build: %v",
				containerID, rec.Image, rec.Arch, waitErr)
			return containerID, ErrBuildDeleted
		}
		return containerID, waitErr
	}
	return containerID, nil
}

// tracked reports whether history still holds an entry for containerID.
func (a *attempt) tracked(containerID string) bool {
	for _, r := range a.o.history.All() {
		if r.BuildContainerID == containerID {
			return true
		}
	}
	return false
}

func (a *attempt) finishStatus(s types.BuildStatus) {
	if err := a.setStatus(s); err != nil {
		log.Printf("build: error updating image build status: %v", err)
	}
}

func (a *attempt) logUsage(err error) {
	props := map[string]interface{}{
		"build_id":   a.rec.ID,
		"type":       a.rec.Type,
		"arch":       a.rec.Arch,
		"success":    err == nil,
		"duration_s": time.Since(a.started).Seconds(),
	}
	if err != nil {
		props["error"] = err.Error()
	}
	a.o.usage.LogUsage("buildDiskImage", props)
}

func (a *attempt) observe(status types.BuildStatus) {
	elapsed := time.Since(a.started).Seconds()
	for _, t := range a.rec.Type {
		metrics.BuildsTotal.WithLabelValues(string(t), string(status)).Inc()
		metrics.BuildDuration.WithLabelValues(string(t)).Observe(elapsed)
	}
}

// DeleteBuilds removes builds from history. Each record is first marked
// deleting, then its builder container is removed if it still exists. A
// build that is still running notices the missing entry and ends without
// reporting a failure.
func (o *Orchestrator) DeleteBuilds(ctx context.Context, records []types.BuildRecord) error {
	var errs []error
	for _, rec := range records {
		rec.Status = types.BuildStatusDeleting
		if err := o.history.AddOrUpdate(rec); err != nil {
			errs = append(errs, err)
			continue
		}
		if rec.BuildContainerID != "" {
			if err := o.removeContainerID(ctx, rec.EngineID, rec.BuildContainerID); err != nil {
				log.Printf("build: unable to remove container %s of build %s: %v", rec.BuildContainerID, rec.ID, err)
			}
		}
		if _, err := o.history.Remove(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) removeContainerID(ctx context.Context, engineID, id string) error {
	engine := o.lifecycle.Engine()
	containers, err := engine.ListContainers(ctx, engineID)
	if err != nil {
		return err
	}
	for _, c := range containers {
		if c.ID == id {
			return engine.RemoveContainer(ctx, engineID, id)
		}
	}
	return nil
}

// errorText returns the user-facing message of err.
func errorText(err error) string {
	return err.Error()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
