package build

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// Watcher defaults.
const (
	DefaultPollInterval = time.Second
	DefaultMaxRetries   = 5
	DefaultTimeout      = 60 * time.Minute
)

// Watcher polls the engine until a container exits.
type Watcher struct {
	Engine     Engine
	Interval   time.Duration
	MaxRetries int
	Timeout    time.Duration
}

type containerState int

const (
	stateRunning containerState = iota
	stateMissing
	stateExited
)

// Wait blocks until containerID exits. It returns nil only when the container
// exited with status 0. The wait fails with a distinct error kind when the
// container is missing from MaxRetries listings or is still running after
// Timeout. A failed listing counts as a missing container.
func (w *Watcher) Wait(ctx context.Context, engineID, containerID string) error {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	maxRetries := w.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	timeout := w.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	// One context bounds both the polling and the wall clock, so whichever
	// settles first releases the other.
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	retries := 0
	for {
		state, exitErr := w.poll(waitCtx, engineID, containerID)
		switch state {
		case stateExited:
			return exitErr
		case stateMissing:
			if waitCtx.Err() != nil {
				return w.doneErr(ctx, timeout)
			}
			retries++
			if retries >= maxRetries {
				return newError(KindContainerNotFoundRetriesExceeded, "Container not found after maximum retries", nil)
			}
			log.Printf("build: container %s not found, retrying... (%d/%d)", containerID, retries, maxRetries)
		}

		timer := time.NewTimer(interval)
		select {
		case <-waitCtx.Done():
			timer.Stop()
			return w.doneErr(ctx, timeout)
		case <-timer.C:
		}
	}
}

func (w *Watcher) poll(ctx context.Context, engineID, containerID string) (containerState, error) {
	containers, err := w.Engine.ListContainers(ctx, engineID)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("build: listing containers while waiting for %s: %v", containerID, err)
		}
		return stateMissing, nil
	}

	for _, c := range containers {
		if c.ID != containerID {
			continue
		}
		if c.State != "exited" {
			return stateRunning, nil
		}
		if strings.Contains(c.Status, "Exited (0)") {
			return stateExited, nil
		}
		return stateExited, newError(KindContainerExitedNonZero,
			fmt.Sprintf("Container exited with a non-zero exit code (%s)", c.Status), nil)
	}
	return stateMissing, nil
}

func (w *Watcher) doneErr(parent context.Context, timeout time.Duration) error {
	if parent.Err() != nil {
		return newError(KindCanceled, "Build was canceled", parent.Err())
	}
	return newError(KindTimeout, fmt.Sprintf("Timeout after %s", formatTimeout(timeout)), nil)
}

func formatTimeout(d time.Duration) string {
	if d%time.Minute == 0 {
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
	return d.String()
}
