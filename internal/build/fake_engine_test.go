package build

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bootcforge/bootcforge/internal/podman"
	"github.com/bootcforge/bootcforge/pkg/types"
)

// fakeEngine is an in-memory Engine. Created containers exit immediately
// with exitStatus.
type fakeEngine struct {
	mu sync.Mutex

	calls      []string
	containers []podman.PSEntry
	volumes    []podman.VolumeEntry
	images     []podman.ImageEntry

	pingErr    error
	pullErr    error
	createErr  error
	listErr    error
	exitStatus string
	logs       string

	removedContainers []string
	removedVolumes    []string
	removedImages     []string
	created           []podman.ContainerConfig
	listCalls         int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{exitStatus: "Exited (0) 1 second ago"}
}

func (f *fakeEngine) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeEngine) Ping(ctx context.Context, engineID string) error {
	f.record("ping")
	return f.pingErr
}

func (f *fakeEngine) PullImage(ctx context.Context, engineID, image string) error {
	f.record("pull " + image)
	return f.pullErr
}

func (f *fakeEngine) CreateContainer(ctx context.Context, engineID string, cfg podman.ContainerConfig) (string, error) {
	f.record("create " + cfg.Name)
	if f.createErr != nil {
		return "", f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("ctr%d", len(f.created)+1)
	f.created = append(f.created, cfg)
	f.containers = append(f.containers, podman.PSEntry{
		ID:     id,
		Names:  []string{cfg.Name},
		State:  "exited",
		Status: f.exitStatus,
	})
	return id, nil
}

func (f *fakeEngine) StartContainer(ctx context.Context, engineID, nameOrID string) error {
	f.record("start " + nameOrID)
	return nil
}

func (f *fakeEngine) ListContainers(ctx context.Context, engineID string, filters ...string) ([]podman.PSEntry, error) {
	f.record("ps")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]podman.PSEntry, len(f.containers))
	copy(out, f.containers)
	return out, nil
}

func (f *fakeEngine) RemoveContainer(ctx context.Context, engineID, nameOrID string) error {
	f.record("rm " + nameOrID)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removedContainers = append(f.removedContainers, nameOrID)
	kept := f.containers[:0]
	for _, c := range f.containers {
		match := c.ID == nameOrID
		for _, n := range c.Names {
			if strings.TrimPrefix(n, "/") == nameOrID {
				match = true
			}
		}
		if !match {
			kept = append(kept, c)
		}
	}
	f.containers = kept
	return nil
}

func (f *fakeEngine) ListVolumes(ctx context.Context, engineID string) ([]podman.VolumeEntry, error) {
	f.record("volume ls")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]podman.VolumeEntry(nil), f.volumes...), nil
}

func (f *fakeEngine) RemoveVolume(ctx context.Context, engineID, name string) error {
	f.record("volume rm " + name)
	f.mu.Lock()
	f.removedVolumes = append(f.removedVolumes, name)
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) ListImages(ctx context.Context, engineID string, filters ...string) ([]podman.ImageEntry, error) {
	f.record("images")
	return f.images, nil
}

func (f *fakeEngine) RemoveImage(ctx context.Context, engineID, id string) error {
	f.record("rmi " + id)
	f.mu.Lock()
	f.removedImages = append(f.removedImages, id)
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) InspectImage(ctx context.Context, engineID, ref string) (*podman.ImageInfo, error) {
	f.record("inspect " + ref)
	return &podman.ImageInfo{}, nil
}

func (f *fakeEngine) InspectManifest(ctx context.Context, engineID, ref string) (*podman.Manifest, error) {
	f.record("manifest inspect " + ref)
	return &podman.Manifest{}, nil
}

func (f *fakeEngine) Logs(ctx context.Context, engineID, nameOrID string, onChunk func(string)) error {
	f.record("logs " + nameOrID)
	if f.logs != "" {
		onChunk(f.logs)
	}
	return nil
}

// memHistory is an in-memory History keyed by build id.
type memHistory struct {
	mu      sync.Mutex
	records []types.BuildRecord
	writes  int
	// forget makes All report nothing, as if the entry had been deleted.
	forget bool
}

func (h *memHistory) AddOrUpdate(rec types.BuildRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writes++
	for i, r := range h.records {
		if r.ID == rec.ID {
			h.records[i] = rec
			return nil
		}
	}
	h.records = append(h.records, rec)
	return nil
}

func (h *memHistory) Remove(match types.BuildRecord) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	kept := h.records[:0]
	n := 0
	for _, r := range h.records {
		if r.ID == match.ID {
			n++
			continue
		}
		kept = append(kept, r)
	}
	h.records = kept
	return n, nil
}

func (h *memHistory) All() []types.BuildRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.forget {
		return nil
	}
	return append([]types.BuildRecord(nil), h.records...)
}

func (h *memHistory) statuses() []types.BuildStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]types.BuildStatus, len(h.records))
	for i, r := range h.records {
		out[i] = r.Status
	}
	return out
}

// recordingPrompt captures notices and answers confirmations with answer.
type recordingPrompt struct {
	mu     sync.Mutex
	answer bool
	asked  []string
	infos  []string
	errors []string
}

func (p *recordingPrompt) Confirm(_ context.Context, message string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asked = append(p.asked, message)
	return p.answer, nil
}

func (p *recordingPrompt) Info(message string) {
	p.mu.Lock()
	p.infos = append(p.infos, message)
	p.mu.Unlock()
}

func (p *recordingPrompt) Error(message string) {
	p.mu.Lock()
	p.errors = append(p.errors, message)
	p.mu.Unlock()
}
