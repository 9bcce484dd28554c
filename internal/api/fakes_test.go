package api

import (
	"context"
	"sync"

	"github.com/bootcforge/bootcforge/internal/build"
	"github.com/bootcforge/bootcforge/internal/podman"
	"github.com/bootcforge/bootcforge/pkg/types"
)

type fakeBuilder struct {
	mu      sync.Mutex
	reqs    []types.BuildRequest
	deleted []types.BuildRecord
	err     error
	// block makes Build wait for ctx cancellation.
	block bool
}

func (f *fakeBuilder) Build(ctx context.Context, req types.BuildRequest) (*build.Result, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	block, err := f.block, f.err
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, build.NewError(build.KindCanceled, "Build was canceled", ctx.Err())
	}
	if err != nil {
		return nil, err
	}
	path, _ := build.ImagePath(req.Folder, req.Type[0])
	return &build.Result{ImagePath: path}, nil
}

func (f *fakeBuilder) DeleteBuilds(_ context.Context, records []types.BuildRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, records...)
	return nil
}

func (f *fakeBuilder) requests() []types.BuildRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.BuildRequest(nil), f.reqs...)
}

type fakeHistory struct {
	records []types.BuildRecord
}

func (f *fakeHistory) All() []types.BuildRecord { return f.records }

func (f *fakeHistory) LastFolder() string {
	if len(f.records) == 0 {
		return ""
	}
	return f.records[0].Folder
}

func (f *fakeHistory) GenerateUniqueBuildID(name string) string { return name + "-1" }

type fakeImages struct {
	images   []podman.ImageEntry
	pullErr  error
	pulled   []string
	removed  []string
	manifest *podman.Manifest
}

func (f *fakeImages) Pull(_ context.Context, engineID, image string) error {
	f.pulled = append(f.pulled, engineID+"/"+image)
	return f.pullErr
}

func (f *fakeImages) ListBootcImages(context.Context, string) ([]podman.ImageEntry, error) {
	return f.images, nil
}

func (f *fakeImages) DeleteSuperseded(context.Context, string, string) ([]string, error) {
	return f.removed, nil
}

func (f *fakeImages) InspectManifest(context.Context, string, string) (*podman.Manifest, error) {
	return f.manifest, nil
}

type fakePrereqs struct {
	status types.PrereqStatus
}

func (f fakePrereqs) Status(context.Context) types.PrereqStatus { return f.status }

type fakeNotifier struct {
	ch chan struct{}
}

func (f *fakeNotifier) Subscribe() (<-chan struct{}, func()) {
	return f.ch, func() {}
}

type fakeVMs struct {
	checkErr error
	launched int
	stopped  int
}

func (f *fakeVMs) CheckLaunch(string, string) error { return f.checkErr }

func (f *fakeVMs) Launch(context.Context, string, string) (*types.VMLaunchResult, error) {
	f.launched++
	return &types.VMLaunchResult{ConsoleURL: "ws://127.0.0.1:45252", SSHForward: "localhost:2222"}, nil
}

func (f *fakeVMs) Stop(context.Context) error {
	f.stopped++
	return nil
}

type fakeExporter struct {
	err error
}

func (f fakeExporter) Export(_ context.Context, req types.ExportRequest) (*types.ExportResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &types.ExportResult{Archive: req.Folder + "/image/disk.raw.sparse.zst", Blocks: 3}, nil
}
