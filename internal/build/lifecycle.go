package build

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/bootcforge/bootcforge/internal/podman"
)

// Engine is the container engine capability set the builder needs.
// *podman.Client implements it.
type Engine interface {
	Ping(ctx context.Context, engineID string) error
	PullImage(ctx context.Context, engineID, image string) error
	CreateContainer(ctx context.Context, engineID string, cfg podman.ContainerConfig) (string, error)
	StartContainer(ctx context.Context, engineID, nameOrID string) error
	ListContainers(ctx context.Context, engineID string, filters ...string) ([]podman.PSEntry, error)
	RemoveContainer(ctx context.Context, engineID, nameOrID string) error
	ListVolumes(ctx context.Context, engineID string) ([]podman.VolumeEntry, error)
	RemoveVolume(ctx context.Context, engineID, name string) error
	ListImages(ctx context.Context, engineID string, filters ...string) ([]podman.ImageEntry, error)
	RemoveImage(ctx context.Context, engineID, id string) error
	InspectImage(ctx context.Context, engineID, ref string) (*podman.ImageInfo, error)
	InspectManifest(ctx context.Context, engineID, ref string) (*podman.Manifest, error)
	Logs(ctx context.Context, engineID, nameOrID string, onChunk func(string)) error
}

// UsageLogger records product usage events.
type UsageLogger interface {
	LogUsage(event string, props map[string]interface{})
}

type nopUsage struct{}

func (nopUsage) LogUsage(string, map[string]interface{}) {}

// Lifecycle wraps an Engine with the ordering and error semantics the
// orchestrator relies on.
type Lifecycle struct {
	engine Engine
	usage  UsageLogger
}

// NewLifecycle creates a lifecycle client. usage may be nil.
func NewLifecycle(engine Engine, usage UsageLogger) *Lifecycle {
	if usage == nil {
		usage = nopUsage{}
	}
	return &Lifecycle{engine: engine, usage: usage}
}

// Engine returns the wrapped engine.
func (l *Lifecycle) Engine() Engine {
	return l.engine
}

// Pull pulls image on engineID after checking the engine is reachable.
func (l *Lifecycle) Pull(ctx context.Context, engineID, image string) (err error) {
	props := map[string]interface{}{"image": image}
	defer func() {
		if err != nil {
			props["error"] = err.Error()
		} else {
			props["success"] = true
		}
		l.usage.LogUsage("pullImage", props)
	}()

	log.Printf("build: pulling image %s", image)
	if err := l.engine.Ping(ctx, engineID); err != nil {
		return newError(KindEngineUnavailable, "No podman engine running. Cannot pull the image", err)
	}
	if err := l.engine.PullImage(ctx, engineID, image); err != nil {
		return newError(KindPull, "There was an error pulling the image", err)
	}
	return nil
}

// CreateAndStart creates the container described by spec and starts it.
func (l *Lifecycle) CreateAndStart(ctx context.Context, engineID string, spec ContainerSpec) (string, error) {
	id, err := l.engine.CreateContainer(ctx, engineID, spec.ContainerConfig())
	if err != nil {
		return "", newError(KindContainerCreate, "There was an error creating the container", err)
	}
	if err := l.engine.StartContainer(ctx, engineID, id); err != nil {
		return id, newError(KindContainerCreate, "There was an error starting the container", err)
	}
	return id, nil
}

// RemoveIfExists deletes the container called name, if there is one.
func (l *Lifecycle) RemoveIfExists(ctx context.Context, engineID, name string) error {
	containers, err := l.engine.ListContainers(ctx, engineID)
	if err != nil {
		return newError(KindContainerRemove, "There was an error removing the container", err)
	}

	exists := false
	for _, c := range containers {
		for _, n := range c.Names {
			if strings.TrimPrefix(n, "/") == name {
				exists = true
			}
		}
	}
	if !exists {
		return nil
	}

	if err := l.engine.RemoveContainer(ctx, engineID, name); err != nil {
		return newError(KindContainerRemove, "There was an error removing the container", err)
	}
	return nil
}

// volumesFor returns the volumes attached to the container called name.
func (l *Lifecycle) volumesFor(ctx context.Context, engineID, name string) ([]string, error) {
	volumes, err := l.engine.ListVolumes(ctx, engineID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var names []string
	for _, v := range volumes {
		for _, c := range v.Containers {
			if strings.TrimPrefix(c, "/") == name && !seen[v.Name] {
				seen[v.Name] = true
				names = append(names, v.Name)
			}
		}
	}
	return names, nil
}

// RemoveWithVolumes deletes the container called name and every volume it
// used. Volumes are looked up before the container goes away, because the
// engine drops the association on removal. A failed lookup is logged and the
// container is still removed.
func (l *Lifecycle) RemoveWithVolumes(ctx context.Context, engineID, name string) error {
	volumes, err := l.volumesFor(ctx, engineID, name)
	if err != nil {
		log.Printf("build: unable to get volumes for container %s, removing container anyway: %v", name, err)
	} else if len(volumes) > 0 {
		log.Printf("build: matching volumes for %s: %v", name, volumes)
	}

	log.Printf("build: cleanup: removing container %s", name)
	if err := l.RemoveIfExists(ctx, engineID, name); err != nil {
		return err
	}

	var errs []error
	for _, v := range volumes {
		log.Printf("build: cleanup: removing volume %s", v)
		if err := l.engine.RemoveVolume(ctx, engineID, v); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return newError(KindVolumeCleanup, "There was an error removing the container volumes", errors.Join(errs...))
	}
	return nil
}

// splitRef splits an image reference into repository and tag. A reference
// without a tag returns an empty tag.
func splitRef(ref string) (string, string) {
	i := strings.LastIndex(ref, ":")
	if i < 0 || strings.Contains(ref[i+1:], "/") {
		return ref, ""
	}
	return ref[:i], ref[i+1:]
}

// DeleteSuperseded removes local images of the same repository as
// currentImage whose tags are all older tags of that repository. An image
// that also carries the current tag, or any tag of another repository, is
// kept. It returns the removed image IDs; individual removal failures are
// logged and skipped.
func (l *Lifecycle) DeleteSuperseded(ctx context.Context, engineID, currentImage string) ([]string, error) {
	images, err := l.engine.ListImages(ctx, engineID)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}

	currentName, currentTag := splitRef(currentImage)

	var toRemove []string
	for _, img := range images {
		tags := img.Tags()
		if len(tags) == 0 {
			continue
		}
		found, other := false, false
		for _, t := range tags {
			name, tag := splitRef(t)
			if name == currentName && tag != currentTag {
				found = true
			} else {
				other = true
			}
		}
		if found && !other {
			toRemove = append(toRemove, img.ID)
		}
	}

	var removed []string
	for _, id := range toRemove {
		if err := l.engine.RemoveImage(ctx, engineID, id); err != nil {
			log.Printf("build: error while removing image %s: %v", id, err)
			continue
		}
		removed = append(removed, id)
	}
	return removed, nil
}

// Inspect returns image metadata for ref.
func (l *Lifecycle) Inspect(ctx context.Context, engineID, ref string) (*podman.ImageInfo, error) {
	info, err := l.engine.InspectImage(ctx, engineID, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect image %s: %w", ref, err)
	}
	return info, nil
}

// InspectManifest returns the manifest list for ref.
func (l *Lifecycle) InspectManifest(ctx context.Context, engineID, ref string) (*podman.Manifest, error) {
	m, err := l.engine.InspectManifest(ctx, engineID, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect manifest %s: %w", ref, err)
	}
	return m, nil
}

// Bootc image labels.
var bootcLabels = []string{"bootc", "containers.bootc"}

// ListBootcImages returns local images labelled as bootable containers.
func (l *Lifecycle) ListBootcImages(ctx context.Context, engineID string) ([]podman.ImageEntry, error) {
	images, err := l.engine.ListImages(ctx, engineID)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	var out []podman.ImageEntry
	for _, img := range images {
		for _, label := range bootcLabels {
			if _, ok := img.Labels[label]; ok {
				out = append(out, img)
				break
			}
		}
	}
	return out, nil
}
