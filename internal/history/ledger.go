package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/bootcforge/bootcforge/internal/podman"
	"github.com/bootcforge/bootcforge/pkg/types"
)

const (
	// FileName is the ledger file inside the storage directory.
	FileName = "history.json"
	lockName = "history.json.lock"

	// DefaultMaxEntries bounds the number of retained records.
	DefaultMaxEntries = 100
)

// ContainerLister reports the containers that exist on an engine. It is used
// to tell lost builds from ones whose container is still around.
type ContainerLister interface {
	ListContainers(ctx context.Context, engineID string, filters ...string) ([]podman.PSEntry, error)
}

// Ledger is the persisted list of build attempts, newest first. Every
// mutation is written through to disk before it returns.
type Ledger struct {
	dir        string
	maxEntries int

	mu      sync.Mutex
	fileMu  *flock.Flock
	records []types.BuildRecord
}

// New creates a ledger stored in dir. Call Load to read existing records.
func New(dir string) *Ledger {
	return &Ledger{
		dir:        dir,
		maxEntries: DefaultMaxEntries,
		fileMu:     flock.New(filepath.Join(dir, lockName)),
	}
}

// Path returns the ledger file location.
func (l *Ledger) Path() string {
	return filepath.Join(l.dir, FileName)
}

// Load reads the ledger from disk. A missing directory or file, or a file
// that cannot be parsed, leaves the ledger empty. When lister is non-nil,
// records stuck in creating or running whose container no longer exists
// are marked lost.
func (l *Ledger) Load(ctx context.Context, lister ContainerLister) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = nil
	data, err := os.ReadFile(l.Path())
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("history: unable to read %s: %v", l.Path(), err)
		}
		return nil
	}

	var records []types.BuildRecord
	if err := json.Unmarshal(data, &records); err != nil {
		log.Printf("history: ignoring unreadable %s: %v", l.Path(), err)
		return nil
	}
	l.records = records

	if lister == nil {
		return nil
	}
	if l.markLost(ctx, lister) == 0 {
		return nil
	}
	return l.save()
}

// markLost flags unfinished records whose builder container is gone and
// returns how many changed. Engines that cannot be listed are skipped.
func (l *Ledger) markLost(ctx context.Context, lister ContainerLister) int {
	existing := make(map[string]map[string]bool)
	changed := 0
	for i := range l.records {
		rec := &l.records[i]
		if rec.Status.Terminal() || rec.Status == types.BuildStatusDeleting {
			continue
		}

		ids, ok := existing[rec.EngineID]
		if !ok {
			containers, err := lister.ListContainers(ctx, rec.EngineID)
			if err != nil {
				log.Printf("history: unable to list containers on %q, leaving builds as they are: %v", rec.EngineID, err)
				existing[rec.EngineID] = nil
				continue
			}
			ids = make(map[string]bool, len(containers))
			for _, c := range containers {
				ids[c.ID] = true
			}
			existing[rec.EngineID] = ids
		}
		if ids == nil {
			continue
		}

		if rec.BuildContainerID == "" || !ids[rec.BuildContainerID] {
			log.Printf("history: build %s (%s) was interrupted, marking it lost", rec.ID, rec.Image)
			rec.Status = types.BuildStatusLost
			changed++
		}
	}
	return changed
}

// sameBuild reports whether a and b describe the same logical build.
func sameBuild(a, b types.BuildRecord) bool {
	return a.ID == b.ID && a.Arch == b.Arch && a.Tag == b.Tag && typeKey(a.Type) == typeKey(b.Type)
}

func typeKey(ts []types.BuildType) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}

// merge copies the non-zero fields of src over dst.
func merge(dst *types.BuildRecord, src types.BuildRecord) {
	set := func(d *string, s string) {
		if s != "" {
			*d = s
		}
	}
	set(&dst.Image, src.Image)
	set(&dst.ImageID, src.ImageID)
	set(&dst.EngineID, src.EngineID)
	set(&dst.Folder, src.Folder)
	set(&dst.Filesystem, src.Filesystem)
	set(&dst.BuildConfigFilePath, src.BuildConfigFilePath)
	set(&dst.Chown, src.Chown)
	set(&dst.AWSAmiName, src.AWSAmiName)
	set(&dst.AWSBucket, src.AWSBucket)
	set(&dst.AWSRegion, src.AWSRegion)
	set(&dst.BuildContainerID, src.BuildContainerID)
	if src.Status != "" {
		dst.Status = src.Status
	}
	if !src.Timestamp.IsZero() {
		dst.Timestamp = src.Timestamp
	}
}

// AddOrUpdate merges rec into the record of the same build, or prepends it
// as a new record.
func (l *Ledger) AddOrUpdate(rec types.BuildRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.records {
		if sameBuild(l.records[i], rec) {
			merge(&l.records[i], rec)
			return l.save()
		}
	}

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	rec.Type = append([]types.BuildType(nil), rec.Type...)
	l.records = append([]types.BuildRecord{rec}, l.records...)
	if len(l.records) > l.maxEntries {
		l.records = l.records[:l.maxEntries]
	}
	return l.save()
}

// Remove deletes every record describing the same build as match and
// returns how many were removed.
func (l *Ledger) Remove(match types.BuildRecord) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.records[:0]
	removed := 0
	for _, r := range l.records {
		if sameBuild(r, match) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	l.records = kept
	if removed == 0 {
		return 0, nil
	}
	return removed, l.save()
}

// All returns a copy of the records, newest first.
func (l *Ledger) All() []types.BuildRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.BuildRecord, len(l.records))
	copy(out, l.records)
	return out
}

// LastFolder returns the output folder of the most recent build, or "".
func (l *Ledger) LastFolder() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.records) == 0 {
		return ""
	}
	return l.records[0].Folder
}

// GenerateUniqueBuildID returns name if no record uses it as an id, or the
// first of name-1, name-2, ... that is free.
func (l *Ledger) GenerateUniqueBuildID(name string) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	used := make(map[string]bool, len(l.records))
	for _, r := range l.records {
		used[r.ID] = true
	}
	id := name
	for n := 1; used[id]; n++ {
		id = fmt.Sprintf("%s-%d", name, n)
	}
	return id
}

// save writes the ledger to disk. The caller holds l.mu.
func (l *Ledger) save() error {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	locked, err := l.fileMu.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to lock history: %w", err)
	}
	if locked {
		defer l.fileMu.Unlock()
	}

	records := l.records
	if records == nil {
		records = []types.BuildRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	tmp, err := os.CreateTemp(l.dir, FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := os.Rename(tmpName, l.Path()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}
