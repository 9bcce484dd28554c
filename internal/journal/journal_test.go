package journal

import (
	"testing"
	"time"
)

func openTest(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestLogAndSync(t *testing.T) {
	j := openTest(t)

	if err := j.LogEvent("build.created", map[string]interface{}{"build_id": "b1", "image": "demo:latest"}); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	if err := j.LogEvent("build.finished", map[string]interface{}{"build_id": "b1", "status": "success"}); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	if err := j.LogEvent("image.pulled", map[string]string{"image": "x"}); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}

	events, err := j.GetUnsyncedEvents(10)
	if err != nil {
		t.Fatalf("GetUnsyncedEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Type != "build.created" || events[0].BuildID != "b1" {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[2].BuildID != "" {
		t.Errorf("expected no build id for non-build event, got %q", events[2].BuildID)
	}
	if events[0].CreatedAt.IsZero() {
		t.Error("expected created_at to be parsed")
	}

	if err := j.MarkEventsSynced([]int64{events[0].ID, events[1].ID}); err != nil {
		t.Fatalf("MarkEventsSynced: %v", err)
	}
	events, err = j.GetUnsyncedEvents(10)
	if err != nil {
		t.Fatalf("GetUnsyncedEvents: %v", err)
	}
	if len(events) != 1 || events[0].Type != "image.pulled" {
		t.Fatalf("expected only image.pulled unsynced, got %+v", events)
	}
}

func TestUnsyncedLimit(t *testing.T) {
	j := openTest(t)
	for i := 0; i < 5; i++ {
		if err := j.LogEvent("build.created", map[string]interface{}{"n": i}); err != nil {
			t.Fatalf("LogEvent: %v", err)
		}
	}
	events, err := j.GetUnsyncedEvents(2)
	if err != nil {
		t.Fatalf("GetUnsyncedEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].ID >= events[1].ID {
		t.Errorf("expected oldest first, got ids %d, %d", events[0].ID, events[1].ID)
	}
}

func TestBuildEvents(t *testing.T) {
	j := openTest(t)
	j.LogEvent("build.created", map[string]interface{}{"build_id": "a"})
	j.LogEvent("build.created", map[string]interface{}{"build_id": "b"})
	j.LogEvent("build.finished", map[string]interface{}{"build_id": "a"})

	events, err := j.BuildEvents("a")
	if err != nil {
		t.Fatalf("BuildEvents: %v", err)
	}
	if len(events) != 2 || events[1].Type != "build.finished" {
		t.Fatalf("unexpected events for a: %+v", events)
	}
}

func TestPruneSynced(t *testing.T) {
	j := openTest(t)
	j.LogEvent("build.created", map[string]interface{}{"build_id": "a"})
	events, _ := j.GetUnsyncedEvents(10)
	j.MarkEventsSynced([]int64{events[0].ID})

	n, err := j.PruneSynced(time.Hour)
	if err != nil {
		t.Fatalf("PruneSynced: %v", err)
	}
	if n != 0 {
		t.Errorf("expected recent events to survive, pruned %d", n)
	}

	n, err = j.PruneSynced(-time.Hour)
	if err != nil {
		t.Fatalf("PruneSynced: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 pruned event, got %d", n)
	}
}
