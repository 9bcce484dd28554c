package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/bootcforge/bootcforge/internal/journal"
)

type memSource struct {
	events []journal.Event
	synced []int64
}

func (m *memSource) GetUnsyncedEvents(limit int) ([]journal.Event, error) {
	var out []journal.Event
	done := make(map[int64]bool)
	for _, id := range m.synced {
		done[id] = true
	}
	for _, e := range m.events {
		if !done[e.ID] && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memSource) MarkEventsSynced(ids []int64) error {
	m.synced = append(m.synced, ids...)
	return nil
}

type published struct {
	subject string
	data    []byte
}

type fakeJS struct {
	msgs   []published
	failOn string
}

func (f *fakeJS) Publish(subj string, data []byte, _ ...nats.PubOpt) (*nats.PubAck, error) {
	if f.failOn != "" && subj == f.failOn {
		return nil, errors.New("no responders")
	}
	f.msgs = append(f.msgs, published{subject: subj, data: data})
	return &nats.PubAck{Stream: StreamName}, nil
}

func TestSyncPublishesAndMarks(t *testing.T) {
	src := &memSource{events: []journal.Event{
		{ID: 1, Type: "build.created", BuildID: "b1", Payload: `{"build_id":"b1"}`, CreatedAt: time.Unix(100, 0).UTC()},
		{ID: 2, Type: "build.finished", BuildID: "b1", Payload: `{"status":"success"}`},
	}}
	js := &fakeJS{}
	p := newPublisher(js, "my.host", src)

	if n := p.sync(); n != 2 {
		t.Fatalf("expected 2 synced, got %d", n)
	}
	if len(js.msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(js.msgs))
	}
	if js.msgs[0].subject != "bootcforge.events.my_host.build.created" {
		t.Errorf("unexpected subject %q", js.msgs[0].subject)
	}

	var ev Event
	if err := json.Unmarshal(js.msgs[0].data, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != "build.created" || ev.BuildID != "b1" || ev.Host != "my.host" {
		t.Errorf("unexpected event %+v", ev)
	}
	if string(ev.Payload) != `{"build_id":"b1"}` {
		t.Errorf("unexpected payload %s", ev.Payload)
	}

	if n := p.sync(); n != 0 {
		t.Errorf("expected nothing left to sync, got %d", n)
	}
}

func TestSyncKeepsFailedEvents(t *testing.T) {
	src := &memSource{events: []journal.Event{
		{ID: 1, Type: "build.created", Payload: `{}`},
		{ID: 2, Type: "build.finished", Payload: `{}`},
	}}
	js := &fakeJS{failOn: "bootcforge.events.local.build.finished"}
	p := newPublisher(js, "", src)

	if n := p.sync(); n != 1 {
		t.Fatalf("expected 1 synced, got %d", n)
	}
	pending, _ := src.GetUnsyncedEvents(10)
	if len(pending) != 1 || pending[0].ID != 2 {
		t.Errorf("expected event 2 to stay pending, got %+v", pending)
	}
}

func TestSyncInvalidPayload(t *testing.T) {
	src := &memSource{events: []journal.Event{{ID: 1, Type: "build.created", Payload: "not json"}}}
	js := &fakeJS{}
	p := newPublisher(js, "h", src)
	p.sync()

	var ev Event
	if err := json.Unmarshal(js.msgs[0].data, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(ev.Payload) != "null" {
		t.Errorf("expected null payload, got %s", ev.Payload)
	}
}

func TestStartStopFlushes(t *testing.T) {
	src := &memSource{events: []journal.Event{{ID: 1, Type: "build.created", Payload: `{}`}}}
	js := &fakeJS{}
	p := newPublisher(js, "h", src)
	p.Start()
	p.Stop()

	if len(js.msgs) != 1 {
		t.Fatalf("expected final flush to publish 1 event, got %d", len(js.msgs))
	}
}
