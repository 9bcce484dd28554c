// Package events publishes journaled build events to NATS JetStream.
package events

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/bootcforge/bootcforge/internal/journal"
	"github.com/bootcforge/bootcforge/internal/metrics"
)

// Stream settings.
const (
	StreamName    = "BOOTCFORGE_EVENTS"
	SubjectPrefix = "bootcforge.events"
	syncInterval  = 2 * time.Second
	batchSize     = 100
)

// Source is the journal the publisher drains.
type Source interface {
	GetUnsyncedEvents(limit int) ([]journal.Event, error)
	MarkEventsSynced(ids []int64) error
}

type jetStream interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher copies journal events to JetStream every two seconds.
type Publisher struct {
	nc     *nats.Conn
	js     jetStream
	source Source
	host   string
	stop   chan struct{}
	wg     sync.WaitGroup
}

// Event is the JSON payload published to NATS.
type Event struct {
	Type      string          `json:"type"`
	BuildID   string          `json:"build_id,omitempty"`
	Host      string          `json:"host"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewPublisher connects to natsURL and makes sure the event stream exists.
func NewPublisher(natsURL, host string, source Source) (*Publisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("bootcforge"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectPrefix + ".>"},
		MaxAge:   30 * 24 * time.Hour,
	})
	if err != nil {
		// The stream usually exists already.
		log.Printf("events: stream setup: %v", err)
	}

	p := newPublisher(js, host, source)
	p.nc = nc
	return p, nil
}

func newPublisher(js jetStream, host string, source Source) *Publisher {
	return &Publisher{
		js:     js,
		source: source,
		host:   host,
		stop:   make(chan struct{}),
	}
}

// Start begins the sync loop.
func (p *Publisher) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(syncInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.sync()
			case <-p.stop:
				// Final flush
				p.sync()
				return
			}
		}
	}()
}

// Stop flushes pending events and closes the NATS connection.
func (p *Publisher) Stop() {
	close(p.stop)
	p.wg.Wait()
	if p.nc != nil {
		p.nc.Close()
	}
}

// Subject returns the subject an event of eventType is published on.
func (p *Publisher) Subject(eventType string) string {
	host := strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(p.host)
	if host == "" {
		host = "local"
	}
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, host, eventType)
}

func (p *Publisher) sync() int {
	events, err := p.source.GetUnsyncedEvents(batchSize)
	if err != nil {
		log.Printf("events: reading journal: %v", err)
		return 0
	}
	if len(events) == 0 {
		return 0
	}

	var synced []int64
	for _, e := range events {
		payload := json.RawMessage(e.Payload)
		if !json.Valid(payload) {
			payload = json.RawMessage("null")
		}
		data, _ := json.Marshal(Event{
			Type:      e.Type,
			BuildID:   e.BuildID,
			Host:      p.host,
			Payload:   payload,
			Timestamp: e.CreatedAt,
		})

		if _, err := p.js.Publish(p.Subject(e.Type), data); err != nil {
			metrics.EventsPublished.WithLabelValues("error").Inc()
			log.Printf("events: publish error for event %d: %v", e.ID, err)
			continue
		}
		metrics.EventsPublished.WithLabelValues("ok").Inc()
		synced = append(synced, e.ID)
	}

	if err := p.source.MarkEventsSynced(synced); err != nil {
		log.Printf("events: mark synced error: %v", err)
		return 0
	}
	if len(synced) > 0 {
		log.Printf("events: synced %d events to NATS", len(synced))
	}
	return len(synced)
}
