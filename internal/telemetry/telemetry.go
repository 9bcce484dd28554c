// Package telemetry reports anonymous usage events to Segment.
package telemetry

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/analytics-go/v3"
)

const idFile = "telemetry-id"

// Logger sends usage events. The zero value and a nil *Logger drop every
// event.
type Logger struct {
	client      analytics.Client
	anonymousID string
}

// New creates a logger. It returns a no-op logger when writeKey is empty or
// telemetry is disabled.
func New(writeKey, dataDir string, enabled bool) *Logger {
	if !enabled || writeKey == "" {
		return &Logger{}
	}
	client, err := analytics.NewWithConfig(writeKey, analytics.Config{
		Interval:  30 * time.Second,
		BatchSize: 50,
	})
	if err != nil {
		log.Printf("telemetry: disabled: %v", err)
		return &Logger{}
	}
	return &Logger{client: client, anonymousID: anonymousID(dataDir)}
}

// anonymousID returns the installation id stored in dataDir, creating it on
// first use.
func anonymousID(dataDir string) string {
	path := filepath.Join(dataDir, idFile)
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}
	id := uuid.NewString()
	if err := os.MkdirAll(dataDir, 0755); err == nil {
		if err := os.WriteFile(path, []byte(id+"\n"), 0644); err != nil {
			log.Printf("telemetry: could not persist id: %v", err)
		}
	}
	return id
}

// LogUsage records event with props. Failures are logged and dropped.
func (l *Logger) LogUsage(event string, props map[string]interface{}) {
	if l == nil || l.client == nil {
		return
	}
	p := analytics.NewProperties()
	for k, v := range props {
		p.Set(k, v)
	}
	err := l.client.Enqueue(analytics.Track{
		AnonymousId: l.anonymousID,
		Event:       event,
		Properties:  p,
	})
	if err != nil {
		log.Printf("telemetry: %s: %v", event, err)
	}
}

// Close flushes pending events.
func (l *Logger) Close() error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Close()
}
