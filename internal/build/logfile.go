package build

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/bootcforge/bootcforge/pkg/types"
)

const logSeparator = "----------\n"

// LogPath returns the build log location for an output folder.
func LogPath(folder string) string {
	return filepath.Join(folder, LogFileName)
}

// prepareLog makes sure folder exists and removes the log of a previous
// attempt.
func prepareLog(folder string) (string, error) {
	if err := os.MkdirAll(folder, 0755); err != nil {
		return "", newError(KindFileSystem, fmt.Sprintf("Unable to create output folder %s", folder), err)
	}
	logPath := LogPath(folder)
	if err := os.Remove(logPath); err != nil && !os.IsNotExist(err) {
		return "", newError(KindFileSystem, fmt.Sprintf("Unable to remove previous log %s", logPath), err)
	}
	return logPath, nil
}

// logHeader renders the preamble written before the builder output.
func logHeader(rec types.BuildRecord, spec ContainerSpec) string {
	typeNames := make([]string, len(rec.Type))
	for i, t := range rec.Type {
		typeNames[i] = string(t)
	}

	var b strings.Builder
	b.WriteString("Build Image Log " + logSeparator)
	b.WriteString("ID:     " + rec.ID + "\n")
	b.WriteString("Image:  " + rec.Image + "\n")
	b.WriteString("Type:   " + strings.Join(typeNames, ",") + "\n")
	b.WriteString("Folder: " + rec.Folder + "\n")
	b.WriteString(logSeparator)
	if data, err := json.MarshalIndent(spec, "", "  "); err == nil {
		b.Write(data)
	}
	b.WriteString("\n" + logSeparator)
	b.WriteString(PodmanRunCommand(spec))
	b.WriteString("\n" + logSeparator)
	return b.String()
}

// writeLog replaces the log file with content. Failures are logged and
// returned for inspection only.
func writeLog(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		werr := newError(KindLogWrite, "Could not write bootc build log", err)
		log.Printf("build: %v", werr)
		return werr
	}
	return nil
}

// logAppender appends chunks to the log file from its own goroutine so the
// log stream reader never blocks on disk I/O. Chunks that arrive while the
// queue is full are dropped; the complete log is rewritten at the end of
// the build.
type logAppender struct {
	path  string
	queue chan string
	done  chan struct{}
}

func newLogAppender(path string) *logAppender {
	a := &logAppender{
		path:  path,
		queue: make(chan string, 256),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *logAppender) run() {
	defer close(a.done)
	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("build: could not open build log for append: %v", err)
		for range a.queue {
		}
		return
	}
	defer f.Close()
	for chunk := range a.queue {
		if _, err := f.WriteString(chunk); err != nil {
			log.Printf("build: could not append to build log: %v", err)
		}
	}
}

// Append queues a chunk without blocking.
func (a *logAppender) Append(chunk string) {
	select {
	case a.queue <- chunk:
	default:
	}
}

// Close flushes queued chunks and stops the appender.
func (a *logAppender) Close() {
	close(a.queue)
	<-a.done
}
