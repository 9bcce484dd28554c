package history

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Notifier watches the ledger file and tells subscribers when it changes,
// including changes made by another process.
type Notifier struct {
	path    string
	watcher *fsnotify.Watcher

	mu   sync.Mutex
	subs map[int]chan struct{}
	next int
}

// NewNotifier creates a notifier for the ledger file in dir. The directory is
// created if needed so it can be watched before the first build.
func NewNotifier(dir string) (*Notifier, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// The ledger is replaced by rename, so watch the directory rather than
	// the file itself.
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}
	return &Notifier{
		path:    filepath.Join(dir, FileName),
		watcher: watcher,
		subs:    make(map[int]chan struct{}),
	}, nil
}

// Subscribe returns a channel that receives a value after each change. Bursts
// of changes are coalesced. Call the returned func to unsubscribe.
func (n *Notifier) Subscribe() (<-chan struct{}, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.next
	n.next++
	ch := make(chan struct{}, 1)
	n.subs[id] = ch

	return ch, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if c, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(c)
		}
	}
}

// Run delivers change notifications until ctx is done or the watcher is
// closed.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case event, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			n.handleEvent(event)
		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("history: watcher error: %v", err)
		case <-ctx.Done():
			return
		}
	}
}

func (n *Notifier) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != n.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	n.notify()
}

func (n *Notifier) notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Close stops watching.
func (n *Notifier) Close() error {
	return n.watcher.Close()
}
