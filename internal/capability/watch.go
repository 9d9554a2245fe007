package capability

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"ouroboros/internal/logging"
)

// EventKind classifies a change observed in the tools directory.
type EventKind string

const (
	EventAdded    EventKind = "added"
	EventModified EventKind = "modified"
	EventRemoved  EventKind = "removed"
)

// Event reports a capability file change.
type Event struct {
	Kind EventKind
	Name string
	Path string
}

// Watch reports add/modify/remove of capability files until ctx is done.
// Files that do not carry the backend extension or a valid name are ignored.
func (r *Registry) Watch(ctx context.Context, fn func(Event)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(r.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", r.dir, err)
	}
	logging.RegistryDebug("Watching %s", r.dir)

	suffix := "." + r.backend.Extension()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			base := filepath.Base(event.Name)
			if !strings.HasSuffix(base, suffix) {
				continue
			}
			name := strings.TrimSuffix(base, suffix)
			if !validName.MatchString(name) {
				continue
			}

			var kind EventKind
			switch {
			case event.Op&fsnotify.Create != 0:
				kind = EventAdded
			case event.Op&fsnotify.Write != 0:
				kind = EventModified
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				kind = EventRemoved
			default:
				continue
			}
			fn(Event{Kind: kind, Name: name, Path: event.Name})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Get(logging.CategoryRegistry).Warn("Watcher error: %v", err)
		}
	}
}
