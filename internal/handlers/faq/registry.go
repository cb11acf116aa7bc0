package faq

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Factory builds a dynamic skill handler for a device instance discovered
// under a watched directory. The registry stores a constructor rather than
// instances, so it stays agnostic to what a given skill handler actually
// does.
type Factory func(deviceID string, topics []*Topic) *Handler

// DeviceSkillRegistry attaches and detaches dynamically-loaded skill
// handlers (device kind `org.thingpedia.dialogue-handler`) as FAQ
// pack directories appear and disappear under a watched root. Each
// subdirectory of root is treated as one device instance's topic pack.
type DeviceSkillRegistry struct {
	mu       sync.Mutex
	root     string
	factory  Factory
	active   map[string]*Handler // deviceID -> handler
	watcher  *fsnotify.Watcher
	priority int
	icon     string
}

// NewDeviceSkillRegistry creates a registry rooted at root. Call Start to
// begin watching; Close stops the watcher.
func NewDeviceSkillRegistry(root string, priority int, icon string, factory Factory) *DeviceSkillRegistry {
	if factory == nil {
		factory = func(deviceID string, topics []*Topic) *Handler {
			return New(deviceID, priority, icon, topics)
		}
	}
	return &DeviceSkillRegistry{
		root:     root,
		factory:  factory,
		active:   make(map[string]*Handler),
		priority: priority,
		icon:     icon,
	}
}

// Start performs an initial scan of root (attaching any existing device
// subdirectories) and begins watching for new/removed ones.
func (r *DeviceSkillRegistry) Start() error {
	entries, err := filepath.Glob(filepath.Join(r.root, "*"))
	if err != nil {
		return fmt.Errorf("faq: registry: initial scan: %w", err)
	}
	for _, e := range entries {
		r.attach(filepath.Base(e))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("faq: registry: create watcher: %w", err)
	}
	if err := watcher.Add(r.root); err != nil {
		watcher.Close()
		return fmt.Errorf("faq: registry: watch %s: %w", r.root, err)
	}
	r.mu.Lock()
	r.watcher = watcher
	r.mu.Unlock()

	go r.watchLoop(watcher)
	return nil
}

func (r *DeviceSkillRegistry) watchLoop(watcher *fsnotify.Watcher) {
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			deviceID := filepath.Base(ev.Name)
			switch {
			case ev.Op&(fsnotify.Create) != 0:
				r.attach(deviceID)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				r.detach(deviceID)
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (r *DeviceSkillRegistry) attach(deviceID string) {
	if strings.TrimSpace(deviceID) == "" {
		return
	}
	topics, err := LoadTopicsFromDir(filepath.Join(r.root, deviceID))
	if err != nil && topics == nil {
		return
	}
	h := r.factory(deviceID, topics)

	r.mu.Lock()
	r.active[deviceID] = h
	r.mu.Unlock()
}

func (r *DeviceSkillRegistry) detach(deviceID string) {
	r.mu.Lock()
	delete(r.active, deviceID)
	r.mu.Unlock()
}

// Handlers returns a snapshot of the currently attached dynamic handlers.
// The loop does not read this registry: its handler set is fixed when the
// loop is constructed.
func (r *DeviceSkillRegistry) Handlers() []*Handler {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Handler, 0, len(r.active))
	for _, h := range r.active {
		out = append(out, h)
	}
	return out
}

// Close stops the filesystem watcher.
func (r *DeviceSkillRegistry) Close() error {
	r.mu.Lock()
	w := r.watcher
	r.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Close()
}
