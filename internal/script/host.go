package script

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"luascript-server/internal/logger"
	"luascript-server/internal/mainloop"
)

// Host owns the set of loaded scripts and fans signals out to them.
type Host struct {
	loop        *mainloop.Loop
	sink        LogSink
	hostObjects map[string]interface{}

	mu      sync.Mutex
	scripts map[string]*Script
}

// NewHost creates a script host. hostObjects are exposed as globals in
// every script.
func NewHost(loop *mainloop.Loop, sink LogSink, hostObjects map[string]interface{}) *Host {
	return &Host{
		loop:        loop,
		sink:        sink,
		hostObjects: hostObjects,
		scripts:     make(map[string]*Script),
	}
}

// LoadDir loads every .lua file in dir, in name order
func (h *Host) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".lua" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		h.Add(filepath.Join(dir, name))
	}
	return nil
}

// Add loads a single script file. A script already loaded under the same
// name is reloaded instead.
func (h *Host) Add(path string) *Script {
	name := filepath.Base(path)

	h.mu.Lock()
	s, ok := h.scripts[name]
	h.mu.Unlock()

	if ok {
		if err := s.Reload(); err != nil {
			logger.Error("Could not reload script %s: %v", name, err)
		}
		return s
	}

	s = New(path, h.loop, h.sink, h.hostObjects)
	h.mu.Lock()
	h.scripts[name] = s
	h.mu.Unlock()

	if err := s.Load(); err != nil {
		logger.Error("Could not load script %s: %v", name, err)
	}
	return s
}

// Get returns the script loaded under the given file name, or nil
func (h *Host) Get(name string) *Script {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.scripts[name]
}

// Broadcast dispatches a signal to every loaded script. Scripts that do
// not declare the signal ignore it.
func (h *Host) Broadcast(signal string, args ...interface{}) {
	h.mu.Lock()
	scripts := make([]*Script, 0, len(h.scripts))
	for _, s := range h.scripts {
		scripts = append(scripts, s)
	}
	h.mu.Unlock()

	for _, s := range scripts {
		s.Call(signal, args...)
	}
}

// Shutdown stops every script and waits for their workers to exit
func (h *Host) Shutdown() {
	h.mu.Lock()
	scripts := make([]*Script, 0, len(h.scripts))
	for _, s := range h.scripts {
		scripts = append(scripts, s)
	}
	h.scripts = make(map[string]*Script)
	h.mu.Unlock()

	for _, s := range scripts {
		s.Shutdown()
	}
}
