package script

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"luascript-server/internal/logger"
	"luascript-server/internal/mainloop"
)

// State is a script's lifecycle state.
type State int

const (
	StateClosed State = iota
	StateLoading
	StateRunning
	StateIdle
	StateError
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateLoading:
		return "loading"
	case StateRunning:
		return "running"
	case StateIdle:
		return "idle"
	case StateError:
		return "error"
	case StateClosing:
		return "closing"
	}
	return "unknown"
}

// LogSink receives script-originated messages.
type LogSink interface {
	Send(channel, topic string, payload interface{})
}

// task is one unit of work for the worker: either a named signal with
// arguments, or a parked routine being resumed after a sleep.
type task struct {
	name    string
	routine *routine
	args    []interface{}
}

// routine is a cooperative unit of guest execution. gen ties it to the
// interpreter generation it was created under; a routine from an older
// generation is dead and silently dropped.
type routine struct {
	co  *lua.LState
	fn  *lua.LFunction
	gen int
}

// Script supervises one Lua script on a dedicated worker goroutine. The
// worker is the only goroutine that ever enters the interpreter; all host
// interaction from guest code goes through the attribute bridge.
type Script struct {
	Filename string
	Name     string

	bridge      *Bridge
	sink        LogSink
	hostObjects map[string]interface{}

	mu     sync.Mutex
	queue  []task
	timers []*sleepTimer
	wake   chan struct{}

	stateMu sync.Mutex
	state   State

	signalsMu sync.Mutex
	signals   map[string]bool

	// worker-owned, never touched from other goroutines
	code    string
	L       *lua.LState
	gen     int
	running *routine

	done chan struct{}
}

// New creates a script supervisor and starts its worker. The script stays
// CLOSED until the first Load.
func New(filename string, loop *mainloop.Loop, sink LogSink, hostObjects map[string]interface{}) *Script {
	s := &Script{
		Filename:    filename,
		Name:        filepath.Base(filename),
		bridge:      newBridge(loop),
		sink:        sink,
		hostObjects: hostObjects,
		wake:        make(chan struct{}, 1),
		state:       StateClosed,
		signals:     make(map[string]bool),
		done:        make(chan struct{}),
	}
	go s.run()
	return s
}

// Load reads the script source and schedules a (re)load on the worker
func (s *Script) Load() error {
	return s.Reload()
}

// Reload re-reads the script source from disk and schedules a fresh load
func (s *Script) Reload() error {
	data, err := os.ReadFile(s.Filename)
	if err != nil {
		return fmt.Errorf("failed to read script %s: %w", s.Name, err)
	}
	s.mu.Lock()
	s.code = string(data)
	s.mu.Unlock()
	s.setState(StateLoading)
	s.notify()
	return nil
}

// Call dispatches a named signal to the script. The call is dropped
// unless the script is running or idle and the signal is one the script
// declared by defining an on-prefixed global.
func (s *Script) Call(name string, args ...interface{}) {
	if st := s.State(); st != StateRunning && st != StateIdle {
		return
	}
	if !s.accepts(name) {
		return
	}
	s.mu.Lock()
	s.queue = append(s.queue, task{name: name, args: args})
	s.mu.Unlock()
	s.notify()
}

// Shutdown stops the worker and waits for it to exit. Cooperative: a
// routine mid-step finishes its current step first.
func (s *Script) Shutdown() {
	if s.State() == StateClosed {
		select {
		case <-s.done:
			return
		default:
		}
	}
	s.setState(StateClosing)
	s.notify()
	<-s.done
	s.p("Script %s unloaded", s.Name)
}

// State returns the current lifecycle state
func (s *Script) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// Signals returns the recognized signal names, computed at load time
func (s *Script) Signals() []string {
	s.signalsMu.Lock()
	defer s.signalsMu.Unlock()
	out := make([]string, 0, len(s.signals))
	for name := range s.signals {
		out = append(out, name)
	}
	return out
}

func (s *Script) accepts(name string) bool {
	s.signalsMu.Lock()
	defer s.signalsMu.Unlock()
	return s.signals[name]
}

func (s *Script) setState(state State) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
}

func (s *Script) setSignals(names []string) {
	s.signalsMu.Lock()
	defer s.signalsMu.Unlock()
	s.signals = make(map[string]bool, len(names))
	for _, name := range names {
		s.signals[name] = true
	}
}

func (s *Script) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// run is the worker main loop
func (s *Script) run() {
	defer close(s.done)
	for {
		state := s.State()

		var current *task
		s.mu.Lock()
		if state == StateLoading || state == StateClosing {
			// abort sleeping routines; queued tasks stay for after the load
			for _, t := range s.timers {
				t.abort()
			}
			s.timers = nil
		} else if len(s.queue) > 0 {
			t := s.queue[0]
			s.queue = s.queue[1:]
			current = &t
		}
		s.mu.Unlock()

		if current == nil && state != StateLoading && state != StateClosing {
			select {
			case <-s.wake:
			case <-time.After(300 * time.Millisecond):
			}
		}

		if state == StateClosing {
			if s.L != nil {
				s.L.Close()
				s.L = nil
			}
			s.setState(StateClosed)
			return
		}
		if state == StateLoading {
			s.load()
		} else if current != nil {
			s.execute(current)
		}
	}
}

// execute runs one task: start a routine for a named signal, or adopt a
// parked routine and advance it one step
func (s *Script) execute(t *task) {
	if s.L == nil {
		return
	}

	var r *routine
	label := t.name
	if t.routine != nil {
		if t.routine.gen != s.gen {
			// interpreter was replaced while the routine slept
			return
		}
		r = t.routine
		label = "resumed routine"
	} else {
		fn, ok := s.L.GetGlobal(t.name).(*lua.LFunction)
		if !ok {
			return
		}
		co, _ := s.L.NewThread()
		r = &routine{co: co, fn: fn, gen: s.gen}
	}

	args := make([]lua.LValue, len(t.args))
	for i, a := range t.args {
		args[i] = s.bridge.wrap(s.L, a)
	}

	s.running = r
	s.setState(StateRunning)
	if _, err, _ := s.L.Resume(r.co, r.fn, args...); err != nil {
		s.p("Could not execute function %s: %s", label, err.Error())
	}
	s.running = nil
	s.setState(StateIdle)
}

// load builds a fresh sandboxed interpreter and runs the script body
func (s *Script) load() {
	if s.L != nil {
		s.L.Close()
	}
	s.mu.Lock()
	s.gen++
	s.mu.Unlock()

	L := lua.NewState()
	s.L = L

	s.bridge.register(L)
	L.SetGlobal("print", L.NewFunction(s.luaPrint))
	sandbox(L, s.bridge)
	if err := L.DoString(sleepSource); err != nil {
		logger.Error("Failed to install sleep: %v", err)
	}
	L.SetGlobal("suspend", L.NewFunction(s.luaSuspend))
	for name, obj := range s.hostObjects {
		L.SetGlobal(name, s.bridge.wrap(L, obj))
	}

	s.mu.Lock()
	code := s.code
	s.mu.Unlock()

	s.setState(StateRunning)
	if err := L.DoString(code); err != nil {
		s.setState(StateError)
		s.p("Could not execute lua script %s", err.Error())
		return
	}

	// register which signals the script accepts so we never need to
	// enter the interpreter from another goroutine
	var signals []string
	L.G.Global.ForEach(func(key, _ lua.LValue) {
		if name, ok := key.(lua.LString); ok && strings.HasPrefix(string(name), "on") {
			signals = append(signals, string(name))
		}
	})
	s.setSignals(signals)

	s.setState(StateIdle)
	// allow the script to initialize itself
	s.Call("onInit")
	s.p("Script %s loaded", s.Name)
}

// luaSuspend parks the running routine on a one-shot timer; the guest
// yields right after, and the timer's callback re-enqueues the routine
func (s *Script) luaSuspend(L *lua.LState) int {
	ms := L.CheckNumber(1)
	r := s.running
	if r == nil {
		return 0
	}

	t := newSleepTimer(time.Duration(float64(ms)) * time.Millisecond)
	s.mu.Lock()
	s.timers = append(s.timers, t)
	s.mu.Unlock()

	t.start(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.removeTimerLocked(t)
		if r.gen != s.gen {
			// routine belongs to a torn-down interpreter
			return
		}
		s.queue = append(s.queue, task{routine: r})
		s.notify()
	})
	return 0
}

func (s *Script) removeTimerLocked(t *sleepTimer) {
	kept := s.timers[:0]
	for _, cur := range s.timers {
		if cur != t {
			kept = append(kept, cur)
		}
	}
	s.timers = kept
}

// luaPrint formats like the guest expects and forwards to the log sink
func (s *Script) luaPrint(L *lua.LState) int {
	top := L.GetTop()
	if top == 0 {
		return 0
	}
	msg := L.ToString(1)
	args := make([]interface{}, 0, top-1)
	for i := 2; i <= top; i++ {
		args = append(args, unwrap(L.Get(i)))
	}
	s.p(msg, args...)
	return 0
}

// p sends a formatted message to the script log channel, falling back to
// the raw message when the format verbs do not match
func (s *Script) p(msg string, args ...interface{}) {
	logMsg := msg
	if len(args) > 0 {
		if formatted := fmt.Sprintf(msg, args...); !strings.Contains(formatted, "%!") {
			logMsg = formatted
		}
	}
	logger.Debug("[%s] %s", s.Name, logMsg)
	if s.sink != nil {
		s.sink.Send("lua", "log", logMsg)
	}
}
