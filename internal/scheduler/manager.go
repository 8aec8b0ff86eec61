package scheduler

import (
	"sync"
	"time"

	"luascript-server/internal/logger"
	"luascript-server/internal/suncalc"
)

// Settings supplies configuration values by key with a caller default.
type Settings interface {
	Get(key, def string) string
}

// RiseSetSource computes sunrise/sunset epochs for a location.
type RiseSetSource interface {
	Riseset(utc int64, latitude, longitude float64) suncalc.RiseSet
	NextRiseSet(utc int64, latitude, longitude float64) suncalc.RiseSet
}

// DeviceProvider reads sensor values from the device manager.
type DeviceProvider interface {
	SensorValue(deviceID, valueType, scale int) (float64, bool)
}

// Trigger is the scheduling contract held by the manager. Implementations
// file themselves into the minute index once their parameters are complete.
type Trigger interface {
	ParseParam(name, value string)
	Minute() int
	Hour() int
	Active() bool
	Recalculate() bool
	Fire(ctx map[string]string)
	Close()
}

// Condition is a stateless predicate evaluated by the rule engine. Exactly
// one of the two continuations is invoked, synchronously.
type Condition interface {
	ParseParam(name, value string)
	Validate(success, failure func())
}

// Manager holds the minute-bucketed trigger index and fires triggers when
// their scheduled minute arrives. A background ticker samples the clock
// every five seconds and processes each minute at most once.
type Manager struct {
	settings Settings
	now      func() time.Time

	// recalcLock serializes minute processing, recalculation and timezone
	// access; trigger fields are only mutated while it is held.
	recalcLock sync.Mutex
	timezone   string

	timeLock sync.Mutex
	triggers map[int][]Trigger

	lastMinute int
	stopChan   chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// NewManager creates a trigger manager
func NewManager(settings Settings) *Manager {
	return &Manager{
		settings:   settings,
		timezone:   settings.Get("tz", "UTC"),
		now:        time.Now,
		triggers:   make(map[int][]Trigger),
		lastMinute: -1,
		stopChan:   make(chan struct{}),
	}
}

// Start begins the background ticker
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.run()
	logger.Info("Trigger manager started")
}

// Stop stops the background ticker
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
	m.wg.Wait()
	logger.Info("Trigger manager stopped")
}

// Add inserts a trigger under its current minute
func (m *Manager) Add(t Trigger) {
	m.timeLock.Lock()
	defer m.timeLock.Unlock()
	minute := t.Minute()
	m.triggers[minute] = append(m.triggers[minute], t)
}

// Delete removes a trigger from whichever bucket contains it
func (m *Manager) Delete(t Trigger) {
	m.timeLock.Lock()
	defer m.timeLock.Unlock()
	for minute, bucket := range m.triggers {
		kept := bucket[:0]
		for _, cur := range bucket {
			if cur != t {
				kept = append(kept, cur)
			}
		}
		m.triggers[minute] = kept
	}
}

// ClearAll drops every trigger
func (m *Manager) ClearAll() {
	m.timeLock.Lock()
	defer m.timeLock.Unlock()
	m.triggers = make(map[int][]Trigger)
}

// Reschedule runs update under the recalc lock, then moves the trigger to
// the bucket of its resulting minute. Used by triggers whose schedule is
// driven by external input rather than the clock.
func (m *Manager) Reschedule(t Trigger, update func()) {
	m.recalcLock.Lock()
	defer m.recalcLock.Unlock()
	m.Delete(t)
	update()
	m.Add(t)
}

// RecalcAll recomputes every trigger and relocates those whose minute
// changed. Used when timezone or coordinates settings change.
func (m *Manager) RecalcAll() {
	m.recalcLock.Lock()
	defer m.recalcLock.Unlock()
	m.timezone = m.settings.Get("tz", "UTC")

	snapshot := m.snapshot()
	moved := make(map[int][]Trigger)
	for minute, bucket := range snapshot {
		for _, t := range bucket {
			if t.Recalculate() {
				moved[minute] = append(moved[minute], t)
			}
		}
	}

	m.timeLock.Lock()
	defer m.timeLock.Unlock()
	for minute, ts := range moved {
		for _, t := range ts {
			m.removeLocked(minute, t)
			m.triggers[t.Minute()] = append(m.triggers[t.Minute()], t)
		}
	}
}

func (m *Manager) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

// tick samples the local clock and processes the bucket when the minute
// has changed since the previous observation.
func (m *Manager) tick() {
	m.recalcLock.Lock()
	defer m.recalcLock.Unlock()
	localNow := m.now().In(m.location())
	minute := localNow.Minute()
	if minute == m.lastMinute {
		return
	}
	m.lastMinute = minute
	m.processMinute(minute, localNow.Hour())
}

// processMinute fires every matching trigger in the minute's bucket. The
// bucket is read as a snapshot so firing happens without the index lock;
// relocations requested by sun recalculation are applied afterwards.
func (m *Manager) processMinute(minute, hour int) {
	m.timeLock.Lock()
	bucket := append([]Trigger(nil), m.triggers[minute]...)
	m.timeLock.Unlock()

	var moved []Trigger
	for _, t := range bucket {
		if t.Hour() != -1 && t.Hour() != hour {
			continue
		}

		triggerType := "time"
		switch t.(type) {
		case *SuntimeTrigger:
			triggerType = "suntime"
		case *BlockheaterTrigger:
			triggerType = "blockheater"
		}

		if st, ok := t.(*SuntimeTrigger); ok && st.Recalculate() {
			// sun time or active status changed, relocate after the pass
			moved = append(moved, t)
		}
		if t.Active() {
			t.Fire(map[string]string{"triggertype": triggerType})
		}
	}

	m.timeLock.Lock()
	defer m.timeLock.Unlock()
	for _, t := range moved {
		m.removeLocked(minute, t)
		if !t.Active() {
			continue
		}
		m.triggers[t.Minute()] = append(m.triggers[t.Minute()], t)
	}
}

func (m *Manager) removeLocked(minute int, t Trigger) {
	bucket := m.triggers[minute]
	kept := bucket[:0]
	for _, cur := range bucket {
		if cur != t {
			kept = append(kept, cur)
		}
	}
	m.triggers[minute] = kept
}

func (m *Manager) snapshot() map[int][]Trigger {
	m.timeLock.Lock()
	defer m.timeLock.Unlock()
	out := make(map[int][]Trigger, len(m.triggers))
	for minute, bucket := range m.triggers {
		out[minute] = append([]Trigger(nil), bucket...)
	}
	return out
}

// location resolves the configured timezone; the caller holds recalcLock
func (m *Manager) location() *time.Location {
	loc, err := time.LoadLocation(m.timezone)
	if err != nil {
		logger.Warn("Unknown timezone %q, falling back to UTC", m.timezone)
		return time.UTC
	}
	return loc
}
