package scheduler

import (
	"sync"

	"luascript-server/internal/logger"
	"luascript-server/internal/types"
)

// EventFactory constructs triggers and conditions by type name for the
// rule engine and routes temperature updates to block-heater triggers.
type EventFactory struct {
	manager  *Manager
	settings Settings
	devices  DeviceProvider
	sun      RiseSetSource

	mu           sync.Mutex
	blockheaters []*BlockheaterTrigger
}

// NewEventFactory creates an event factory
func NewEventFactory(manager *Manager, settings Settings, devices DeviceProvider, sun RiseSetSource) *EventFactory {
	return &EventFactory{
		manager:  manager,
		settings: settings,
		devices:  devices,
		sun:      sun,
	}
}

// CreateTrigger builds a trigger of the named type, or nil for an unknown
// type. The callback is invoked with the trigger context when it fires.
func (f *EventFactory) CreateTrigger(kind string, callback func(ctx map[string]string)) Trigger {
	switch kind {
	case "time":
		return NewTimeTrigger(f.manager, f.settings, callback)
	case "suntime":
		return NewSuntimeTrigger(f.manager, f.settings, f.sun, callback)
	case "blockheater":
		t := NewBlockheaterTrigger(f, f.manager, f.settings, f.devices, callback)
		f.mu.Lock()
		f.blockheaters = append(f.blockheaters, t)
		f.mu.Unlock()
		return t
	}
	return nil
}

// CreateCondition builds a condition of the named type, or nil for an
// unknown type
func (f *EventFactory) CreateCondition(kind string) Condition {
	switch kind {
	case "time":
		return NewTimeCondition(f.settings)
	case "weekdays":
		return NewWeekdayCondition(f.settings)
	case "suntime":
		return NewSuntimeCondition(f.settings, f.sun)
	}
	return nil
}

// ClearAll drops every trigger from the manager
func (f *EventFactory) ClearAll() {
	f.manager.ClearAll()
}

// RecalcTrigger forces recalculation of all triggers, used when timezone
// or coordinate settings change
func (f *EventFactory) RecalcTrigger() {
	f.manager.RecalcAll()
}

// SensorValueUpdated routes a temperature reading to the block-heater
// trigger following that sensor. Satisfies devices.SensorListener.
func (f *EventFactory) SensorValueUpdated(deviceID, valueType int, value float64, scale int) {
	if valueType != types.Temperature {
		return
	}

	f.mu.Lock()
	triggers := append([]*BlockheaterTrigger(nil), f.blockheaters...)
	f.mu.Unlock()

	for _, t := range triggers {
		if t.SensorID() == deviceID {
			logger.Debug("Routing temperature %.1f to block-heater trigger (sensor %d)", value, deviceID)
			t.SetTemp(value)
			break
		}
	}
}

func (f *EventFactory) deleteBlockheater(t *BlockheaterTrigger) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.blockheaters[:0]
	for _, cur := range f.blockheaters {
		if cur != t {
			kept = append(kept, cur)
		}
	}
	f.blockheaters = kept
}
