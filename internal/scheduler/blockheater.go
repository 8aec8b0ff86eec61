package scheduler

import (
	"math"
	"strconv"

	"luascript-server/internal/types"
)

// BlockheaterTrigger fires early enough before a configured departure time
// to pre-warm an engine, based on the outdoor temperature reported by a
// sensor. The warm-up offset in minutes is 60 + 100*T/(T-35), capped at
// 120; above 10 degrees C no warm-up is needed and the trigger is inactive.
type BlockheaterTrigger struct {
	TimeTrigger

	factory *EventFactory
	devices DeviceProvider

	sensorID        int
	departureHour   int
	departureMinute int
	temp            float64

	hasSensor    bool
	hasDepHour   bool
	hasDepMinute bool
	hasTemp      bool
}

// NewBlockheaterTrigger creates a block-heater trigger
func NewBlockheaterTrigger(factory *EventFactory, manager *Manager, settings Settings, devices DeviceProvider, callback func(ctx map[string]string)) *BlockheaterTrigger {
	t := &BlockheaterTrigger{
		TimeTrigger: *NewTimeTrigger(manager, settings, callback),
		factory:     factory,
		devices:     devices,
	}
	t.reg = t
	// no schedule exists until a temperature is known
	t.active = false
	return t
}

// Close removes the trigger from both the factory's sensor routing list
// and the manager's index
func (t *BlockheaterTrigger) Close() {
	t.factory.deleteBlockheater(t)
	t.manager.Delete(t.reg)
}

// ParseParam consumes one named parameter. The trigger registers itself
// once the sensor id and the departure hour and minute are known.
func (t *BlockheaterTrigger) ParseParam(name, value string) {
	switch name {
	case "clientSensorId":
		v, err := strconv.Atoi(value)
		if err != nil {
			return
		}
		t.sensorID = v
		t.hasSensor = true
	case "hour":
		v, err := strconv.Atoi(value)
		if err != nil {
			return
		}
		t.departureHour = v
		t.hasDepHour = true
	case "minute":
		v, err := strconv.Atoi(value)
		if err != nil {
			return
		}
		t.departureMinute = v
		t.hasDepMinute = true
	}
	if t.hasSensor && t.hasDepHour && t.hasDepMinute {
		t.Recalculate()
		t.manager.Add(t.reg)
	}
}

// SensorID returns the id of the temperature sensor this trigger follows
func (t *BlockheaterTrigger) SensorID() int { return t.sensorID }

// Recalculate re-derives the warm-up start from the last known temperature,
// reading the sensor when no temperature has been observed yet. An
// unreadable sensor leaves the trigger inactive until the next reading.
func (t *BlockheaterTrigger) Recalculate() bool {
	if !t.hasTemp {
		if !t.hasSensor {
			return false
		}
		temp, ok := t.devices.SensorValue(t.sensorID, types.Temperature, types.ScaleCelsius)
		if !ok {
			return false
		}
		t.temp = temp
		t.hasTemp = true
	}
	if t.temp > 10 {
		t.active = false
		return true
	}
	t.active = true

	offset := int(math.Round(60 + 100*t.temp/(t.temp-35)))
	if offset > 120 {
		offset = 120
	}
	minutes := t.departureHour*60 + t.departureMinute - offset
	if minutes < 0 {
		minutes += 24 * 60
	}
	t.setHour = minutes / 60
	t.minute = minutes % 60
	t.hasMinute = true
	t.hasHour = true
	return t.TimeTrigger.Recalculate()
}

// SetTemp records a fresh sensor reading, recomputes the schedule and
// relocates the trigger in the manager's index. The update runs under the
// manager's recalc lock because sensor reports arrive off the ticker
// goroutine.
func (t *BlockheaterTrigger) SetTemp(temp float64) {
	if !t.hasSensor || !t.hasDepHour || !t.hasDepMinute {
		// not registered yet; ParseParam will schedule from this reading
		t.temp = temp
		t.hasTemp = true
		return
	}
	t.manager.Reschedule(t.reg, func() {
		t.temp = temp
		t.hasTemp = true
		t.Recalculate()
	})
}
