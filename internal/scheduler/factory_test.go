package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luascript-server/internal/types"
)

func newFactory(devices fakeDevices) (*Manager, *EventFactory) {
	settings := fakeSettings{}
	m := NewManager(settings)
	return m, NewEventFactory(m, settings, devices, &fakeSun{})
}

func TestEventFactory_CreateTrigger(t *testing.T) {
	_, factory := newFactory(fakeDevices{})

	assert.IsType(t, &TimeTrigger{}, factory.CreateTrigger("time", nil))
	assert.IsType(t, &SuntimeTrigger{}, factory.CreateTrigger("suntime", nil))
	assert.IsType(t, &BlockheaterTrigger{}, factory.CreateTrigger("blockheater", nil))
	assert.Nil(t, factory.CreateTrigger("lunar", nil))
}

func TestEventFactory_CreateCondition(t *testing.T) {
	_, factory := newFactory(fakeDevices{})

	assert.IsType(t, &TimeCondition{}, factory.CreateCondition("time"))
	assert.IsType(t, &WeekdayCondition{}, factory.CreateCondition("weekdays"))
	assert.IsType(t, &SuntimeCondition{}, factory.CreateCondition("suntime"))
	assert.Nil(t, factory.CreateCondition("moonphase"))
}

func TestEventFactory_SensorRouting(t *testing.T) {
	_, factory := newFactory(fakeDevices{5: -10})

	trigger := factory.CreateTrigger("blockheater", nil).(*BlockheaterTrigger)
	trigger.now = func() time.Time {
		return time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	}
	trigger.ParseParam("clientSensorId", "5")
	trigger.ParseParam("hour", "7")
	trigger.ParseParam("minute", "30")
	require.Equal(t, 8, trigger.Minute())

	// a fresh reading for the followed sensor reschedules the trigger
	factory.SensorValueUpdated(5, types.Temperature, 0, types.ScaleCelsius)
	assert.Equal(t, 30, trigger.Minute())

	// humidity and foreign sensors are ignored
	factory.SensorValueUpdated(5, types.Humidity, -30, 0)
	factory.SensorValueUpdated(6, types.Temperature, -30, types.ScaleCelsius)
	assert.Equal(t, 30, trigger.Minute())
}

func TestEventFactory_ClearAll(t *testing.T) {
	m, factory := newFactory(fakeDevices{})

	trigger := factory.CreateTrigger("time", nil)
	trigger.ParseParam("minute", "30")
	trigger.ParseParam("hour", "7")
	require.Len(t, bucketFor(m, 30), 1)

	factory.ClearAll()
	assert.Empty(t, bucketFor(m, 30))
}
