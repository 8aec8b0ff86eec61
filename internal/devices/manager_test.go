package devices

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luascript-server/internal/types"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func testDevices() []*types.Device {
	return []*types.Device{
		{ID: 5, Name: "Outdoor Sensor", Type: "sensor",
			MQTT: types.MQTTConfig{StateTopic: "home/outdoor/state"}},
		{ID: 2, Name: "Garage Sensor", Type: "sensor",
			MQTT: types.MQTTConfig{StateTopic: "home/garage/state"}},
	}
}

func TestManager_DeviceLookup(t *testing.T) {
	m := New(nil, testDevices())

	require.NotNil(t, m.Device(5))
	assert.Equal(t, "Outdoor Sensor", m.Device(5).Name())
	assert.Equal(t, 5, m.Device(5).ID())
	assert.Nil(t, m.Device(99))

	devs := m.Devices()
	require.Len(t, devs, 2)
	assert.Equal(t, 5, devs[0].ID(), "declaration order is kept")
	assert.Equal(t, 2, devs[1].ID())
}

func TestManager_SensorValueUnknown(t *testing.T) {
	m := New(nil, testDevices())

	_, ok := m.SensorValue(5, types.Temperature, types.ScaleCelsius)
	assert.False(t, ok, "no reading reported yet")

	_, ok = m.SensorValue(99, types.Temperature, types.ScaleCelsius)
	assert.False(t, ok, "unknown device")
}

func TestManager_StateHandlerParsesReadings(t *testing.T) {
	m := New(nil, testDevices())

	type update struct {
		deviceID  int
		valueType int
		value     float64
	}
	var updates []update
	m.AddSensorListener(func(deviceID, valueType int, value float64, scale int) {
		updates = append(updates, update{deviceID, valueType, value})
	})

	handler := m.makeStateHandler(m.Device(5))
	handler(nil, fakeMessage{topic: "home/outdoor/state",
		payload: []byte(`{"temperature": -7.5, "humidity": 81}`)})

	temp, ok := m.SensorValue(5, types.Temperature, types.ScaleCelsius)
	require.True(t, ok)
	assert.Equal(t, -7.5, temp)

	hum, ok := m.SensorValue(5, types.Humidity, 0)
	require.True(t, ok)
	assert.Equal(t, 81.0, hum)

	require.Len(t, updates, 2)
	assert.Equal(t, update{5, types.Temperature, -7.5}, updates[0])
	assert.Equal(t, update{5, types.Humidity, 81}, updates[1])
}

func TestManager_StateHandlerIgnoresBadPayloads(t *testing.T) {
	m := New(nil, testDevices())

	handler := m.makeStateHandler(m.Device(5))
	handler(nil, fakeMessage{payload: []byte(`not json`)})
	handler(nil, fakeMessage{payload: []byte(`{"temperature": "warm"}`)})

	_, ok := m.SensorValue(5, types.Temperature, types.ScaleCelsius)
	assert.False(t, ok)
}

func TestManager_SubscribeWithoutClient(t *testing.T) {
	m := New(nil, testDevices())
	assert.NoError(t, m.Subscribe(), "missing MQTT client degrades gracefully")
}
