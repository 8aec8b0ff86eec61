package devices

import (
	"encoding/json"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"luascript-server/internal/logger"
	"luascript-server/internal/types"
)

// SensorListener receives sensor value updates.
type SensorListener func(deviceID, valueType int, value float64, scale int)

type sensorKey struct {
	valueType int
	scale     int
}

// Manager tracks devices declared in devices.yaml and their latest sensor
// readings, fed from MQTT state topics.
type Manager struct {
	client    mqtt.Client
	mu        sync.RWMutex
	devices   map[int]*Device
	order     []int
	listeners []SensorListener
}

// Device is the runtime view of a configured device. Its exported methods
// are reachable from scripts through the attribute bridge.
type Device struct {
	id     int
	name   string
	config *types.Device

	mu     sync.RWMutex
	values map[sensorKey]float64
}

// New creates a device manager for the configured devices
func New(client mqtt.Client, devs []*types.Device) *Manager {
	m := &Manager{
		client:  client,
		devices: make(map[int]*Device),
	}
	for _, dev := range devs {
		m.devices[dev.ID] = &Device{id: dev.ID, name: dev.Name, config: dev}
		m.order = append(m.order, dev.ID)
	}
	return m
}

// SetClient updates the MQTT client reference
func (m *Manager) SetClient(client mqtt.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.client = client
}

// AddSensorListener registers a callback for sensor value updates
func (m *Manager) AddSensorListener(l SensorListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Device returns the device with the given id, or nil
func (m *Manager) Device(id int) *Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.devices[id]
}

// Devices returns all devices in declaration order
func (m *Manager) Devices() []*Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	devs := make([]*Device, 0, len(m.order))
	for _, id := range m.order {
		devs = append(devs, m.devices[id])
	}
	return devs
}

// SensorValue returns the latest reading for a device, or false when the
// device is unknown or has never reported that value kind.
func (m *Manager) SensorValue(deviceID, valueType, scale int) (float64, bool) {
	dev := m.Device(deviceID)
	if dev == nil {
		return 0, false
	}
	return dev.SensorValue(valueType, scale)
}

// Subscribe subscribes to the state topics of all devices
func (m *Manager) Subscribe() error {
	m.mu.RLock()
	client := m.client
	devs := make([]*Device, 0, len(m.devices))
	for _, d := range m.devices {
		devs = append(devs, d)
	}
	m.mu.RUnlock()

	if client == nil {
		logger.Warn("No MQTT client, sensor updates disabled")
		return nil
	}

	for _, dev := range devs {
		topic := dev.config.MQTT.StateTopic
		if topic == "" {
			continue
		}

		token := client.Subscribe(topic, 0, m.makeStateHandler(dev))
		if token.Wait() && token.Error() != nil {
			logger.Warn("Failed to subscribe to %s: %v", topic, token.Error())
			continue
		}
		logger.Debug("Subscribed to device %d (%s)", dev.id, topic)
	}
	return nil
}

func (m *Manager) makeStateHandler(dev *Device) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		var state map[string]interface{}
		if err := json.Unmarshal(msg.Payload(), &state); err != nil {
			logger.Debug("Skipping non-JSON message from device %d: %v", dev.id, err)
			return
		}

		if v, ok := state["temperature"]; ok {
			if temp, ok := v.(float64); ok {
				m.updateSensor(dev, types.Temperature, temp, types.ScaleCelsius)
			}
		}
		if v, ok := state["humidity"]; ok {
			if hum, ok := v.(float64); ok {
				m.updateSensor(dev, types.Humidity, hum, 0)
			}
		}
	}
}

func (m *Manager) updateSensor(dev *Device, valueType int, value float64, scale int) {
	dev.setValue(valueType, value, scale)

	m.mu.RLock()
	listeners := append([]SensorListener(nil), m.listeners...)
	m.mu.RUnlock()

	logger.Debug("Sensor update: device %d type %d value %.1f", dev.id, valueType, value)
	for _, l := range listeners {
		l(dev.id, valueType, value, scale)
	}
}
