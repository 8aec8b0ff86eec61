package devices

// ID returns the device id
func (d *Device) ID() int {
	return d.id
}

// Name returns the configured device name
func (d *Device) Name() string {
	return d.name
}

// SensorValue returns the latest reading of the given kind and scale
func (d *Device) SensorValue(valueType, scale int) (float64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.values[sensorKey{valueType, scale}]
	return v, ok
}

func (d *Device) setValue(valueType int, value float64, scale int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.values == nil {
		d.values = make(map[sensorKey]float64)
	}
	d.values[sensorKey{valueType, scale}] = value
}
