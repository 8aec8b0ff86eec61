package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDevicesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
devices:
  - id: 1
    name: Outdoor Sensor
    type: sensor
    mqtt:
      state_topic: home/outdoor/state
  - id: 2
    name: Block Heater
    type: switch
    mqtt:
      state_topic: home/heater/state
      command_topic: home/heater/set
`), 0644))

	cfg, err := LoadDevicesYAML(path)
	require.NoError(t, err)
	require.Len(t, cfg.Devices, 2)

	assert.Equal(t, 1, cfg.Devices[0].ID)
	assert.Equal(t, "Outdoor Sensor", cfg.Devices[0].Name)
	assert.Equal(t, "home/outdoor/state", cfg.Devices[0].MQTT.StateTopic)
	assert.Equal(t, "home/heater/set", cfg.Devices[1].MQTT.CommandTopic)
}

func TestLoadDevicesYAML_MissingFile(t *testing.T) {
	_, err := LoadDevicesYAML(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadDevicesYAML_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.yaml")
	require.NoError(t, os.WriteFile(path, []byte("devices: [unclosed"), 0644))

	_, err := LoadDevicesYAML(path)
	assert.Error(t, err)
}

func TestLoadRulesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - name: morning lights
    trigger:
      type: time
      params:
        minute: "30"
        hour: "7"
    conditions:
      - type: weekdays
        params:
          weekdays: "12345"
    action:
      signal: onMorning
      args: [lights]
`), 0644))

	cfg, err := LoadRulesYAML(path)
	require.NoError(t, err)
	require.Len(t, cfg.Rules, 1)

	rule := cfg.Rules[0]
	assert.Equal(t, "morning lights", rule.Name)
	assert.Equal(t, "time", rule.Trigger.Type)
	assert.Equal(t, "30", rule.Trigger.Params["minute"])
	require.Len(t, rule.Conditions, 1)
	assert.Equal(t, "12345", rule.Conditions[0].Params["weekdays"])
	assert.Equal(t, "onMorning", rule.Action.Signal)
	assert.Equal(t, []string{"lights"}, rule.Action.Args)
}

func TestLoadRulesYAML_MissingFileYieldsEmptySet(t *testing.T) {
	cfg, err := LoadRulesYAML(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Rules)
}
