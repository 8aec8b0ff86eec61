package types

import "time"

// Sensor value kinds reported by devices.
const (
	Temperature = 1
	Humidity    = 2
)

// Temperature scales.
const (
	ScaleCelsius    = 0
	ScaleFahrenheit = 1
)

// Device is a sensor or actuator declared in devices.yaml.
type Device struct {
	ID   int        `yaml:"id"`
	Name string     `yaml:"name"`
	Type string     `yaml:"type"`
	MQTT MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig holds MQTT-specific configuration for a device
type MQTTConfig struct {
	StateTopic   string `yaml:"state_topic"`
	CommandTopic string `yaml:"command_topic,omitempty"`
}

// DevicesConfig is the root device configuration structure
type DevicesConfig struct {
	Devices   []*Device `yaml:"devices"`
	Generated time.Time `yaml:"generated,omitempty"`
}

// Rule binds one trigger to a set of conditions and a script signal.
type Rule struct {
	Name       string          `yaml:"name"`
	Trigger    RuleTrigger     `yaml:"trigger"`
	Conditions []RuleCondition `yaml:"conditions,omitempty"`
	Action     RuleAction      `yaml:"action"`
}

// RuleTrigger names a trigger type and its parameters
type RuleTrigger struct {
	Type   string            `yaml:"type"`
	Params map[string]string `yaml:"params"`
}

// RuleCondition names a condition type and its parameters
type RuleCondition struct {
	Type   string            `yaml:"type"`
	Params map[string]string `yaml:"params"`
}

// RuleAction is the script signal dispatched when the rule fires
type RuleAction struct {
	Signal string   `yaml:"signal"`
	Args   []string `yaml:"args,omitempty"`
}

// RulesConfig is the root rule configuration structure
type RulesConfig struct {
	Rules []*Rule `yaml:"rules"`
}
