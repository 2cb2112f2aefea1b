package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// BridgeConfig is resolved once at startup and treated as immutable by
// everything downstream.
type BridgeConfig struct {
	DeviceID    string `mapstructure:"device_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`

	MQTTURL      string `mapstructure:"mqtt_url"`
	MQTTUsername string `mapstructure:"mqtt_username"`
	MQTTPassword string `mapstructure:"mqtt_password"`

	InverterAddr      string `mapstructure:"inverter_addr"`
	InverterPort      int    `mapstructure:"inverter_port"`
	InverterUnitID    uint8  `mapstructure:"inverter_unit_id"`
	InverterTimeoutMs int    `mapstructure:"inverter_timeout_ms"`

	PollIntervalMs int `mapstructure:"poll_interval_ms"`

	// MetricsAddr enables the Prometheus listener when non-empty, e.g. ":9090".
	MetricsAddr string `mapstructure:"metrics_addr"`
}

func (c BridgeConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c BridgeConfig) InverterTimeout() time.Duration {
	return time.Duration(c.InverterTimeoutMs) * time.Millisecond
}

func (c BridgeConfig) InverterTarget() string {
	return fmt.Sprintf("%s:%d", c.InverterAddr, c.InverterPort)
}

// Load binds the BRIDGE_* environment variables with defaults and validates
// the result. Missing inverter address is the only fatal startup condition.
func Load() (*BridgeConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("bridge")
	v.AutomaticEnv()

	v.SetDefault("device_id", "One")
	v.SetDefault("topic_prefix", "h1")
	v.SetDefault("mqtt_url", "tcp://localhost:1883")
	v.SetDefault("mqtt_username", "")
	v.SetDefault("mqtt_password", "")
	v.SetDefault("inverter_addr", "")
	v.SetDefault("inverter_port", 502)
	v.SetDefault("inverter_unit_id", 1)
	v.SetDefault("inverter_timeout_ms", 2000)
	v.SetDefault("poll_interval_ms", 10000)
	v.SetDefault("metrics_addr", "")

	var cfg BridgeConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *BridgeConfig) Validate() error {
	var errs multiErr

	if strings.TrimSpace(c.InverterAddr) == "" {
		errs.add("inverter_addr is required")
	}
	if c.InverterPort <= 0 || c.InverterPort > 65535 {
		errs.addf("inverter_port out of range: %d", c.InverterPort)
	}
	if c.PollIntervalMs <= 0 {
		errs.addf("poll_interval_ms must be > 0, got %d", c.PollIntervalMs)
	}
	if c.InverterTimeoutMs <= 0 {
		errs.addf("inverter_timeout_ms must be > 0, got %d", c.InverterTimeoutMs)
	}
	if strings.TrimSpace(c.DeviceID) == "" {
		errs.add("device_id cannot be empty")
	}
	if strings.ContainsAny(c.DeviceID, "/#+") {
		errs.addf("device_id %q contains MQTT topic characters", c.DeviceID)
	}
	if strings.TrimSpace(c.TopicPrefix) == "" {
		errs.add("topic_prefix cannot be empty")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

type multiErr []string

func (m *multiErr) add(s string)            { *m = append(*m, s) }
func (m *multiErr) addf(f string, a ...any) { *m = append(*m, fmt.Sprintf(f, a...)) }
func (m multiErr) Error() string            { return "validation errors: " + strings.Join(m, "; ") }
