package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BRIDGE_INVERTER_ADDR", "10.0.0.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "One", cfg.DeviceID)
	assert.Equal(t, "h1", cfg.TopicPrefix)
	assert.Equal(t, "10.0.0.5:502", cfg.InverterTarget())
	assert.Equal(t, 10*time.Second, cfg.PollInterval())
	assert.Equal(t, 2*time.Second, cfg.InverterTimeout())
	assert.Equal(t, uint8(1), cfg.InverterUnitID)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BRIDGE_INVERTER_ADDR", "192.168.1.20")
	t.Setenv("BRIDGE_INVERTER_PORT", "1502")
	t.Setenv("BRIDGE_DEVICE_ID", "Garage")
	t.Setenv("BRIDGE_POLL_INTERVAL_MS", "5000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.20:1502", cfg.InverterTarget())
	assert.Equal(t, "Garage", cfg.DeviceID)
	assert.Equal(t, 5*time.Second, cfg.PollInterval())
}

func TestLoadMissingInverterAddr(t *testing.T) {
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inverter_addr is required")
}

func TestValidateRejectsTopicCharacters(t *testing.T) {
	cfg := BridgeConfig{
		DeviceID:          "bad/id",
		TopicPrefix:       "h1",
		InverterAddr:      "10.0.0.5",
		InverterPort:      502,
		InverterTimeoutMs: 2000,
		PollIntervalMs:    1000,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MQTT topic characters")
}
