package bridge

import (
	"context"
	"strings"

	"github.com/vkorhonen/h1bridge/internal/codec"
	"github.com/vkorhonen/h1bridge/internal/logging"
	"github.com/vkorhonen/h1bridge/internal/messaging"
)

// Home Assistant MQTT discovery payloads, published retained per entity.

const discoveryPrefix = "homeassistant"

type deviceInfo struct {
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	Name         string   `json:"name"`
	Identifiers  []string `json:"identifiers"`
}

type discoveryPayload struct {
	Name              string     `json:"name"`
	UniqueID          string     `json:"unique_id"`
	StateTopic        string     `json:"state_topic"`
	AvailabilityTopic string     `json:"availability_topic,omitempty"`
	Device            deviceInfo `json:"device"`
	EnabledByDefault  bool       `json:"enabled_by_default"`

	// Sensors
	UnitOfMeasurement string `json:"unit_of_measurement,omitempty"`
	DeviceClass       string `json:"device_class,omitempty"`
	StateClass        string `json:"state_class,omitempty"`
	ExpireAfter       int    `json:"expire_after,omitempty"`

	// Writable controls
	CommandTopic string   `json:"command_topic,omitempty"`
	Min          *int     `json:"min,omitempty"`
	Max          *int     `json:"max,omitempty"`
	Step         *int     `json:"step,omitempty"`
	Options      []string `json:"options,omitempty"`
}

func (b *Bridge) device() deviceInfo {
	return deviceInfo{
		Manufacturer: "SAJ",
		Model:        "H1 hybrid inverter",
		Name:         "H1 " + b.deviceID,
		Identifiers:  []string{"h1bridge_" + b.deviceID},
	}
}

func (b *Bridge) basePayload(key string) discoveryPayload {
	return discoveryPayload{
		Name:              displayName(key),
		UniqueID:          b.deviceID + "_" + key,
		StateTopic:        b.stateTopic(key),
		AvailabilityTopic: b.AvailabilityTopic(),
		Device:            b.device(),
		EnabledByDefault:  true,
	}
}

func (b *Bridge) publishDiscovery(ctx context.Context) {
	// Telemetry sensors; fields that are writable controls become select or
	// number entities below instead.
	expire := 2*int(b.pollInterval.Seconds()) + 5
	for _, block := range b.blocks {
		for _, f := range block.Fields {
			if _, isControl := b.table.Control(f.Key); isControl {
				continue
			}
			p := b.basePayload(f.Key)
			p.UnitOfMeasurement = f.Unit
			p.DeviceClass = f.DeviceClass
			p.StateClass = f.StateClass
			p.ExpireAfter = expire
			b.publishConfig(ctx, "sensor", f.Key, p)
		}
	}

	for _, key := range b.table.ControlKeys() {
		control, _ := b.table.Control(key)
		p := b.basePayload(key)
		p.CommandTopic = b.commandTopic(key)
		switch control.Kind {
		case codec.Enumerated:
			p.Options = b.table.LabelOptions(key)
			b.publishConfig(ctx, "select", key, p)
		case codec.Numeric:
			minV, maxV, step := control.Min, control.Max, control.Step
			p.Min, p.Max, p.Step = &minV, &maxV, &step
			b.publishConfig(ctx, "number", key, p)
		}
	}
	logging.Info("Published discovery metadata", "deviceId", b.deviceID)
}

func (b *Bridge) publishConfig(ctx context.Context, component, key string, p discoveryPayload) {
	topic := discoveryPrefix + "/" + component + "/" + b.deviceID + "_" + key + "/config"
	if err := b.broker.PublishJSON(ctx, topic, messaging.AtLeastOnce, true, p); err != nil {
		logging.Error("Failed to publish discovery config", "topic", topic, "error", err)
	}
}

func displayName(key string) string {
	name := strings.ReplaceAll(key, "_", " ")
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
