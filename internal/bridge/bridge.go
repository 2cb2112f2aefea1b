package bridge

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vkorhonen/h1bridge/internal/codec"
	"github.com/vkorhonen/h1bridge/internal/logging"
	"github.com/vkorhonen/h1bridge/internal/messaging"
	"github.com/vkorhonen/h1bridge/internal/metrics"
)

// autoconfInterval is how often retained discovery metadata is refreshed.
const autoconfInterval = 4 * time.Hour

// RegisterWriter is the poller's write-through entry point.
type RegisterWriter interface {
	WriteRegister(address, value uint16) error
}

// Bridge maps telemetry snapshots and inbound command strings onto the MQTT
// surface: per-key state topics out, `<prefix>/<id>/set/<key>` commands in.
type Bridge struct {
	broker       messaging.Broker
	table        *codec.Table
	blocks       []codec.BlockLayout
	writer       RegisterWriter
	deviceID     string
	prefix       string
	pollInterval time.Duration

	mu           sync.Mutex
	lastAutoconf time.Time

	now func() time.Time
}

func New(broker messaging.Broker, table *codec.Table, blocks []codec.BlockLayout,
	writer RegisterWriter, deviceID, prefix string, pollInterval time.Duration) *Bridge {
	return &Bridge{
		broker:       broker,
		table:        table,
		blocks:       blocks,
		writer:       writer,
		deviceID:     deviceID,
		prefix:       prefix,
		pollInterval: pollInterval,
		now:          time.Now,
	}
}

func (b *Bridge) stateTopic(key string) string {
	return b.prefix + "/" + b.deviceID + "/" + key
}

func (b *Bridge) commandTopic(key string) string {
	return b.prefix + "/" + b.deviceID + "/set/" + key
}

// AvailabilityTopic carries "online"/"offline" and doubles as the MQTT
// last-will target.
func (b *Bridge) AvailabilityTopic() string {
	return b.prefix + "/" + b.deviceID + "/bridge/state"
}

// Start subscribes to the command topic and announces availability.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.broker.Subscribe(ctx, b.prefix+"/"+b.deviceID+"/set/+", messaging.AtLeastOnce, b.HandleCommand); err != nil {
		return err
	}
	return b.PublishOnline(ctx)
}

func (b *Bridge) PublishOnline(ctx context.Context) error {
	return b.broker.Publish(ctx, b.AvailabilityTopic(), messaging.AtLeastOnce, true, []byte("online"))
}

// OnSnapshot publishes one poll cycle. Discovery metadata is refreshed first
// whenever it is older than autoconfInterval.
func (b *Bridge) OnSnapshot(snap *codec.TelemetrySnapshot) {
	ctx := context.Background()
	b.ensureDiscovery(ctx)

	for _, r := range snap.Readings {
		payload := b.renderValue(r)
		if err := b.broker.Publish(ctx, b.stateTopic(r.Key), messaging.FireAndForget, false, []byte(payload)); err != nil {
			logging.Warn("Publish failed", "key", r.Key, "error", err)
			metrics.PublishErrors.Inc()
			continue
		}
		metrics.PublishedMessages.Inc()
	}
}

// renderValue translates enumerated codes to labels; an unmapped code is a
// warning and falls back to the raw number, never an abort.
func (b *Bridge) renderValue(r codec.Reading) string {
	if b.table.IsEnumerated(r.Key) {
		label, err := b.table.LabelForCode(r.Key, uint16(r.Value))
		if err != nil {
			logging.Warn("No label for code, publishing raw value", "key", r.Key, "code", int(r.Value))
			return formatNumber(r.Value)
		}
		return label
	}
	return formatNumber(r.Value)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (b *Bridge) ensureDiscovery(ctx context.Context) {
	b.mu.Lock()
	due := b.now().Sub(b.lastAutoconf) > autoconfInterval
	if due {
		b.lastAutoconf = b.now()
	}
	b.mu.Unlock()
	if due {
		b.publishDiscovery(ctx)
	}
}

// HandleCommand translates one inbound command message into a register
// write. Every failure is terminal for that command only: warn, drop, keep
// the poll loop untouched.
func (b *Bridge) HandleCommand(ctx context.Context, topic string, payload []byte) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[2] != "set" {
		logging.Warn("Malformed command topic", "topic", topic)
		metrics.CommandsRejected.Inc()
		return
	}
	key := parts[3]
	value := string(payload)

	control, ok := b.table.Control(key)
	if !ok {
		logging.Warn("Unknown control", "key", key)
		metrics.CommandsRejected.Inc()
		return
	}

	var reg uint16
	switch control.Kind {
	case codec.Enumerated:
		code, err := b.table.CodeForLabel(key, value)
		if err != nil {
			logging.Warn("Unknown label for control", "key", key, "value", value,
				"validOptions", strings.Join(b.table.LabelOptions(key), ", "))
			metrics.CommandsRejected.Inc()
			return
		}
		reg = code
	case codec.Numeric:
		n, err := strconv.Atoi(value)
		if err != nil {
			logging.Warn("Control value is not an integer", "key", key, "value", value)
			metrics.CommandsRejected.Inc()
			return
		}
		if n < control.Min || n > control.Max {
			logging.Warn("Control value out of range", "key", key, "value", n,
				"min", control.Min, "max", control.Max)
			metrics.CommandsRejected.Inc()
			return
		}
		reg = uint16(n)
	default:
		logging.Warn("Control has no kind", "key", key)
		metrics.CommandsRejected.Inc()
		return
	}

	logging.Info("Writing control register", "key", key, "register", control.Register, "value", reg)
	if err := b.writer.WriteRegister(control.Register, reg); err != nil {
		// At-most-once: the subscriber may re-issue the command.
		logging.Warn("Register write failed", "key", key, "register", control.Register, "error", err)
	}
}
