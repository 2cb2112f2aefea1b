package poller

import (
	"context"
	"time"

	"github.com/vkorhonen/h1bridge/internal/codec"
	"github.com/vkorhonen/h1bridge/internal/logging"
	"github.com/vkorhonen/h1bridge/internal/metrics"
)

// DeviceLink is the slice of the device layer the poller drives.
type DeviceLink interface {
	Connect() error
	Connected() bool
	ReadBlock(start, count uint16) ([]byte, error)
	WriteRegister(address, value uint16) error
	Close()
}

// Listener receives every completed snapshot, synchronously, in
// registration order.
type Listener func(*codec.TelemetrySnapshot)

// Poller owns the timed poll loop: one cycle reads the fixed block sequence,
// decodes it into a single snapshot and fans it out. Cycles never overlap;
// the loop is the only goroutine touching the link apart from command writes,
// which the link serializes itself.
type Poller struct {
	link      DeviceLink
	blocks    []codec.BlockLayout
	interval  time.Duration
	listeners []Listener
}

func New(link DeviceLink, blocks []codec.BlockLayout, interval time.Duration) *Poller {
	return &Poller{
		link:     link,
		blocks:   blocks,
		interval: interval,
	}
}

// OnData registers a snapshot listener. Call before Run.
func (p *Poller) OnData(l Listener) {
	p.listeners = append(p.listeners, l)
}

// Run blocks until ctx is cancelled. Ticks align to interval boundaries so
// cycle latency bounds drift instead of compounding it.
func (p *Poller) Run(ctx context.Context) {
	logging.Info("Poller started", "interval", p.interval.Milliseconds(), "blocks", len(p.blocks))
	for {
		select {
		case <-ctx.Done():
			p.link.Close()
			logging.Info("Poller stopped")
			return
		case <-time.After(untilNextTick(time.Now(), p.interval)):
		}
		p.tick()
	}
}

func untilNextTick(now time.Time, interval time.Duration) time.Duration {
	return interval - time.Duration(now.UnixNano())%interval
}

func (p *Poller) tick() {
	if !p.link.Connected() {
		if err := p.link.Connect(); err != nil {
			logging.Warn("Connect failed, will retry next tick", "error", err)
			metrics.PollCycles.WithLabelValues("connect_error").Inc()
			return
		}
	}
	snap, err := p.pollOnce()
	if err != nil {
		// The link has already dropped itself; the next tick reconnects.
		logging.Warn("Poll cycle failed", "error", err)
		metrics.PollCycles.WithLabelValues("error").Inc()
		return
	}
	metrics.PollCycles.WithLabelValues("ok").Inc()
	p.emit(snap)
}

// pollOnce reads and decodes every block, all or nothing: a failure anywhere
// abandons the cycle without emitting a partial snapshot.
func (p *Poller) pollOnce() (*codec.TelemetrySnapshot, error) {
	snap := &codec.TelemetrySnapshot{Timestamp: time.Now()}
	for _, block := range p.blocks {
		raw, err := p.link.ReadBlock(block.Start, block.Count)
		if err != nil {
			return nil, err
		}
		readings, err := codec.DecodeBlock(raw, block)
		if err != nil {
			p.link.Close()
			return nil, err
		}
		snap.Readings = append(snap.Readings, readings...)
	}
	return snap, nil
}

func (p *Poller) emit(snap *codec.TelemetrySnapshot) {
	for i, l := range p.listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logging.Error("Snapshot listener panic", "listener", i, "err", r)
				}
			}()
			l(snap)
		}()
	}
}

// WriteRegister is the write-through path used by command handling. The
// caller resolves symbolic key to (address, value) first; failed writes are
// not retried.
func (p *Poller) WriteRegister(address, value uint16) error {
	if err := p.link.WriteRegister(address, value); err != nil {
		metrics.RegisterWrites.WithLabelValues("error").Inc()
		return err
	}
	metrics.RegisterWrites.WithLabelValues("ok").Inc()
	return nil
}
