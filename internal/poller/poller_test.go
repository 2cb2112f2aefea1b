package poller

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkorhonen/h1bridge/internal/codec"
)

type fakeLink struct {
	connected  bool
	connectErr error
	blocks     map[uint16][]byte
	readErr    error
	writeErr   error
	writes     [][2]uint16
	reading    bool
}

func (f *fakeLink) Connect() error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeLink) Connected() bool { return f.connected }

func (f *fakeLink) ReadBlock(start, count uint16) ([]byte, error) {
	if f.reading {
		panic("overlapping reads")
	}
	f.reading = true
	defer func() { f.reading = false }()
	if f.readErr != nil {
		f.connected = false
		return nil, f.readErr
	}
	raw, ok := f.blocks[start]
	if !ok {
		return make([]byte, int(count)*2), nil
	}
	return raw, nil
}

func (f *fakeLink) WriteRegister(address, value uint16) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, [2]uint16{address, value})
	return nil
}

func (f *fakeLink) Close() { f.connected = false }

func seededLink(t *testing.T, values map[string]float64) *fakeLink {
	t.Helper()
	link := &fakeLink{blocks: make(map[uint16][]byte)}
	for _, block := range codec.DefaultBlocks() {
		raw, err := codec.EncodeBlock(values, block)
		require.NoError(t, err)
		link.blocks[block.Start] = raw
	}
	return link
}

func TestTickConnectsAndEmits(t *testing.T) {
	link := seededLink(t, map[string]float64{
		"grid_voltage": 230.1,
		"battery_soc":  81,
		"force_mode":   1,
	})
	p := New(link, codec.DefaultBlocks(), time.Second)

	var got []*codec.TelemetrySnapshot
	p.OnData(func(s *codec.TelemetrySnapshot) { got = append(got, s) })

	p.tick()
	require.Len(t, got, 1)
	assert.True(t, link.connected)

	v, ok := got[0].Get("grid_voltage")
	require.True(t, ok)
	assert.InDelta(t, 230.1, v, 1e-6)

	v, ok = got[0].Get("force_mode")
	require.True(t, ok)
	assert.Equal(t, 1.0, v)
}

func TestTickConnectFailure(t *testing.T) {
	link := &fakeLink{connectErr: errors.New("connection refused")}
	p := New(link, codec.DefaultBlocks(), time.Second)

	emitted := 0
	p.OnData(func(*codec.TelemetrySnapshot) { emitted++ })

	p.tick()
	assert.Zero(t, emitted, "failed connect must not emit a snapshot")
	assert.False(t, link.connected)
}

func TestReadErrorAbandonsCycle(t *testing.T) {
	link := seededLink(t, nil)
	link.readErr = errors.New("i/o timeout")
	p := New(link, codec.DefaultBlocks(), time.Second)

	emitted := 0
	p.OnData(func(*codec.TelemetrySnapshot) { emitted++ })

	link.connected = true
	p.tick()
	assert.Zero(t, emitted, "partial cycles never emit a snapshot")
	assert.False(t, link.connected, "failed cycle drops the link for the next tick")
}

func TestDecodeErrorDropsLink(t *testing.T) {
	link := seededLink(t, nil)
	blocks := codec.DefaultBlocks()
	link.blocks[blocks[0].Start] = []byte{0x00} // shorter than the layout
	p := New(link, blocks, time.Second)

	emitted := 0
	p.OnData(func(*codec.TelemetrySnapshot) { emitted++ })

	link.connected = true
	_, err := p.pollOnce()
	assert.ErrorIs(t, err, codec.ErrShortBlock)
	assert.False(t, link.connected)
	assert.Zero(t, emitted)
}

func TestListenersRunInOrderAndSurvivePanic(t *testing.T) {
	link := seededLink(t, nil)
	link.connected = true
	p := New(link, codec.DefaultBlocks(), time.Second)

	var order []int
	p.OnData(func(*codec.TelemetrySnapshot) { order = append(order, 1) })
	p.OnData(func(*codec.TelemetrySnapshot) { order = append(order, 2); panic("listener bug") })
	p.OnData(func(*codec.TelemetrySnapshot) { order = append(order, 3) })

	p.tick()
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestWriteThrough(t *testing.T) {
	link := &fakeLink{connected: true}
	p := New(link, nil, time.Second)

	require.NoError(t, p.WriteRegister(42010, 1))
	require.Len(t, link.writes, 1)
	assert.Equal(t, [2]uint16{42010, 1}, link.writes[0])
}

func TestUntilNextTickAligns(t *testing.T) {
	interval := 10 * time.Second
	for _, now := range []time.Time{
		time.Unix(100, 0),
		time.Unix(103, 500_000_000),
		time.Unix(109, 999_999_999),
	} {
		d := untilNextTick(now, interval)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, interval)
		assert.Zero(t, now.Add(d).UnixNano()%int64(interval), "tick must land on an interval boundary")
	}
}
