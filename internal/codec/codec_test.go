package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBlockSignedScale(t *testing.T) {
	layout := BlockLayout{
		Name:  "one",
		Count: 1,
		Fields: []Field{
			{Offset: 0, Width: 16, Signed: true, Scale: 0.01, Key: "battery_current"},
		},
	}

	readings, err := DecodeBlock([]byte{0x00, 0x64}, layout)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, "battery_current", readings[0].Key)
	assert.InDelta(t, 1.00, readings[0].Value, 1e-9)
}

func TestDecodeBlockNegative(t *testing.T) {
	layout := BlockLayout{
		Name:  "one",
		Count: 1,
		Fields: []Field{
			{Offset: 0, Width: 16, Signed: true, Scale: 0.1, Key: "temp"},
		},
	}

	// -25 raw -> -2.5 scaled
	readings, err := DecodeBlock([]byte{0xFF, 0xE7}, layout)
	require.NoError(t, err)
	assert.InDelta(t, -2.5, readings[0].Value, 1e-9)
}

func TestDecodeBlockWide(t *testing.T) {
	layout := BlockLayout{
		Name:  "energy",
		Count: 2,
		Fields: []Field{
			{Offset: 0, Width: 32, Scale: 0.01, Key: "total"},
		},
	}

	readings, err := DecodeBlock([]byte{0x00, 0x01, 0xE2, 0x40}, layout) // 123456
	require.NoError(t, err)
	assert.InDelta(t, 1234.56, readings[0].Value, 1e-9)
}

func TestDecodeBlockShortBuffer(t *testing.T) {
	blocks := DefaultBlocks()
	for _, block := range blocks {
		short := make([]byte, int(block.Count)*2-1)
		_, err := DecodeBlock(short, block)
		assert.ErrorIs(t, err, ErrShortBlock, "block %s", block.Name)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	values := map[string]float64{
		"grid_voltage":          231.2,
		"grid_current":          -4.31,
		"grid_power":            -995,
		"grid_frequency":        50.02,
		"load_power":            622,
		"inverter_power":        1617,
		"total_grid_import":     1234.56,
		"battery_voltage":       52.43,
		"battery_current":       -12.5,
		"battery_power":         -655,
		"battery_soc":           81,
		"battery_temperature":   24.5,
		"inverter_temperature":  -3.8,
		"total_battery_charge":  876.54,
		"running_state":         2,
		"force_mode":            1,
		"charge_power_limit":    2000,
		"discharge_power_limit": 2500,
	}

	for _, block := range DefaultBlocks() {
		raw, err := EncodeBlock(values, block)
		require.NoError(t, err, block.Name)
		require.Len(t, raw, int(block.Count)*2, block.Name)

		readings, err := DecodeBlock(raw, block)
		require.NoError(t, err, block.Name)
		for _, r := range readings {
			want, ok := values[r.Key]
			require.True(t, ok, "unexpected key %s", r.Key)
			assert.InDelta(t, want, r.Value, 1e-6, "%s/%s", block.Name, r.Key)
		}
	}
}

func TestLabelCodeBijection(t *testing.T) {
	table := DefaultTable()

	check := func(key string, labels map[uint16]string) {
		for code := range labels {
			label, err := table.LabelForCode(key, code)
			require.NoError(t, err, "%s code %d", key, code)
			back, err := table.CodeForLabel(key, label)
			require.NoError(t, err, "%s label %s", key, label)
			assert.Equal(t, code, back, "%s", key)
		}
	}

	for _, key := range table.ControlKeys() {
		c, _ := table.Control(key)
		if c.Kind == Enumerated {
			check(key, c.Labels)
		}
	}
	check("running_state", map[uint16]string{0: "Waiting", 1: "Charging", 2: "Discharging", 3: "Standby", 4: "Fault"})
}

func TestLabelLookupNotFound(t *testing.T) {
	table := DefaultTable()

	_, err := table.LabelForCode("force_mode", 99)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = table.CodeForLabel("force_mode", "Bogus")
	assert.ErrorIs(t, err, ErrNotFound)

	// Exact, case-sensitive match only
	_, err = table.CodeForLabel("force_mode", "charge")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = table.LabelForCode("grid_voltage", 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLabelOptionsOrderedByCode(t *testing.T) {
	table := DefaultTable()
	assert.Equal(t, []string{"Stop", "Charge", "Discharge"}, table.LabelOptions("force_mode"))
}

func TestControlRegisters(t *testing.T) {
	table := DefaultTable()

	c, ok := table.Control("force_mode")
	require.True(t, ok)
	assert.Equal(t, uint16(42010), c.Register)
	assert.Equal(t, Enumerated, c.Kind)

	_, ok = table.Control("running_state")
	assert.False(t, ok, "read-only lookup must not be writable")
}

func TestSnapshotGet(t *testing.T) {
	snap := TelemetrySnapshot{Readings: []Reading{{Key: "a", Value: 1.5}}}

	v, ok := snap.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1.5, v)

	_, ok = snap.Get("b")
	assert.False(t, ok)
}
