package codec

// Register map for the H1 hybrid inverter, Modbus TCP, holding registers only.
// Addresses and scales follow the vendor register list; entries marked
// unverified have not been confirmed against hardware and are kept as table
// data so a correction is a one-line edit.

// Field locates one value inside a register block.
type Field struct {
	Offset int     // byte offset inside the block
	Width  uint8   // 16 or 32 bits, big-endian
	Signed bool
	Scale  float64
	Key    string

	// Home Assistant discovery metadata; empty for enum/state fields.
	Unit        string
	DeviceClass string
	StateClass  string
}

// BlockLayout is one contiguous holding-register read.
type BlockLayout struct {
	Name   string
	Start  uint16
	Count  uint16 // registers, 2 bytes each
	Fields []Field
}

const (
	RegGridBase    uint16 = 40960 // 0xA000
	RegBatteryBase uint16 = 40976 // 0xA010
	RegStateBase   uint16 = 42000

	RegRunningState        uint16 = 42000
	RegForceMode           uint16 = 42010
	RegChargePowerLimit    uint16 = 42020
	RegDischargePowerLimit uint16 = 42021
)

// Force mode codes
const (
	ForceModeStop      uint16 = 0
	ForceModeCharge    uint16 = 1
	ForceModeDischarge uint16 = 2
)

// DefaultBlocks is the fixed poll sequence, read in order every cycle.
func DefaultBlocks() []BlockLayout {
	return []BlockLayout{
		{
			Name:  "grid",
			Start: RegGridBase,
			Count: 8,
			Fields: []Field{
				{Offset: 0, Width: 16, Scale: 0.1, Key: "grid_voltage", Unit: "V", DeviceClass: "voltage", StateClass: "measurement"},
				{Offset: 2, Width: 16, Signed: true, Scale: 0.01, Key: "grid_current", Unit: "A", DeviceClass: "current", StateClass: "measurement"},
				{Offset: 4, Width: 16, Signed: true, Scale: 1, Key: "grid_power", Unit: "W", DeviceClass: "power", StateClass: "measurement"},
				{Offset: 6, Width: 16, Scale: 0.01, Key: "grid_frequency", Unit: "Hz", DeviceClass: "frequency", StateClass: "measurement"},
				{Offset: 8, Width: 16, Signed: true, Scale: 1, Key: "load_power", Unit: "W", DeviceClass: "power", StateClass: "measurement"},
				{Offset: 10, Width: 16, Signed: true, Scale: 1, Key: "inverter_power", Unit: "W", DeviceClass: "power", StateClass: "measurement"},
				{Offset: 12, Width: 32, Scale: 0.01, Key: "total_grid_import", Unit: "kWh", DeviceClass: "energy", StateClass: "total_increasing"},
			},
		},
		{
			Name:  "battery",
			Start: RegBatteryBase,
			Count: 8,
			Fields: []Field{
				{Offset: 0, Width: 16, Scale: 0.01, Key: "battery_voltage", Unit: "V", DeviceClass: "voltage", StateClass: "measurement"},
				// scale unverified against hardware, vendor doc lists both 0.01 and 0.1
				{Offset: 2, Width: 16, Signed: true, Scale: 0.01, Key: "battery_current", Unit: "A", DeviceClass: "current", StateClass: "measurement"},
				{Offset: 4, Width: 16, Signed: true, Scale: 1, Key: "battery_power", Unit: "W", DeviceClass: "power", StateClass: "measurement"},
				{Offset: 6, Width: 16, Scale: 1, Key: "battery_soc", Unit: "%", DeviceClass: "battery", StateClass: "measurement"},
				// offsets of the two temperature fields unverified against hardware
				{Offset: 8, Width: 16, Signed: true, Scale: 0.1, Key: "battery_temperature", Unit: "°C", DeviceClass: "temperature", StateClass: "measurement"},
				{Offset: 10, Width: 16, Signed: true, Scale: 0.1, Key: "inverter_temperature", Unit: "°C", DeviceClass: "temperature", StateClass: "measurement"},
				{Offset: 12, Width: 32, Scale: 0.01, Key: "total_battery_charge", Unit: "kWh", DeviceClass: "energy", StateClass: "total_increasing"},
			},
		},
		{
			Name:  "state",
			Start: RegStateBase,
			Count: 22,
			Fields: []Field{
				{Offset: 0, Width: 16, Scale: 1, Key: "running_state"},
				{Offset: 20, Width: 16, Scale: 1, Key: "force_mode"},
				{Offset: 40, Width: 16, Scale: 1, Key: "charge_power_limit"},
				{Offset: 42, Width: 16, Scale: 1, Key: "discharge_power_limit"},
			},
		},
	}
}

// DefaultTable builds the symbolic control and lookup tables.
func DefaultTable() *Table {
	return NewTable(
		[]Control{
			{
				Key:      "force_mode",
				Register: RegForceMode,
				Kind:     Enumerated,
				Labels: map[uint16]string{
					ForceModeStop:      "Stop",
					ForceModeCharge:    "Charge",
					ForceModeDischarge: "Discharge",
				},
			},
			{Key: "charge_power_limit", Register: RegChargePowerLimit, Kind: Numeric, Min: 0, Max: 5000, Step: 100},
			{Key: "discharge_power_limit", Register: RegDischargePowerLimit, Kind: Numeric, Min: 0, Max: 5000, Step: 100},
		},
		[]Lookup{
			{
				Key: "running_state",
				Labels: map[uint16]string{
					0: "Waiting",
					1: "Charging",
					2: "Discharging",
					3: "Standby",
					4: "Fault",
				},
			},
		},
	)
}
