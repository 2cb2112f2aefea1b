package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"
)

// Reading is one decoded telemetry value.
type Reading struct {
	Key   string
	Value float64
}

// TelemetrySnapshot holds one complete poll cycle, in layout order.
// It is never partially filled; a failed cycle produces no snapshot at all.
type TelemetrySnapshot struct {
	Timestamp time.Time
	Readings  []Reading
}

func (s *TelemetrySnapshot) Get(key string) (float64, bool) {
	for _, r := range s.Readings {
		if r.Key == key {
			return r.Value, true
		}
	}
	return 0, false
}

var (
	ErrShortBlock = fmt.Errorf("register block shorter than layout")
	ErrNotFound   = fmt.Errorf("no translation entry")
)

// DecodeBlock extracts every field of the layout from one raw register block.
// The buffer must cover the full layout; a short buffer fails with
// ErrShortBlock rather than truncating silently.
func DecodeBlock(raw []byte, layout BlockLayout) ([]Reading, error) {
	readings := make([]Reading, 0, len(layout.Fields))
	for _, f := range layout.Fields {
		end := f.Offset + int(f.Width)/8
		if end > len(raw) {
			return nil, fmt.Errorf("%w: block %s field %s needs %d bytes, got %d",
				ErrShortBlock, layout.Name, f.Key, end, len(raw))
		}
		var v float64
		switch f.Width {
		case 32:
			u := binary.BigEndian.Uint32(raw[f.Offset:])
			if f.Signed {
				v = float64(int32(u))
			} else {
				v = float64(u)
			}
		default: // 16
			u := binary.BigEndian.Uint16(raw[f.Offset:])
			if f.Signed {
				v = float64(int16(u))
			} else {
				v = float64(u)
			}
		}
		readings = append(readings, Reading{Key: f.Key, Value: v * f.Scale})
	}
	return readings, nil
}

// EncodeBlock is the inverse of DecodeBlock: it renders scaled values back
// into a raw register block. Used by the inverter simulator and the
// round-trip tests.
func EncodeBlock(values map[string]float64, layout BlockLayout) ([]byte, error) {
	raw := make([]byte, int(layout.Count)*2)
	for _, f := range layout.Fields {
		v, ok := values[f.Key]
		if !ok {
			continue
		}
		end := f.Offset + int(f.Width)/8
		if end > len(raw) {
			return nil, fmt.Errorf("%w: block %s field %s exceeds %d registers",
				ErrShortBlock, layout.Name, f.Key, layout.Count)
		}
		reg := int64(math.Round(v / f.Scale))
		switch f.Width {
		case 32:
			binary.BigEndian.PutUint32(raw[f.Offset:], uint32(reg))
		default:
			binary.BigEndian.PutUint16(raw[f.Offset:], uint16(reg))
		}
	}
	return raw, nil
}

// ControlKind distinguishes enumerated controls from free numeric ones.
type ControlKind uint8

const (
	Enumerated ControlKind = iota + 1
	Numeric
)

// Control describes one writable register behind a symbolic key.
type Control struct {
	Key      string
	Register uint16
	Kind     ControlKind
	Labels   map[uint16]string // code -> display label, Enumerated only
	Min      int               // Numeric only
	Max      int
	Step     int
}

// Lookup carries code->label translation for a read-only field.
type Lookup struct {
	Key    string
	Labels map[uint16]string
}

// Table is the immutable translation table built once at startup.
type Table struct {
	controls map[string]Control
	lookups  map[string]Lookup
	order    []string // control keys in declaration order
}

func NewTable(controls []Control, lookups []Lookup) *Table {
	t := &Table{
		controls: make(map[string]Control, len(controls)),
		lookups:  make(map[string]Lookup, len(lookups)),
	}
	for _, c := range controls {
		t.controls[c.Key] = c
		t.order = append(t.order, c.Key)
	}
	for _, l := range lookups {
		t.lookups[l.Key] = l
	}
	return t
}

func (t *Table) Control(key string) (Control, bool) {
	c, ok := t.controls[key]
	return c, ok
}

// ControlKeys returns control keys in declaration order.
func (t *Table) ControlKeys() []string {
	return t.order
}

func (t *Table) labels(key string) (map[uint16]string, bool) {
	if c, ok := t.controls[key]; ok && c.Kind == Enumerated {
		return c.Labels, true
	}
	if l, ok := t.lookups[key]; ok {
		return l.Labels, true
	}
	return nil, false
}

// IsEnumerated reports whether the key carries a code->label map,
// either as a writable control or a read-only lookup.
func (t *Table) IsEnumerated(key string) bool {
	_, ok := t.labels(key)
	return ok
}

// LabelForCode translates a numeric code to its display label.
// ErrNotFound is a warning-level event for the caller, not a failure:
// publishing falls back to the raw numeric value.
func (t *Table) LabelForCode(key string, code uint16) (string, error) {
	labels, ok := t.labels(key)
	if !ok {
		return "", fmt.Errorf("%w for key %q", ErrNotFound, key)
	}
	label, ok := labels[code]
	if !ok {
		return "", fmt.Errorf("%w: key %q has no label for code %d", ErrNotFound, key, code)
	}
	return label, nil
}

// CodeForLabel is the inverse lookup used by command handling.
// Matching is exact and case-sensitive.
func (t *Table) CodeForLabel(key, label string) (uint16, error) {
	labels, ok := t.labels(key)
	if !ok {
		return 0, fmt.Errorf("%w for key %q", ErrNotFound, key)
	}
	for code, l := range labels {
		if l == label {
			return code, nil
		}
	}
	return 0, fmt.Errorf("%w: key %q has no code for label %q", ErrNotFound, key, label)
}

// LabelOptions lists the valid labels for a key, ordered by code.
func (t *Table) LabelOptions(key string) []string {
	labels, ok := t.labels(key)
	if !ok {
		return nil
	}
	codes := make([]int, 0, len(labels))
	for c := range labels {
		codes = append(codes, int(c))
	}
	sort.Ints(codes)
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		out = append(out, labels[uint16(c)])
	}
	return out
}
