package device

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"github.com/vkorhonen/h1bridge/internal/logging"
	"github.com/vkorhonen/h1bridge/internal/metrics"
)

// ErrNotConnected is returned for writes attempted while the link is down,
// before any transport call is made.
var ErrNotConnected = errors.New("device link not connected")

type State uint8

const (
	Disconnected State = iota
	Connected
)

// session is the slice of the Modbus client the link needs; the tests
// substitute a fake.
type session interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	WriteSingleRegister(address, value uint16) ([]byte, error)
	Close() error
}

type tcpSession struct {
	handler *modbus.TCPClientHandler
	modbus.Client
}

func (s *tcpSession) Close() error { return s.handler.Close() }

// Link owns the Modbus TCP session to the inverter. All session I/O runs
// under one mutex so a command write can never interleave with an in-flight
// poll read.
type Link struct {
	target  string
	unitID  byte
	timeout time.Duration

	dial func() (session, error)

	mu      sync.Mutex
	state   State
	session session
}

func NewLink(target string, unitID byte, timeout time.Duration) *Link {
	l := &Link{
		target:  target,
		unitID:  unitID,
		timeout: timeout,
	}
	l.dial = l.dialTCP
	return l
}

func (l *Link) dialTCP() (session, error) {
	h := modbus.NewTCPClientHandler(l.target)
	h.Timeout = l.timeout
	h.SlaveId = l.unitID
	if err := h.Connect(); err != nil {
		return nil, err
	}
	return &tcpSession{handler: h, Client: modbus.NewClient(h)}, nil
}

func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Link) Connected() bool { return l.State() == Connected }

// Connect is idempotent: an existing session is closed before dialing again.
// Retry policy lives in the poller; Connect never retries on its own.
func (l *Link) Connect() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closeLocked()
	s, err := l.dial()
	if err != nil {
		return fmt.Errorf("connect %s: %w", l.target, err)
	}
	l.session = s
	l.setStateLocked(Connected)
	logging.Info("Device link connected", "target", l.target, "unitId", l.unitID)
	return nil
}

// ReadBlock reads count consecutive holding registers and returns the raw
// count*2 byte buffer. Any I/O error drops the link back to Disconnected.
func (l *Link) ReadBlock(start, count uint16) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != Connected {
		return nil, ErrNotConnected
	}
	data, err := l.session.ReadHoldingRegisters(start, count)
	if err != nil {
		l.dropLocked(err)
		return nil, fmt.Errorf("read block @%d x%d: %w", start, count, err)
	}
	if len(data) != int(count)*2 {
		err := fmt.Errorf("read block @%d x%d: got %d bytes, want %d", start, count, len(data), int(count)*2)
		l.dropLocked(err)
		return nil, err
	}
	return data, nil
}

// WriteRegister writes one holding register. A write while disconnected is
// rejected with ErrNotConnected without touching the transport.
func (l *Link) WriteRegister(address, value uint16) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != Connected {
		return ErrNotConnected
	}
	if _, err := l.session.WriteSingleRegister(address, value); err != nil {
		l.dropLocked(err)
		return fmt.Errorf("write register @%d: %w", address, err)
	}
	return nil
}

func (l *Link) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeLocked()
}

func (l *Link) dropLocked(err error) {
	logging.Warn("Device link dropped", "target", l.target, "error", err)
	l.closeLocked()
}

func (l *Link) closeLocked() {
	if l.session != nil {
		_ = l.session.Close()
		l.session = nil
	}
	l.setStateLocked(Disconnected)
}

func (l *Link) setStateLocked(s State) {
	l.state = s
	if s == Connected {
		metrics.LinkConnected.Set(1)
	} else {
		metrics.LinkConnected.Set(0)
	}
}
