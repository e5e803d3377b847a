package fieldbus

import (
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/sweeney/sortline/internal/metrics"
)

// logInterval bounds how often a persistent link failure is logged.
// The control loop retries every cycle.
const logInterval = 5 * time.Second

// Link is the I/O gateway used by the controller. It never returns errors:
// a failed connect or read yields false/0, a failed write is dropped, and
// the backend is closed.
//
// Reconnects are bounded per control cycle: after a failed connect or a
// failed read or write the link stays down until NewCycle is called, so an
// outage costs at most one connect timeout per cycle.
type Link struct {
	conn    Conn
	log     zerolog.Logger
	metrics *metrics.Metrics
	down    bool

	connectLog rate.Sometimes
	ioLog      rate.Sometimes
}

// NewLink wraps a backend.
func NewLink(conn Conn, log zerolog.Logger, m *metrics.Metrics) *Link {
	return &Link{
		conn:       conn,
		log:        log.With().Str("component", "fieldbus").Logger(),
		metrics:    m,
		connectLog: rate.Sometimes{First: 1, Interval: logInterval},
		ioLog:      rate.Sometimes{First: 3, Interval: logInterval},
	}
}

// NewCycle allows one more connect attempt after a failure.
func (l *Link) NewCycle() {
	l.down = false
}

// EnsureOpen connects the backend if needed and reports whether it is usable.
// It does not retry within a cycle once a connect or an I/O operation failed.
func (l *Link) EnsureOpen() bool {
	if l.conn.IsOpen() {
		return true
	}
	if l.down {
		return false
	}
	if err := l.conn.Open(); err != nil {
		l.down = true
		l.metrics.FieldbusErrors.WithLabelValues("connect").Inc()
		l.metrics.FieldbusConnected.Set(0)
		l.connectLog.Do(func() {
			l.log.Warn().Err(err).Msg("connect failed, retrying next cycle")
		})
		return false
	}
	l.metrics.FieldbusConnected.Set(1)
	l.log.Info().Msg("connected")
	return true
}

// IsOpen reports whether the backend is currently connected.
func (l *Link) IsOpen() bool {
	return l.conn.IsOpen()
}

// ReadBit reads a discrete input. Returns false if the link is down or the read fails.
func (l *Link) ReadBit(addr uint16) bool {
	if !l.EnsureOpen() {
		return false
	}
	v, err := l.conn.ReadDiscreteInput(addr)
	if err != nil {
		l.fail("read_bit", addr, err)
		return false
	}
	return v
}

// ReadWord reads an input register. Returns 0 if the link is down or the read fails.
func (l *Link) ReadWord(addr uint16) int {
	if !l.EnsureOpen() {
		return 0
	}
	v, err := l.conn.ReadInputRegister(addr)
	if err != nil {
		l.fail("read_word", addr, err)
		return 0
	}
	return int(v)
}

// WriteBit writes a coil. Unconfigured addresses are a no-op. Failed writes
// are dropped; there is no retry queue.
func (l *Link) WriteBit(a Addr, v bool) {
	addr, ok := a.Get()
	if !ok {
		return
	}
	if !l.EnsureOpen() {
		l.metrics.DroppedWrites.Inc()
		return
	}
	if err := l.conn.WriteCoil(addr, v); err != nil {
		l.metrics.DroppedWrites.Inc()
		l.fail("write_bit", addr, err)
	}
}

// Close releases the backend.
func (l *Link) Close() error {
	l.metrics.FieldbusConnected.Set(0)
	return l.conn.Close()
}

func (l *Link) fail(op string, addr uint16, err error) {
	l.down = true
	l.metrics.FieldbusErrors.WithLabelValues(op).Inc()
	l.ioLog.Do(func() {
		l.log.Warn().Err(&OpError{Op: op, Addr: addr, Err: err}).Msg("i/o failed, reconnecting")
	})
	if cerr := l.conn.Close(); cerr != nil {
		l.log.Debug().Err(cerr).Msg("close after failure")
	}
	l.metrics.FieldbusConnected.Set(0)
}
