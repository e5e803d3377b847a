package fieldbus

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// CoilWrite is one recorded WriteCoil call.
type CoilWrite struct {
	Addr uint16
	On   bool
}

// FakeConn is an in-memory backend for tests. Inputs may be changed from
// another goroutine while a controller polls it.
type FakeConn struct {
	inputs    *xsync.MapOf[uint16, bool]
	registers *xsync.MapOf[uint16, uint16]
	coils     *xsync.MapOf[uint16, bool]

	mu       sync.Mutex
	open     bool
	opens    int
	closes   int
	writes   []CoilWrite
	openErr  error
	readErr  error
	writeErr error
}

// NewFakeConn creates a closed fake with all inputs low.
func NewFakeConn() *FakeConn {
	return &FakeConn{
		inputs:    xsync.NewMapOf[uint16, bool](),
		registers: xsync.NewMapOf[uint16, uint16](),
		coils:     xsync.NewMapOf[uint16, bool](),
	}
}

// SetInput sets a discrete input.
func (f *FakeConn) SetInput(addr uint16, v bool) {
	f.inputs.Store(addr, v)
}

// SetRegister sets an input register.
func (f *FakeConn) SetRegister(addr uint16, v uint16) {
	f.registers.Store(addr, v)
}

// Coil returns the last value written to a coil.
func (f *FakeConn) Coil(addr uint16) bool {
	v, _ := f.coils.Load(addr)
	return v
}

// Coils returns a copy of every coil that has been written.
func (f *FakeConn) Coils() map[uint16]bool {
	out := make(map[uint16]bool)
	f.coils.Range(func(k uint16, v bool) bool {
		out[k] = v
		return true
	})
	return out
}

// Writes returns the recorded coil writes in order.
func (f *FakeConn) Writes() []CoilWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CoilWrite(nil), f.writes...)
}

// ResetWrites clears the write log (coil values are kept).
func (f *FakeConn) ResetWrites() {
	f.mu.Lock()
	f.writes = nil
	f.mu.Unlock()
}

// SetOpenError makes Open fail with err (nil restores success).
func (f *FakeConn) SetOpenError(err error) {
	f.mu.Lock()
	f.openErr = err
	f.mu.Unlock()
}

// SetReadError makes every read fail with err.
func (f *FakeConn) SetReadError(err error) {
	f.mu.Lock()
	f.readErr = err
	f.mu.Unlock()
}

// SetWriteError makes every write fail with err.
func (f *FakeConn) SetWriteError(err error) {
	f.mu.Lock()
	f.writeErr = err
	f.mu.Unlock()
}

// Opens returns how many times Open succeeded.
func (f *FakeConn) Opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

// Closes returns how many times Close was called on an open fake.
func (f *FakeConn) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// Open implements Conn.
func (f *FakeConn) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	if !f.open {
		f.open = true
		f.opens++
	}
	return nil
}

// IsOpen implements Conn.
func (f *FakeConn) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

// ReadDiscreteInput implements Conn.
func (f *FakeConn) ReadDiscreteInput(addr uint16) (bool, error) {
	if err := f.readCheck(); err != nil {
		return false, err
	}
	v, _ := f.inputs.Load(addr)
	return v, nil
}

// ReadInputRegister implements Conn.
func (f *FakeConn) ReadInputRegister(addr uint16) (uint16, error) {
	if err := f.readCheck(); err != nil {
		return 0, err
	}
	v, _ := f.registers.Load(addr)
	return v, nil
}

// WriteCoil implements Conn.
func (f *FakeConn) WriteCoil(addr uint16, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return ErrNotOpen
	}
	if f.writeErr != nil {
		return f.writeErr
	}
	f.coils.Store(addr, on)
	f.writes = append(f.writes, CoilWrite{Addr: addr, On: on})
	return nil
}

// Close implements Conn.
func (f *FakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.open {
		f.open = false
		f.closes++
	}
	return nil
}

func (f *FakeConn) readCheck() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return ErrNotOpen
	}
	return f.readErr
}
