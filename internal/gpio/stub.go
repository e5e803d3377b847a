//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// Conn is not available on non-Linux platforms.
type Conn struct{}

// New returns a backend whose Open always fails on non-Linux platforms.
func New(cfg Config) *Conn {
	return &Conn{}
}

// Open is not implemented on non-Linux platforms.
func (c *Conn) Open() error {
	return errUnsupported
}

// IsOpen always reports false.
func (c *Conn) IsOpen() bool {
	return false
}

// ReadDiscreteInput is not implemented on non-Linux platforms.
func (c *Conn) ReadDiscreteInput(addr uint16) (bool, error) {
	return false, errUnsupported
}

// ReadInputRegister is not implemented on non-Linux platforms.
func (c *Conn) ReadInputRegister(addr uint16) (uint16, error) {
	return 0, errUnsupported
}

// WriteCoil is not implemented on non-Linux platforms.
func (c *Conn) WriteCoil(addr uint16, on bool) error {
	return errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (c *Conn) Close() error {
	return nil
}
