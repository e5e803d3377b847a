// Package fieldbus provides the I/O gateway between the controller and the
// remote I/O hardware. Link holds the fail-safe semantics; Conn backends
// (Modbus TCP, local GPIO, fake) only move bits.
package fieldbus

import (
	"errors"
	"fmt"
)

// ErrNotOpen is returned by backends used before Open succeeded.
var ErrNotOpen = errors.New("fieldbus: connection not open")

// Conn is a raw field-bus backend.
type Conn interface {
	// Open connects to the remote I/O. Calling Open on an open Conn is allowed.
	Open() error

	// IsOpen reports whether the last Open succeeded and Close was not called since.
	IsOpen() bool

	// ReadDiscreteInput reads a single input bit.
	ReadDiscreteInput(addr uint16) (bool, error)

	// ReadInputRegister reads a single 16-bit input register.
	ReadInputRegister(addr uint16) (uint16, error)

	// WriteCoil writes a single output bit.
	WriteCoil(addr uint16, on bool) error

	// Close releases the connection. It is safe to call on a closed Conn.
	Close() error
}

// OpError records a failed field-bus operation.
type OpError struct {
	Op   string
	Addr uint16
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("fieldbus: %s %d: %v", e.Op, e.Addr, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}
