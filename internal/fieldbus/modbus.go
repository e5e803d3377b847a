package fieldbus

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/goburrow/modbus"
)

// Coil values for Modbus function 05 (write single coil).
const (
	coilOn  uint16 = 0xFF00
	coilOff uint16 = 0x0000
)

// ModbusConfig holds Modbus TCP connection parameters.
type ModbusConfig struct {
	Host    string
	Port    int
	UnitID  byte
	Timeout time.Duration
}

// ModbusConn talks Modbus TCP to the remote I/O.
type ModbusConn struct {
	handler *modbus.TCPClientHandler
	client  modbus.Client
	open    bool
}

// NewModbusConn creates an unconnected Modbus TCP backend.
func NewModbusConn(cfg ModbusConfig) *ModbusConn {
	handler := modbus.NewTCPClientHandler(net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)))
	handler.SlaveId = cfg.UnitID
	if cfg.Timeout > 0 {
		handler.Timeout = cfg.Timeout
	}
	return &ModbusConn{
		handler: handler,
		client:  modbus.NewClient(handler),
	}
}

// Open dials the Modbus server.
func (c *ModbusConn) Open() error {
	if c.open {
		return nil
	}
	if err := c.handler.Connect(); err != nil {
		return fmt.Errorf("connect %s: %w", c.handler.Address, err)
	}
	c.open = true
	return nil
}

// IsOpen reports whether the TCP connection is up.
func (c *ModbusConn) IsOpen() bool {
	return c.open
}

// ReadDiscreteInput reads one discrete input (function 02).
func (c *ModbusConn) ReadDiscreteInput(addr uint16) (bool, error) {
	if !c.open {
		return false, ErrNotOpen
	}
	res, err := c.client.ReadDiscreteInputs(addr, 1)
	if err != nil {
		return false, err
	}
	if len(res) < 1 {
		return false, fmt.Errorf("short response: %d bytes", len(res))
	}
	return res[0]&0x01 != 0, nil
}

// ReadInputRegister reads one input register (function 04).
func (c *ModbusConn) ReadInputRegister(addr uint16) (uint16, error) {
	if !c.open {
		return 0, ErrNotOpen
	}
	res, err := c.client.ReadInputRegisters(addr, 1)
	if err != nil {
		return 0, err
	}
	if len(res) < 2 {
		return 0, fmt.Errorf("short response: %d bytes", len(res))
	}
	return binary.BigEndian.Uint16(res), nil
}

// WriteCoil writes one coil (function 05).
func (c *ModbusConn) WriteCoil(addr uint16, on bool) error {
	if !c.open {
		return ErrNotOpen
	}
	v := coilOff
	if on {
		v = coilOn
	}
	_, err := c.client.WriteSingleCoil(addr, v)
	return err
}

// Close drops the TCP connection.
func (c *ModbusConn) Close() error {
	if !c.open {
		return nil
	}
	c.open = false
	return c.handler.Close()
}
