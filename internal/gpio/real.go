//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/sortline/internal/fieldbus"
)

// Conn drives local GPIO lines as discrete inputs, input registers and coils.
type Conn struct {
	cfg       Config
	chip      *gpiocdev.Chip
	inputs    map[uint16]*gpiocdev.Line
	registers map[uint16][]*gpiocdev.Line
	coils     map[uint16]*gpiocdev.Line
}

// New creates an unopened GPIO backend.
func New(cfg Config) *Conn {
	if cfg.Chip == "" {
		cfg.Chip = DefaultChip
	}
	return &Conn{cfg: cfg}
}

// Open requests every configured line. Outputs start de-energized.
func (c *Conn) Open() error {
	if c.chip != nil {
		return nil
	}
	chip, err := gpiocdev.NewChip(c.cfg.Chip)
	if err != nil {
		return fmt.Errorf("open gpio chip: %w", err)
	}
	c.chip = chip
	c.inputs = make(map[uint16]*gpiocdev.Line)
	c.registers = make(map[uint16][]*gpiocdev.Line)
	c.coils = make(map[uint16]*gpiocdev.Line)

	// Request lines as input with pull-down to match Pi boot defaults.
	inOpts := []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithPullDown}
	if c.cfg.ActiveLow {
		inOpts = append(inOpts, gpiocdev.AsActiveLow)
	}

	for addr, offset := range c.cfg.DiscreteInputs {
		line, err := chip.RequestLine(offset, inOpts...)
		if err != nil {
			c.Close()
			return fmt.Errorf("request input %d (line %d): %w", addr, offset, err)
		}
		c.inputs[addr] = line
	}

	for addr, offsets := range c.cfg.InputRegisters {
		for _, offset := range offsets {
			line, err := chip.RequestLine(offset, inOpts...)
			if err != nil {
				c.Close()
				return fmt.Errorf("request register %d (line %d): %w", addr, offset, err)
			}
			c.registers[addr] = append(c.registers[addr], line)
		}
	}

	for addr, offset := range c.cfg.Coils {
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0))
		if err != nil {
			c.Close()
			return fmt.Errorf("request coil %d (line %d): %w", addr, offset, err)
		}
		c.coils[addr] = line
	}

	return nil
}

// IsOpen reports whether the chip and lines are held.
func (c *Conn) IsOpen() bool {
	return c.chip != nil
}

// ReadDiscreteInput returns the logical value of the line mapped to addr.
func (c *Conn) ReadDiscreteInput(addr uint16) (bool, error) {
	if c.chip == nil {
		return false, fieldbus.ErrNotOpen
	}
	line, ok := c.inputs[addr]
	if !ok {
		return false, fmt.Errorf("discrete input %d not mapped", addr)
	}
	v, err := line.Value()
	if err != nil {
		return false, fmt.Errorf("read input %d: %w", addr, err)
	}
	return v != 0, nil
}

// ReadInputRegister assembles the lines mapped to addr into a word.
func (c *Conn) ReadInputRegister(addr uint16) (uint16, error) {
	if c.chip == nil {
		return 0, fieldbus.ErrNotOpen
	}
	lines, ok := c.registers[addr]
	if !ok {
		return 0, fmt.Errorf("input register %d not mapped", addr)
	}
	bits := make([]int, len(lines))
	for i, line := range lines {
		v, err := line.Value()
		if err != nil {
			return 0, fmt.Errorf("read register %d bit %d: %w", addr, i, err)
		}
		bits[i] = v
	}
	return word(bits), nil
}

// WriteCoil drives the output line mapped to addr.
func (c *Conn) WriteCoil(addr uint16, on bool) error {
	if c.chip == nil {
		return fieldbus.ErrNotOpen
	}
	line, ok := c.coils[addr]
	if !ok {
		return fmt.Errorf("coil %d not mapped", addr)
	}
	v := 0
	if on {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("write coil %d: %w", addr, err)
	}
	return nil
}

// Close releases GPIO resources.
// Reconfigures every line to input with pull-down (matching Pi boot defaults)
// before closing, which also de-energizes the outputs.
func (c *Conn) Close() error {
	var errs []error

	release := func(what string, line *gpiocdev.Line) {
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s: %w", what, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", what, err))
		}
	}

	for addr, line := range c.coils {
		release(fmt.Sprintf("coil %d", addr), line)
	}
	for addr, line := range c.inputs {
		release(fmt.Sprintf("input %d", addr), line)
	}
	for addr, lines := range c.registers {
		for _, line := range lines {
			release(fmt.Sprintf("register %d", addr), line)
		}
	}
	c.coils, c.inputs, c.registers = nil, nil, nil

	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		c.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
