// Package gpio provides a field-bus backend on local GPIO lines, for bench
// rigs wired straight to a Raspberry Pi instead of remote I/O.
// The real implementation uses the Linux GPIO character device.
package gpio

// Config maps field-bus addresses to GPIO line offsets (BCM numbering).
type Config struct {
	Chip string `yaml:"chip"`

	// DiscreteInputs maps a discrete-input address to one line.
	DiscreteInputs map[uint16]int `yaml:"discrete_inputs,omitempty"`

	// Coils maps a coil address to one output line.
	Coils map[uint16]int `yaml:"coils,omitempty"`

	// InputRegisters maps a register address to the lines forming its
	// value, least significant bit first.
	InputRegisters map[uint16][]int `yaml:"input_registers,omitempty"`

	// ActiveLow inverts all inputs, for optocoupler modules that pull
	// the line low when the signal is present.
	ActiveLow bool `yaml:"active_low"`
}

// DefaultChip is the GPIO chip of the Raspberry Pi header.
const DefaultChip = "gpiochip0"

// word assembles a register value from line values, LSB first.
func word(bits []int) uint16 {
	var v uint16
	for i, b := range bits {
		if i >= 16 {
			break
		}
		if b != 0 {
			v |= 1 << i
		}
	}
	return v
}
