package config

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/sortline/internal/fieldbus"
)

// byKey indexes the coils by their YAML key.
func (c *Coils) byKey() map[string]*fieldbus.Addr {
	return map[string]*fieldbus.Addr{
		"entry_conveyor": &c.EntryConveyor,
		"exit_conveyor":  &c.ExitConveyor,
		"sorter1_turn":   &c.Sorter1Turn,
		"sorter1_belt":   &c.Sorter1Belt,
		"sorter2_turn":   &c.Sorter2Turn,
		"sorter2_belt":   &c.Sorter2Belt,
		"start_lamp":     &c.StartLamp,
		"reset_lamp":     &c.ResetLamp,
		"stop_lamp":      &c.StopLamp,
		"emitter":        &c.Emitter,
		"external_run":   &c.ExternalRun,
		"external_reset": &c.ExternalReset,
	}
}

// UnmarshalYAML decodes the coil map. yaml.v3 leaves struct fields
// untouched on null, so an explicit null is applied here to unset a
// default address.
func (c *Coils) UnmarshalYAML(node *yaml.Node) error {
	type plain Coils
	if err := node.Decode((*plain)(c)); err != nil {
		return err
	}
	if node.Kind != yaml.MappingNode {
		return nil
	}
	fields := c.byKey()
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if val.ShortTag() != "!!null" {
			continue
		}
		if addr, ok := fields[key.Value]; ok {
			*addr = fieldbus.Addr{}
		}
	}
	return nil
}

// sortedKeys returns the YAML keys of the coils in a stable order.
func (c *Coils) sortedKeys() []string {
	keys := make([]string, 0, 12)
	for k := range c.byKey() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// checkGPIOMapping requires a GPIO line for every input and configured coil.
// An unmapped address fails on every access, and each failure makes the link
// reopen the chip and re-request all outputs low.
func (c *Config) checkGPIOMapping() []error {
	var errs []error
	for _, in := range []struct {
		name string
		addr uint16
	}{
		{"start", c.Inputs.Start},
		{"stop", c.Inputs.Stop},
		{"reset", c.Inputs.Reset},
	} {
		if _, ok := c.GPIO.DiscreteInputs[in.addr]; !ok {
			errs = append(errs, fmt.Errorf("inputs.%s: discrete input %d has no gpio.discrete_inputs line", in.name, in.addr))
		}
	}
	if len(c.GPIO.InputRegisters[c.Inputs.Vision]) == 0 {
		errs = append(errs, fmt.Errorf("inputs.vision: register %d has no gpio.input_registers lines", c.Inputs.Vision))
	}

	fields := c.Coils.byKey()
	for _, k := range c.Coils.sortedKeys() {
		n, ok := fields[k].Get()
		if !ok {
			continue
		}
		if _, mapped := c.GPIO.Coils[n]; !mapped {
			errs = append(errs, fmt.Errorf("coils.%s: coil %d has no gpio.coils line", k, n))
		}
	}
	return errs
}

// checkDuplicates rejects two outputs wired to the same coil.
func (c *Coils) checkDuplicates() error {
	seen := make(map[uint16]string)
	fields := c.byKey()
	for _, k := range c.sortedKeys() {
		n, ok := fields[k].Get()
		if !ok {
			continue
		}
		if other, dup := seen[n]; dup {
			return fmt.Errorf("coils.%s and coils.%s both use coil %d", other, k, n)
		}
		seen[n] = k
	}
	return nil
}
