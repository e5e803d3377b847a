// Package driver turns high-level run / emergency-stop commands into
// conveyor speeds.
//
// Every Driver must honor the safety contract:
//
//   - Drive(true) returns 0 and leaves the conveyor stopped.
//   - Drive(false) never exceeds NominalSpeed.
//
// The controller trusts whatever driver it is given. Conformance is verified
// from outside with Check, which is why a deliberately broken driver ships
// alongside the compliant one.
package driver

import (
	"fmt"
	"sort"
)

// NominalSpeed is the normal running speed factor.
const NominalSpeed = 1.0

// Conveyor applies a speed factor to the belts.
type Conveyor interface {
	SetSpeed(speed float64)
}

// Driver is the actuation capability used by the controller.
type Driver interface {
	// Drive runs the conveyor, or stops it when emergencyStop is set,
	// and returns the resulting speed.
	Drive(emergencyStop bool) float64

	// Name identifies the implementation in logs and reports.
	Name() string
}

// Factory builds a driver bound to a conveyor.
type Factory func(c Conveyor) Driver

var registry = map[string]Factory{
	"compliant": func(c Conveyor) Driver { return NewCompliant(c) },
	"violating": func(c Conveyor) Driver { return NewViolating(c) },
}

// Names returns the registered driver names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the factory registered under name.
func Lookup(name string) (Factory, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown driver %q (have %v)", name, Names())
	}
	return f, nil
}

// New builds the driver registered under name.
func New(name string, c Conveyor) (Driver, error) {
	f, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return f(c), nil
}

// Compliant stops on emergency and runs at nominal speed otherwise.
type Compliant struct {
	conveyor Conveyor
}

// NewCompliant creates a compliant driver.
func NewCompliant(c Conveyor) *Compliant {
	return &Compliant{conveyor: c}
}

// Drive implements Driver.
func (d *Compliant) Drive(emergencyStop bool) float64 {
	speed := NominalSpeed
	if emergencyStop {
		speed = 0
	}
	d.conveyor.SetSpeed(speed)
	return speed
}

// Name implements Driver.
func (d *Compliant) Name() string { return "compliant" }

// ViolatingSpeed is what Violating commands on emergency stop.
const ViolatingSpeed = 50.0

// Violating accelerates to ViolatingSpeed on emergency stop instead of
// stopping. It exists to be rejected by Check; never run it on a real line.
type Violating struct {
	conveyor Conveyor
}

// NewViolating creates the non-conforming reference driver.
func NewViolating(c Conveyor) *Violating {
	return &Violating{conveyor: c}
}

// Drive implements Driver.
func (d *Violating) Drive(emergencyStop bool) float64 {
	speed := NominalSpeed
	if emergencyStop {
		speed = ViolatingSpeed
	}
	d.conveyor.SetSpeed(speed)
	return speed
}

// Name implements Driver.
func (d *Violating) Name() string { return "violating" }
