package driver

import (
	"errors"
	"fmt"
	"strings"
)

// ErrContractBreach is wrapped by every BreachError.
var ErrContractBreach = errors.New("driver safety contract breached")

// Command is one actuation request and its outcome as seen by Check.
type Command struct {
	EmergencyStop bool
	Speed         float64 // returned by Drive
	Applied       float64 // last speed the conveyor received
}

// Breach is one violated rule.
type Breach struct {
	Command Command
	Reason  string
}

// BreachError lists every rule a driver broke.
type BreachError struct {
	Driver   string
	Breaches []Breach
}

func (e *BreachError) Error() string {
	reasons := make([]string, len(e.Breaches))
	for i, b := range e.Breaches {
		reasons[i] = b.Reason
	}
	return fmt.Sprintf("driver %s: %v: %s", e.Driver, ErrContractBreach, strings.Join(reasons, "; "))
}

func (e *BreachError) Unwrap() error {
	return ErrContractBreach
}

// Report is the outcome of a conformance check.
type Report struct {
	Driver   string
	Commands []Command
}

// probe is a Conveyor that only records. Check never touches hardware.
type probe struct {
	speed float64
	calls int
}

func (p *probe) SetSpeed(speed float64) {
	p.speed = speed
	p.calls++
}

// checkSequence alternates run and stop twice so a driver that only
// misbehaves after having run once is still caught.
var checkSequence = []bool{false, true, false, true}

// Check drives a fresh instance of the driver through run and emergency-stop
// commands against a recording conveyor and verifies the safety contract.
// It returns a *BreachError when any rule is broken.
func Check(f Factory) (Report, error) {
	p := &probe{}
	d := f(p)
	report := Report{Driver: d.Name()}

	var breaches []Breach
	for _, estop := range checkSequence {
		speed := d.Drive(estop)
		cmd := Command{EmergencyStop: estop, Speed: speed, Applied: p.speed}
		report.Commands = append(report.Commands, cmd)

		for _, reason := range violations(cmd) {
			breaches = append(breaches, Breach{Command: cmd, Reason: reason})
		}
	}

	if p.calls == 0 {
		breaches = append(breaches, Breach{Reason: "never commanded the conveyor"})
	}

	if len(breaches) > 0 {
		return report, &BreachError{Driver: d.Name(), Breaches: breaches}
	}
	return report, nil
}

// CheckAll runs Check on every registered driver, in name order.
// The error joins every breach found.
func CheckAll() ([]Report, error) {
	var reports []Report
	var errs []error
	for _, name := range Names() {
		r, err := Check(registry[name])
		reports = append(reports, r)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return reports, errors.Join(errs...)
}

func violations(c Command) []string {
	var out []string
	if c.EmergencyStop {
		if c.Speed != 0 {
			out = append(out, fmt.Sprintf("emergency stop returned speed %.1f, want 0", c.Speed))
		}
		if c.Applied != 0 {
			out = append(out, fmt.Sprintf("emergency stop left conveyor at %.1f", c.Applied))
		}
		return out
	}
	if c.Speed < 0 || c.Speed > NominalSpeed {
		out = append(out, fmt.Sprintf("run returned speed %.1f, want 0..%.1f", c.Speed, NominalSpeed))
	}
	if c.Applied != c.Speed {
		out = append(out, fmt.Sprintf("run reported %.1f but conveyor got %.1f", c.Speed, c.Applied))
	}
	return out
}
