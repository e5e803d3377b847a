// Package config loads the sorting-line configuration: field-bus connection,
// I/O map, timings and the outer services.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/sortline/internal/driver"
	"github.com/sweeney/sortline/internal/fieldbus"
	"github.com/sweeney/sortline/internal/gpio"
)

// Backend selects the field-bus implementation.
type Backend string

const (
	BackendModbus Backend = "modbus"
	BackendGPIO   Backend = "gpio"
)

// Config is the complete controller configuration.
type Config struct {
	Environment string        `yaml:"environment"`
	Fieldbus    Fieldbus      `yaml:"fieldbus"`
	GPIO        gpio.Config   `yaml:"gpio"`
	Inputs      Inputs        `yaml:"inputs"`
	Coils       Coils         `yaml:"coils"`
	Timing      Timing        `yaml:"timing"`
	Driver      string        `yaml:"driver"`
	MQTT        MQTT          `yaml:"mqtt"`
	HTTP        HTTP          `yaml:"http"`
	Heartbeat   time.Duration `yaml:"heartbeat"`
}

// Fieldbus holds the remote I/O connection parameters.
type Fieldbus struct {
	Backend Backend       `yaml:"backend"`
	Host    string        `yaml:"host"`
	Port    int           `yaml:"port"`
	UnitID  byte          `yaml:"unit_id"`
	Timeout time.Duration `yaml:"timeout"`
}

// Inputs holds the discrete-input and input-register addresses.
type Inputs struct {
	Start  uint16 `yaml:"start"`
	Reset  uint16 `yaml:"reset"` // stop-and-reset
	Stop   uint16 `yaml:"stop"`
	Vision uint16 `yaml:"vision"`
}

// Coils holds the output addresses. Any of them may be null.
type Coils struct {
	EntryConveyor fieldbus.Addr `yaml:"entry_conveyor"`
	ExitConveyor  fieldbus.Addr `yaml:"exit_conveyor"`
	Sorter1Turn   fieldbus.Addr `yaml:"sorter1_turn"`
	Sorter1Belt   fieldbus.Addr `yaml:"sorter1_belt"`
	Sorter2Turn   fieldbus.Addr `yaml:"sorter2_turn"`
	Sorter2Belt   fieldbus.Addr `yaml:"sorter2_belt"`
	StartLamp     fieldbus.Addr `yaml:"start_lamp"`
	ResetLamp     fieldbus.Addr `yaml:"reset_lamp"`
	StopLamp      fieldbus.Addr `yaml:"stop_lamp"`
	Emitter       fieldbus.Addr `yaml:"emitter"`
	ExternalRun   fieldbus.Addr `yaml:"external_run"`
	ExternalReset fieldbus.Addr `yaml:"external_reset"`
}

// Timing holds the control-loop period and the transport compensation.
type Timing struct {
	Poll          time.Duration `yaml:"poll"`
	TravelSorter1 time.Duration `yaml:"travel_sorter1"`
	TravelSorter2 time.Duration `yaml:"travel_sorter2"`
	PushSorter1   time.Duration `yaml:"push_sorter1"`
	PushSorter2   time.Duration `yaml:"push_sorter2"`
	ResetPulse    time.Duration `yaml:"reset_pulse"`

	// ImmediatePush ignores travel times so a sorter fires as soon as the
	// vision sensor sees its color. For commissioning the wiring only.
	ImmediatePush bool `yaml:"immediate_push"`
}

// MQTT configures line telemetry. An empty broker disables it.
type MQTT struct {
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
}

// HTTP configures the status and metrics endpoint. An empty addr disables it.
type HTTP struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration of the reference line.
func Default() *Config {
	return &Config{
		Environment: "production",
		Fieldbus: Fieldbus{
			Backend: BackendModbus,
			Host:    "172.27.160.1",
			Port:    502,
			UnitID:  1,
			Timeout: 200 * time.Millisecond,
		},
		GPIO: gpio.Config{Chip: gpio.DefaultChip},
		Inputs: Inputs{
			Start:  1,
			Reset:  2,
			Stop:   3,
			Vision: 0,
		},
		Coils: Coils{
			EntryConveyor: fieldbus.At(0),
			ExitConveyor:  fieldbus.At(2),
			Sorter1Turn:   fieldbus.At(3),
			Sorter1Belt:   fieldbus.At(4),
			Sorter2Turn:   fieldbus.At(5),
			Sorter2Belt:   fieldbus.At(6),
			StartLamp:     fieldbus.At(9),
			ResetLamp:     fieldbus.At(10),
			StopLamp:      fieldbus.At(11),
			Emitter:       fieldbus.At(12),
		},
		Timing: Timing{
			Poll:          10 * time.Millisecond,
			TravelSorter1: 350 * time.Millisecond,
			TravelSorter2: 800 * time.Millisecond,
			PushSorter1:   500 * time.Millisecond,
			PushSorter2:   500 * time.Millisecond,
			ResetPulse:    600 * time.Millisecond,
		},
		Driver: "compliant",
		MQTT: MQTT{
			TopicPrefix: "sortline/line1",
			ClientID:    "sortline",
		},
		HTTP:      HTTP{Addr: ":8080"},
		Heartbeat: 15 * time.Minute,
	}
}

// Load reads a YAML file over the defaults and validates the result.
// An empty path returns the validated defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the controller cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Fieldbus.Backend {
	case BackendModbus:
		if c.Fieldbus.Host == "" {
			errs = append(errs, errors.New("fieldbus.host is required for the modbus backend"))
		}
		if c.Fieldbus.Port <= 0 || c.Fieldbus.Port > 65535 {
			errs = append(errs, fmt.Errorf("fieldbus.port %d out of range", c.Fieldbus.Port))
		}
	case BackendGPIO:
		errs = append(errs, c.checkGPIOMapping()...)
	default:
		errs = append(errs, fmt.Errorf("unknown fieldbus.backend %q", c.Fieldbus.Backend))
	}

	if c.Timing.Poll <= 0 {
		errs = append(errs, fmt.Errorf("timing.poll must be positive, got %v", c.Timing.Poll))
	}
	if c.Timing.ResetPulse <= 0 {
		errs = append(errs, fmt.Errorf("timing.reset_pulse must be positive, got %v", c.Timing.ResetPulse))
	}
	for name, d := range map[string]time.Duration{
		"travel_sorter1": c.Timing.TravelSorter1,
		"travel_sorter2": c.Timing.TravelSorter2,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("timing.%s must not be negative, got %v", name, d))
		}
	}
	for name, d := range map[string]time.Duration{
		"push_sorter1": c.Timing.PushSorter1,
		"push_sorter2": c.Timing.PushSorter2,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("timing.%s must be positive, got %v", name, d))
		}
	}

	if _, err := driver.Lookup(c.Driver); err != nil {
		errs = append(errs, fmt.Errorf("driver: %w", err))
	}

	if err := c.Coils.checkDuplicates(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Travel returns the effective travel times, honoring ImmediatePush.
func (t Timing) Travel() (sorter1, sorter2 time.Duration) {
	if t.ImmediatePush {
		return 0, 0
	}
	return t.TravelSorter1, t.TravelSorter2
}

// YAML renders the configuration as YAML.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
