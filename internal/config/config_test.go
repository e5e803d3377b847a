package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/sortline/internal/fieldbus"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sortline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultMatchesIOMap(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, Inputs{Start: 1, Reset: 2, Stop: 3, Vision: 0}, cfg.Inputs)
	assert.Equal(t, fieldbus.At(0), cfg.Coils.EntryConveyor)
	assert.Equal(t, fieldbus.At(2), cfg.Coils.ExitConveyor)
	assert.Equal(t, fieldbus.At(3), cfg.Coils.Sorter1Turn)
	assert.Equal(t, fieldbus.At(4), cfg.Coils.Sorter1Belt)
	assert.Equal(t, fieldbus.At(5), cfg.Coils.Sorter2Turn)
	assert.Equal(t, fieldbus.At(6), cfg.Coils.Sorter2Belt)
	assert.Equal(t, fieldbus.At(9), cfg.Coils.StartLamp)
	assert.Equal(t, fieldbus.At(10), cfg.Coils.ResetLamp)
	assert.Equal(t, fieldbus.At(11), cfg.Coils.StopLamp)
	assert.Equal(t, fieldbus.At(12), cfg.Coils.Emitter)
	assert.False(t, cfg.Coils.ExternalRun.IsSet())
	assert.False(t, cfg.Coils.ExternalReset.IsSet())

	assert.Equal(t, 10*time.Millisecond, cfg.Timing.Poll)
	assert.Equal(t, 600*time.Millisecond, cfg.Timing.ResetPulse)
	assert.Equal(t, "compliant", cfg.Driver)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
fieldbus:
  host: 10.0.0.5
  unit_id: 3
timing:
  travel_sorter1: 400ms
  push_sorter2: 1s
coils:
  external_reset: 14
  emitter: null
driver: violating
mqtt:
  broker: tcp://broker:1883
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", cfg.Fieldbus.Host)
	assert.Equal(t, 502, cfg.Fieldbus.Port, "unset keys keep defaults")
	assert.Equal(t, byte(3), cfg.Fieldbus.UnitID)
	assert.Equal(t, 400*time.Millisecond, cfg.Timing.TravelSorter1)
	assert.Equal(t, 800*time.Millisecond, cfg.Timing.TravelSorter2)
	assert.Equal(t, time.Second, cfg.Timing.PushSorter2)
	assert.Equal(t, fieldbus.At(14), cfg.Coils.ExternalReset)
	assert.False(t, cfg.Coils.Emitter.IsSet(), "null unsets a default coil")
	assert.Equal(t, fieldbus.At(0), cfg.Coils.EntryConveyor)
	assert.Equal(t, "violating", cfg.Driver)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
}

// benchGPIO maps every default input and coil to a line.
func benchGPIO() string {
	return `
fieldbus:
  backend: gpio
gpio:
  active_low: true
  discrete_inputs: {1: 17, 2: 27, 3: 22}
  coils: {0: 5, 2: 12, 3: 16, 4: 20, 5: 21, 6: 23, 9: 24, 10: 25, 11: 8, 12: 7}
  input_registers:
    0: [6, 13, 19, 26]
`
}

func TestLoadGPIOBackend(t *testing.T) {
	cfg, err := Load(writeConfig(t, benchGPIO()))
	require.NoError(t, err)

	assert.Equal(t, BackendGPIO, cfg.Fieldbus.Backend)
	assert.Equal(t, "gpiochip0", cfg.GPIO.Chip)
	assert.True(t, cfg.GPIO.ActiveLow)
	assert.Equal(t, 17, cfg.GPIO.DiscreteInputs[1])
	assert.Equal(t, 7, cfg.GPIO.Coils[12])
	assert.Equal(t, []int{6, 13, 19, 26}, cfg.GPIO.InputRegisters[0])
}

func TestValidateGPIOUnmappedAddresses(t *testing.T) {
	path := writeConfig(t, `
fieldbus:
  backend: gpio
gpio:
  discrete_inputs: {1: 17}
  coils: {0: 5}
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorContains(t, err, "inputs.stop: discrete input 3 has no gpio.discrete_inputs line")
	assert.ErrorContains(t, err, "inputs.reset: discrete input 2")
	assert.ErrorContains(t, err, "inputs.vision: register 0 has no gpio.input_registers lines")
	assert.ErrorContains(t, err, "coils.emitter: coil 12 has no gpio.coils line")
	assert.NotContains(t, err.Error(), "inputs.start")
	assert.NotContains(t, err.Error(), "coils.entry_conveyor")
}

func TestValidateGPIOIgnoresUnconfiguredCoils(t *testing.T) {
	cfg, err := Load(writeConfig(t, benchGPIO()+`
coils:
  emitter: null
`))
	require.NoError(t, err)
	assert.False(t, cfg.Coils.Emitter.IsSet())

	cfg.Coils.ExternalReset = fieldbus.At(14)
	assert.ErrorContains(t, cfg.Validate(), "coils.external_reset: coil 14 has no gpio.coils line")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read config")
}

func TestLoadBadYAML(t *testing.T) {
	path := writeConfig(t, "timing: [not, a, map]\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"zero poll", func(c *Config) { c.Timing.Poll = 0 }, "timing.poll must be positive"},
		{"zero reset pulse", func(c *Config) { c.Timing.ResetPulse = 0 }, "timing.reset_pulse must be positive"},
		{"negative travel", func(c *Config) { c.Timing.TravelSorter2 = -time.Millisecond }, "timing.travel_sorter2 must not be negative"},
		{"zero push", func(c *Config) { c.Timing.PushSorter1 = 0 }, "timing.push_sorter1 must be positive"},
		{"unknown backend", func(c *Config) { c.Fieldbus.Backend = "profibus" }, `unknown fieldbus.backend "profibus"`},
		{"no host", func(c *Config) { c.Fieldbus.Host = "" }, "fieldbus.host is required"},
		{"bad port", func(c *Config) { c.Fieldbus.Port = 70000 }, "fieldbus.port 70000 out of range"},
		{"unknown driver", func(c *Config) { c.Driver = "turbo" }, `unknown driver "turbo"`},
		{"duplicate coil", func(c *Config) { c.Coils.ExternalRun = fieldbus.At(12) }, "both use coil 12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateGPIOWithoutHost(t *testing.T) {
	cfg, err := Load(writeConfig(t, benchGPIO()))
	require.NoError(t, err)
	cfg.Fieldbus.Host = ""
	assert.NoError(t, cfg.Validate())
}

func TestTravelImmediatePush(t *testing.T) {
	timing := Default().Timing
	s1, s2 := timing.Travel()
	assert.Equal(t, 350*time.Millisecond, s1)
	assert.Equal(t, 800*time.Millisecond, s2)

	timing.ImmediatePush = true
	s1, s2 = timing.Travel()
	assert.Zero(t, s1)
	assert.Zero(t, s2)
}

func TestYAMLRoundTrip(t *testing.T) {
	data, err := Default().YAML()
	require.NoError(t, err)
	assert.Contains(t, string(data), "external_run: null")

	path := writeConfig(t, string(data))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
