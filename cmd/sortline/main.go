// Command sortline runs the sorting-line controller and its maintenance tools.
package main

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sweeney/sortline/internal/config"
	"github.com/sweeney/sortline/internal/fieldbus"
	"github.com/sweeney/sortline/internal/gpio"
	"github.com/sweeney/sortline/internal/logging"
)

var (
	logger zerolog.Logger
	cfg    *config.Config

	configPath  string
	environment string
)

var rootCmd = &cobra.Command{
	Use:   "sortline",
	Short: "Sorting line controller",
	Long: `sortline polls the operator buttons and the vision sensor of a sorting line
over Modbus TCP (or local GPIO), drives the conveyors and lamps, and fires the
two side sorters when a blue or green item reaches them.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file (built-in defaults when empty)")
	rootCmd.PersistentFlags().StringVar(&environment, "env", "", `override the configured environment ("development" logs to the console)`)
	rootCmd.AddCommand(runCmd, probeCmd, driverCheckCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	c, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if environment != "" {
		c.Environment = environment
	}
	cfg = c
	logger = logging.Setup(cfg.Environment)
	return nil
}

// newConn builds the field-bus backend selected by the configuration.
func newConn(c *config.Config) fieldbus.Conn {
	if c.Fieldbus.Backend == config.BackendGPIO {
		return gpio.New(c.GPIO)
	}
	return fieldbus.NewModbusConn(fieldbus.ModbusConfig{
		Host:    c.Fieldbus.Host,
		Port:    c.Fieldbus.Port,
		UnitID:  c.Fieldbus.UnitID,
		Timeout: c.Fieldbus.Timeout,
	})
}

// endpoint describes where the field bus lives, for logs and status.
func endpoint(c *config.Config) string {
	if c.Fieldbus.Backend == config.BackendGPIO {
		return c.GPIO.Chip
	}
	return net.JoinHostPort(c.Fieldbus.Host, strconv.Itoa(c.Fieldbus.Port))
}
