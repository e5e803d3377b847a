package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sweeney/sortline/internal/driver"
)

var (
	checkDriver string
	checkAll    bool
)

var driverCheckCmd = &cobra.Command{
	Use:   "drivercheck",
	Short: "Check actuation drivers against the emergency-stop contract",
	Long: `Drive each selected driver against a recording conveyor (never the real line)
and verify that an emergency stop always yields speed 0 and that normal
operation stays within the nominal speed.

Exits non-zero if any driver breaches the contract.

Examples:
  # Check the driver named in the configuration
  sortline drivercheck

  # Check one driver by name
  sortline drivercheck --driver violating

  # Check every registered driver
  sortline drivercheck --all
`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var names []string
		switch {
		case checkAll:
			names = driver.Names()
		case checkDriver != "":
			names = []string{checkDriver}
		default:
			if err := loadConfig(); err != nil {
				return err
			}
			names = []string{cfg.Driver}
		}
		return checkDrivers(cmd.OutOrStdout(), names)
	},
}

func init() {
	driverCheckCmd.Flags().StringVar(&checkDriver, "driver", "", "driver to check")
	driverCheckCmd.Flags().BoolVar(&checkAll, "all", false, "check every registered driver")
}

// checkDrivers prints one PASS/FAIL line per driver and returns the joined breaches.
func checkDrivers(out io.Writer, names []string) error {
	var errs []error
	for _, name := range names {
		factory, err := driver.Lookup(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		report, err := driver.Check(factory)
		if err == nil {
			fmt.Fprintf(out, "PASS  %s (%d commands)\n", name, len(report.Commands))
			continue
		}

		fmt.Fprintf(out, "FAIL  %s\n", name)
		var breach *driver.BreachError
		if errors.As(err, &breach) {
			for _, b := range breach.Breaches {
				fmt.Fprintf(out, "      %s\n", b.Reason)
			}
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
