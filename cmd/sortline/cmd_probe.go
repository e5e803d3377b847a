package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sweeney/sortline/internal/config"
	"github.com/sweeney/sortline/internal/fieldbus"
	"github.com/sweeney/sortline/internal/logic"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Connect once, print the buttons and the vision code, and exit",
	Long: `Read the operator buttons and the vision register once and print them.
Nothing is written to the line. Use it to check wiring and the I/O map.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		return probe(newConn(cfg), cfg.Inputs, endpoint(cfg), cmd.OutOrStdout())
	},
}

// probe reads every input once. Unlike the controller it reports errors
// instead of failing safe.
func probe(conn fieldbus.Conn, in config.Inputs, where string, out io.Writer) error {
	if err := conn.Open(); err != nil {
		return fmt.Errorf("connect %s: %w", where, err)
	}
	defer conn.Close()

	var b logic.Buttons
	for _, input := range []struct {
		addr uint16
		dst  *bool
	}{
		{in.Start, &b.Start},
		{in.Stop, &b.Stop},
		{in.Reset, &b.Reset},
	} {
		v, err := conn.ReadDiscreteInput(input.addr)
		if err != nil {
			return &fieldbus.OpError{Op: "read_bit", Addr: input.addr, Err: err}
		}
		*input.dst = v
	}

	code, err := conn.ReadInputRegister(in.Vision)
	if err != nil {
		return &fieldbus.OpError{Op: "read_word", Addr: in.Vision, Err: err}
	}

	fmt.Fprintf(out, "fieldbus: %s\n", where)
	fmt.Fprintf(out, "start: %s  stop: %s  reset: %s\n", pressed(b.Start), pressed(b.Stop), pressed(b.Reset))
	fmt.Fprintf(out, "vision: %d (%s)\n", code, logic.Classify(int(code)))
	return nil
}

func pressed(v bool) string {
	if v {
		return "PRESSED"
	}
	return "released"
}
