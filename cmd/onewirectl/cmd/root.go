package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"onewire"
)

var (
	busName     string
	busAddress  string
	interval    int
	followAlarm bool
)

var rootCmd = &cobra.Command{
	Use:   "onewirectl",
	Short: "Inspect and control a 1-Wire bus",
	Long: `onewirectl is a reference CLI over the onewire bus controller.

Connect to a bus with --device and --name, then run get/set subcommands
against it. Device auto-detects between the active (DS2480) and passive
(DS9097) wire encodings; a CUNO/COC network address or a small integer
pin number select the network and firmware backends instead.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&busName, "name", "n", "bus0", "bus name, used in diagnostics")
	rootCmd.PersistentFlags().StringVarP(&busAddress, "device", "d", "", "backend address: serial device, CUNO/COC network address, or firmware pin")
	rootCmd.PersistentFlags().IntVar(&interval, "interval", 0, "periodic kick interval in seconds (0 disables)")
	rootCmd.PersistentFlags().BoolVar(&followAlarm, "follow-alarms", false, "run an alarm-scan whenever reset reports the alarm flag")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func openBus() (*onewire.BusController, error) {
	if busAddress == "" {
		return nil, fmt.Errorf("--device is required")
	}
	opts := fmt.Sprintf("%s %s", busName, busAddress)
	if interval > 0 {
		opts += fmt.Sprintf(" interval=%d", interval)
	}
	if followAlarm {
		opts += " followAlarms=on"
	}
	cfg, err := onewire.ParseConfig(opts)
	if err != nil {
		return nil, err
	}
	return onewire.New(cfg, onewire.NewLogrusLogger(nil))
}

// diagnostic renders the single-line `<bus>: <op>: <kind>` failure format
// of spec.md §7.
func diagnostic(bus, op string, err error) string {
	if kind, ok := onewire.KindOf(err); ok {
		return fmt.Sprintf("%s: %s: %s", bus, op, kind)
	}
	return fmt.Sprintf("%s: %s: %v", bus, op, err)
}
