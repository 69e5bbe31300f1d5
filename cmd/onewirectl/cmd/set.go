package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Adjust bus policy",
}

var setIntervalCmd = &cobra.Command{
	Use:   "interval <seconds>",
	Short: "Set the periodic kick interval (minimum 15s)",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		secs, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("interval: %w", err)
		}
		bus, err := openBus()
		if err != nil {
			return err
		}
		defer bus.Close()

		if err := bus.Set(time.Duration(secs)*time.Second, bus.FollowAlarms()); err != nil {
			return fmt.Errorf("%s", diagnostic(busName, "set", err))
		}
		return nil
	},
}

var setFollowAlarmsCmd = &cobra.Command{
	Use:   "followAlarms on|off",
	Short: "Enable or disable scheduling an alarm-scan after an alarmed reset",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		on := args[0] == "on"
		if !on && args[0] != "off" {
			return fmt.Errorf("followAlarms: expected on or off, got %q", args[0])
		}
		bus, err := openBus()
		if err != nil {
			return err
		}
		defer bus.Close()

		if err := bus.Set(bus.Interval(), on); err != nil {
			return fmt.Errorf("%s", diagnostic(busName, "set", err))
		}
		return nil
	},
}

func init() {
	setCmd.AddCommand(setIntervalCmd)
	setCmd.AddCommand(setFollowAlarmsCmd)
	rootCmd.AddCommand(setCmd)
}
