package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Query bus state",
}

var getAlarmsCmd = &cobra.Command{
	Use:   "alarms",
	Short: "List currently alarmed devices",
	RunE: func(*cobra.Command, []string) error {
		bus, err := openBus()
		if err != nil {
			return err
		}
		defer bus.Close()

		alarmed, err := bus.Alarms()
		if err != nil {
			return fmt.Errorf("%s", diagnostic(busName, "alarms", err))
		}
		for _, id := range alarmed {
			fmt.Println(id.String())
		}
		return nil
	},
}

var getDevicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List devices present on the bus",
	RunE: func(*cobra.Command, []string) error {
		bus, err := openBus()
		if err != nil {
			return err
		}
		defer bus.Close()

		if _, err := bus.Discover(); err != nil {
			return fmt.Errorf("%s", diagnostic(busName, "discover", err))
		}
		for _, id := range bus.Roster().Present() {
			fmt.Printf("%s %s\n", id.String(), chipName(id.Family()))
		}
		return nil
	},
}

func init() {
	getCmd.AddCommand(getAlarmsCmd)
	getCmd.AddCommand(getDevicesCmd)
	rootCmd.AddCommand(getCmd)
}

// chipName maps a ROM family byte to the marketing name of the silicon it
// identifies, for the "get devices" tabular listing of spec.md §6. Families
// with no known mapping print as "unknown".
func chipName(family byte) string {
	switch family {
	case 0x10:
		return "DS18S20"
	case 0x22:
		return "DS1822"
	case 0x28:
		return "DS18B20"
	case 0x23:
		return "DS2433 EEPROM"
	case 0x01:
		return "DS1990A switch"
	case 0x12:
		return "DS2406 switch"
	case 0x26:
		return "DS2438 battery monitor"
	default:
		return "unknown"
	}
}
