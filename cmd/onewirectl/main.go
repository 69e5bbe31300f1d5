// Command onewirectl is a small CLI over the bus-controller façade: the
// reference host-facing surface spec.md §6 describes, wired directly
// against the onewire package rather than a host automation framework.
package main

import (
	"fmt"
	"os"

	"onewire/cmd/onewirectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
