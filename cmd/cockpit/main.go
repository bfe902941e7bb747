// Command cockpit is a thin CLI demonstrating the core end to end. It is
// not the specified CLI surface (that's an external collaborator); it
// exists so the core can be exercised from a terminal.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
