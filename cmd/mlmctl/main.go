// Command mlmctl runs placement, distribution and reporting operations
// against the configured storage from the command line.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
