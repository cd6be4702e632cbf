// Command vibinet is the demo client, the broker, a raw-protocol REPL, and a
// room-discovery client, bundled as one binary with four subcommands.
package main

import (
	"fmt"
	"os"
)

// Version is set at build time.
var Version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
