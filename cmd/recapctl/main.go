// Command recapctl is the terminal client for a recap server. It uploads
// recordings, follows processing, and inspects providers and credits.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "recapctl: %v\n", err)
		os.Exit(1)
	}
}
