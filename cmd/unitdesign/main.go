// Package main provides the unitdesign command.
package main

import (
	"os"

	"github.com/leapstack-labs/unitdesign/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
