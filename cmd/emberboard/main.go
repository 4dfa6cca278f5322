// Package main provides the entry point for the emberboard CLI.
package main

import (
	"os"

	"github.com/emberboard/emberboard/cmd/emberboard/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
