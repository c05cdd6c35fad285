// Package main provides the entry point for the podseek CLI.
package main

import (
	"os"

	"github.com/podseek/podseek/cmd/podseek/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
