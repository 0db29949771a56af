// Package main is the entry point for the mt CLI tool.
package main

import (
	"os"

	"github.com/aidanlsb/moltrack/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
