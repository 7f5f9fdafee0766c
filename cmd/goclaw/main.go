// Package main is the goclaw CLI entry point.
package main

import (
	"os"

	"github.com/goclaw/goclaw/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
