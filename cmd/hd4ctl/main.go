// Package main is the entry point for the hd4ctl CLI.
package main

import (
	"os"

	"github.com/vireosec/hd4-controller/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
