// Package main is the entry point for the suzieq CLI.
package main

import (
	"os"

	"github.com/suzieq/ceo-office/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
