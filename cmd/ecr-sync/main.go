// Package main is the entry point for ecr-sync CLI.
package main

import (
	"os"

	"github.com/pitstone-retail/ecr-sync/cmd/ecr-sync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
