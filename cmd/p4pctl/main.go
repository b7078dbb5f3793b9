// Package main is the entry point for p4pctl, the operator CLI for the P4P
// pay engine. It works against the store directly; no server is required.
package main

import (
	"os"

	"github.com/fieldcrew/p4p-engine/cmd/p4pctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
