package main

import (
	"os"

	"github.com/turtacn/KeyIP-MMP/internal/interfaces/cli"
)

// Set with -ldflags "-X main.version=...".
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func init() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate
}

func main() {
	// Execute has already reported the error.
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
