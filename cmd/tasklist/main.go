package main

import (
	"github.com/fulmenhq/gofulmen/foundry"

	"github.com/tasklist/tasklist/internal/cmd"
	"github.com/tasklist/tasklist/internal/server/handlers"
)

// Overridden at build time:
//
//	go build -ldflags "-X main.version=0.4.0 -X main.commit=$(git rev-parse --short HEAD)" ./cmd/tasklist
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	handlers.SetVersionInfo(version, commit, buildDate)

	if err := cmd.Execute(); err != nil {
		cmd.ExitWithCodeStderr(foundry.ExitFailure, "tasklist failed", err)
	}
}
