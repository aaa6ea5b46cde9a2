package main

import (
	"os"

	"github.com/josephlewis42/ensishell/cmd"
	"github.com/josephlewis42/ensishell/core/executor"
)

func main() {
	// Pipelines are run by a copy of this binary, see executor.Orchestrate.
	if executor.IsOrchestrator() {
		os.Exit(executor.Orchestrate())
	}

	os.Exit(cmd.Execute())
}
