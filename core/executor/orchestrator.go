package executor

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/josephlewis42/ensishell/core/pipeline"
)

// envOrchestrate carries the encoded spec to the orchestrator process.
const envOrchestrate = "ENSISHELL_ORCHESTRATE"

// IsOrchestrator reports whether the current process was started by an
// Executor to run a pipeline. main (and TestMain in tests) must check this
// before doing anything else and exit with the result of Orchestrate.
func IsOrchestrator() bool {
	return os.Getenv(envOrchestrate) != ""
}

// Orchestrate runs the pipeline handed down by the parent shell and returns
// the exit status of its last stage.
func Orchestrate() int {
	encoded := os.Getenv(envOrchestrate)
	// Stages must not inherit the marker or they'd orchestrate too.
	os.Unsetenv(envOrchestrate)

	spec, err := pipeline.Decode(encoded)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ensishell: decoding pipeline: %v\n", err)
		return ExitFailure
	}

	return runPipeline(spec, stdio{in: os.Stdin, out: os.Stdout, err: os.Stderr})
}

// stdio holds the descriptors a pipeline inherits.
type stdio struct {
	in  *os.File
	out *os.File
	err io.Writer
}

// runPipeline starts every stage according to the wiring plan, waits for all
// of them and returns the status of the last one. A stage that can't be
// started counts as ExitFailure; its neighbours see the pipe close.
func runPipeline(spec *pipeline.Spec, std stdio) int {
	plan, err := newPlan(spec)
	if err != nil {
		fmt.Fprintf(std.err, "ensishell: %v\n", err)
		return ExitFailure
	}

	cmds := make([]*exec.Cmd, len(plan.stages))
	statuses := make([]int, len(plan.stages))
	for i, stage := range plan.stages {
		cmds[i], err = startStage(stage, std)
		// The orchestrator keeps no pipe ends once the stage has its own.
		stage.closePipes()
		if err != nil {
			fmt.Fprintf(std.err, "ensishell: %v\n", err)
			statuses[i] = ExitFailure
		}
	}

	for i, cmd := range cmds {
		if cmd != nil {
			statuses[i] = exitStatus(cmd.Wait())
		}
	}

	return statuses[len(statuses)-1]
}

// startStage opens the stage's redirections and starts its program. The
// redirection files are closed again once the child has them.
func startStage(stage *stagePlan, std stdio) (*exec.Cmd, error) {
	stdin, stdout := std.in, std.out
	if stage.stdin != nil {
		stdin = stage.stdin
	}
	if stage.stdout != nil {
		stdout = stage.stdout
	}

	if stage.inputPath != "" {
		fd, err := os.Open(stage.inputPath)
		if err != nil {
			return nil, err
		}
		defer fd.Close()
		stdin = fd
	}

	if stage.outputPath != "" {
		fd, err := createOutput(stage.outputPath)
		if err != nil {
			return nil, err
		}
		defer fd.Close()
		stdout = fd
	}

	cmd := exec.Command(stage.args[0], stage.args[1:]...)
	// Leave unset streams nil so os/exec connects them to the null device.
	if stdin != nil {
		cmd.Stdin = stdin
	}
	if stdout != nil {
		cmd.Stdout = stdout
	}
	cmd.Stderr = std.err
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}
