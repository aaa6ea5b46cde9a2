// Package executor turns a pipeline.Spec into running processes.
//
// The shell never starts pipeline stages itself. Instead it starts one
// orchestrator per pipeline: the shell binary re-executed with the encoded
// spec in its environment (see Orchestrate). The orchestrator wires up the
// stages and waits for them, so the foreground/background decision applies
// to the pipeline as a unit and a background job is tracked by a single pid.
package executor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/josephlewis42/ensishell/core/jobs"
	"github.com/josephlewis42/ensishell/core/logger"
	"github.com/josephlewis42/ensishell/core/pipeline"
	"golang.org/x/sys/unix"
)

// Exit codes used by the shell and its stages.
const (
	ExitSuccess = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// Policy determines how a builtin is executed.
type Policy int

const (
	// RunInShell builtins change the shell itself; they run alone in the
	// foreground and ignore any pipeline or redirection around them.
	RunInShell Policy = iota
	// Piped builtins only produce output, which may be redirected to a file or
	// piped into the remaining stages of the pipeline.
	Piped
)

func (p Policy) String() string {
	switch p {
	case RunInShell:
		return "shell"
	case Piped:
		return "piped"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// Builtin is a command handled inside the shell process.
type Builtin struct {
	Policy Policy
	Main   func(stdout, stderr io.Writer, args []string) int
}

// Dispatcher resolves builtin names. It's consulted with the program name of
// the first stage before any process is started.
type Dispatcher interface {
	Builtin(name string) (Builtin, bool)
}

// Executor runs pipelines on behalf of the interactive loop.
type Executor struct {
	// Registry receives background jobs.
	Registry *jobs.Registry
	// Builtins is optional.
	Builtins Dispatcher

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Self is the binary re-executed as the orchestrator, os.Executable() if
	// empty. The binary must call Orchestrate when IsOrchestrator is true.
	Self string

	// Launched is called after a background job has been registered.
	Launched func(job jobs.Job)

	// Log records job events, it may be nil.
	Log *logger.SessionLogger
}

// New creates an Executor connected to the process' standard streams.
func New(registry *jobs.Registry, builtins Dispatcher) *Executor {
	return &Executor{
		Registry: registry,
		Builtins: builtins,
		Stdin:    os.Stdin,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	}
}

// Execute runs spec. raw is the line spec was parsed from; it's kept verbatim
// as the command of a background job.
//
// Foreground pipelines return the exit status of their last stage.
// Background pipelines return ExitSuccess as soon as they're started.
func (e *Executor) Execute(spec *pipeline.Spec, raw string) int {
	switch {
	case spec.Err != nil:
		fmt.Fprintf(e.Stderr, "error: %v\n", spec.Err)
		return ExitUsage
	case spec.Empty():
		return ExitSuccess
	}

	if e.Builtins != nil {
		if builtin, ok := e.Builtins.Builtin(spec.Program()); ok {
			return e.runBuiltin(builtin, spec, raw)
		}
	}

	return e.launch(spec, raw, e.Stdin)
}

func (e *Executor) runBuiltin(builtin Builtin, spec *pipeline.Spec, raw string) int {
	args := spec.Stages[0]

	switch {
	case builtin.Policy == RunInShell:
		if len(spec.Stages) > 1 || spec.Input != "" || spec.Output != "" || spec.Background {
			fmt.Fprintf(e.Stderr, "ensishell: %s: pipelines and redirections are ignored\n", args[0])
		}
		return builtin.Main(e.Stdout, e.Stderr, args)

	case len(spec.Stages) == 1:
		stdout := e.Stdout
		if spec.Output != "" {
			fd, err := createOutput(spec.Output)
			if err != nil {
				fmt.Fprintf(e.Stderr, "ensishell: %v\n", err)
				return ExitFailure
			}
			defer fd.Close()
			stdout = fd
		}
		return builtin.Main(stdout, e.Stderr, args)

	default:
		buf := &bytes.Buffer{}
		builtin.Main(buf, e.Stderr, args)
		return e.launch(spec.Tail(), raw, buf)
	}
}

// launch starts an orchestrator for spec reading from stdin.
func (e *Executor) launch(spec *pipeline.Spec, raw string, stdin io.Reader) int {
	cmd, err := e.orchestratorCmd(spec, stdin)
	if err != nil {
		fmt.Fprintf(e.Stderr, "ensishell: %v\n", err)
		return ExitFailure
	}

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(e.Stderr, "ensishell: %v\n", err)
		return ExitFailure
	}

	if !spec.Background {
		return exitStatus(cmd.Wait())
	}

	pid := cmd.Process.Pid
	// The registry collects the status from here on, not os/exec.
	cmd.Process.Release()

	job, err := e.Registry.Create(pid, raw)
	if err != nil {
		fmt.Fprintf(e.Stderr, "ensishell: %v: pid %d runs untracked\n", err, pid)
		e.Log.Record(&logger.JobUntracked{Pid: pid, Command: raw, Error: err.Error()})
		return ExitSuccess
	}
	e.Log.Record(&logger.JobStarted{Pid: pid, Command: raw})

	if e.Launched != nil {
		e.Launched(job)
	}
	return ExitSuccess
}

func (e *Executor) orchestratorCmd(spec *pipeline.Spec, stdin io.Reader) (*exec.Cmd, error) {
	encoded, err := pipeline.Encode(spec)
	if err != nil {
		return nil, fmt.Errorf("encoding pipeline: %w", err)
	}

	self := e.Self
	if self == "" {
		if self, err = os.Executable(); err != nil {
			return nil, fmt.Errorf("locating shell binary: %w", err)
		}
	}

	cmd := exec.Command(self)
	cmd.Env = append(os.Environ(), envOrchestrate+"="+encoded)
	cmd.Stdin = stdin
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr
	return cmd, nil
}

// exitStatus converts the result of exec.Cmd.Wait into an exit code.
func exitStatus(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return ExitFailure
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
		return jobs.ExitCode(unix.WaitStatus(ws))
	}
	return exitErr.ExitCode()
}

func createOutput(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
}
