package commands

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/abiosoft/readline"
	"github.com/josephlewis42/ensishell/core/config"
	"github.com/josephlewis42/ensishell/core/executor"
	"github.com/josephlewis42/ensishell/core/jobs"
	"github.com/josephlewis42/ensishell/core/logger"
	"github.com/josephlewis42/ensishell/core/pipeline"
	"github.com/josephlewis42/ensishell/core/reaper"
)

const DefaultPrompt = "ensishell> "

// Streams are the standard streams of a shell.
type Streams struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// OSStreams returns the standard streams of the process.
func OSStreams() Streams {
	return Streams{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

type Shell struct {
	Config   *config.Configuration
	Registry *jobs.Registry
	Executor *executor.Executor
	Log      *logger.SessionLogger

	std     Streams
	lastRet int

	// Set to true to quit the shell
	Quit bool
}

// NewShell creates a shell. Background jobs are limited to the configured
// maximum unless opts say otherwise.
func NewShell(cfg *config.Configuration, std Streams, log *logger.SessionLogger, opts ...jobs.Option) *Shell {
	registry := jobs.NewRegistry(append([]jobs.Option{jobs.WithCapacity(cfg.MaxJobs)}, opts...)...)

	shell := &Shell{
		Config:   cfg,
		Registry: registry,
		Log:      log,
		std:      std,
	}

	shell.Executor = executor.New(registry, shell)
	shell.Executor.Stdin = std.Stdin
	shell.Executor.Stdout = std.Stdout
	shell.Executor.Stderr = std.Stderr
	shell.Executor.Log = log

	return shell
}

// Builtin implements executor.Dispatcher.
func (s *Shell) Builtin(name string) (executor.Builtin, bool) {
	builtin, ok := AllBuiltins[name]
	if !ok {
		return executor.Builtin{}, false
	}

	return executor.Builtin{
		Policy: builtin.Policy,
		Main: func(stdout, stderr io.Writer, args []string) int {
			return builtin.Main(s, stdout, stderr, args)
		},
	}, true
}

// LastStatus returns the status of the last command run.
func (s *Shell) LastStatus() int {
	return s.lastRet
}

// RunCommand parses and runs a single line and returns its status.
func (s *Shell) RunCommand(line string) int {
	spec := pipeline.Parse(line)
	s.lastRet = s.Executor.Execute(spec, line)

	switch {
	case spec.Err != nil:
		s.Log.Record(&logger.ParseError{Line: line, Error: spec.Err.Error()})
	case !spec.Empty():
		_, isBuiltin := AllBuiltins[spec.Program()]
		event := &logger.RunCommand{
			Line:       line,
			Builtin:    isBuiltin,
			Background: spec.Background,
			Status:     s.lastRet,
		}
		for _, stage := range spec.Stages {
			event.Stages = append(event.Stages, []string(stage))
		}
		s.Log.Record(event)
	}

	return s.lastRet
}

// lineReader is the part of readline the shell uses.
type lineReader interface {
	Readline() (string, error)
	Stdout() io.Writer
	Close() error
}

// plainReader reads lines from a stream that isn't a terminal. It reads a
// byte at a time so the rest of the input is left for the commands it runs.
type plainReader struct {
	in     io.Reader
	out    io.Writer
	prompt string
}

func (p *plainReader) Readline() (string, error) {
	fmt.Fprint(p.out, p.prompt)

	var line []byte
	b := make([]byte, 1)
	for {
		n, err := p.in.Read(b)
		if n == 1 {
			if b[0] == '\n' {
				return strings.TrimSuffix(string(line), "\r"), nil
			}
			line = append(line, b[0])
		}

		switch {
		case err == io.EOF && len(line) > 0:
			// Last line without a newline.
			return strings.TrimSuffix(string(line), "\r"), nil
		case err != nil:
			return "", err
		}
	}
}

func (p *plainReader) Stdout() io.Writer {
	return p.out
}

func (p *plainReader) Close() error {
	return nil
}

func (s *Shell) newLineReader() (lineReader, error) {
	if !isTerminal(s.std.Stdin) {
		return &plainReader{
			in:     s.std.Stdin,
			out:    s.std.Stdout,
			prompt: s.prompt(),
		}, nil
	}

	cfg := &readline.Config{
		Prompt:      s.prompt(),
		HistoryFile: s.Config.HistoryPath(),
		Stdin:       readline.NewCancelableStdin(s.std.Stdin),
		Stdout:      s.std.Stdout,
		Stderr:      s.std.Stderr,
	}

	if err := cfg.Init(); err != nil {
		return nil, err
	}

	return readline.NewEx(cfg)
}

// Run reads and executes lines until the input ends or the exit builtin is
// called.
func (s *Shell) Run(ctx context.Context) int {
	rl, err := s.newLineReader()
	if err != nil {
		fmt.Fprintf(s.std.Stderr, "ensishell: %s\n", err)
		return executor.ExitFailure
	}
	defer rl.Close()

	// Interrupts are meant for the foreground pipeline. Children get the
	// default disposition back when they're started.
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	if s.Config.AsyncReap {
		r := reaper.New(s.Registry, rl.Stdout(), s.Log)
		s.Executor.Launched = func(jobs.Job) {
			r.Kick()
		}
		defer func() { s.Executor.Launched = nil }()

		stop := r.Start(ctx)
		defer stop()
	}

	for !s.Quit {
		line, err := rl.Readline()

		switch {
		case err == io.EOF:
			s.Quit = true

		case err == readline.ErrInterrupt:
			// Interrupt clears line.
			continue

		case err != nil:
			log.Printf("Error readline: %v", err)
			return executor.ExitFailure

		default:
			s.RunCommand(line)
		}

		// Drop interrupts that were meant for the last pipeline.
		select {
		case <-interrupts:
		default:
		}
	}

	fmt.Fprintln(rl.Stdout(), "exit")
	return executor.ExitSuccess
}
