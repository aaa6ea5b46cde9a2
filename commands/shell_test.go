package commands

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"testing"

	"github.com/josephlewis42/ensishell/core/config"
	"github.com/josephlewis42/ensishell/core/executor"
	"github.com/josephlewis42/ensishell/core/logger"
	"github.com/stretchr/testify/assert"
)

func TestShell_Run(t *testing.T) {
	script := strings.Join([]string{
		"echo hi | wc -l",
		"false > /not/a/dir/out.txt",
		"echo still here",
		"exit",
		"echo never",
	}, "\n")
	ts := newTestShell(t, config.Default(), script)

	assert.Equal(t, executor.ExitSuccess, ts.Run(context.Background()))

	out := ts.stdout.String()
	assert.True(t, strings.HasPrefix(out, DefaultPrompt), out)
	assert.Regexp(t, regexp.MustCompile(`(?m)^`+DefaultPrompt+`\s*1$`), out)
	assert.Contains(t, out, "still here\n")
	assert.True(t, strings.HasSuffix(out, "exit\n"), out)
	assert.NotContains(t, out, "never")
	assert.Contains(t, ts.stderr.String(), "/not/a/dir/out.txt")
	assert.True(t, ts.Quit)
}

func TestShell_Run_endOfInput(t *testing.T) {
	// The last line has no newline.
	ts := newTestShell(t, config.Default(), "echo a\nsh -c 'exit 4'")

	assert.Equal(t, executor.ExitSuccess, ts.Run(context.Background()))
	assert.Equal(t, 4, ts.LastStatus())
	assert.Equal(t, "ensishell> a\nensishell> ensishell> exit\n", ts.stdout.String())
}

func TestShell_Run_inputLeftForCommands(t *testing.T) {
	// cat reads the line after it from the shell's own input.
	ts := newTestShell(t, config.Default(), "cat\nfrom the script\necho done\n")

	assert.Equal(t, executor.ExitSuccess, ts.Run(context.Background()))
	assert.Equal(t, "ensishell> from the script\necho done\nensishell> exit\n", ts.stdout.String())
}

func TestPlainReader_Readline(t *testing.T) {
	out := &bytes.Buffer{}
	in := strings.NewReader("one\r\ntwo\n\nthree")
	p := &plainReader{in: in, out: out, prompt: "> "}

	for _, expected := range []string{"one", "two", "", "three"} {
		line, err := p.Readline()
		assert.Nil(t, err)
		assert.Equal(t, expected, line)
	}

	_, err := p.Readline()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, "> > > > > ", out.String())
}

func TestShell_Run_prompt(t *testing.T) {
	cfg := config.Default()
	cfg.Prompt = "$ "
	ts := newTestShell(t, cfg, "")

	ts.Run(context.Background())
	assert.Equal(t, "$ exit\n", ts.stdout.String())
}

func TestShell_Run_asyncReap(t *testing.T) {
	script := strings.Join([]string{
		"sh -c 'exit 3' &",
		"sleep 1",
		"jobs",
	}, "\n")
	ts := newTestShell(t, config.Default(), script)

	ts.Run(context.Background())

	out := ts.stdout.String()
	assert.Regexp(t, regexp.MustCompile(`Process with PID \d+ exited with status 3 after \d+\.\d\ds\n`), out)
	assert.Contains(t, out, "No background process\n")
	assert.Equal(t, 0, ts.Registry.Len())
}

func TestShell_Run_syncReap(t *testing.T) {
	cfg := config.Default()
	cfg.AsyncReap = false
	script := strings.Join([]string{
		"sh -c 'exit 3' &",
		"sleep 0.5",
		"jobs",
		"jobs",
	}, "\n")
	ts := newTestShell(t, cfg, script)

	ts.Run(context.Background())

	out := ts.stdout.String()
	assert.Regexp(t, regexp.MustCompile(`Process with PID \d+ exited with status 3\n`), out)
	assert.NotContains(t, out, " after ")
	assert.Equal(t, 1, strings.Count(out, "No background process\n"))
}

func TestShell_Run_jobsPiped(t *testing.T) {
	cfg := config.Default()
	cfg.AsyncReap = false
	ts := newTestShell(t, cfg, "sleep 1 &\nsleep 1 &\njobs | grep -c PID")

	ts.Run(context.Background())

	assert.Contains(t, ts.stdout.String(), "ensishell> 2\n")
	assert.Equal(t, 2, ts.Registry.Len())
}

func TestShell_RunCommand(t *testing.T) {
	cfg := config.Default()
	cfg.AsyncReap = false
	ts := newTestShell(t, cfg, "")
	events := &bytes.Buffer{}
	ts.Log = logger.NewJsonLinesLogRecorder(events).Sessionless()

	assert.Equal(t, executor.ExitUsage, ts.RunCommand("ls | | wc"))
	assert.Equal(t, "error: empty command in pipeline\n", ts.stderr.String())
	assert.Equal(t, executor.ExitUsage, ts.LastStatus())

	assert.Equal(t, executor.ExitSuccess, ts.RunCommand(""))
	assert.Equal(t, 7, ts.RunCommand("sh -c 'exit 7'"))
	assert.Equal(t, executor.ExitSuccess, ts.RunCommand("jobs > /dev/null"))

	var report logger.Report
	assert.Nil(t, logger.ReadJSONLinesLog(events, report.Update))
	assert.Equal(t, 1, report.ParseError.Errors.Get("empty command in pipeline"))
	assert.Equal(t, 1, report.RunCommand.CommandNames.Get("sh"))
	assert.Equal(t, 1, report.RunCommand.CommandNames.Get("jobs"))
	assert.Equal(t, 1, report.RunCommand.Builtins)
}

func TestShell_RunCommand_exit(t *testing.T) {
	ts := newTestShell(t, config.Default(), "")

	assert.Equal(t, executor.ExitSuccess, ts.RunCommand("exit | cat"))
	assert.True(t, ts.Quit)
	assert.Contains(t, ts.stderr.String(), "ignored")
}

func TestShell_RunCommand_registryFull(t *testing.T) {
	cfg := config.Default()
	cfg.MaxJobs = 1
	cfg.AsyncReap = false
	ts := newTestShell(t, cfg, "")

	for i := 0; i < 2; i++ {
		assert.Equal(t, executor.ExitSuccess, ts.RunCommand(fmt.Sprintf("sleep 0.%d &", i+1)))
	}

	assert.Equal(t, 1, ts.Registry.Len())
	assert.Contains(t, ts.stderr.String(), "runs untracked")
}
