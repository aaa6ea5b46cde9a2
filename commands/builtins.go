package commands

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/josephlewis42/ensishell/core/executor"
)

// AllBuiltins holds a list of all registered shell builtins
var AllBuiltins = make(map[string]ShellBuiltin)

// ShellBuiltin is a command that runs inside the shell process.
type ShellBuiltin struct {
	// Short holds a one line description of the builtin.
	Short string
	// Policy decides whether the builtin may take part in a pipeline.
	Policy executor.Policy
	// Main runs the builtin, args[0] is the builtin's name.
	Main ShellBuiltinFunc
}

type ShellBuiltinFunc func(s *Shell, stdout, stderr io.Writer, args []string) int

// BuiltinNames returns the names of all builtins in sorted order.
func BuiltinNames() []string {
	var names []string
	for name := range AllBuiltins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Exit quits the shell
func Exit(s *Shell, stdout, stderr io.Writer, args []string) int {
	s.Quit = true
	return executor.ExitSuccess
}

func Help(s *Shell, stdout, stderr io.Writer, args []string) int {
	fmt.Fprintln(stdout, "ensishell, a shell for pipelines of programs.")
	fmt.Fprintln(stdout, "These commands are defined internally, everything else is looked up in PATH.")
	fmt.Fprintln(stdout)
	WriteBuiltinTable(stdout)

	return executor.ExitSuccess
}

// WriteBuiltinTable writes one aligned row per builtin: its name, pipeline
// policy and description.
func WriteBuiltinTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	for _, name := range BuiltinNames() {
		builtin := AllBuiltins[name]
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, builtin.Policy, builtin.Short)
	}
	return tw.Flush()
}

func init() {
	AllBuiltins["exit"] = ShellBuiltin{
		Short:  "Exit the shell.",
		Policy: executor.RunInShell,
		Main:   Exit,
	}
	AllBuiltins["help"] = ShellBuiltin{
		Short:  "Show this list.",
		Policy: executor.Piped,
		Main:   Help,
	}
}
