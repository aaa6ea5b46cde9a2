package commands

import (
	"fmt"
	"io"

	"github.com/josephlewis42/ensishell/core/executor"
	"github.com/josephlewis42/ensishell/core/logger"
)

// Jobs lists the background processes of the shell. Processes that have
// exited are reported once and then forgotten.
func Jobs(s *Shell, stdout, stderr io.Writer, args []string) int {
	cmd := &SimpleCommand{
		Use:   "jobs [--color=WHEN]",
		Short: "List background processes, reclaiming the ones that exited.",
	}

	var printer ColorPrinter
	printer.Init(cmd.Flags(), s.Config.Color, stdout)

	return cmd.Run(stdout, stderr, args, func() int {
		if extra := cmd.Flags().Args(); len(extra) > 0 {
			fmt.Fprintf(stderr, "jobs: unexpected argument: %s\n", extra[0])
			return executor.ExitFailure
		}

		reports := s.Registry.ListAndReap()
		if len(reports) == 0 {
			fmt.Fprintln(stdout, "No background process")
			return executor.ExitSuccess
		}

		for _, report := range reports {
			if !report.Exited {
				fmt.Fprintf(stdout, "PID: %d, Command: %s\n", report.Job.PID, report.Job.Command)
				continue
			}

			statusColor := ColorBoldGreen
			if report.Status != executor.ExitSuccess {
				statusColor = ColorBoldRed
			}
			fmt.Fprintf(stdout, "Process with PID %d exited with status %s\n",
				report.Job.PID, printer.Sprintf(statusColor, "%d", report.Status))

			s.Log.Record(&logger.JobExited{
				Pid:            report.Job.PID,
				Command:        report.Job.Command,
				Status:         report.Status,
				ElapsedSeconds: report.Elapsed.Seconds(),
				Collector:      "jobs",
			})
		}

		return executor.ExitSuccess
	})
}

func init() {
	AllBuiltins["jobs"] = ShellBuiltin{
		Short:  "List background processes.",
		Policy: executor.Piped,
		Main:   Jobs,
	}
}
