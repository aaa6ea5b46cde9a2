package cmd

import (
	"context"
	"errors"
	"io/fs"
	"log"

	"github.com/josephlewis42/ensishell/commands"
	"github.com/josephlewis42/ensishell/core/config"
	"github.com/josephlewis42/ensishell/core/logger"
	"github.com/spf13/cobra"
)

var (
	cfgPath     string
	commandLine string

	// exitCode is the status the process exits with after a command ran.
	exitCode int
)

func loadConfig() (*config.Configuration, error) {
	if cfgPath == "" {
		return config.Default(), nil
	}

	configuration, err := config.Load(cfgPath)

	if errors.Is(err, fs.ErrNotExist) {
		log.Println("Couldn't load config: did you run init?")
	}

	return configuration, err
}

// openEventLog returns the session logger for the configuration and a
// function that releases it.
func openEventLog(cfg *config.Configuration) (*logger.SessionLogger, func(), error) {
	if !cfg.EventLog || cfg.Dir() == "" {
		return nil, func() {}, nil
	}

	logFd, err := cfg.OpenAppLog()
	if err != nil {
		return nil, nil, err
	}

	return logger.NewJsonLinesLogRecorder(logFd).NewSession(), func() { logFd.Close() }, nil
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ensishell",
	Short: "A shell for pipelines of programs",
	Long: `ensishell reads command lines and runs them as pipelines of programs
connected by pipes, with optional input/output redirection and background
execution. Background jobs are tracked and reported when they exit.`,
	Args: cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		sessionLog, closeLog, err := openEventLog(cfg)
		if err != nil {
			return err
		}
		defer closeLog()

		shell := commands.NewShell(cfg, commands.OSStreams(), sessionLog)

		if cmd.Flags().Changed("command") {
			exitCode = shell.RunCommand(commandLine)
			return nil
		}

		exitCode = shell.Run(context.Background())
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// It returns the status the process should exit with.
func Execute() int {
	cobra.CheckErr(rootCmd.Execute())
	return exitCode
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config directory, built in defaults are used if empty")
	rootCmd.Flags().StringVarP(&commandLine, "command", "c", "", "run a single command line and exit with its status")
}
