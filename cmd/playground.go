package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/josephlewis42/ensishell/commands"
	"github.com/josephlewis42/ensishell/core/config"
	"github.com/josephlewis42/ensishell/core/logger"
	"github.com/spf13/cobra"
)

// playgroundCmd runs the shell with a throwaway configuration and event log
var playgroundCmd = &cobra.Command{
	Use:   "playground",
	Short: "Run the shell with a temporary configuration, logging every event.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		dir, err := os.MkdirTemp("", "playground")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)

		playgroundLogger := log.New(cmd.ErrOrStderr(), "[playground] ", 0)
		cfg, err := config.Initialize(dir, playgroundLogger)
		if err != nil {
			return err
		}

		// Tell the playground apart from a real session.
		cfg.Prompt = "playground> "

		logFd, err := cfg.OpenAppLog()
		if err != nil {
			return err
		}
		defer logFd.Close()
		logRecorder := logger.NewJsonLinesLogRecorder(logFd)

		playgroundLogger.Printf("Logging to: file://%s\n", dir)
		playgroundLogger.Printf("See logs with: tail -f %s\n", filepath.Join(dir, config.AppLogName))
		playgroundLogger.Println(strings.Repeat("=", 80))

		shell := commands.NewShell(cfg, commands.OSStreams(), logRecorder.NewSession())
		status := shell.Run(context.Background())
		fmt.Fprintf(cmd.ErrOrStderr(), "Exit code: %d\n", status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(playgroundCmd)
}
