package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/kursadbilgin/mailrunner/internal/config"
	"github.com/kursadbilgin/mailrunner/internal/observability"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runtimeState struct {
	envFile string
	logFile string
	writer  io.Writer
}

func newRootCommand(w io.Writer) *cobra.Command {
	rt := &runtimeState{writer: w}

	root := &cobra.Command{
		Use:           "mailer",
		Short:         "Personalized bulk email sender",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if rt.writer == nil {
				rt.writer = os.Stdout
			}
			_, err := config.LoadDotEnv(rt.envFile)
			return err
		},
	}

	root.PersistentFlags().StringVar(&rt.envFile, "env-file", ".env", "Path to a .env file; variables already set win")
	root.PersistentFlags().StringVar(&rt.logFile, "log-file", "", "Also write logs to this file")

	root.AddCommand(
		newSendCommand(rt),
		newServeCommand(rt),
		newRunsCommand(rt),
	)

	return root
}

func (rt *runtimeState) newLogger(level string) (*zap.Logger, error) {
	var opts []observability.LoggerOption
	if rt.logFile != "" {
		if err := os.MkdirAll(filepath.Dir(rt.logFile), 0o755); err != nil {
			return nil, err
		}
		opts = append(opts, observability.WithOutputFile(rt.logFile))
	}
	return observability.NewLogger(level, opts...)
}
