package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/mailrunner/internal/config"
	"github.com/kursadbilgin/mailrunner/internal/domain"
	"github.com/kursadbilgin/mailrunner/internal/handler"
	"github.com/kursadbilgin/mailrunner/internal/output"
	"github.com/kursadbilgin/mailrunner/internal/repository"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// historyOpener returns the run history and a release func.
type historyOpener func(ctx context.Context, logger *zap.Logger) (handler.RunHistory, func(), error)

func openHistoryFromEnv(ctx context.Context, logger *zap.Logger) (handler.RunHistory, func(), error) {
	cfg, err := config.LoadServer()
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(cfg.DatabaseDSN) == "" {
		return nil, nil, fmt.Errorf("DATABASE_DSN is required to read run history")
	}

	b := &backends{}
	if err := b.openHistory(ctx, cfg.DatabaseDSN); err != nil {
		return nil, nil, err
	}
	return b.history(), func() { b.Close(logger) }, nil
}

func newRunsCommand(rt *runtimeState) *cobra.Command {
	return newRunsCommandWith(rt, openHistoryFromEnv)
}

func newRunsCommandWith(rt *runtimeState, open historyOpener) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the history of bulk runs",
	}
	cmd.PersistentFlags().StringVarP(&format, "output", "o", "table", "Output format: table, json, yaml")

	withHistory := func(cmd *cobra.Command, fn func(ctx context.Context, history handler.RunHistory, f output.Format) error) error {
		f, err := output.ParseFormat(format)
		if err != nil {
			return err
		}
		logger := zap.NewNop()
		history, release, err := open(cmd.Context(), logger)
		if err != nil {
			return err
		}
		defer release()
		return fn(cmd.Context(), history, f)
	}

	var (
		status   string
		page     int
		pageSize int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withHistory(cmd, func(ctx context.Context, history handler.RunHistory, f output.Format) error {
				params := repository.RunListParams{Page: page, PageSize: pageSize}
				if strings.TrimSpace(status) != "" {
					st, err := domain.ParseRunStatusFromString(status)
					if err != nil {
						return err
					}
					params.Status = &st
				}

				runs, total, err := history.List(ctx, params)
				if err != nil {
					return err
				}
				if f != output.FormatTable {
					return output.WriteObject(rt.writer, f, runs)
				}
				output.WriteRunTable(rt.writer, runs)
				_, _ = fmt.Fprintf(rt.writer, "\n%d of %d runs\n", len(runs), total)
				return nil
			})
		},
	}
	list.Flags().StringVar(&status, "status", "", "Filter by status: running, completed, aborted")
	list.Flags().IntVar(&page, "page", 1, "Page number")
	list.Flags().IntVar(&pageSize, "page-size", 20, "Runs per page")

	var failedOnly bool
	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run and its deliveries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, func(ctx context.Context, history handler.RunHistory, f output.Format) error {
				run, err := history.GetByID(ctx, args[0])
				if err != nil {
					return err
				}
				deliveries, err := history.ListDeliveries(ctx, run.ID, failedOnly)
				if err != nil {
					return err
				}

				if f != output.FormatTable {
					return output.WriteObject(rt.writer, f, struct {
						Run        *domain.Run       `json:"run" yaml:"run"`
						Deliveries []domain.Delivery `json:"deliveries" yaml:"deliveries"`
					}{Run: run, Deliveries: deliveries})
				}
				output.WriteRunTable(rt.writer, []domain.Run{*run})
				if run.Error != nil {
					_, _ = fmt.Fprintf(rt.writer, "\nError: %s\n", *run.Error)
				}
				_, _ = fmt.Fprintln(rt.writer)
				output.WriteDeliveryTable(rt.writer, deliveries)
				return nil
			})
		},
	}
	show.Flags().BoolVar(&failedOnly, "failed", false, "Only show failed deliveries")

	cmd.AddCommand(list, show)
	return cmd
}
