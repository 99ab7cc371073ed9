package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kursadbilgin/mailrunner/internal/config"
	"github.com/kursadbilgin/mailrunner/internal/domain"
	"github.com/kursadbilgin/mailrunner/internal/observability"
	"github.com/kursadbilgin/mailrunner/internal/output"
	"github.com/kursadbilgin/mailrunner/internal/provider"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRootCommand(in io.Reader, out io.Writer) *cobra.Command {
	var (
		envFile string
		format  string
	)

	cmd := &cobra.Command{
		Use:          "weather [city]",
		Short:        "Show the current weather for a city",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}
			if _, err := config.LoadDotEnv(envFile); err != nil {
				return err
			}
			cfg, err := config.LoadWeather()
			if err != nil {
				return fmt.Errorf("%w\nset OPENWEATHER_API_KEY in the environment or in %s", err, envFile)
			}

			logger, err := observability.NewLogger(cfg.LogLevel, observability.WithConsoleEncoding())
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			city := strings.TrimSpace(strings.Join(args, " "))
			if city == "" {
				city, err = promptCity(in, out)
				if err != nil {
					return err
				}
			}
			if city == "" {
				return fmt.Errorf("%w: city name cannot be empty", domain.ErrValidation)
			}

			client, err := provider.NewOpenWeatherProvider(cfg.BaseURL, cfg.APIKey, cfg.Timeout())
			if err != nil {
				return err
			}

			return lookup(cmd.Context(), client, city, f, out, logger)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", ".env", "Path to a .env file; variables already set win")
	cmd.Flags().StringVarP(&format, "output", "o", "table", "Output format: table, json, yaml")

	return cmd
}

func lookup(
	ctx context.Context,
	client provider.WeatherProvider,
	city string,
	format output.Format,
	out io.Writer,
	logger *zap.Logger,
) error {
	logger.Debug("fetching weather", zap.String("city", city))

	report, err := client.Current(ctx, city)
	if err != nil {
		logger.Debug("weather lookup failed", zap.Error(err))
		return describeLookupError(city, err)
	}

	if format == output.FormatTable {
		output.WriteWeatherReport(out, report)
		return nil
	}
	return output.WriteObject(out, format, report)
}

func describeLookupError(city string, err error) error {
	switch {
	case errors.Is(err, provider.ErrCityNotFound):
		return fmt.Errorf("city %q not found, please check the spelling: %w", city, err)
	case errors.Is(err, provider.ErrInvalidAPIKey):
		return fmt.Errorf("invalid API key, please check OPENWEATHER_API_KEY: %w", err)
	case provider.IsTransient(err):
		return fmt.Errorf("weather service unavailable, try again later: %w", err)
	default:
		return err
	}
}

func promptCity(in io.Reader, out io.Writer) (string, error) {
	_, _ = fmt.Fprint(out, "Enter city name: ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
