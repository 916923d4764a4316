package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bricks-cloud/bricksmeter/internal/config"
	logger "github.com/bricks-cloud/bricksmeter/internal/logger/zap"
	"github.com/bricks-cloud/bricksmeter/internal/server/web"
	"github.com/bricks-cloud/bricksmeter/internal/telemetry"
	"github.com/bricks-cloud/bricksmeter/meter"
)

const shutdownTimeout = 10 * time.Second

type recorder interface {
	Record(ctx context.Context, e meter.Event) error
}

func loadConfig() (*config.Config, error) {
	if len(envFile) != 0 {
		if err := config.LoadDotEnv(envFile); err != nil {
			return nil, err
		}
	}

	return config.Load(configPath)
}

func newSendCmd() *cobra.Command {
	var (
		file        string
		metricsPort string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Record newline delimited JSON usage events from a file or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd.Context(), file, metricsPort)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "file to read events from, - for stdin")
	cmd.Flags().StringVar(&metricsPort, "metrics-port", "", "serve prometheus metrics on this port")

	return cmd
}

func runSend(parent context.Context, file, metricsPort string) error {
	if parent == nil {
		parent = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("cannot load config: %w", err)
	}

	if len(mode) == 0 {
		mode = cfg.LogMode
	}

	lg := logger.NewLogger(mode)
	defer lg.Sync()

	in := io.Reader(os.Stdin)
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return fmt.Errorf("cannot open events file: %w", err)
		}
		defer f.Close()

		in = f
	}

	var reg *prometheus.Registry
	telemetryCfg := telemetry.Config{
		Provider:     telemetry.ProviderType(cfg.TelemetryProvider),
		StatsAddress: cfg.StatsAddress,
	}

	if len(metricsPort) != 0 {
		telemetryCfg.Provider = telemetry.PROVIDER_PROMETHEUS
	}

	if telemetryCfg.Provider == telemetry.PROVIDER_PROMETHEUS {
		reg = prometheus.NewRegistry()
		telemetryCfg.Registerer = reg
		if len(metricsPort) == 0 {
			metricsPort = cfg.PrometheusPort
		}
	}

	tp, err := telemetry.New(telemetryCfg)
	if err != nil {
		return fmt.Errorf("cannot initialize telemetry: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := telemetry.SetupOTelSDK(ctx, cfg)
	if err != nil {
		return fmt.Errorf("cannot set up open telemetry: %w", err)
	}

	var ms *web.MetricsServer
	if reg != nil {
		ms = web.NewMetricsServer(lg, metricsPort, reg)
		ms.Run()
	}

	client, err := meter.NewClient(cfg,
		meter.WithLogger(lg),
		meter.WithMetrics(tp),
		meter.WithErrorHandler(func(err error) {
			lg.Warn("usage event not delivered", zap.Error(err))
		}),
	)
	if err != nil {
		return fmt.Errorf("cannot create client: %w", err)
	}

	sent, skipped, err := sendEvents(ctx, in, client, lg)
	if err != nil {
		lg.Error("error reading events", zap.Error(err))
	}

	lg.Info("shutting down client...", zap.Int("recorded", sent), zap.Int("skipped", skipped))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := client.Shutdown(shutdownCtx); err != nil {
		lg.Warn("client shutdown", zap.Error(err))
	}

	stats := client.Stats()
	lg.Info("client stopped",
		zap.Uint64("recorded", stats.Recorded),
		zap.Uint64("delivered", stats.Delivered),
		zap.Uint64("failed", stats.Failed),
		zap.Uint64("dropped", stats.Dropped),
	)

	if ms != nil {
		if err := ms.Shutdown(shutdownCtx); err != nil {
			lg.Debug("metrics server shutdown", zap.Error(err))
		}
	}

	if closer, ok := tp.(interface{ Close() error }); ok {
		closer.Close()
	}

	return otelShutdown(shutdownCtx)
}

// sendEvents records one event per non empty line of r until r is exhausted
// or ctx is done. Lines that do not parse or validate are skipped.
func sendEvents(ctx context.Context, r io.Reader, rec recorder, lg *zap.Logger) (int, int, error) {
	lines := make(chan []byte)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := append([]byte{}, scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}

		scanErr <- scanner.Err()
	}()

	sent, skipped, lineNo := 0, 0, 0
	for {
		select {
		case <-ctx.Done():
			lg.Info("interrupted, stopping event intake")
			return sent, skipped, nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return sent, skipped, err
				default:
					return sent, skipped, nil
				}
			}

			lineNo++
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}

			e := meter.Event{}
			if err := json.Unmarshal(line, &e); err != nil {
				skipped++
				lg.Warn("skipping line that is not a usage event", zap.Int("line", lineNo), zap.Error(err))
				continue
			}

			if err := rec.Record(ctx, e); err != nil {
				if meter.IsValidation(err) {
					skipped++
					lg.Warn("skipping invalid usage event", zap.Int("line", lineNo), zap.Error(err))
					continue
				}

				lg.Warn("usage event not delivered", zap.Int("line", lineNo), zap.Error(err))
			}

			sent++
		}
	}
}
