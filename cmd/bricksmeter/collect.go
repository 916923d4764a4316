package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/bricks-cloud/bricksmeter/internal/config"
	logger "github.com/bricks-cloud/bricksmeter/internal/logger/zap"
	"github.com/bricks-cloud/bricksmeter/internal/server/web"
)

func newCollectCmd() *cobra.Command {
	var (
		port   string
		path   string
		apiKey string
	)

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run a development collector that logs ingested usage batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}

			if len(mode) == 0 {
				mode = "dev"
			}

			lg := logger.NewLogger(mode)
			defer lg.Sync()

			gin.SetMode(gin.ReleaseMode)

			cs := web.NewCollectorServer(lg, mode, port, path, apiKey, &web.LogSink{Log: lg}, nil)
			cs.Run()

			ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			lg.Info("shutting down collector...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := cs.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("collector shutdown: %w", err)
			}

			lg.Info("collector exited")
			return nil
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8002", "port to listen on")
	cmd.Flags().StringVar(&path, "path", config.DefaultIngestPath, "ingest path")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "require this bearer token on ingest requests")

	return cmd
}
