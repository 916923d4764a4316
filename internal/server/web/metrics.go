package web

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MetricsServer exposes a prometheus gatherer at /metrics.
type MetricsServer struct {
	server *http.Server
	log    *zap.Logger
	port   string
}

func NewMetricsServer(log *zap.Logger, port string, gatherer prometheus.Gatherer) *MetricsServer {
	router := gin.New()
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return &MetricsServer{
		server: &http.Server{
			Addr:    ":" + port,
			Handler: router,
		},
		log:  log,
		port: port,
	}
}

func (ms *MetricsServer) Handler() http.Handler {
	return ms.server.Handler
}

func (ms *MetricsServer) Run() {
	go func() {
		ms.log.Sugar().Infof("PORT %s | GET   | /metrics is set up for prometheus scraping", ms.port)

		if err := ms.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ms.log.Sugar().Errorf("error metrics server listening: %v", err)
		}
	}()
}

func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}
