package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/bricks-cloud/bricksmeter/internal/event"
	"github.com/bricks-cloud/bricksmeter/internal/telemetry"
	"github.com/bricks-cloud/bricksmeter/internal/transport"
)

const (
	maxBodyBytes   = 16 << 20
	seenBatchLimit = 4096
)

type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

type AcceptedResponse struct {
	Accepted  int  `json:"accepted"`
	Duplicate bool `json:"duplicate,omitempty"`
}

func JSON(c *gin.Context, code int, message string) {
	c.JSON(code, &ErrorResponse{
		Type:   "/errors/collector",
		Title:  http.StatusText(code),
		Status: code,
		Detail: message,
	})
}

// Sink receives every accepted batch.
type Sink interface {
	Accept(ctx context.Context, batchId string, events []event.Event)
}

// LogSink logs each accepted event.
type LogSink struct {
	Log *zap.Logger
}

func (ls *LogSink) Accept(ctx context.Context, batchId string, events []event.Event) {
	for _, e := range events {
		ls.Log.Info("usage event",
			zap.String("batch_id", batchId),
			zap.String("tenant_id", e.TenantId),
			zap.String("provider", string(e.Provider)),
			zap.String("model", e.Model),
			zap.Int("prompt_tokens", e.PromptTokenCount),
			zap.Int("completion_tokens", e.CompletionTokenCount),
			zap.Time("timestamp", e.Timestamp),
		)
	}
}

// batchSet remembers recent batch ids so re-sent batches are acknowledged
// without being accepted twice.
type batchSet struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	order []string
	limit int
}

func newBatchSet(limit int) *batchSet {
	return &batchSet{
		ids:   map[string]struct{}{},
		limit: limit,
	}
}

// add returns false when id was already present.
func (bs *batchSet) add(id string) bool {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if _, ok := bs.ids[id]; ok {
		return false
	}

	bs.ids[id] = struct{}{}
	bs.order = append(bs.order, id)
	if len(bs.order) > bs.limit {
		delete(bs.ids, bs.order[0])
		bs.order = bs.order[1:]
	}

	return true
}

type CollectorServer struct {
	server *http.Server
	router *gin.Engine
	log    *zap.Logger
	port   string
	path   string
}

func NewCollectorServer(log *zap.Logger, mode, port, path, apiKey string, sink Sink, tp telemetry.Provider) *CollectorServer {
	if tp == nil {
		tp = telemetry.Noop()
	}

	router := gin.New()
	prod := mode == "production"
	router.Use(getLoggerMiddleware(log, "collector", prod))

	router.GET("/api/health", getGetHealthCheckHandler())
	router.POST(path, getAuthMiddleware(apiKey), getIngestHandler(log, sink, newBatchSet(seenBatchLimit), tp))

	return &CollectorServer{
		server: &http.Server{
			Addr:    ":" + port,
			Handler: router,
		},
		router: router,
		log:    log,
		port:   port,
		path:   path,
	}
}

func (cs *CollectorServer) Handler() http.Handler {
	return cs.router
}

func (cs *CollectorServer) Run() {
	go func() {
		cs.log.Sugar().Infof("collector listening at %s", cs.port)
		cs.log.Sugar().Infof("PORT %s | GET   | /api/health is set up for health checking the collector", cs.port)
		cs.log.Sugar().Infof("PORT %s | POST  | %s is set up for ingesting usage event batches", cs.port, cs.path)

		if err := cs.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			cs.log.Sugar().Fatalf("error collector listening: %v", err)
		}
	}()
}

func (cs *CollectorServer) Shutdown(ctx context.Context) error {
	if err := cs.server.Shutdown(ctx); err != nil {
		cs.log.Sugar().Infof("error shutting down collector: %v", err)
		return err
	}

	return nil
}

func getGetHealthCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Status(http.StatusOK)
	}
}

func getIngestHandler(log *zap.Logger, sink Sink, seen *batchSet, tp telemetry.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		tp.Incr("bricksmeter.collector.ingest.requests", nil, 1)

		start := time.Now()
		defer func() {
			tp.Timing("bricksmeter.collector.ingest.latency", time.Since(start), nil, 1)
		}()

		var body io.Reader = io.LimitReader(c.Request.Body, maxBodyBytes)
		if c.GetHeader("Content-Encoding") == "gzip" {
			zr, err := gzip.NewReader(body)
			if err != nil {
				JSON(c, http.StatusBadRequest, "request body is not valid gzip")
				return
			}
			defer zr.Close()

			body = io.LimitReader(zr, maxBodyBytes)
		}

		events := []event.Event{}
		if err := json.NewDecoder(body).Decode(&events); err != nil {
			tp.Incr("bricksmeter.collector.ingest.invalid_json", nil, 1)
			JSON(c, http.StatusBadRequest, "request body must be a json array of usage events")
			return
		}

		for i := range events {
			if err := events[i].Validate(); err != nil {
				tp.Incr("bricksmeter.collector.ingest.invalid_event", nil, 1)
				JSON(c, http.StatusBadRequest, fmt.Sprintf("event %d: %v", i, err))
				return
			}
		}

		batchId := c.GetHeader(transport.BatchIdHeader)
		if len(batchId) != 0 && !seen.add(batchId) {
			tp.Incr("bricksmeter.collector.ingest.duplicate_batch", nil, 1)
			log.Debug("duplicate batch acknowledged", zap.String("batch_id", batchId))
			c.JSON(http.StatusAccepted, &AcceptedResponse{Duplicate: true})
			return
		}

		sink.Accept(c.Request.Context(), batchId, events)
		c.JSON(http.StatusAccepted, &AcceptedResponse{Accepted: len(events)})
	}
}
