package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/dnscache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	internal_errors "github.com/bricks-cloud/bricksmeter/internal/errors"
	"github.com/bricks-cloud/bricksmeter/internal/event"
	"github.com/bricks-cloud/bricksmeter/internal/telemetry"
)

const (
	BatchIdHeader = "X-Bricksmeter-Batch-Id"

	maxErrorBodyBytes   = 1024
	maxDiscardBodyBytes = 64 * 1024
	dnsRefreshInterval  = 5 * time.Minute
)

type Config struct {
	Url       string
	ApiKey    string
	UserAgent string
	Compress  bool
	// HttpClient replaces the default client built around a caching dialer.
	HttpClient *http.Client
}

// Transport posts batches of events to the ingestion endpoint. One Send is
// one HTTP request; retries belong to the caller.
type Transport struct {
	cfg      Config
	client   *http.Client
	resolver *dnscache.Resolver
	done     chan bool
	once     sync.Once
	log      *zap.Logger
	tp       telemetry.Provider
	tracer   trace.Tracer
}

func New(cfg Config, log *zap.Logger, tp telemetry.Provider) *Transport {
	if log == nil {
		log = zap.NewNop()
	}

	if tp == nil {
		tp = telemetry.Noop()
	}

	t := &Transport{
		cfg:    cfg,
		client: cfg.HttpClient,
		done:   make(chan bool),
		log:    log,
		tp:     tp,
		tracer: otel.Tracer(telemetry.TracerName),
	}

	if t.client == nil {
		t.resolver = &dnscache.Resolver{}
		t.client = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				DialContext:         t.dialContext,
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
			// a followed redirect turns the POST into a bodyless GET
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}

		go t.refreshDns()
	}

	return t
}

func (t *Transport) refreshDns() {
	ticker := time.NewTicker(dnsRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.resolver.Refresh(true)
		}
	}
}

func (t *Transport) dialContext(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}

	if net.ParseIP(host) != nil {
		return dialer.DialContext(ctx, network, address)
	}

	ips, err := t.resolver.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}

	if len(ips) == 0 {
		return nil, &net.DNSError{
			Err:  "no IP addresses found",
			Name: host,
		}
	}

	return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0], port))
}

// Send performs a single POST of batch. Callers bound the attempt with ctx.
// It returns nil on 2xx, a TransientError for network failures, timeouts,
// 5xx and 429, and a PermanentError for any other status.
func (t *Transport) Send(ctx context.Context, batchId string, batch []event.Event) error {
	ctx, span := t.tracer.Start(ctx, "bricksmeter.transport.send", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("bricksmeter.batch_id", batchId),
		attribute.Int("bricksmeter.batch_size", len(batch)),
	)

	err := t.send(ctx, span, batchId, batch)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}

func (t *Transport) send(ctx context.Context, span trace.Span, batchId string, batch []event.Event) error {
	body, err := t.encode(batch)
	if err != nil {
		return internal_errors.NewPermanentError(0, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.Url, bytes.NewReader(body))
	if err != nil {
		return internal_errors.NewPermanentError(0, err.Error())
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(BatchIdHeader, batchId)
	if len(t.cfg.UserAgent) != 0 {
		req.Header.Set("User-Agent", t.cfg.UserAgent)
	}

	if len(t.cfg.ApiKey) != 0 {
		req.Header.Set("Authorization", "Bearer "+t.cfg.ApiKey)
	}

	if t.cfg.Compress {
		req.Header.Set("Content-Encoding", "gzip")
	}

	start := time.Now()
	res, err := t.client.Do(req)
	t.tp.Timing(telemetry.HISTOGRAM_SEND_LATENCY, time.Since(start), nil, 1)
	if err != nil {
		t.tp.Incr(telemetry.COUNTER_SEND_TRANSIENT, []string{"status:network"}, 1)
		return internal_errors.NewTransientError(0, err)
	}
	defer res.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", res.StatusCode))
	status := strconv.Itoa(res.StatusCode)
	t.tp.Incr(telemetry.COUNTER_SEND_REQUESTS, []string{"status:" + status}, 1)

	if res.StatusCode >= http.StatusOK && res.StatusCode < http.StatusMultipleChoices {
		io.Copy(io.Discard, io.LimitReader(res.Body, maxDiscardBodyBytes))
		return nil
	}

	bs, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBodyBytes))

	if res.StatusCode >= http.StatusInternalServerError || res.StatusCode == http.StatusTooManyRequests {
		t.tp.Incr(telemetry.COUNTER_SEND_TRANSIENT, []string{"status:" + status}, 1)
		return internal_errors.NewTransientError(res.StatusCode, fmt.Errorf("collector responded: %s", string(bs)))
	}

	t.tp.Incr(telemetry.COUNTER_SEND_PERMANENT, []string{"status:" + status}, 1)
	t.log.Debug("collector rejected batch", zap.String("batch_id", batchId), zap.Int("status", res.StatusCode))
	return internal_errors.NewPermanentError(res.StatusCode, string(bs))
}

func (t *Transport) encode(batch []event.Event) ([]byte, error) {
	if batch == nil {
		batch = []event.Event{}
	}

	bs, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("error marshalling batch: %w", err)
	}

	if !t.cfg.Compress {
		return bs, nil
	}

	buf := &bytes.Buffer{}
	zw := gzip.NewWriter(buf)
	if _, err := zw.Write(bs); err != nil {
		return nil, fmt.Errorf("error compressing batch: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("error compressing batch: %w", err)
	}

	return buf.Bytes(), nil
}

// Close stops the dns refresh loop and releases idle connections of the
// client it built. An injected client is left alone.
func (t *Transport) Close() {
	t.once.Do(func() {
		close(t.done)
		if t.resolver != nil {
			t.client.CloseIdleConnections()
		}
	})
}
