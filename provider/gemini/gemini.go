// Package gemini meters Google Gemini generateContent calls.
package gemini

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/tidwall/gjson"

	"github.com/bricks-cloud/bricksmeter/internal/event"
	"github.com/bricks-cloud/bricksmeter/provider"
)

// GenerateFunc performs generateContent for model and returns the raw
// response body.
type GenerateFunc func(ctx context.Context, model string, body []byte) ([]byte, error)

// StreamFunc opens streamGenerateContent for model.
type StreamFunc func(ctx context.Context, model string, body []byte) (ChunkReader, error)

// ChunkReader yields raw JSON chunks and returns io.EOF once exhausted.
type ChunkReader interface {
	Recv() ([]byte, error)
	Close() error
}

// ExtractUsage reads usageMetadata from a response or chunk body.
func ExtractUsage(body []byte) (provider.Usage, bool) {
	md := gjson.GetBytes(body, "usageMetadata")
	if !md.Exists() {
		return provider.Usage{}, false
	}

	return provider.Usage{
		PromptTokens:     int(md.Get("promptTokenCount").Int()),
		CompletionTokens: int(md.Get("candidatesTokenCount").Int()),
	}, true
}

func modelVersion(body []byte, fallback string) string {
	if v := gjson.GetBytes(body, "modelVersion").String(); len(v) != 0 {
		return v
	}

	return fallback
}

type Wrapper struct {
	generate GenerateFunc
	stream   StreamFunc
	rec      provider.Recorder
	opts     provider.Options
}

// NewWrapper accepts a nil stream when only unary calls are made.
func NewWrapper(generate GenerateFunc, stream StreamFunc, rec provider.Recorder, opts ...provider.Option) *Wrapper {
	return &Wrapper{
		generate: generate,
		stream:   stream,
		rec:      rec,
		opts:     provider.BuildOptions(opts...),
	}
}

func (w *Wrapper) GenerateContent(ctx context.Context, model string, body []byte) ([]byte, error) {
	start := time.Now()
	res, err := w.generate(ctx, model, body)
	if err != nil {
		return res, err
	}

	u, _ := ExtractUsage(res)
	w.opts.Emit(ctx, w.rec, w.opts.NewEvent(event.GeminiProvider, modelVersion(res, model), u, time.Since(start)))

	return res, nil
}

var ErrStreamingUnsupported = errors.New("gemini wrapper has no stream function")

func (w *Wrapper) StreamGenerateContent(ctx context.Context, model string, body []byte) (*Stream, error) {
	if w.stream == nil {
		return nil, ErrStreamingUnsupported
	}

	start := time.Now()
	reader, err := w.stream(ctx, model, body)
	if err != nil {
		return nil, err
	}

	return &Stream{
		ctx:    ctx,
		reader: reader,
		acc:    provider.NewStreamAccumulator(w.rec, w.opts, event.GeminiProvider, model, start),
	}, nil
}

// Stream meters a streamGenerateContent response. Gemini reports cumulative
// usage, so the last usageMetadata seen wins.
type Stream struct {
	ctx    context.Context
	reader ChunkReader
	acc    *provider.StreamAccumulator
}

func (s *Stream) Recv() ([]byte, error) {
	chunk, err := s.reader.Recv()
	if err != nil {
		s.acc.Finalize(s.ctx)
		return chunk, err
	}

	if u, ok := ExtractUsage(chunk); ok {
		s.acc.Set(u)
	}

	s.acc.SetModel(modelVersion(chunk, ""))

	return chunk, nil
}

func (s *Stream) Close() error {
	s.acc.Finalize(s.ctx)
	return s.reader.Close()
}

func IsEnd(err error) bool {
	return errors.Is(err, io.EOF)
}
