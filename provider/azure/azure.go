// Package azure meters Azure OpenAI chat completions made through go-openai.
package azure

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/bricks-cloud/bricksmeter/internal/event"
	"github.com/bricks-cloud/bricksmeter/provider"
)

// ChatClient is satisfied by *goopenai.Client.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req goopenai.ChatCompletionRequest) (*goopenai.ChatCompletionStream, error)
}

type Wrapper struct {
	client  ChatClient
	rec     provider.Recorder
	counter TokenCounter
	opts    provider.Options
}

// NewClient builds a go-openai client for an Azure OpenAI resource.
func NewClient(apiKey, endpoint string) *goopenai.Client {
	return goopenai.NewClientWithConfig(goopenai.DefaultAzureConfig(apiKey, endpoint))
}

func NewWrapper(client ChatClient, rec provider.Recorder, opts ...provider.Option) *Wrapper {
	return &Wrapper{
		client:  client,
		rec:     rec,
		counter: TiktokenCounter{},
		opts:    provider.BuildOptions(opts...),
	}
}

// WithTokenCounter replaces the tiktoken estimator.
func (w *Wrapper) WithTokenCounter(counter TokenCounter) *Wrapper {
	w.counter = counter
	return w
}

// CreateChatCompletion forwards req and records the usage of a successful
// response. Failed calls are not metered.
func (w *Wrapper) CreateChatCompletion(ctx context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error) {
	start := time.Now()
	res, err := w.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return res, err
	}

	model := res.Model
	if len(model) == 0 {
		model = req.Model
	}

	w.opts.Emit(ctx, w.rec, w.opts.NewEvent(event.AzureOpenAiProvider, model, provider.Usage{
		PromptTokens:     res.Usage.PromptTokens,
		CompletionTokens: res.Usage.CompletionTokens,
	}, time.Since(start)))

	return res, nil
}

// CreateChatCompletionStream opens a stream whose usage is recorded once it
// is exhausted, fails or is closed.
func (w *Wrapper) CreateChatCompletionStream(ctx context.Context, req goopenai.ChatCompletionRequest) (*Stream, error) {
	start := time.Now()
	stream, err := w.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, err
	}

	return &Stream{
		ctx:      ctx,
		recv:     stream.Recv,
		close:    func() { stream.Close() },
		acc:      provider.NewStreamAccumulator(w.rec, w.opts, event.AzureOpenAiProvider, req.Model, start),
		counter:  w.counter,
		model:    req.Model,
		messages: req.Messages,
		log:      w.opts.Log,
	}, nil
}

// Stream forwards chunks of a chat completion stream and meters them.
type Stream struct {
	ctx      context.Context
	recv     func() (goopenai.ChatCompletionStreamResponse, error)
	close    func()
	acc      *provider.StreamAccumulator
	counter  TokenCounter
	model    string
	messages []goopenai.ChatCompletionMessage
	log      *zap.Logger

	content   strings.Builder
	usageSeen bool
	once      sync.Once
}

func (s *Stream) Recv() (goopenai.ChatCompletionStreamResponse, error) {
	res, err := s.recv()
	if err != nil {
		s.finalize()
		return res, err
	}

	if len(res.Model) != 0 {
		s.model = res.Model
		s.acc.SetModel(res.Model)
	}

	if res.Usage != nil {
		s.usageSeen = true
		s.acc.Set(provider.Usage{
			PromptTokens:     res.Usage.PromptTokens,
			CompletionTokens: res.Usage.CompletionTokens,
		})
	}

	for _, choice := range res.Choices {
		s.content.WriteString(choice.Delta.Content)
	}

	return res, nil
}

// Close records usage if the stream was abandoned early, then releases it.
func (s *Stream) Close() {
	s.finalize()
	s.close()
}

func (s *Stream) finalize() {
	s.once.Do(func() {
		if !s.usageSeen {
			s.acc.Set(s.estimate())
		}

		s.acc.Finalize(s.ctx)
	})
}

func (s *Stream) estimate() provider.Usage {
	u := provider.Usage{}

	prompt, err := countMessages(s.counter, s.model, s.messages)
	if err != nil {
		s.log.Debug("error when estimating prompt tokens", zap.Error(err))
	} else {
		u.PromptTokens = prompt
	}

	completion, err := s.counter.Count(s.model, s.content.String())
	if err != nil {
		s.log.Debug("error when estimating completion tokens", zap.Error(err))
	} else {
		u.CompletionTokens = completion
	}

	return u
}

// IsEnd reports whether err marks the normal end of a stream.
func IsEnd(err error) bool {
	return errors.Is(err, io.EOF)
}
