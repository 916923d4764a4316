// Package bedrock meters Amazon Bedrock runtime calls.
package bedrock

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

	"github.com/bricks-cloud/bricksmeter/internal/event"
	"github.com/bricks-cloud/bricksmeter/provider"
)

// RuntimeClient is satisfied by *bedrockruntime.Client.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type Credentials struct {
	AccessKeyId     string
	SecretAccessKey string
	SessionToken    string
}

// NewRuntimeClient loads the default AWS configuration for region. Static
// credentials replace the default chain when creds is not nil.
func NewRuntimeClient(ctx context.Context, region string, creds *Credentials) (*bedrockruntime.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}

	if creds != nil {
		opts = append(opts, config.WithCredentialsProvider(credentials.StaticCredentialsProvider{
			Value: aws.Credentials{
				AccessKeyID:     creds.AccessKeyId,
				SecretAccessKey: creds.SecretAccessKey,
				SessionToken:    creds.SessionToken,
				Source:          "BricksMeter Credentials",
			},
		}))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error when creating aws config: %w", err)
	}

	return bedrockruntime.NewFromConfig(cfg), nil
}

type Wrapper struct {
	client RuntimeClient
	rec    provider.Recorder
	opts   provider.Options
}

func NewWrapper(client RuntimeClient, rec provider.Recorder, opts ...provider.Option) *Wrapper {
	return &Wrapper{
		client: client,
		rec:    rec,
		opts:   provider.BuildOptions(opts...),
	}
}

// Converse forwards params and records usage and service side latency from
// the response.
func (w *Wrapper) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	start := time.Now()
	out, err := w.client.Converse(ctx, params, optFns...)
	if err != nil {
		return out, err
	}

	latency := time.Since(start)
	u := provider.Usage{}
	if out.Usage != nil {
		u.PromptTokens = int(aws.ToInt32(out.Usage.InputTokens))
		u.CompletionTokens = int(aws.ToInt32(out.Usage.OutputTokens))
	}

	if out.Metrics != nil && out.Metrics.LatencyMs != nil {
		latency = time.Duration(aws.ToInt64(out.Metrics.LatencyMs)) * time.Millisecond
	}

	w.opts.Emit(ctx, w.rec, w.opts.NewEvent(event.BedrockProvider, aws.ToString(params.ModelId), u, latency))

	return out, nil
}

// InvokeModel forwards params and records the usage found in the model's
// response body. Bodies without a usage report are recorded with zero tokens.
func (w *Wrapper) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	start := time.Now()
	out, err := w.client.InvokeModel(ctx, params, optFns...)
	if err != nil {
		return out, err
	}

	latency := time.Since(start)
	u, invocationLatency, err := ParseInvokeModelUsage(out.Body)
	if err != nil {
		w.opts.Log.Debug("error when parsing bedrock response usage", zap.String("model", aws.ToString(params.ModelId)), zap.Error(err))
	}

	if invocationLatency > 0 {
		latency = invocationLatency
	}

	w.opts.Emit(ctx, w.rec, w.opts.NewEvent(event.BedrockProvider, aws.ToString(params.ModelId), u, latency))

	return out, nil
}
