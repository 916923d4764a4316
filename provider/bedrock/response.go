package bedrock

import (
	"encoding/json"
	"time"

	"github.com/bricks-cloud/bricksmeter/provider"
)

type InvocationMetrics struct {
	InputTokenCount   int `json:"inputTokenCount"`
	OutputTokenCount  int `json:"outputTokenCount"`
	InvocationLatency int `json:"invocationLatency"`
	FirstByteLatency  int `json:"firstByteLatency"`
}

type MessagesUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type TitanResult struct {
	TokenCount int `json:"tokenCount"`
}

// invokeModelResponse covers the usage fields of the model families served
// through InvokeModel: Anthropic messages, Meta Llama and Amazon Titan.
type invokeModelResponse struct {
	Usage                *MessagesUsage     `json:"usage"`
	Metrics              *InvocationMetrics `json:"amazon-bedrock-invocationMetrics"`
	PromptTokenCount     *int               `json:"prompt_token_count"`
	GenerationTokenCount *int               `json:"generation_token_count"`
	InputTextTokenCount  *int               `json:"inputTextTokenCount"`
	Results              []TitanResult      `json:"results"`
}

// ParseInvokeModelUsage extracts token usage and, when reported, invocation
// latency from an InvokeModel response body.
func ParseInvokeModelUsage(body []byte) (provider.Usage, time.Duration, error) {
	res := &invokeModelResponse{}
	if err := json.Unmarshal(body, res); err != nil {
		return provider.Usage{}, 0, err
	}

	var latency time.Duration
	if res.Metrics != nil {
		latency = time.Duration(res.Metrics.InvocationLatency) * time.Millisecond
	}

	switch {
	case res.Usage != nil:
		return provider.Usage{
			PromptTokens:     res.Usage.InputTokens,
			CompletionTokens: res.Usage.OutputTokens,
		}, latency, nil
	case res.Metrics != nil:
		return provider.Usage{
			PromptTokens:     res.Metrics.InputTokenCount,
			CompletionTokens: res.Metrics.OutputTokenCount,
		}, latency, nil
	case res.PromptTokenCount != nil || res.GenerationTokenCount != nil:
		u := provider.Usage{}
		if res.PromptTokenCount != nil {
			u.PromptTokens = *res.PromptTokenCount
		}
		if res.GenerationTokenCount != nil {
			u.CompletionTokens = *res.GenerationTokenCount
		}
		return u, latency, nil
	case res.InputTextTokenCount != nil:
		u := provider.Usage{PromptTokens: *res.InputTextTokenCount}
		for _, r := range res.Results {
			u.CompletionTokens += r.TokenCount
		}
		return u, latency, nil
	}

	return provider.Usage{}, latency, nil
}
