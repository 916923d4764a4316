package event

import (
	"fmt"
	"strings"
	"time"

	internal_errors "github.com/bricks-cloud/bricksmeter/internal/errors"
)

type Provider string

const (
	BedrockProvider     Provider = "bedrock"
	AzureOpenAiProvider Provider = "azure_openai"
	GeminiProvider      Provider = "gemini"
)

func (p Provider) Valid() bool {
	if p != BedrockProvider && p != AzureOpenAiProvider && p != GeminiProvider {
		return false
	}

	return true
}

type CloudProvider string

const (
	AwsCloud     CloudProvider = "aws"
	GcpCloud     CloudProvider = "gcp"
	AzureCloud   CloudProvider = "azure"
	UnknownCloud CloudProvider = "unknown"
)

type K8sMetadata struct {
	Pod       string `json:"pod,omitempty" yaml:"pod"`
	Namespace string `json:"namespace,omitempty" yaml:"namespace"`
	Node      string `json:"node,omitempty" yaml:"node"`
}

type HostMetadata struct {
	Hostname      string        `json:"hostname,omitempty" yaml:"hostname"`
	CloudProvider CloudProvider `json:"cloud_provider,omitempty" yaml:"cloud_provider"`
	InstanceId    string        `json:"instance_id,omitempty" yaml:"instance_id"`
	K8s           *K8sMetadata  `json:"k8s,omitempty" yaml:"k8s"`
}

func (hm *HostMetadata) Clone() *HostMetadata {
	if hm == nil {
		return nil
	}

	cloned := *hm
	if hm.K8s != nil {
		k8s := *hm.K8s
		cloned.K8s = &k8s
	}

	return &cloned
}

// Event is one observed model invocation. The json tags are the collector wire format.
type Event struct {
	TenantId             string                 `json:"tenant_id"`
	Provider             Provider               `json:"provider"`
	Model                string                 `json:"model"`
	PromptTokenCount     int                    `json:"prompt_tokens"`
	CompletionTokenCount int                    `json:"completion_tokens"`
	Timestamp            time.Time              `json:"timestamp"`
	LatencyInMs          *int                   `json:"latency_ms,omitempty"`
	Host                 *HostMetadata          `json:"host,omitempty"`
	Metadata             map[string]interface{} `json:"metadata,omitempty"`
}

// Latency converts a duration into the optional latency field.
func Latency(d time.Duration) *int {
	ms := int(d.Milliseconds())
	return &ms
}

func (e Event) TotalTokenCount() int {
	return e.PromptTokenCount + e.CompletionTokenCount
}

// Clone returns a copy that shares no mutable state with e.
func (e Event) Clone() Event {
	cloned := e
	cloned.Host = e.Host.Clone()

	if e.LatencyInMs != nil {
		latency := *e.LatencyInMs
		cloned.LatencyInMs = &latency
	}

	if e.Metadata != nil {
		cloned.Metadata = make(map[string]interface{}, len(e.Metadata))
		for k, v := range e.Metadata {
			cloned.Metadata[k] = v
		}
	}

	return cloned
}

func (e *Event) Validate() error {
	invalid := []string{}

	if len(e.TenantId) == 0 {
		invalid = append(invalid, "tenant_id")
	}

	if !e.Provider.Valid() {
		invalid = append(invalid, "provider")
	}

	if len(e.Model) == 0 {
		invalid = append(invalid, "model")
	}

	if e.PromptTokenCount < 0 {
		invalid = append(invalid, "prompt_tokens")
	}

	if e.CompletionTokenCount < 0 {
		invalid = append(invalid, "completion_tokens")
	}

	if e.LatencyInMs != nil && *e.LatencyInMs < 0 {
		invalid = append(invalid, "latency_ms")
	}

	if len(invalid) > 0 {
		return internal_errors.NewValidationError(fmt.Sprintf("event fields [%s] are invalid", strings.Join(invalid, ", ")))
	}

	return nil
}
