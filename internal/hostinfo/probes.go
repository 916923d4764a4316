package hostinfo

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"

	"github.com/bricks-cloud/bricksmeter/internal/event"
)

const (
	DefaultGcpMetadataUrl   = "http://metadata.google.internal"
	DefaultAzureMetadataUrl = "http://169.254.169.254"

	maxMetadataBytes = 256
)

// DefaultProbes checks AWS, GCP and Azure.
func DefaultProbes() []Probe {
	client := &http.Client{Timeout: 2 * time.Second}

	return []Probe{
		AwsProbe(imds.New(imds.Options{})),
		GcpProbe(client, DefaultGcpMetadataUrl),
		AzureProbe(client, DefaultAzureMetadataUrl),
	}
}

func AwsProbe(client *imds.Client) Probe {
	return func(ctx context.Context) (event.CloudProvider, string, bool) {
		out, err := client.GetMetadata(ctx, &imds.GetMetadataInput{Path: "instance-id"})
		if err != nil {
			return "", "", false
		}
		defer out.Content.Close()

		bs, err := io.ReadAll(io.LimitReader(out.Content, maxMetadataBytes))
		if err != nil {
			return "", "", false
		}

		return event.AwsCloud, strings.TrimSpace(string(bs)), true
	}
}

func GcpProbe(client *http.Client, baseUrl string) Probe {
	return func(ctx context.Context) (event.CloudProvider, string, bool) {
		id, header, ok := get(ctx, client, strings.TrimRight(baseUrl, "/")+"/computeMetadata/v1/instance/id", "Metadata-Flavor", "Google")
		if !ok || header.Get("Metadata-Flavor") != "Google" {
			return "", "", false
		}

		return event.GcpCloud, id, true
	}
}

func AzureProbe(client *http.Client, baseUrl string) Probe {
	return func(ctx context.Context) (event.CloudProvider, string, bool) {
		id, _, ok := get(ctx, client, strings.TrimRight(baseUrl, "/")+"/metadata/instance/compute/vmId?api-version=2021-02-01&format=text", "Metadata", "true")
		if !ok {
			return "", "", false
		}

		return event.AzureCloud, id, true
	}
}

func get(ctx context.Context, client *http.Client, url, headerKey, headerValue string) (string, http.Header, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", nil, false
	}

	req.Header.Set(headerKey, headerValue)

	res, err := client.Do(req)
	if err != nil {
		return "", nil, false
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", nil, false
	}

	bs, err := io.ReadAll(io.LimitReader(res.Body, maxMetadataBytes))
	if err != nil {
		return "", nil, false
	}

	return strings.TrimSpace(string(bs)), res.Header, true
}
