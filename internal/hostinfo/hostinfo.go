package hostinfo

import (
	"context"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v4/host"

	"github.com/bricks-cloud/bricksmeter/internal/event"
)

const (
	CloudProviderEnv = "BRICKSMETER_CLOUD_PROVIDER"
	InstanceIdEnv    = "BRICKSMETER_INSTANCE_ID"
	PodNameEnv       = "POD_NAME"
	PodNamespaceEnv  = "POD_NAMESPACE"
	NodeNameEnv      = "NODE_NAME"
)

var namespaceFile = "/var/run/secrets/kubernetes.io/serviceaccount/namespace"

// Static collects the host record without any network access: the hostname,
// explicit cloud overrides and the Kubernetes downward API variables.
func Static(ctx context.Context) event.HostMetadata {
	md := event.HostMetadata{
		Hostname: hostname(ctx),
	}

	if provider := strings.ToLower(strings.TrimSpace(os.Getenv(CloudProviderEnv))); len(provider) != 0 {
		md.CloudProvider = event.CloudProvider(provider)
	}

	md.InstanceId = strings.TrimSpace(os.Getenv(InstanceIdEnv))

	k8s := event.K8sMetadata{
		Pod:       os.Getenv(PodNameEnv),
		Namespace: os.Getenv(PodNamespaceEnv),
		Node:      os.Getenv(NodeNameEnv),
	}

	if len(k8s.Namespace) == 0 {
		if bs, err := os.ReadFile(namespaceFile); err == nil {
			k8s.Namespace = strings.TrimSpace(string(bs))
		}
	}

	if len(k8s.Pod) != 0 || len(k8s.Namespace) != 0 || len(k8s.Node) != 0 {
		md.K8s = &k8s
	}

	return md
}

func hostname(ctx context.Context) string {
	info, err := host.InfoWithContext(ctx)
	if err == nil && info != nil && len(info.Hostname) != 0 {
		return info.Hostname
	}

	name, err := os.Hostname()
	if err != nil {
		return ""
	}

	return name
}
