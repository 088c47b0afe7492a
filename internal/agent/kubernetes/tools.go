package kubernetes

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/moolen/sre-assistant/internal/agent/tools"
	"github.com/moolen/sre-assistant/internal/cluster"
)

// Toolbox returns the cluster operations as loop tools. The six reads are
// always present; scale_deployment only when allowWrite is set. Operation
// failures are returned as data so the loop can reason about them.
func Toolbox(ops *cluster.Operations, defaultCluster string, allowWrite bool) (*tools.Registry, error) {
	b := &builder{ops: ops, defaultCluster: defaultCluster}
	toolset := []tools.Tool{
		b.listNamespaces(),
		b.listPods(),
		b.getPodDetails(),
		b.getPodLogs(),
		b.listDeployments(),
		b.getEvents(),
	}
	if allowWrite {
		toolset = append(toolset, b.scaleDeployment())
	}
	return tools.NewRegistry(toolset...)
}

type builder struct {
	ops            *cluster.Operations
	defaultCluster string
}

func (b *builder) cluster(id string) string {
	if id == "" {
		return b.defaultCluster
	}
	return id
}

var (
	clusterProperty   = tools.Property("string", "Cluster id; 'default' selects the current kubeconfig context")
	namespaceProperty = tools.Property("string", "Kubernetes namespace (default: default)")
	podNameProperty   = tools.Property("string", "Name of the pod")
)

type namespaceInput struct {
	Cluster   string `json:"cluster"`
	Namespace string `json:"namespace"`
}

type listPodsInput struct {
	namespaceInput
	LabelSelector string `json:"label_selector"`
}

type podInput struct {
	namespaceInput
	PodName string `json:"pod_name"`
}

type podLogsInput struct {
	podInput
	Container string `json:"container"`
	TailLines int64  `json:"tail_lines"`
}

type eventsInput struct {
	namespaceInput
	Limit int64 `json:"limit"`
}

type scaleInput struct {
	namespaceInput
	Name     string `json:"name"`
	Replicas *int32 `json:"replicas"`
}

// typed decodes the input and hands it to fn. A malformed input is a failed
// tool call; everything fn returns is data.
func typed[T any](fn func(ctx context.Context, in T) interface{}) func(context.Context, json.RawMessage) (*tools.Result, error) {
	return func(ctx context.Context, raw json.RawMessage) (*tools.Result, error) {
		in, err := tools.Decode[T](raw)
		if err != nil {
			return tools.Failure(fmt.Sprintf("invalid input: %v", err)), nil
		}
		return &tools.Result{Success: true, Data: fn(ctx, in)}, nil
	}
}

func errorValue(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}

func errorList(err error) []map[string]string {
	return []map[string]string{errorValue(err)}
}

func (b *builder) listNamespaces() tools.Tool {
	return tools.NewFunc("list_namespaces",
		"List all namespaces in a cluster.\n"+`Examples: "List all namespaces", "Which namespaces exist?"`,
		tools.ObjectSchema(map[string]interface{}{"cluster": clusterProperty}),
		typed(func(ctx context.Context, in namespaceInput) interface{} {
			names, err := b.ops.ListNamespaces(ctx, b.cluster(in.Cluster))
			if err != nil {
				return []string{"Error: " + err.Error()}
			}
			return names
		}))
}

func (b *builder) listPods() tools.Tool {
	return tools.NewFunc("list_pods",
		"List pods with their phase, node, IP, start time and labels.\n"+
			`Examples: "What pods are running?", "Show pods with label [selector]"`,
		tools.ObjectSchema(map[string]interface{}{
			"cluster":        clusterProperty,
			"namespace":      namespaceProperty,
			"label_selector": tools.Property("string", "Optional label selector, e.g. app=web"),
		}),
		typed(func(ctx context.Context, in listPodsInput) interface{} {
			pods, err := b.ops.ListPods(ctx, b.cluster(in.Cluster), in.Namespace, in.LabelSelector)
			if err != nil {
				return errorList(err)
			}
			return pods
		}))
}

func (b *builder) getPodDetails() tools.Tool {
	return tools.NewFunc("get_pod_details",
		"Get one pod with container statuses, restart counts and conditions.\n"+
			`Examples: "Check the status of pod [name]", "Why is pod [name] not ready?"`,
		tools.ObjectSchema(map[string]interface{}{
			"cluster":   clusterProperty,
			"namespace": namespaceProperty,
			"pod_name":  podNameProperty,
		}, "pod_name"),
		typed(func(ctx context.Context, in podInput) interface{} {
			details, err := b.ops.GetPodDetails(ctx, b.cluster(in.Cluster), in.Namespace, in.PodName)
			if err != nil {
				return errorValue(err)
			}
			return details
		}))
}

func (b *builder) getPodLogs() tools.Tool {
	return tools.NewFunc("get_pod_logs",
		"Get the most recent log lines of a pod.\n"+
			`Examples: "Show me logs from pod [name]", "Tail the logs of container [name]"`,
		tools.ObjectSchema(map[string]interface{}{
			"cluster":    clusterProperty,
			"namespace":  namespaceProperty,
			"pod_name":   podNameProperty,
			"container":  tools.Property("string", "Container name, required for multi-container pods"),
			"tail_lines": tools.Property("integer", fmt.Sprintf("Number of lines from the end (default: %d)", cluster.DefaultTailLines)),
		}, "pod_name"),
		typed(func(ctx context.Context, in podLogsInput) interface{} {
			logs, err := b.ops.GetPodLogs(ctx, cluster.LogsRequest{
				Cluster:   b.cluster(in.Cluster),
				Namespace: in.Namespace,
				PodName:   in.PodName,
				Container: in.Container,
				TailLines: in.TailLines,
			})
			if err != nil {
				return errorValue(err)
			}
			return logs
		}))
}

func (b *builder) listDeployments() tools.Tool {
	return tools.NewFunc("list_deployments",
		"List deployments with desired, available and ready replicas and rollout strategy.\n"+
			`Examples: "List all deployments in namespace [name]", "Are my deployments healthy?"`,
		tools.ObjectSchema(map[string]interface{}{
			"cluster":   clusterProperty,
			"namespace": namespaceProperty,
		}),
		typed(func(ctx context.Context, in namespaceInput) interface{} {
			deployments, err := b.ops.ListDeployments(ctx, b.cluster(in.Cluster), in.Namespace)
			if err != nil {
				return errorList(err)
			}
			return deployments
		}))
}

func (b *builder) getEvents() tools.Tool {
	return tools.NewFunc("get_events",
		"Get recent events such as scheduling failures, back-offs and kills.\n"+
			`Examples: "What events occurred?", "Show recent warnings"`,
		tools.ObjectSchema(map[string]interface{}{
			"cluster":   clusterProperty,
			"namespace": namespaceProperty,
			"limit":     tools.Property("integer", fmt.Sprintf("Maximum number of events (default: %d)", cluster.DefaultEventLimit)),
		}),
		typed(func(ctx context.Context, in eventsInput) interface{} {
			events, err := b.ops.GetEvents(ctx, b.cluster(in.Cluster), in.Namespace, in.Limit)
			if err != nil {
				return errorList(err)
			}
			return events
		}))
}

func (b *builder) scaleDeployment() tools.Tool {
	return tools.NewFunc("scale_deployment",
		"Set the replica count of a deployment. This changes the cluster.\n"+
			`Examples: "Scale deployment [name] to [count] replicas"`,
		tools.ObjectSchema(map[string]interface{}{
			"cluster":   clusterProperty,
			"namespace": namespaceProperty,
			"name":      tools.Property("string", "Name of the deployment"),
			"replicas":  tools.Property("integer", "Desired replica count"),
		}, "name", "replicas"),
		typed(func(ctx context.Context, in scaleInput) interface{} {
			if in.Replicas == nil {
				return errorValue(fmt.Errorf("replicas is required"))
			}
			result, err := b.ops.ScaleDeployment(ctx, b.cluster(in.Cluster), in.Namespace, in.Name, *in.Replicas)
			if err != nil {
				return errorValue(err)
			}
			return result
		}))
}
