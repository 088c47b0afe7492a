package kubernetes

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	k8s "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
	"k8s.io/utils/ptr"

	"github.com/moolen/sre-assistant/internal/agent/capability"
	"github.com/moolen/sre-assistant/internal/agent/provider"
	"github.com/moolen/sre-assistant/internal/agent/tools"
	"github.com/moolen/sre-assistant/internal/cluster"
	"github.com/moolen/sre-assistant/internal/config"
)

func seededClientset() *fake.Clientset {
	return fake.NewSimpleClientset(
		&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "default"}},
		&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "kube-system"}},
		&corev1.Pod{
			ObjectMeta: metav1.ObjectMeta{Name: "web-1", Namespace: "default", Labels: map[string]string{"app": "web"}},
			Status:     corev1.PodStatus{Phase: corev1.PodRunning},
		},
		&appsv1.Deployment{
			ObjectMeta: metav1.ObjectMeta{Name: "web", Namespace: "default"},
			Spec:       appsv1.DeploymentSpec{Replicas: ptr.To[int32](2)},
		},
	)
}

type clusterCalls struct {
	clusters []string
}

func toolbox(t *testing.T, cs k8s.Interface, allowWrite bool) (*tools.Registry, *clusterCalls) {
	t.Helper()
	calls := &clusterCalls{}
	ops := cluster.NewOperations(func(_ context.Context, id string) (k8s.Interface, error) {
		calls.clusters = append(calls.clusters, id)
		return cs, nil
	})
	registry, err := Toolbox(ops, "prod", allowWrite)
	require.NoError(t, err)
	return registry, calls
}

func execute(t *testing.T, registry *tools.Registry, name, input string, out interface{}) {
	t.Helper()
	result := registry.Execute(context.Background(), name, json.RawMessage(input))
	require.True(t, result.Success, result.Content())
	require.NoError(t, json.Unmarshal([]byte(result.Content()), out))
}

func TestToolboxNames(t *testing.T) {
	readOnly, _ := toolbox(t, seededClientset(), false)
	assert.Equal(t, []string{
		"list_namespaces", "list_pods", "get_pod_details", "get_pod_logs", "list_deployments", "get_events",
	}, readOnly.Names())

	writable, _ := toolbox(t, seededClientset(), true)
	assert.Equal(t, 7, writable.Len())
	_, ok := writable.Get("scale_deployment")
	assert.True(t, ok)
}

func TestListNamespacesTool(t *testing.T) {
	registry, calls := toolbox(t, seededClientset(), false)

	var names []string
	execute(t, registry, "list_namespaces", `{}`, &names)
	assert.Contains(t, names, "default")
	assert.Equal(t, []string{"prod"}, calls.clusters)

	execute(t, registry, "list_namespaces", `{"cluster":"staging"}`, &names)
	assert.Equal(t, []string{"prod", "staging"}, calls.clusters)
}

func TestListNamespacesToolError(t *testing.T) {
	cs := seededClientset()
	cs.PrependReactor("list", "namespaces", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewForbidden(schema.GroupResource{Resource: "namespaces"}, "", errors.New("denied"))
	})
	registry, _ := toolbox(t, cs, false)

	var names []string
	execute(t, registry, "list_namespaces", `{}`, &names)
	assert.Equal(t, []string{"Error: Failed to list namespaces: forbidden (403): namespaces is forbidden: denied"}, names)
}

func TestListPodsToolNotFound(t *testing.T) {
	cs := seededClientset()
	cs.PrependReactor("list", "pods", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewNotFound(schema.GroupResource{Resource: "namespaces"}, "ghost")
	})
	registry, _ := toolbox(t, cs, false)

	var pods []map[string]interface{}
	execute(t, registry, "list_pods", `{"namespace":"ghost"}`, &pods)
	require.Len(t, pods, 1)
	assert.Equal(t, `Failed to list pods: not found (404): namespaces "ghost" not found`, pods[0]["error"])
}

func TestListPodsToolIsIdempotent(t *testing.T) {
	registry, _ := toolbox(t, seededClientset(), false)

	var first, second []map[string]interface{}
	execute(t, registry, "list_pods", `{"label_selector":"app=web"}`, &first)
	execute(t, registry, "list_pods", `{"label_selector":"app=web"}`, &second)
	require.Len(t, first, 1)
	assert.Equal(t, "web-1", first[0]["name"])
	assert.Equal(t, first, second)
}

func TestPodToolsRequirePodName(t *testing.T) {
	cs := seededClientset()
	registry, calls := toolbox(t, cs, false)

	for _, name := range []string{"get_pod_details", "get_pod_logs"} {
		var out map[string]string
		execute(t, registry, name, `{"namespace":"default"}`, &out)
		assert.Equal(t, map[string]string{"error": "pod_name is required"}, out, name)
	}
	assert.Empty(t, calls.clusters)
	assert.Empty(t, cs.Actions())
}

func TestGetPodLogsTool(t *testing.T) {
	registry, _ := toolbox(t, seededClientset(), false)

	var logs map[string]interface{}
	execute(t, registry, "get_pod_logs", `{"pod_name":"web-1","tail_lines":20}`, &logs)
	assert.Equal(t, "fake logs", logs["logs"])
	assert.Equal(t, "prod", logs["cluster"])
	assert.EqualValues(t, 9, logs["log_length"])
}

func TestGetPodDetailsToolNotFound(t *testing.T) {
	registry, _ := toolbox(t, seededClientset(), false)

	var out map[string]string
	execute(t, registry, "get_pod_details", `{"pod_name":"x"}`, &out)
	assert.Equal(t, `Failed to get pod details: not found (404): pods "x" not found`, out["error"])
}

func TestScaleDeploymentTool(t *testing.T) {
	cs := seededClientset()
	registry, _ := toolbox(t, cs, true)

	var out map[string]interface{}
	execute(t, registry, "scale_deployment", `{"name":"web","replicas":0}`, &out)
	assert.EqualValues(t, 2, out["previous_replicas"])
	assert.EqualValues(t, 0, out["replicas"])

	execute(t, registry, "scale_deployment", `{"name":"web"}`, &out)
	assert.Equal(t, "replicas is required", out["error"])
}

func TestMalformedInputIsAFailedCall(t *testing.T) {
	registry, _ := toolbox(t, seededClientset(), false)
	result := registry.Execute(context.Background(), "get_events", json.RawMessage(`{"limit":"many"}`))
	assert.False(t, result.Success)
	assert.Contains(t, result.Content(), "invalid input")
}

func TestSpecialistListsNamespaces(t *testing.T) {
	cs := seededClientset()
	ops := cluster.NewOperations(func(context.Context, string) (k8s.Interface, error) { return cs, nil })
	s, err := New(config.KubernetesConfig{MaxSteps: 4}, capability.LoopSettings{Oracle: provider.NewHeuristicProvider(0)}, ops)
	require.NoError(t, err)

	out := s.Answer(context.Background(), "List all namespaces")
	assert.False(t, out.Failed, out.Text)
	assert.Contains(t, out.Text, "list_namespaces")
	assert.Contains(t, out.Text, `"default"`)
}

func TestSpecialistReportsCredentialFailureAsData(t *testing.T) {
	ops := cluster.NewOperations(func(context.Context, string) (k8s.Interface, error) {
		return nil, cluster.ErrNoCredentials
	})
	s, err := New(config.KubernetesConfig{MaxSteps: 4}, capability.LoopSettings{Oracle: provider.NewHeuristicProvider(0)}, ops)
	require.NoError(t, err)

	answer := s.Invoke(context.Background(), "List all namespaces")
	assert.Contains(t, answer, "Error: Failed to list namespaces: no usable Kubernetes credentials")
}
