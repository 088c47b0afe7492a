package cluster

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/utils/ptr"

	"github.com/moolen/sre-assistant/internal/logging"
)

// ErrPodNameRequired is returned, without any API call, when a pod
// operation gets no pod name.
var ErrPodNameRequired = errors.New("pod_name is required")

// OpError is the failure of one operation. Its message has the form
// "Failed to <op>: <reason>" where reason echoes only the API status
// reason, code and message.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("Failed to %s: %s", e.Op, Describe(e.Err))
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// Describe renders an error for end users. API errors become
// "<reason> (<code>): <message>".
func Describe(err error) string {
	var status apierrors.APIStatus
	if errors.As(err, &status) {
		s := status.Status()
		reason := humanizeReason(string(s.Reason))
		if reason == "" {
			reason = "unknown"
		}
		return fmt.Sprintf("%s (%d): %s", reason, s.Code, s.Message)
	}
	return err.Error()
}

// humanizeReason turns "NotFound" into "not found".
func humanizeReason(reason string) string {
	var b strings.Builder
	for i, r := range reason {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte(' ')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Operations performs the cluster reads. Credentials are resolved on every
// call through the client factory.
type Operations struct {
	clients ClientFactory
	logger  *logging.Logger
}

// NewOperations creates Operations backed by clients.
func NewOperations(clients ClientFactory) *Operations {
	return &Operations{clients: clients, logger: logging.GetLogger("cluster")}
}

func (o *Operations) client(ctx context.Context, cluster string) (kubernetes.Interface, error) {
	return o.clients(ctx, cluster)
}

func (o *Operations) fail(ctx context.Context, op, cluster, namespace string, err error) error {
	opErr := &OpError{Op: op, Err: err}
	o.logger.WithContext(ctx).ErrorWithFields(opErr.Error(),
		logging.Field("cluster", cluster),
		logging.Field("namespace", namespace))
	return opErr
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// ListNamespaces returns the namespace names of cluster.
func (o *Operations) ListNamespaces(ctx context.Context, cluster string) ([]string, error) {
	cluster = orDefault(cluster, DefaultCluster)
	cs, err := o.client(ctx, cluster)
	if err != nil {
		return nil, o.fail(ctx, "list namespaces", cluster, "", err)
	}
	list, err := cs.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, o.fail(ctx, "list namespaces", cluster, "", err)
	}
	names := make([]string, 0, len(list.Items))
	for _, ns := range list.Items {
		names = append(names, ns.Name)
	}
	return names, nil
}

// ListPods lists the pods of namespace, optionally filtered by a label
// selector.
func (o *Operations) ListPods(ctx context.Context, cluster, namespace, labelSelector string) ([]PodSummary, error) {
	cluster = orDefault(cluster, DefaultCluster)
	namespace = orDefault(namespace, DefaultNamespace)
	cs, err := o.client(ctx, cluster)
	if err != nil {
		return nil, o.fail(ctx, "list pods", cluster, namespace, err)
	}
	list, err := cs.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
	if err != nil {
		return nil, o.fail(ctx, "list pods", cluster, namespace, err)
	}
	pods := make([]PodSummary, 0, len(list.Items))
	for i := range list.Items {
		pods = append(pods, summarizePod(&list.Items[i]))
	}
	return pods, nil
}

// GetPodDetails returns one pod with its containers and conditions.
func (o *Operations) GetPodDetails(ctx context.Context, cluster, namespace, podName string) (*PodDetails, error) {
	if podName == "" {
		return nil, ErrPodNameRequired
	}
	cluster = orDefault(cluster, DefaultCluster)
	namespace = orDefault(namespace, DefaultNamespace)
	cs, err := o.client(ctx, cluster)
	if err != nil {
		return nil, o.fail(ctx, "get pod details", cluster, namespace, err)
	}
	pod, err := cs.CoreV1().Pods(namespace).Get(ctx, podName, metav1.GetOptions{})
	if err != nil {
		return nil, o.fail(ctx, "get pod details", cluster, namespace, err)
	}

	details := &PodDetails{
		PodSummary:        summarizePod(pod),
		Annotations:       nonNil(pod.Annotations),
		Containers:        make([]string, 0, len(pod.Spec.Containers)),
		ContainerStatuses: make([]ContainerStatus, 0, len(pod.Status.ContainerStatuses)),
		Conditions:        make([]PodCondition, 0, len(pod.Status.Conditions)),
	}
	for _, c := range pod.Spec.Containers {
		details.Containers = append(details.Containers, c.Name)
	}
	for _, status := range pod.Status.ContainerStatuses {
		details.ContainerStatuses = append(details.ContainerStatuses, ContainerStatus{
			Name:         status.Name,
			Ready:        status.Ready,
			RestartCount: status.RestartCount,
			State:        describeState(status.State),
		})
	}
	for _, c := range pod.Status.Conditions {
		details.Conditions = append(details.Conditions, PodCondition{
			Type:               string(c.Type),
			Status:             string(c.Status),
			LastTransitionTime: c.LastTransitionTime,
		})
	}
	return details, nil
}

// GetPodLogs returns the last req.TailLines lines of a pod's logs.
func (o *Operations) GetPodLogs(ctx context.Context, req LogsRequest) (*PodLogs, error) {
	if req.PodName == "" {
		return nil, ErrPodNameRequired
	}
	req.Cluster = orDefault(req.Cluster, DefaultCluster)
	req.Namespace = orDefault(req.Namespace, DefaultNamespace)
	if req.TailLines <= 0 {
		req.TailLines = DefaultTailLines
	}

	cs, err := o.client(ctx, req.Cluster)
	if err != nil {
		return nil, o.fail(ctx, "get pod logs", req.Cluster, req.Namespace, err)
	}
	opts := &corev1.PodLogOptions{TailLines: ptr.To(req.TailLines)}
	if req.Container != "" {
		opts.Container = req.Container
	}
	raw, err := cs.CoreV1().Pods(req.Namespace).GetLogs(req.PodName, opts).DoRaw(ctx)
	if err != nil {
		return nil, o.fail(ctx, "get pod logs", req.Cluster, req.Namespace, err)
	}
	logs := string(raw)
	return &PodLogs{
		PodName:   req.PodName,
		Namespace: req.Namespace,
		Cluster:   req.Cluster,
		Container: req.Container,
		Logs:      logs,
		LogLength: len(logs),
	}, nil
}

// ListDeployments lists the deployments of namespace.
func (o *Operations) ListDeployments(ctx context.Context, cluster, namespace string) ([]DeploymentSummary, error) {
	cluster = orDefault(cluster, DefaultCluster)
	namespace = orDefault(namespace, DefaultNamespace)
	cs, err := o.client(ctx, cluster)
	if err != nil {
		return nil, o.fail(ctx, "list deployments", cluster, namespace, err)
	}
	list, err := cs.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, o.fail(ctx, "list deployments", cluster, namespace, err)
	}
	out := make([]DeploymentSummary, 0, len(list.Items))
	for _, d := range list.Items {
		strategy := string(d.Spec.Strategy.Type)
		if strategy == "" {
			strategy = "Unknown"
		}
		out = append(out, DeploymentSummary{
			Name:              d.Name,
			Namespace:         d.Namespace,
			Replicas:          d.Spec.Replicas,
			AvailableReplicas: d.Status.AvailableReplicas,
			ReadyReplicas:     d.Status.ReadyReplicas,
			Strategy:          strategy,
			Labels:            nonNil(d.Labels),
		})
	}
	return out, nil
}

// GetEvents returns at most limit events of namespace.
func (o *Operations) GetEvents(ctx context.Context, cluster, namespace string, limit int64) ([]EventSummary, error) {
	cluster = orDefault(cluster, DefaultCluster)
	namespace = orDefault(namespace, DefaultNamespace)
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	cs, err := o.client(ctx, cluster)
	if err != nil {
		return nil, o.fail(ctx, "get events", cluster, namespace, err)
	}
	list, err := cs.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{Limit: limit})
	if err != nil {
		return nil, o.fail(ctx, "get events", cluster, namespace, err)
	}

	items := list.Items
	if int64(len(items)) > limit {
		items = items[:limit]
	}
	out := make([]EventSummary, 0, len(items))
	for _, e := range items {
		summary := EventSummary{
			Name:      e.Name,
			Namespace: e.Namespace,
			Type:      e.Type,
			Reason:    e.Reason,
			Message:   e.Message,
			FirstSeen: timeOrNil(e.FirstTimestamp),
			LastSeen:  timeOrNil(e.LastTimestamp),
			Count:     e.Count,
		}
		if e.InvolvedObject.Kind != "" || e.InvolvedObject.Name != "" {
			summary.InvolvedObject = &ObjectReference{Kind: e.InvolvedObject.Kind, Name: e.InvolvedObject.Name}
		}
		out = append(out, summary)
	}
	return out, nil
}

// ScaleDeployment sets the replica count of a deployment.
func (o *Operations) ScaleDeployment(ctx context.Context, cluster, namespace, name string, replicas int32) (*ScaleResult, error) {
	if name == "" {
		return nil, errors.New("name is required")
	}
	if replicas < 0 {
		return nil, errors.New("replicas must not be negative")
	}
	cluster = orDefault(cluster, DefaultCluster)
	namespace = orDefault(namespace, DefaultNamespace)
	cs, err := o.client(ctx, cluster)
	if err != nil {
		return nil, o.fail(ctx, "scale deployment", cluster, namespace, err)
	}
	deployments := cs.AppsV1().Deployments(namespace)
	deployment, err := deployments.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, o.fail(ctx, "scale deployment", cluster, namespace, err)
	}
	previous := ptr.Deref(deployment.Spec.Replicas, 1)
	deployment.Spec.Replicas = ptr.To(replicas)
	if _, err := deployments.Update(ctx, deployment, metav1.UpdateOptions{}); err != nil {
		return nil, o.fail(ctx, "scale deployment", cluster, namespace, err)
	}
	o.logger.WithContext(ctx).InfoWithFields("scaled deployment",
		logging.Field("cluster", cluster),
		logging.Field("namespace", namespace),
		logging.Field("deployment", name),
		logging.Field("from", previous),
		logging.Field("to", replicas))
	return &ScaleResult{Name: name, Namespace: namespace, Cluster: cluster, PreviousReplicas: previous, Replicas: replicas}, nil
}

func summarizePod(pod *corev1.Pod) PodSummary {
	return PodSummary{
		Name:      pod.Name,
		Namespace: pod.Namespace,
		Status:    string(pod.Status.Phase),
		Node:      pod.Spec.NodeName,
		StartTime: pod.Status.StartTime,
		IP:        pod.Status.PodIP,
		Labels:    nonNil(pod.Labels),
	}
}

func describeState(state corev1.ContainerState) string {
	switch {
	case state.Running != nil:
		return "running since " + state.Running.StartedAt.UTC().Format("2006-01-02T15:04:05Z")
	case state.Waiting != nil:
		return withMessage("waiting: "+state.Waiting.Reason, state.Waiting.Message)
	case state.Terminated != nil:
		t := state.Terminated
		return withMessage(fmt.Sprintf("terminated: %s (exit code %d)", t.Reason, t.ExitCode), t.Message)
	default:
		return "unknown"
	}
}

func withMessage(s, msg string) string {
	if msg == "" {
		return s
	}
	return s + ": " + msg
}

func timeOrNil(t metav1.Time) *metav1.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
