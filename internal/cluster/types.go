package cluster

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Defaults applied to empty parameters.
const (
	DefaultNamespace  = "default"
	DefaultTailLines  = 100
	DefaultEventLimit = 50
)

// PodSummary is one entry of a pod listing.
type PodSummary struct {
	Name      string            `json:"name"`
	Namespace string            `json:"namespace"`
	Status    string            `json:"status"`
	Node      string            `json:"node"`
	StartTime *metav1.Time      `json:"start_time"`
	IP        string            `json:"ip"`
	Labels    map[string]string `json:"labels"`
}

// PodDetails extends PodSummary with container and condition state.
type PodDetails struct {
	PodSummary
	Annotations       map[string]string `json:"annotations"`
	Containers        []string          `json:"containers"`
	ContainerStatuses []ContainerStatus `json:"container_statuses"`
	Conditions        []PodCondition    `json:"conditions"`
}

// ContainerStatus summarizes one container of a pod.
type ContainerStatus struct {
	Name         string `json:"name"`
	Ready        bool   `json:"ready"`
	RestartCount int32  `json:"restart_count"`
	State        string `json:"state"`
}

// PodCondition is one pod condition.
type PodCondition struct {
	Type               string      `json:"type"`
	Status             string      `json:"status"`
	LastTransitionTime metav1.Time `json:"last_transition_time"`
}

// LogsRequest selects the logs to fetch.
type LogsRequest struct {
	Cluster   string
	Namespace string
	PodName   string
	Container string
	TailLines int64
}

// PodLogs holds the tail of a pod's logs.
type PodLogs struct {
	PodName   string `json:"pod_name"`
	Namespace string `json:"namespace"`
	Cluster   string `json:"cluster"`
	Container string `json:"container"`
	Logs      string `json:"logs"`
	LogLength int    `json:"log_length"`
}

// DeploymentSummary is one entry of a deployment listing.
type DeploymentSummary struct {
	Name              string            `json:"name"`
	Namespace         string            `json:"namespace"`
	Replicas          *int32            `json:"replicas"`
	AvailableReplicas int32             `json:"available_replicas"`
	ReadyReplicas     int32             `json:"ready_replicas"`
	Strategy          string            `json:"strategy"`
	Labels            map[string]string `json:"labels"`
}

// EventSummary is one namespace event.
type EventSummary struct {
	Name           string           `json:"name"`
	Namespace      string           `json:"namespace"`
	Type           string           `json:"type"`
	Reason         string           `json:"reason"`
	Message        string           `json:"message"`
	FirstSeen      *metav1.Time     `json:"first_seen"`
	LastSeen       *metav1.Time     `json:"last_seen"`
	Count          int32            `json:"count"`
	InvolvedObject *ObjectReference `json:"involved_object"`
}

// ObjectReference names the object an event is about.
type ObjectReference struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// ScaleResult reports a replica change.
type ScaleResult struct {
	Name             string `json:"name"`
	Namespace        string `json:"namespace"`
	Cluster          string `json:"cluster"`
	PreviousReplicas int32  `json:"previous_replicas"`
	Replicas         int32  `json:"replicas"`
}
