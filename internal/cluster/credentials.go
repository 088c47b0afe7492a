// Package cluster reads Kubernetes cluster state for the cluster-management
// specialist: namespaces, pods, pod logs, deployments and events, plus an
// optional deployment scale operation.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/moolen/sre-assistant/internal/logging"
)

// DefaultCluster selects the current kubeconfig context.
const DefaultCluster = "default"

// ErrNoCredentials is wrapped by resolution failures.
var ErrNoCredentials = errors.New("no usable Kubernetes credentials")

// ClientFactory returns a clientset for a cluster id.
type ClientFactory func(ctx context.Context, cluster string) (kubernetes.Interface, error)

type credentialTier struct {
	name string
	load func(cluster string) (*rest.Config, error)
}

// Resolver resolves credentials on every call, trying in order an explicit
// kubeconfig path, the default client-go loading rules and the in-cluster
// service account. A cluster id other than DefaultCluster selects the
// kubeconfig context of that name.
type Resolver struct {
	kubeconfig string

	// Overridable in tests.
	defaultRules func() *clientcmd.ClientConfigLoadingRules
	inCluster    func() (*rest.Config, error)
}

// NewResolver creates a resolver. kubeconfig may be empty.
func NewResolver(kubeconfig string) *Resolver {
	return &Resolver{
		kubeconfig:   kubeconfig,
		defaultRules: clientcmd.NewDefaultClientConfigLoadingRules,
		inCluster:    rest.InClusterConfig,
	}
}

func (r *Resolver) tiers() []credentialTier {
	var tiers []credentialTier
	if r.kubeconfig != "" {
		tiers = append(tiers, credentialTier{
			name: "kubeconfig " + r.kubeconfig,
			load: func(cluster string) (*rest.Config, error) {
				return loadKubeconfig(&clientcmd.ClientConfigLoadingRules{ExplicitPath: r.kubeconfig}, cluster)
			},
		})
	}
	tiers = append(tiers,
		credentialTier{
			name: "default kubeconfig",
			load: func(cluster string) (*rest.Config, error) {
				return loadKubeconfig(r.defaultRules(), cluster)
			},
		},
		credentialTier{
			name: "in-cluster config",
			load: func(string) (*rest.Config, error) {
				return r.inCluster()
			},
		},
	)
	return tiers
}

func loadKubeconfig(rules *clientcmd.ClientConfigLoadingRules, cluster string) (*rest.Config, error) {
	overrides := &clientcmd.ConfigOverrides{}
	if cluster != "" && cluster != DefaultCluster {
		overrides.CurrentContext = cluster
	}
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
}

// RESTConfig returns the first configuration a tier can produce. The error
// names the failure of every tier.
func (r *Resolver) RESTConfig(cluster string) (*rest.Config, error) {
	logger := logging.GetLogger("cluster")
	var failures []string
	for _, tier := range r.tiers() {
		cfg, err := tier.load(cluster)
		if err == nil {
			logger.Debug("loaded credentials for cluster %s from %s", cluster, tier.name)
			return cfg, nil
		}
		failures = append(failures, fmt.Sprintf("%s: %v", tier.name, err))
	}
	return nil, fmt.Errorf("%w (%s)", ErrNoCredentials, strings.Join(failures, "; "))
}

// Client implements ClientFactory.
func (r *Resolver) Client(ctx context.Context, cluster string) (kubernetes.Interface, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg, err := r.RESTConfig(cluster)
	if err != nil {
		return nil, err
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client: %w", err)
	}
	return clientset, nil
}
