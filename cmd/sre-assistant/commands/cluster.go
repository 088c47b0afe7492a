package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/moolen/sre-assistant/internal/cluster"
	"github.com/moolen/sre-assistant/internal/config"
)

var (
	clusterID        string
	clusterNamespace string
	clusterSelector  string
	clusterContainer string
	clusterTail      int64
	clusterLimit     int64
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Call one cluster operation directly and print its JSON value",
	Long: `Run a single read operation against a cluster without involving the
reasoning oracle. Useful for checking credentials and RBAC.

Examples:
  sre-assistant cluster namespaces
  sre-assistant cluster pods -n kube-system -l k8s-app=kube-dns
  sre-assistant cluster logs my-pod --tail 50`,
}

// clusterOp runs fn with the operations and the selected cluster id and
// prints the result.
func clusterOp(fn func(ctx context.Context, ops *cluster.Operations, id string, args []string) (interface{}, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		ops := cluster.NewOperations(cluster.NewResolver(cfg.Kubernetes.Kubeconfig).Client)
		value, err := fn(ctx, ops, clusterTarget(cfg.Kubernetes), args)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), value)
	}
}

func clusterTarget(cfg config.KubernetesConfig) string {
	switch {
	case clusterID != "":
		return clusterID
	case cfg.DefaultCluster != "":
		return cfg.DefaultCluster
	default:
		return cluster.DefaultCluster
	}
}

func init() {
	clusterCmd.PersistentFlags().StringVar(&clusterID, "cluster", "", "Cluster id (kubeconfig context; default: kubernetes.default_cluster)")
	clusterCmd.PersistentFlags().StringVarP(&clusterNamespace, "namespace", "n", cluster.DefaultNamespace, "Namespace")

	podsCmd := &cobra.Command{
		Use:   "pods",
		Short: "List pods",
		Args:  cobra.NoArgs,
		RunE: clusterOp(func(ctx context.Context, ops *cluster.Operations, id string, _ []string) (interface{}, error) {
			return ops.ListPods(ctx, id, clusterNamespace, clusterSelector)
		}),
	}
	podsCmd.Flags().StringVarP(&clusterSelector, "selector", "l", "", "Label selector")

	logsCmd := &cobra.Command{
		Use:   "logs <pod>",
		Short: "Print the tail of a pod's logs",
		Args:  cobra.ExactArgs(1),
		RunE: clusterOp(func(ctx context.Context, ops *cluster.Operations, id string, args []string) (interface{}, error) {
			return ops.GetPodLogs(ctx, cluster.LogsRequest{
				Cluster:   id,
				Namespace: clusterNamespace,
				PodName:   args[0],
				Container: clusterContainer,
				TailLines: clusterTail,
			})
		}),
	}
	logsCmd.Flags().StringVarP(&clusterContainer, "container", "c", "", "Container name")
	logsCmd.Flags().Int64Var(&clusterTail, "tail", cluster.DefaultTailLines, "Number of lines")

	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "List events",
		Args:  cobra.NoArgs,
		RunE: clusterOp(func(ctx context.Context, ops *cluster.Operations, id string, _ []string) (interface{}, error) {
			return ops.GetEvents(ctx, id, clusterNamespace, clusterLimit)
		}),
	}
	eventsCmd.Flags().Int64Var(&clusterLimit, "limit", cluster.DefaultEventLimit, "Maximum number of events")

	clusterCmd.AddCommand(
		&cobra.Command{
			Use:   "namespaces",
			Short: "List namespaces",
			Args:  cobra.NoArgs,
			RunE: clusterOp(func(ctx context.Context, ops *cluster.Operations, id string, _ []string) (interface{}, error) {
				return ops.ListNamespaces(ctx, id)
			}),
		},
		podsCmd,
		&cobra.Command{
			Use:   "pod <name>",
			Short: "Show pod details",
			Args:  cobra.ExactArgs(1),
			RunE: clusterOp(func(ctx context.Context, ops *cluster.Operations, id string, args []string) (interface{}, error) {
				return ops.GetPodDetails(ctx, id, clusterNamespace, args[0])
			}),
		},
		logsCmd,
		&cobra.Command{
			Use:   "deployments",
			Short: "List deployments",
			Args:  cobra.NoArgs,
			RunE: clusterOp(func(ctx context.Context, ops *cluster.Operations, id string, _ []string) (interface{}, error) {
				return ops.ListDeployments(ctx, id, clusterNamespace)
			}),
		},
		eventsCmd,
		&cobra.Command{
			Use:   "scale <deployment> <replicas>",
			Short: "Scale a deployment (requires kubernetes.allow_write)",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				if !cfg.Kubernetes.AllowWrite {
					return fmt.Errorf("scaling is disabled; set kubernetes.allow_write to enable it")
				}
				replicas, err := strconv.ParseInt(args[1], 10, 32)
				if err != nil || replicas < 0 {
					return fmt.Errorf("replicas must be a non-negative integer, got %q", args[1])
				}
				return clusterOp(func(ctx context.Context, ops *cluster.Operations, id string, args []string) (interface{}, error) {
					return ops.ScaleDeployment(ctx, id, clusterNamespace, args[0], int32(replicas))
				})(cmd, args)
			},
		},
	)
}
