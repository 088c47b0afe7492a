package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/moolen/sre-assistant/internal/agent/audit"
	"github.com/moolen/sre-assistant/internal/agent/capability"
	"github.com/moolen/sre-assistant/internal/agent/coordinator"
	"github.com/moolen/sre-assistant/internal/agent/eks"
	"github.com/moolen/sre-assistant/internal/agent/finops"
	"github.com/moolen/sre-assistant/internal/agent/kubernetes"
	"github.com/moolen/sre-assistant/internal/agent/provider"
	"github.com/moolen/sre-assistant/internal/cluster"
	"github.com/moolen/sre-assistant/internal/config"
	"github.com/moolen/sre-assistant/internal/lifecycle"
	"github.com/moolen/sre-assistant/internal/logging"
	"github.com/moolen/sre-assistant/internal/tracing"
)

// app holds everything a command needs to run turns.
type app struct {
	cfg         *config.Config
	oracle      provider.Provider
	ops         *cluster.Operations
	coordinator *coordinator.Coordinator
	manager     *lifecycle.Manager
	audit       *audit.Logger
	logger      *logging.Logger
}

// appOptions selects the background components a command wants.
type appOptions struct {
	watchConfig bool
	// registry replaces the default prometheus registry when set.
	registry *prometheus.Registry
}

// openAudit is replaced in tests.
var openAudit = audit.NewLogger

// newApp wires the oracle, the specialists and the coordinator, and starts
// the background components. Callers must call close.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (_ *app, err error) {
	logger := logging.GetLogger("main")
	a := &app{cfg: cfg, manager: lifecycle.NewManager(), logger: logger}
	defer func() {
		if err == nil {
			return
		}
		if cerr := a.audit.Close(); cerr != nil {
			logger.Warn("failed to close audit log: %v", cerr)
		}
	}()

	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if opts.registry != nil {
		registerer, gatherer = opts.registry, opts.registry
	}

	tracer, err := tracing.NewProvider(cfg.Tracing, Version)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	if err := a.manager.Register(tracer); err != nil {
		return nil, err
	}

	metrics := coordinator.NewMetrics(registerer)
	if cfg.Metrics.Addr != "" {
		if err := a.manager.Register(newMetricsServer(cfg.Metrics.Addr, gatherer), tracer); err != nil {
			return nil, err
		}
	}
	if opts.watchConfig && configPath != "" {
		watcher, err := config.NewWatcher(configPath, 0, applyLogLevels)
		if err != nil {
			return nil, fmt.Errorf("failed to create config watcher: %w", err)
		}
		if err := a.manager.Register(watcher); err != nil {
			return nil, err
		}
	}

	if cfg.Audit.Path != "" {
		a.audit, err = openAudit(cfg.Audit.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("audit log enabled at %s", cfg.Audit.Path)
	}
	observer := &coordinator.Observer{Audit: a.audit, Metrics: metrics}

	a.oracle, err = provider.New(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", cfg.LLM.Provider, err)
	}
	logger.Info("using %s oracle (%s)", a.oracle.Name(), a.oracle.Model())

	a.ops = cluster.NewOperations(cluster.NewResolver(cfg.Kubernetes.Kubeconfig).Client)
	capabilities, err := buildCapabilities(cfg, a.oracle, a.ops, observer)
	if err != nil {
		return nil, err
	}
	a.coordinator, err = coordinator.New(cfg.Coordinator, a.oracle, capabilities, coordinator.WithObserver(observer))
	if err != nil {
		return nil, err
	}

	if err := a.manager.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start components: %w", err)
	}
	return a, nil
}

// buildCapabilities creates the specialists in routing order: FinOps,
// Kubernetes, then EKS when enabled.
func buildCapabilities(cfg *config.Config, oracle provider.Provider, ops *cluster.Operations, observer *coordinator.Observer) ([]capability.Capability, error) {
	settings := capability.LoopSettings{Oracle: oracle, Hook: observer.ToolHook()}

	k8s, err := kubernetes.New(cfg.Kubernetes, settings, ops)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes specialist: %w", err)
	}
	capabilities := []capability.Capability{
		finops.New(cfg.FinOps, settings, nil),
		k8s,
	}
	if cfg.EKS.Enabled {
		aws := eks.AWS{
			Region:      cfg.FinOps.Region,
			Profile:     cfg.FinOps.Profile,
			MCPLogLevel: cfg.FinOps.MCPLogLevel,
			Kubeconfig:  cfg.Kubernetes.Kubeconfig,
		}
		capabilities = append(capabilities, eks.New(cfg.EKS, aws, settings, nil))
	}
	return capabilities, nil
}

// applyLogLevels is the config watcher callback used during chat sessions.
func applyLogLevels(cfg *config.Config) error {
	levels, err := cfg.Log.PackageLevels()
	if err != nil {
		return err
	}
	if err := logging.SetDefaultLevel(cfg.Log.Level); err != nil {
		return err
	}
	if err := logging.SetPackageLogLevels(levels); err != nil {
		return err
	}
	logging.GetLogger("main").Info("applied log level %s from reloaded config", cfg.Log.Level)
	return nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.manager.Stop(ctx); err != nil {
		a.logger.ErrorWithErr("error stopping components", err)
	}
	if err := a.audit.Close(); err != nil {
		a.logger.Warn("failed to close audit log: %v", err)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
