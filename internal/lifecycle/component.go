package lifecycle

import "context"

// Component is a background service owned by the CLI process: the tracing
// exporter, the metrics endpoint, the config watcher.
type Component interface {
	// Start brings the component up. It must return once the component is
	// serving; long-running work belongs in goroutines.
	Start(ctx context.Context) error

	// Stop shuts the component down within the context deadline.
	Stop(ctx context.Context) error

	// Name is used in logs and errors.
	Name() string
}
