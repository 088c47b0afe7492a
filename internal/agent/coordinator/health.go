package coordinator

import (
	"context"
	"time"

	"github.com/moolen/sre-assistant/internal/agent/provider"
)

// Health statuses.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

const healthTimeout = 30 * time.Second

// HealthReport describes whether turns can currently be served.
type HealthReport struct {
	Status          string   `json:"status"`
	Provider        string   `json:"provider"`
	Model           string   `json:"model"`
	OracleReachable bool     `json:"oracle_reachable"`
	Capabilities    []string `json:"capabilities"`
	Error           string   `json:"error,omitempty"`
}

// Health sends a minimal request to the oracle. An unreachable oracle makes
// the report degraded; Health itself does not fail.
func (c *Coordinator) Health(ctx context.Context) HealthReport {
	report := HealthReport{
		Status:       StatusHealthy,
		Provider:     c.oracle.Name(),
		Model:        c.oracle.Model(),
		Capabilities: c.registry.Names(),
	}

	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	_, err := c.oracle.Chat(ctx, "Reply with OK.", []provider.Message{{Role: provider.RoleUser, Content: "ping"}}, nil)
	if err != nil {
		c.logger.WithContext(ctx).Warn("oracle health check failed: %v", err)
		report.Status = StatusDegraded
		report.Error = err.Error()
		return report
	}
	report.OracleReachable = true
	return report
}
