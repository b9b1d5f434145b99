package temporal

import (
	"context"
	"time"

	"github.com/brojonat/nodekit/service/node"
)

// Sweep runs the same steps as NodeHealthWorkflow directly, for processes
// without a Temporal server.
func (a *Activities) Sweep(ctx context.Context, chain node.Chain) (*NodeHealthResult, error) {
	result := &NodeHealthResult{Chain: string(chain), SweptAt: time.Now()}

	probes, err := a.ProbeNodes(ctx, ProbeNodesInput{Chain: string(chain)})
	if err != nil {
		return nil, err
	}
	result.Probed = len(probes.Probes)
	if result.Probed == 0 {
		return result, nil
	}

	applied, err := a.ApplyHealth(ctx, ApplyHealthInput{
		Chain:    string(chain),
		Probes:   probes.Probes,
		ProbedAt: probes.ProbedAt,
	})
	if err != nil {
		return nil, err
	}
	result.Online = applied.Online
	result.Offline = applied.Offline
	return result, nil
}

// RunSweeper sweeps every chain once immediately and then on each tick until
// ctx ends.
func (a *Activities) RunSweeper(ctx context.Context, chains []node.Chain, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for _, chain := range chains {
			if _, err := a.Sweep(ctx, chain); err != nil && ctx.Err() == nil {
				a.logger.Error("health sweep failed", "chain", chain, "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
