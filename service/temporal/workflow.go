package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// NodeHealthWorkflow sweeps the nodes of one chain. It is triggered by a
// Temporal schedule at the configured interval.
//
// Steps:
// 1. Probe every node (ProbeNodes activity)
// 2. Apply the results to the pool and the store (ApplyHealth activity)
func NodeHealthWorkflow(ctx workflow.Context, input NodeHealthInput) (*NodeHealthResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("NodeHealthWorkflow started", "chain", input.Chain)

	result := &NodeHealthResult{
		Chain:   input.Chain,
		SweptAt: workflow.Now(ctx),
	}

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	var probeResult *ProbeNodesResult
	err := workflow.ExecuteActivity(ctx, a.ProbeNodes, ProbeNodesInput{Chain: input.Chain}).Get(ctx, &probeResult)
	if err != nil {
		errMsg := fmt.Sprintf("failed to probe nodes: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to probe nodes: %w", err)
	}
	result.Probed = len(probeResult.Probes)

	if result.Probed == 0 {
		logger.Info("no nodes to sweep", "chain", input.Chain)
		return result, nil
	}

	var applyResult *ApplyHealthResult
	err = workflow.ExecuteActivity(ctx, a.ApplyHealth, ApplyHealthInput{
		Chain:    input.Chain,
		Probes:   probeResult.Probes,
		ProbedAt: probeResult.ProbedAt,
	}).Get(ctx, &applyResult)
	if err != nil {
		logger.Error("failed to apply node health", "chain", input.Chain, "error", err)
		errMsg := fmt.Sprintf("failed to apply node health: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to apply node health: %w", err)
	}

	result.Online = applyResult.Online
	result.Offline = applyResult.Offline

	logger.Info("NodeHealthWorkflow completed",
		"chain", input.Chain,
		"probed", result.Probed,
		"online", result.Online,
		"offline", result.Offline,
	)
	return result, nil
}
