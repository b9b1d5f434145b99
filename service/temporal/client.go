package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"
)

// Client is the production Scheduler that talks to Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// createHealthSchedule creates a new schedule that sweeps chain every interval.
func (c *Client) createHealthSchedule(ctx context.Context, chain string, interval time.Duration) error {
	id := scheduleID(chain)

	workflowAction := client.ScheduleWorkflowAction{
		ID:        "node-health-sweep-" + chain,
		Workflow:  NodeHealthWorkflow,
		TaskQueue: c.taskQueue,
		Args:      []interface{}{NodeHealthInput{Chain: chain}},
	}

	_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: id,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{{Every: interval}},
		},
		Action: &workflowAction,
		Memo: map[string]interface{}{
			"chain":      chain,
			"created_by": "nodekit",
		},
	})
	if err != nil {
		c.logger.Error("failed to create schedule",
			"chain", chain,
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to create schedule %q: %w", id, err)
	}

	c.logger.Info("health schedule created",
		"chain", chain,
		"schedule_id", id,
		"interval", interval,
	)
	return nil
}

// UpsertHealthSchedule creates the chain's schedule, or updates its interval
// if it already exists.
func (c *Client) UpsertHealthSchedule(ctx context.Context, chain string, interval time.Duration) error {
	id := scheduleID(chain)

	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if _, err := handle.Describe(ctx); err != nil {
		c.logger.Debug("schedule not found, creating new one",
			"schedule_id", id,
			"error", err,
		)
		return c.createHealthSchedule(ctx, chain, interval)
	}

	err := handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(input client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			input.Description.Schedule.Spec.Intervals = []client.ScheduleIntervalSpec{
				{Every: interval},
			}
			return &client.ScheduleUpdate{
				Schedule: &input.Description.Schedule,
			}, nil
		},
	})
	if err != nil {
		c.logger.Error("failed to update schedule",
			"chain", chain,
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to update schedule %q: %w", id, err)
	}

	c.logger.Info("health schedule updated",
		"chain", chain,
		"schedule_id", id,
		"interval", interval,
	)
	return nil
}

// DeleteHealthSchedule deletes the chain's schedule.
func (c *Client) DeleteHealthSchedule(ctx context.Context, chain string) error {
	id := scheduleID(chain)

	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if err := handle.Delete(ctx); err != nil {
		c.logger.Error("failed to delete schedule",
			"chain", chain,
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to delete schedule %q: %w", id, err)
	}

	c.logger.Info("health schedule deleted", "chain", chain, "schedule_id", id)
	return nil
}

// TriggerSweep starts a sweep of chain immediately and waits for its result.
func (c *Client) TriggerSweep(ctx context.Context, chain string) (*NodeHealthResult, error) {
	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        fmt.Sprintf("node-health-manual-%s-%d", chain, time.Now().UnixNano()),
		TaskQueue: c.taskQueue,
	}, NodeHealthWorkflow, NodeHealthInput{Chain: chain})
	if err != nil {
		return nil, fmt.Errorf("failed to start sweep: %w", err)
	}

	var result NodeHealthResult
	if err := run.Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("sweep failed: %w", err)
	}
	return &result, nil
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
