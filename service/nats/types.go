package nats

import (
	"time"

	"github.com/brojonat/nodekit/service/node"
)

// NodeEvent is a pool change as published to the subject "nodes.{chain}".
type NodeEvent struct {
	Chain  string `json:"chain"`
	Kind   string `json:"kind"`
	URL    string `json:"url,omitempty"`
	Status string `json:"status,omitempty"`
	Count  int    `json:"count"`

	OccurredAt  time.Time `json:"occurred_at"`
	PublishedAt time.Time `json:"published_at"`
}

// FromPoolEvent converts an in-process pool event for publishing.
func FromPoolEvent(ev node.Event) *NodeEvent {
	return &NodeEvent{
		Chain:       string(ev.Chain),
		Kind:        string(ev.Kind),
		URL:         ev.URL,
		Status:      ev.Status,
		Count:       ev.Count,
		OccurredAt:  ev.At.UTC(),
		PublishedAt: time.Now().UTC(),
	}
}

// Subject returns the subject events for chain are published on.
func Subject(chain string) string {
	if chain == "" {
		return StreamSubjects
	}
	return "nodes." + chain
}
