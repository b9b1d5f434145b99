package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	natspkg "github.com/brojonat/nodekit/service/nats"
)

func TestReadSSE(t *testing.T) {
	stream := strings.Join([]string{
		"event: connected",
		`data: {"chain":"adm"}`,
		"",
		": keepalive",
		"",
		"event: node",
		`data: {"chain":"adm","kind":"status","url":"https://a.example.com","status":"offline","count":1}`,
		"",
		"event: node",
		"",
	}, "\n")

	var events []string
	err := readSSE(strings.NewReader(stream), func(event, data string) error {
		events = append(events, event)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"connected", "node"}, events)
}

func TestReadSSE_StopsOnHandlerError(t *testing.T) {
	stream := "event: node\ndata: {}\n\nevent: node\ndata: {}\n\n"
	calls := 0
	err := readSSE(strings.NewReader(stream), func(event, data string) error {
		calls++
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPrintNodeEvent(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	var buf bytes.Buffer
	printNodeEvent(&buf, &natspkg.NodeEvent{Chain: "adm", Kind: "status", URL: "https://a.example.com", Status: "offline", OccurredAt: at})
	printNodeEvent(&buf, &natspkg.NodeEvent{Chain: "doge", Kind: "refresh", Count: 3, OccurredAt: at})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "2025-01-02T03:04:05Z")
	assert.Contains(t, lines[0], "offline")
	assert.Contains(t, lines[0], "https://a.example.com")
	assert.Contains(t, lines[1], "3 nodes")
}
