package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	natspkg "github.com/brojonat/nodekit/service/nats"
)

func allChainsFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:    "all",
		Aliases: []string{"a"},
		Usage:   "Stream every chain instead of --chain",
	}
}

// interruptible returns a context cancelled on SIGINT or SIGTERM.
func interruptible(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func streamChain(c *cli.Context) (string, error) {
	if c.Bool("all") {
		return "", nil
	}
	chain, err := chainFlag(c)
	return string(chain), err
}

func sseStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "sse",
		Usage: "Stream node events from the server via SSE",
		Flags: []cli.Flag{allChainsFlag()},
		Action: func(c *cli.Context) error {
			chain, err := streamChain(c)
			if err != nil {
				return err
			}

			url := c.String("server-url") + "/api/v1/stream/nodes"
			if chain != "" {
				url += "/" + chain
			}

			ctx, cancel := interruptible(c.Context)
			defer cancel()

			req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
			if err != nil {
				return fmt.Errorf("failed to create request: %w", err)
			}
			req.Header.Set("Accept", "text/event-stream")

			// No timeout for streaming
			resp, err := (&http.Client{}).Do(req)
			if err != nil {
				return fmt.Errorf("failed to connect to SSE endpoint: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned status %d", resp.StatusCode)
			}

			err = readSSE(resp.Body, func(event, data string) error {
				return handleSSEEvent(c, event, data)
			})
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("error reading SSE stream: %w", err)
			}
			return nil
		},
	}
}

// readSSE calls fn for every complete event in r.
func readSSE(r io.Reader, fn func(event, data string) error) error {
	scanner := bufio.NewScanner(r)
	var currentEvent, currentData string

	for scanner.Scan() {
		line := scanner.Text()

		// Empty line indicates end of event
		if line == "" {
			if currentEvent != "" && currentData != "" {
				if err := fn(currentEvent, currentData); err != nil {
					return err
				}
			}
			currentEvent = ""
			currentData = ""
			continue
		}

		if strings.HasPrefix(line, "event:") {
			currentEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			currentData = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
	return scanner.Err()
}

func handleSSEEvent(c *cli.Context, eventType, data string) error {
	switch eventType {
	case "connected":
		if !c.Bool("json") {
			var info map[string]string
			if err := json.Unmarshal([]byte(data), &info); err != nil {
				return err
			}
			fmt.Fprintf(c.App.ErrWriter, "✓ Subscribed to %s\n\n", info["chain"])
		}
		return nil

	case "node":
		if c.Bool("json") {
			fmt.Fprintln(c.App.Writer, data)
			return nil
		}
		var ev natspkg.NodeEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return err
		}
		printNodeEvent(c.App.Writer, &ev)
		return nil

	default:
		return nil
	}
}

func printNodeEvent(w io.Writer, ev *natspkg.NodeEvent) {
	at := ev.OccurredAt.Format(time.RFC3339)
	switch ev.Kind {
	case "status":
		fmt.Fprintf(w, "%s  %-5s %-8s %s\n", at, ev.Chain, ev.Status, ev.URL)
	default:
		fmt.Fprintf(w, "%s  %-5s %-8s %d nodes\n", at, ev.Chain, ev.Kind, ev.Count)
	}
}

func natsSubscribeCommand() *cli.Command {
	return &cli.Command{
		Name:  "nats",
		Usage: "Stream node events straight from NATS JetStream",
		Description: `Events are published to the subject nodes.{chain} on the NODES stream.

Example:
  nodekit --chain doge stream nats --json`,
		Flags: []cli.Flag{allChainsFlag()},
		Action: func(c *cli.Context) error {
			chain, err := streamChain(c)
			if err != nil {
				return err
			}

			sub, err := natspkg.NewSubscriber(c.String("nats-url"), cliLogger(c))
			if err != nil {
				return err
			}
			defer sub.Close()

			ctx, cancel := interruptible(c.Context)
			defer cancel()

			events, err := sub.Subscribe(ctx, chain)
			if err != nil {
				return err
			}
			if !c.Bool("json") {
				fmt.Fprintf(c.App.ErrWriter, "Subscribed to %s (Ctrl+C to stop)\n\n", natspkg.Subject(chain))
			}

			for ev := range events {
				if c.Bool("json") {
					if err := json.NewEncoder(c.App.Writer).Encode(ev); err != nil {
						return err
					}
					continue
				}
				printNodeEvent(c.App.Writer, ev)
			}
			return nil
		},
	}
}
