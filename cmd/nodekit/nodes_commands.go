package main

import (
	"fmt"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/nodekit/client"
	"github.com/brojonat/nodekit/service/config"
)

func nodesCommand() *cli.Command {
	return &cli.Command{
		Name:  "nodes",
		Usage: "List configured nodes for --chain",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "remote",
				Aliases: []string{"r"},
				Usage:   "Ask the running server instead of reading the local environment",
			},
		},
		Action: func(c *cli.Context) error {
			chain, err := chainFlag(c)
			if err != nil {
				return err
			}

			var view client.ChainView
			if c.Bool("remote") {
				cl := client.NewClient(c.String("server-url"), &http.Client{Timeout: 10 * time.Second}, cliLogger(c))
				remote, err := cl.ChainNodes(c.Context, string(chain))
				if err != nil {
					return fmt.Errorf("failed to fetch nodes: %w", err)
				}
				view = *remote
			} else {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				nodes, err := cfg.Nodes(chain)
				if err != nil {
					return err
				}
				view = client.ChainView{Chain: string(chain), Allowed: len(nodes)}
				for _, n := range nodes {
					view.Nodes = append(view.Nodes, client.NodeView{
						URL:        n.URL(),
						Status:     n.Status().String(),
						SupportsWS: n.SupportsWS(),
						Priority:   n.Priority(),
						Allowed:    true,
					})
				}
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, view)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "URL\tSTATUS\tWS\tPRIORITY\tALLOWED")
			for _, n := range view.Nodes {
				fmt.Fprintf(w, "%s\t%s\t%v\t%d\t%v\n", n.URL, n.Status, n.SupportsWS, n.Priority, n.Allowed)
			}
			w.Flush()

			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d nodes (%d allowed)\n", len(view.Nodes), view.Allowed)
			return nil
		},
	}
}

func scheduleSetCommand() *cli.Command {
	return &cli.Command{
		Name:  "set",
		Usage: "Create or update the health sweep schedule of --chain",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:     "interval",
				Aliases:  []string{"i"},
				Usage:    "Sweep interval (10s to 24h)",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			chain, err := chainFlag(c)
			if err != nil {
				return err
			}
			cl := client.NewClient(c.String("server-url"), nil, cliLogger(c))
			if err := cl.UpsertHealthSchedule(c.Context, string(chain), c.Duration("interval")); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "✓ Health sweep for %s every %v\n", chain, c.Duration("interval"))
			return nil
		},
	}
}

func scheduleDeleteCommand() *cli.Command {
	return &cli.Command{
		Name:  "delete",
		Usage: "Stop the health sweep schedule of --chain",
		Action: func(c *cli.Context) error {
			chain, err := chainFlag(c)
			if err != nil {
				return err
			}
			cl := client.NewClient(c.String("server-url"), nil, cliLogger(c))
			if err := cl.DeleteHealthSchedule(c.Context, string(chain)); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "✓ Health sweep for %s deleted\n", chain)
			return nil
		},
	}
}
