package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/nodekit/service/db"
	"github.com/brojonat/nodekit/service/node"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the nodes table if missing",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := store.Migrate(c.Context); err != nil {
				return fmt.Errorf("failed to migrate: %w", err)
			}
			fmt.Fprintln(c.App.Writer, "✓ Schema up to date")
			return nil
		},
	}
}

func listNodesCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-nodes",
		Usage:   "List stored nodes of --chain",
		Aliases: []string{"ls"},
		Action: func(c *cli.Context) error {
			chain, err := chainFlag(c)
			if err != nil {
				return err
			}
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			records, err := store.ListNodes(c.Context, chain)
			if err != nil {
				return fmt.Errorf("failed to list nodes: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, records)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "URL\tWS\tPRIORITY\tSTATUS\tLAST CHECKED")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%v\t%d\t%s\t%s\n",
					r.URL,
					r.SupportsWS,
					r.Priority,
					r.Status,
					formatOptionalTime(r.LastCheckedAt),
				)
			}
			w.Flush()

			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d nodes\n", len(records))
			return nil
		},
	}
}

func addNodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "add-node",
		Usage:     "Add or update a node of --chain",
		Aliases:   []string{"add"},
		ArgsUsage: "<url>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "priority",
				Aliases: []string{"p"},
				Usage:   "Higher priorities are tried first",
			},
			&cli.BoolFlag{
				Name:  "ws",
				Usage: "Node supports the realtime transport",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: node url")
			}
			chain, err := chainFlag(c)
			if err != nil {
				return err
			}
			rawURL := c.Args().First()
			if _, err := node.NewNode(rawURL); err != nil {
				return err
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			record, err := store.UpsertNode(c.Context, db.UpsertNodeParams{
				Chain:      chain,
				URL:        rawURL,
				SupportsWS: c.Bool("ws"),
				Priority:   c.Int("priority"),
			})
			if err != nil {
				return fmt.Errorf("failed to add node: %w", err)
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, record)
			}
			fmt.Fprintf(c.App.Writer, "✓ %s node %s (priority %d)\n", chain, record.URL, record.Priority)
			return nil
		},
	}
}

func deleteNodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete-node",
		Usage:     "Remove a node of --chain",
		Aliases:   []string{"rm"},
		ArgsUsage: "<url>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: node url")
			}
			chain, err := chainFlag(c)
			if err != nil {
				return err
			}
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := store.DeleteNode(c.Context, chain, c.Args().First()); err != nil {
				return fmt.Errorf("failed to delete node: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "✓ Deleted %s\n", c.Args().First())
			return nil
		},
	}
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.RFC3339)
}
