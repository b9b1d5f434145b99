package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "nodekit",
		Usage: "Multi-node blockchain API client CLI",
		Description: `A command-line tool for calling blockchain nodes with failover and for
signing transactions offline.

Node lists, network identifier and fees come from the same environment the
server reads (CHAINS, <CHAIN>_NODES, NETWORK_IDENTIFIER, MIN_FEE_PER_BYTE).`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			nodesCommand(),
			callCommand(),
			{
				Name:  "tx",
				Usage: "Transaction signing and submission",
				Subcommands: []*cli.Command{
					txSignCommand(),
					txVerifyCommand(),
					txSendCommand(),
				},
			},
			{
				Name:  "keys",
				Usage: "Key inspection",
				Subcommands: []*cli.Command{
					keysShowCommand(),
				},
			},
			{
				Name:  "schedule",
				Usage: "Health sweep schedules (via the server API)",
				Subcommands: []*cli.Command{
					scheduleSetCommand(),
					scheduleDeleteCommand(),
				},
			},
			{
				Name:  "db",
				Usage: "Node table management",
				Subcommands: []*cli.Command{
					migrateCommand(),
					listNodesCommand(),
					addNodeCommand(),
					deleteNodeCommand(),
				},
			},
			{
				Name:  "stream",
				Usage: "Node event streaming",
				Subcommands: []*cli.Command{
					sseStreamCommand(),
					natsSubscribeCommand(),
				},
			},
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "chain",
				Aliases: []string{"c"},
				Usage:   "Chain to operate on (adm, lsk, doge, dash)",
				EnvVars: []string{"NODEKIT_CHAIN"},
				Value:   "adm",
			},
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Diagnostics server URL",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log node attempts to stderr",
			},
		},
	}
}
