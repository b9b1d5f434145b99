package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/howeyc/gopass"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"

	"github.com/brojonat/nodekit/client"
	"github.com/brojonat/nodekit/service/config"
	"github.com/brojonat/nodekit/service/db"
	"github.com/brojonat/nodekit/service/node"
)

// cliLogger writes only errors unless --verbose is set.
func cliLogger(c *cli.Context) *slog.Logger {
	level := slog.LevelError
	if c.Bool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: level}))
}

func chainFlag(c *cli.Context) (node.Chain, error) {
	return node.ParseChain(c.String("chain"))
}

// newService builds a facade for the --chain flag from the environment config.
func newService(c *cli.Context, cfg *config.Config) (*client.Service, error) {
	chain, err := chainFlag(c)
	if err != nil {
		return nil, err
	}
	nodes, err := cfg.Nodes(chain)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("no nodes configured for %s (set %s_NODES)", chain, strings.ToUpper(string(chain)))
	}

	logger := cliLogger(c)
	var limiter *rate.Limiter
	if cfg.NodeRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.NodeRPS), cfg.NodeBurst)
	}
	transport := client.NewHTTPTransport(&http.Client{Timeout: cfg.RequestTimeout}, limiter, logger)
	pool := node.NewPool(chain, nodes, logger)
	return client.New(pool, transport, client.WithLogger(logger)), nil
}

func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(c.Context, dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(c.Context); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db.NewStore(pool, nil), pool.Close, nil
}

func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// passphraseStore reads passphrases from the environment and falls back to a
// masked terminal prompt.
type passphraseStore struct {
	withSecond bool
}

func (p passphraseStore) Secret(ctx context.Context) (string, error) {
	return readPassphrase("NODEKIT_PASSPHRASE", "Passphrase: ")
}

func (p passphraseStore) SecondSecret(ctx context.Context) (string, error) {
	if !p.withSecond {
		return "", nil
	}
	return readPassphrase("NODEKIT_SECOND_PASSPHRASE", "Second passphrase: ")
}

func readPassphrase(envVar, prompt string) (string, error) {
	if v := os.Getenv(envVar); v != "" {
		return v, nil
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := gopass.GetPasswdMasked()
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return string(b), nil
}
