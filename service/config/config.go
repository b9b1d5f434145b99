package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/nodekit/service/node"
	"github.com/brojonat/nodekit/service/signer"
)

// Config holds all application configuration loaded from environment variables.
// Every problem is reported at startup, not just the first.
type Config struct {
	// Server configuration
	ServerAddr     string
	LogLevel       string
	MetricsEnabled bool

	// Chains managed by this process, in the order given by CHAINS.
	Chains []node.Chain

	// NodeURLs and WSNodeURLs hold <CHAIN>_NODES and <CHAIN>_WS_NODES.
	// A chain absent from NodeURLs falls back to the built-in seeds.
	NodeURLs   map[node.Chain][]string
	WSNodeURLs map[node.Chain][]string

	// Signing configuration
	NetworkIdentifier string
	NetworkID         signer.NetworkID
	MinFeePerByte     uint64

	// Transport configuration
	RequestTimeout time.Duration
	NodeRPS        float64
	NodeBurst      int

	// Health sweep configuration
	HealthSweepInterval time.Duration
	HealthPath          string
	HealthWSPath        string

	// Optional backends; empty disables them.
	DatabaseURL string
	NATSURL     string

	// Temporal configuration. An empty host runs the sweep in-process.
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string
}

// Load reads configuration from environment variables and validates all fields.
// Returns an error listing every invalid variable.
func Load() (*Config, error) {
	cfg := &Config{
		NodeURLs:   make(map[node.Chain][]string),
		WSNodeURLs: make(map[node.Chain][]string),
	}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	metricsEnabled, err := parseBool("METRICS_ENABLED", true)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.MetricsEnabled = metricsEnabled

	// Chains and their nodes
	for _, raw := range splitList(getEnvOrDefault("CHAINS", string(node.ChainADM))) {
		chain, err := node.ParseChain(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("CHAINS: %w", err))
			continue
		}
		cfg.Chains = append(cfg.Chains, chain)

		prefix := strings.ToUpper(string(chain))
		if urls := splitList(os.Getenv(prefix + "_NODES")); len(urls) > 0 {
			cfg.NodeURLs[chain] = urls
		}
		if urls := splitList(os.Getenv(prefix + "_WS_NODES")); len(urls) > 0 {
			cfg.WSNodeURLs[chain] = urls
		}
	}
	if len(cfg.Chains) == 0 && len(errs) == 0 {
		errs = append(errs, fmt.Errorf("CHAINS must name at least one chain"))
	}

	// Signing configuration
	cfg.NetworkIdentifier = getEnvOrDefault("NETWORK_IDENTIFIER", signer.MainnetNetworkID)
	networkID, err := signer.ParseNetworkID(cfg.NetworkIdentifier)
	if err != nil {
		errs = append(errs, fmt.Errorf("NETWORK_IDENTIFIER: %w", err))
	}
	cfg.NetworkID = networkID

	minFee, err := parseInt("MIN_FEE_PER_BYTE", 1000)
	if err != nil {
		errs = append(errs, err)
	} else if minFee < 0 {
		errs = append(errs, fmt.Errorf("MIN_FEE_PER_BYTE cannot be negative"))
	} else {
		cfg.MinFeePerByte = uint64(minFee)
	}

	// Transport configuration
	if cfg.RequestTimeout, err = parseDuration("REQUEST_TIMEOUT", "15s"); err != nil {
		errs = append(errs, err)
	}
	if cfg.NodeRPS, err = parseFloat("NODE_RPS", 0); err != nil {
		errs = append(errs, err)
	}
	if cfg.NodeBurst, err = parseInt("NODE_BURST", 1); err != nil {
		errs = append(errs, err)
	}

	// Health sweep configuration
	if cfg.HealthSweepInterval, err = parseDuration("HEALTH_SWEEP_INTERVAL", "2m"); err != nil {
		errs = append(errs, err)
	}
	cfg.HealthPath = getEnvOrDefault("HEALTH_PATH", "/api/node/status")
	cfg.HealthWSPath = getEnvOrDefault("HEALTH_WS_PATH", "/")

	// Optional backends
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.NATSURL = os.Getenv("NATS_URL")

	// Temporal configuration
	cfg.TemporalHost = os.Getenv("TEMPORAL_HOST")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "nodekit-health")

	if len(errs) == 0 {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks a configuration built without Load.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Chains) == 0 {
		errs = append(errs, fmt.Errorf("at least one chain is required"))
	}

	if len(c.NetworkID) != 32 {
		errs = append(errs, fmt.Errorf("NetworkID must be 32 bytes"))
	}

	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("RequestTimeout must be positive"))
	}

	if c.NodeRPS < 0 {
		errs = append(errs, fmt.Errorf("NodeRPS cannot be negative"))
	}

	if c.NodeRPS > 0 && c.NodeBurst < 1 {
		errs = append(errs, fmt.Errorf("NodeBurst must be at least 1 when NodeRPS is set"))
	}

	if c.HealthSweepInterval < time.Second {
		errs = append(errs, fmt.Errorf("HealthSweepInterval must be at least 1 second"))
	}

	if !strings.HasPrefix(c.HealthPath, "/") {
		errs = append(errs, fmt.Errorf("HealthPath must start with /"))
	}

	if c.TemporalHost != "" {
		if c.TemporalNamespace == "" {
			errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
		}
		if c.TemporalTaskQueue == "" {
			errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
		}
	}

	for _, chain := range c.Chains {
		if _, err := c.Nodes(chain); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// Nodes builds the node list of chain. Configured URLs are given descending
// priorities so SortByPriority keeps their order. Without configured URLs the
// built-in seeds are returned, which may be empty.
func (c *Config) Nodes(chain node.Chain) ([]*node.Node, error) {
	urls, ok := c.NodeURLs[chain]
	if !ok {
		return node.DefaultSeeds(chain), nil
	}

	ws := make(map[string]bool, len(c.WSNodeURLs[chain]))
	for _, u := range c.WSNodeURLs[chain] {
		ws[strings.TrimRight(u, "/")] = true
	}

	nodes := make([]*node.Node, 0, len(urls))
	for i, u := range urls {
		opts := []node.Option{node.WithPriority(len(urls) - i)}
		if ws[strings.TrimRight(u, "/")] {
			opts = append(opts, node.WithWebSocket())
		}
		n, err := node.NewNode(u, opts...)
		if err != nil {
			return nil, fmt.Errorf("%s_NODES: %w", strings.ToUpper(string(chain)), err)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}

func parseBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	return result, nil
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
