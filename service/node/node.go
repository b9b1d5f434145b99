package node

import (
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
)

// Chain identifies which blockchain network a node serves.
type Chain string

const (
	ChainADM  Chain = "adm"
	ChainLSK  Chain = "lsk"
	ChainDOGE Chain = "doge"
	ChainDASH Chain = "dash"
)

// ParseChain normalizes and validates a chain identifier.
func ParseChain(s string) (Chain, error) {
	c := Chain(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case ChainADM, ChainLSK, ChainDOGE, ChainDASH:
		return c, nil
	}
	return "", fmt.Errorf("unknown chain %q", s)
}

// Status is the reachability of a node as last observed.
type Status int32

const (
	StatusUnknown Status = iota
	StatusOnline
	StatusOffline
)

func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// ParseStatus is the inverse of Status.String. Unrecognized values map to StatusUnknown.
func ParseStatus(s string) Status {
	switch s {
	case "online":
		return StatusOnline
	case "offline":
		return StatusOffline
	default:
		return StatusUnknown
	}
}

// Node is a remote API endpoint. Its status is owned by the Pool that holds it;
// everyone else only reads it.
type Node struct {
	url        *url.URL
	raw        string
	supportsWS bool
	priority   int
	status     atomic.Int32
}

// Option configures a Node at construction.
type Option func(*Node)

// WithWebSocket marks the node as supporting the realtime transport.
func WithWebSocket() Option {
	return func(n *Node) { n.supportsWS = true }
}

// WithPriority sets the node's preference weight. Higher is tried first.
func WithPriority(p int) Option {
	return func(n *Node) { n.priority = p }
}

// NewNode parses a base URL into a Node with unknown status.
func NewNode(rawURL string, opts ...Option) (*Node, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(rawURL), "/")
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("failed to parse node url %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("node url %q: scheme must be http or https", rawURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("node url %q: host is required", rawURL)
	}

	n := &Node{url: u, raw: trimmed}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// MustNode is NewNode for static lists; it panics on a malformed URL.
func MustNode(rawURL string, opts ...Option) *Node {
	n, err := NewNode(rawURL, opts...)
	if err != nil {
		panic(err)
	}
	return n
}

func (n *Node) URL() string      { return n.raw }
func (n *Node) SupportsWS() bool { return n.supportsWS }
func (n *Node) Priority() int    { return n.priority }
func (n *Node) Status() Status   { return Status(n.status.Load()) }

// Endpoint resolves path and query against the node's base URL.
func (n *Node) Endpoint(path string, query url.Values) string {
	u := *n.url
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// WSEndpoint is Endpoint with the scheme switched to ws/wss.
func (n *Node) WSEndpoint(path string) string {
	u := *n.url
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	return u.String()
}

func (n *Node) String() string { return n.raw }

// setStatus swaps the status and reports whether it changed.
func (n *Node) setStatus(s Status) bool {
	return Status(n.status.Swap(int32(s))) != s
}
