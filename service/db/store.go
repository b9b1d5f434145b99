package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brojonat/nodekit/service/metrics"
	"github.com/brojonat/nodekit/service/node"
)

// ErrNodeNotFound is returned when a node row does not exist.
var ErrNodeNotFound = errors.New("node not found")

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
    chain           TEXT        NOT NULL,
    url             TEXT        NOT NULL,
    supports_ws     BOOLEAN     NOT NULL DEFAULT FALSE,
    priority        INTEGER     NOT NULL DEFAULT 0,
    status          TEXT        NOT NULL DEFAULT 'unknown',
    last_checked_at TIMESTAMPTZ,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (chain, url)
);
CREATE INDEX IF NOT EXISTS nodes_chain_priority_idx ON nodes (chain, priority DESC, url);
`

// Store provides database operations for the node configuration source.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// m may be nil.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{pool: pool, metrics: m}
}

// NodeRecord is a configured node as stored in the database.
type NodeRecord struct {
	Chain         node.Chain
	URL           string
	SupportsWS    bool
	Priority      int
	Status        node.Status
	LastCheckedAt *time.Time
	CreatedAt     time.Time
}

// Node builds the in-memory node for the record.
func (r *NodeRecord) Node() (*node.Node, error) {
	opts := []node.Option{node.WithPriority(r.Priority)}
	if r.SupportsWS {
		opts = append(opts, node.WithWebSocket())
	}
	return node.NewNode(r.URL, opts...)
}

// UpsertNodeParams contains the parameters for adding or updating a node.
type UpsertNodeParams struct {
	Chain      node.Chain
	URL        string
	SupportsWS bool
	Priority   int
}

// Migrate creates the nodes table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	start := time.Now()
	_, err := s.pool.Exec(ctx, schema)
	s.record("migrate", start, err)
	if err != nil {
		return fmt.Errorf("failed to migrate nodes table: %w", err)
	}
	return nil
}

// ListNodes returns the nodes of chain ordered by priority desc, url asc.
func (s *Store) ListNodes(ctx context.Context, chain node.Chain) ([]*NodeRecord, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, `
		SELECT chain, url, supports_ws, priority, status, last_checked_at, created_at
		FROM nodes
		WHERE chain = $1
		ORDER BY priority DESC, url ASC`, string(chain))
	if err != nil {
		s.record("list_nodes", start, err)
		return nil, err
	}
	records, err := pgx.CollectRows(rows, scanNodeRecord)
	s.record("list_nodes", start, err)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// GetNode retrieves a single node row.
func (s *Store) GetNode(ctx context.Context, chain node.Chain, url string) (*NodeRecord, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, `
		SELECT chain, url, supports_ws, priority, status, last_checked_at, created_at
		FROM nodes
		WHERE chain = $1 AND url = $2`, string(chain), url)
	if err != nil {
		s.record("get_node", start, err)
		return nil, err
	}
	record, err := pgx.CollectExactlyOneRow(rows, scanNodeRecord)
	if errors.Is(err, pgx.ErrNoRows) {
		s.record("get_node", start, nil)
		return nil, ErrNodeNotFound
	}
	s.record("get_node", start, err)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// UpsertNode adds a node or updates its capability and priority. The last
// observed status is kept.
func (s *Store) UpsertNode(ctx context.Context, params UpsertNodeParams) (*NodeRecord, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, `
		INSERT INTO nodes (chain, url, supports_ws, priority)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (chain, url) DO UPDATE
		SET supports_ws = EXCLUDED.supports_ws, priority = EXCLUDED.priority
		RETURNING chain, url, supports_ws, priority, status, last_checked_at, created_at`,
		string(params.Chain), params.URL, params.SupportsWS, params.Priority)
	if err != nil {
		s.record("upsert_node", start, err)
		return nil, err
	}
	record, err := pgx.CollectExactlyOneRow(rows, scanNodeRecord)
	s.record("upsert_node", start, err)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// DeleteNode removes a node from the configuration source.
func (s *Store) DeleteNode(ctx context.Context, chain node.Chain, url string) error {
	start := time.Now()
	tag, err := s.pool.Exec(ctx, `DELETE FROM nodes WHERE chain = $1 AND url = $2`, string(chain), url)
	s.record("delete_node", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNodeNotFound
	}
	return nil
}

// RecordNodeStatus stores the last observed status of a node, inserting the
// row when the node came from another source.
func (s *Store) RecordNodeStatus(ctx context.Context, chain node.Chain, url string, status node.Status, at time.Time) error {
	start := time.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO nodes (chain, url, status, last_checked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (chain, url) DO UPDATE
		SET status = EXCLUDED.status, last_checked_at = EXCLUDED.last_checked_at`,
		string(chain), url, status.String(), pgtype.Timestamptz{Time: at, Valid: true})
	s.record("record_node_status", start, err)
	return err
}

func (s *Store) record(operation string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RecordDBQuery(operation, "nodes", time.Since(start).Seconds(), err)
	}
}

func scanNodeRecord(row pgx.CollectableRow) (*NodeRecord, error) {
	var (
		r           NodeRecord
		chain       string
		status      string
		lastChecked pgtype.Timestamptz
		createdAt   pgtype.Timestamptz
	)
	if err := row.Scan(&chain, &r.URL, &r.SupportsWS, &r.Priority, &status, &lastChecked, &createdAt); err != nil {
		return nil, err
	}
	r.Chain = node.Chain(chain)
	r.Status = node.ParseStatus(status)
	r.LastCheckedAt = timePtrFromPgTimestamptz(lastChecked)
	r.CreatedAt = createdAt.Time
	return &r, nil
}

func timePtrFromPgTimestamptz(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}
