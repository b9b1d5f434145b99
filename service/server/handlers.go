package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/nodekit/client"
	"github.com/brojonat/nodekit/service/node"
	"github.com/brojonat/nodekit/service/temporal"
)

const (
	minSweepInterval = 10 * time.Second
	maxSweepInterval = 24 * time.Hour
)

// services indexes the managed chains, keeping their configured order.
type services struct {
	order []node.Chain
	byKey map[node.Chain]*client.Service
}

func newServices(list []*client.Service) *services {
	s := &services{byKey: make(map[node.Chain]*client.Service, len(list))}
	for _, svc := range list {
		if _, dup := s.byKey[svc.Chain()]; dup {
			continue
		}
		s.order = append(s.order, svc.Chain())
		s.byKey[svc.Chain()] = svc
	}
	return s
}

// lookup resolves the {chain} path value, writing the error response itself.
func (s *services) lookup(w http.ResponseWriter, r *http.Request) (*client.Service, bool) {
	raw := r.PathValue("chain")
	chain, err := node.ParseChain(raw)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	svc, ok := s.byKey[chain]
	if !ok {
		writeError(w, fmt.Sprintf("chain %q is not managed", raw), http.StatusNotFound)
		return nil, false
	}
	return svc, true
}

func chainView(svc *client.Service) client.ChainView {
	allowed := make(map[*node.Node]bool)
	for _, n := range svc.CurrentNodes() {
		allowed[n] = true
	}

	nodes := svc.Pool().Nodes()
	view := client.ChainView{
		Chain:   string(svc.Chain()),
		Nodes:   make([]client.NodeView, len(nodes)),
		Allowed: len(allowed),
	}
	for i, n := range nodes {
		view.Nodes[i] = client.NodeView{
			URL:        n.URL(),
			Status:     n.Status().String(),
			SupportsWS: n.SupportsWS(),
			Priority:   n.Priority(),
			Allowed:    allowed[n],
		}
	}
	return view
}

// handleListNodes returns every managed chain's node list.
// GET /api/v1/nodes
func handleListNodes(s *services, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chains := make([]client.ChainView, 0, len(s.order))
		for _, chain := range s.order {
			chains = append(chains, chainView(s.byKey[chain]))
		}
		logger.DebugContext(r.Context(), "nodes listed", "chains", len(chains))
		writeJSON(w, map[string]interface{}{
			"chains": chains,
		}, http.StatusOK)
	})
}

// handleChainNodes returns one chain's node list.
// GET /api/v1/nodes/{chain}
func handleChainNodes(s *services) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		svc, ok := s.lookup(w, r)
		if !ok {
			return
		}
		writeJSON(w, chainView(svc), http.StatusOK)
	})
}

// handleTimeDelta returns the chain's last observed clock delta.
// GET /api/v1/time-delta/{chain}
func handleTimeDelta(s *services) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		svc, ok := s.lookup(w, r)
		if !ok {
			return
		}
		delta, known := svc.LastTimeDelta()
		writeJSON(w, client.TimeDelta{
			Chain:   string(svc.Chain()),
			Known:   known,
			DeltaMS: delta.Milliseconds(),
		}, http.StatusOK)
	})
}

// handleUpsertHealthSchedule sets the sweep interval of a chain.
// PUT /api/v1/health-schedules/{chain} {"interval": "2m"}
func handleUpsertHealthSchedule(s *services, scheduler temporal.Scheduler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		svc, ok := s.lookup(w, r)
		if !ok {
			return
		}

		var req struct {
			Interval string `json:"interval"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		interval, err := time.ParseDuration(req.Interval)
		if err != nil {
			writeError(w, "invalid interval: must be a duration such as 2m", http.StatusBadRequest)
			return
		}
		if interval < minSweepInterval || interval > maxSweepInterval {
			writeError(w, fmt.Sprintf("interval must be between %v and %v", minSweepInterval, maxSweepInterval), http.StatusBadRequest)
			return
		}

		chain := string(svc.Chain())
		if err := scheduler.UpsertHealthSchedule(r.Context(), chain, interval); err != nil {
			logger.ErrorContext(r.Context(), "failed to upsert health schedule", "chain", chain, "error", err)
			writeError(w, "failed to schedule health sweep", http.StatusInternalServerError)
			return
		}

		logger.InfoContext(r.Context(), "health schedule upserted", "chain", chain, "interval", interval)
		writeJSON(w, map[string]string{
			"chain":    chain,
			"interval": interval.String(),
		}, http.StatusOK)
	})
}

// handleDeleteHealthSchedule stops sweeping a chain.
// DELETE /api/v1/health-schedules/{chain}
func handleDeleteHealthSchedule(s *services, scheduler temporal.Scheduler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		svc, ok := s.lookup(w, r)
		if !ok {
			return
		}

		chain := string(svc.Chain())
		if err := scheduler.DeleteHealthSchedule(r.Context(), chain); err != nil {
			logger.ErrorContext(r.Context(), "failed to delete health schedule", "chain", chain, "error", err)
			writeError(w, "failed to delete health schedule", http.StatusInternalServerError)
			return
		}

		logger.InfoContext(r.Context(), "health schedule deleted", "chain", chain)
		w.WriteHeader(http.StatusNoContent)
	})
}

func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
