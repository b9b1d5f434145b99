package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeNodeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestRunQuery(t *testing.T) {
	input := map[string]any{
		"success": true,
		"peers": []any{
			map[string]any{"ip": "10.0.0.1", "height": float64(100)},
			map[string]any{"ip": "10.0.0.2", "height": float64(250)},
		},
	}

	tests := []struct {
		name      string
		query     string
		expected  string
		expectErr bool
	}{
		{name: "length", query: ".peers | length", expected: "2\n"},
		{name: "multiple results", query: ".peers[].ip", expected: "\"10.0.0.1\"\n\"10.0.0.2\"\n"},
		{name: "filter", query: `[.peers[] | select(.height > 200) | .ip]`, expected: "[\"10.0.0.2\"]\n"},
		{name: "no results", query: "empty", expected: ""},
		{name: "runtime error", query: ".success | keys", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := compileQuery(tt.query)
			require.NoError(t, err)

			var out strings.Builder
			err = runQuery(&out, code, input)
			if tt.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out.String())
		})
	}
}

func TestCompileQuery_Invalid(t *testing.T) {
	_, err := compileQuery(".peers[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse jq query")
}

func TestParseParams(t *testing.T) {
	q, err := parseParams([]string{"limit=10", "orderBy=height:desc", "limit=20"})
	require.NoError(t, err)
	assert.Equal(t, []string{"10", "20"}, q["limit"])
	assert.Equal(t, "height:desc", q.Get("orderBy"))

	_, err = parseParams([]string{"novalue"})
	require.Error(t, err)
}

func TestCallCommand_FailsOver(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()

	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/peers", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		writeNodeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"peers":   []map[string]any{{"ip": "10.0.0.1"}, {"ip": "10.0.0.2"}},
		})
	}))
	defer up.Close()

	t.Setenv("CHAINS", "adm")
	t.Setenv("ADM_NODES", down.URL+","+up.URL)

	out, err := runApp(t, "call", "--query", ".peers | length", "--param", "limit=5", "get", "/api/peers")
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)
}

func TestCallCommand_ApplicationError(t *testing.T) {
	node := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeNodeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "Account not found"})
	}))
	defer node.Close()

	t.Setenv("CHAINS", "adm")
	t.Setenv("ADM_NODES", node.URL)

	_, err := runApp(t, "call", "GET", "/api/accounts")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account not found")
}

func TestCallCommand_Arguments(t *testing.T) {
	_, err := runApp(t, "call", "GET")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires METHOD and PATH")

	_, err = runApp(t, "call", "--body", "{not json", "POST", "/api/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --body")
}

func TestNodesCommand_Local(t *testing.T) {
	t.Setenv("CHAINS", "adm,doge")
	t.Setenv("DOGE_NODES", "https://doge1.example.com,https://doge2.example.com")
	t.Setenv("DOGE_WS_NODES", "https://doge2.example.com")

	out, err := runApp(t, "--chain", "doge", "--json", "nodes")
	require.NoError(t, err)

	var view struct {
		Chain string `json:"chain"`
		Nodes []struct {
			URL        string `json:"url"`
			SupportsWS bool   `json:"supports_ws"`
			Priority   int    `json:"priority"`
		} `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "doge", view.Chain)
	require.Len(t, view.Nodes, 2)
	assert.Equal(t, "https://doge1.example.com", view.Nodes[0].URL)
	assert.Equal(t, 2, view.Nodes[0].Priority)
	assert.False(t, view.Nodes[0].SupportsWS)
	assert.True(t, view.Nodes[1].SupportsWS)
}

func TestNodesCommand_UnknownChain(t *testing.T) {
	_, err := runApp(t, "--chain", "btc", "nodes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown chain")
}
