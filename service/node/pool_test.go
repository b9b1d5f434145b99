package node

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func urls(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.URL()
	}
	return out
}

func TestNewNode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "https", raw: "https://clown.adamant.im", want: "https://clown.adamant.im"},
		{name: "trailing slash trimmed", raw: "http://1.2.3.4:36666/", want: "http://1.2.3.4:36666"},
		{name: "bad scheme", raw: "ftp://example.com", wantErr: true},
		{name: "missing host", raw: "http://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := NewNode(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, n.URL())
			assert.Equal(t, StatusUnknown, n.Status())
		})
	}
}

func TestNode_Endpoint(t *testing.T) {
	n := MustNode("https://node.example.com/base/")

	assert.Equal(t, "https://node.example.com/base/api/accounts?address=U1",
		n.Endpoint("/api/accounts", map[string][]string{"address": {"U1"}}))
	assert.Equal(t, "wss://node.example.com/base/ws", n.WSEndpoint("ws"))
	assert.Equal(t, "ws://1.2.3.4/", MustNode("http://1.2.3.4").WSEndpoint("/"))
}

func TestPool_AllowedNodes(t *testing.T) {
	a := MustNode("https://a.example.com", WithWebSocket())
	b := MustNode("https://b.example.com")
	c := MustNode("https://c.example.com", WithWebSocket())
	p := NewPool(ChainADM, []*Node{a, b, c}, nil)

	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com", "https://c.example.com"},
		urls(p.AllowedNodes(false)))
	assert.Equal(t, []string{"https://a.example.com", "https://c.example.com"},
		urls(p.AllowedNodes(true)))

	p.MarkOffline(a)
	assert.Equal(t, []string{"https://b.example.com", "https://c.example.com"}, urls(p.AllowedNodes(false)))
	assert.Equal(t, []string{"https://c.example.com"}, urls(p.AllowedNodes(true)))

	p.MarkOnline(a)
	assert.Len(t, p.AllowedNodes(false), 3)
}

func TestPool_EmptyIsUsable(t *testing.T) {
	p := NewPool(ChainLSK, nil, nil)
	assert.Empty(t, p.AllowedNodes(false))
	assert.Empty(t, p.AllowedNodes(true))
	assert.Empty(t, p.Nodes())
}

func TestPool_MarkOfflineIdempotent(t *testing.T) {
	a := MustNode("https://a.example.com")
	p := NewPool(ChainADM, []*Node{a}, nil)

	var events []Event
	cancel := p.Subscribe(func(ev Event) { events = append(events, ev) })
	defer cancel()

	p.MarkOffline(a)
	p.MarkOffline(a)
	p.MarkOffline(a)

	assert.Equal(t, StatusOffline, a.Status())
	require.Len(t, events, 1)
	assert.Equal(t, EventStatus, events[0].Kind)
	assert.Equal(t, "offline", events[0].Status)
	assert.Equal(t, "https://a.example.com", events[0].URL)
}

func TestPool_RefreshKeepsOrder(t *testing.T) {
	p := NewPool(ChainADM, DefaultSeeds(ChainADM), nil)
	require.NotEmpty(t, p.Nodes())

	z := MustNode("https://z.example.com")
	a := MustNode("https://a.example.com")

	var got []Event
	cancel := p.Subscribe(func(ev Event) { got = append(got, ev) })
	p.Refresh([]*Node{z, a})
	assert.Equal(t, []string{"https://z.example.com", "https://a.example.com"}, urls(p.Nodes()))

	cancel()
	p.Refresh(nil)

	require.Len(t, got, 1)
	assert.Equal(t, EventRefresh, got[0].Kind)
	assert.Equal(t, 2, got[0].Count)
	assert.Empty(t, p.Nodes())
}

func TestPool_Find(t *testing.T) {
	p := NewPool(ChainDOGE, DefaultSeeds(ChainDOGE), nil)
	n, ok := p.Find("https://dogenode2.adamant.im")
	require.True(t, ok)
	assert.Equal(t, "https://dogenode2.adamant.im", n.URL())

	_, ok = p.Find("https://missing.example.com")
	assert.False(t, ok)
}

func TestSortByPriority(t *testing.T) {
	in := []*Node{
		MustNode("https://c.example.com", WithPriority(1)),
		MustNode("https://b.example.com", WithPriority(5)),
		MustNode("https://a.example.com", WithPriority(1)),
	}
	out := SortByPriority(in)

	assert.Equal(t, []string{"https://b.example.com", "https://a.example.com", "https://c.example.com"}, urls(out))
	assert.Equal(t, "https://c.example.com", in[0].URL(), "input untouched")
}

func TestPool_ConcurrentAccess(t *testing.T) {
	nodes := DefaultSeeds(ChainADM)
	p := NewPool(ChainADM, nodes, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				switch j % 3 {
				case 0:
					p.MarkOffline(nodes[(i+j)%len(nodes)])
				case 1:
					p.Refresh(nodes)
				default:
					for _, n := range p.AllowedNodes(false) {
						assert.NotNil(t, n)
					}
				}
			}
		}(i)
	}
	wg.Wait()
	assert.Len(t, p.Nodes(), len(nodes))
}

func TestParseChain(t *testing.T) {
	c, err := ParseChain(" ADM ")
	require.NoError(t, err)
	assert.Equal(t, ChainADM, c)

	_, err = ParseChain("btc")
	assert.Error(t, err)
}

func TestDefaultSeeds(t *testing.T) {
	adm := DefaultSeeds(ChainADM)
	assert.Len(t, adm, 9)
	assert.True(t, adm[0].SupportsWS())
	assert.False(t, adm[8].SupportsWS())
	assert.Nil(t, DefaultSeeds(ChainLSK))
	assert.Len(t, DefaultSeeds(ChainDASH), 1)
}
