package node

// Built-in seed lists used when no node source is configured. The https
// ADAMANT hosts also serve the socket transport.
var seeds = map[Chain][]seed{
	ChainADM: {
		{url: "https://clown.adamant.im", ws: true},
		{url: "https://lake.adamant.im", ws: true},
		{url: "https://endless.adamant.im", ws: true},
		{url: "https://bid.adamant.im", ws: true},
		{url: "https://unusual.adamant.im", ws: true},
		{url: "https://debate.adamant.im", ws: true},
		{url: "http://23.226.231.225:36666"},
		{url: "http://78.47.205.206:36666"},
		{url: "http://5.161.53.74:36666"},
	},
	ChainDOGE: {
		{url: "https://dogenode1.adamant.im"},
		{url: "https://dogenode2.adamant.im"},
	},
	ChainDASH: {
		{url: "https://dashnode1.adamant.im"},
	},
}

type seed struct {
	url string
	ws  bool
}

// DefaultSeeds returns fresh Node values for the chain's built-in list, in
// listed order. Chains without a built-in list return nil.
func DefaultSeeds(chain Chain) []*Node {
	list := seeds[chain]
	if len(list) == 0 {
		return nil
	}
	out := make([]*Node, 0, len(list))
	for _, s := range list {
		var opts []Option
		if s.ws {
			opts = append(opts, WithWebSocket())
		}
		out = append(out, MustNode(s.url, opts...))
	}
	return out
}
