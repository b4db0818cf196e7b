package topology

import (
	"fmt"
	"sync"
)

// Network groups nodes under one topology layout.
type Network struct {
	mu       sync.RWMutex
	layout   Type
	failover bool
	nodes    map[string]*Node
}

// NewNetwork creates an empty network with the given layout.
func NewNetwork(layout Type) *Network {
	return &Network{layout: layout, nodes: make(map[string]*Node)}
}

// Configure switches the network layout.
func (nw *Network) Configure(layout Type) {
	nw.mu.Lock()
	defer nw.mu.Unlock()
	nw.layout = layout
}

// SetFailover toggles failover handling.
func (nw *Network) SetFailover(enabled bool) {
	nw.mu.Lock()
	defer nw.mu.Unlock()
	nw.failover = enabled
}

// Attach adds a node to the network.
func (nw *Network) Attach(n *Node) error {
	nw.mu.Lock()
	defer nw.mu.Unlock()
	if _, ok := nw.nodes[n.ID]; ok {
		return fmt.Errorf("topology: node %q already attached", n.ID)
	}
	nw.nodes[n.ID] = n
	return nil
}

// Node looks up an attached node by ID.
func (nw *Network) Node(id string) (*Node, bool) {
	nw.mu.RLock()
	defer nw.mu.RUnlock()
	n, ok := nw.nodes[id]
	return n, ok
}

// Metrics is a point-in-time network summary consumed by operators.
type Metrics struct {
	Layout      Type    `json:"layout"`
	ActiveNodes int     `json:"active_nodes"`
	MaxCost     float64 `json:"max_cost"`
	Zone        Zone    `json:"-"`
	ZoneName    string  `json:"governance_zone"`
	Failover    bool    `json:"failover_enabled"`
}

// Metrics reports the network's layout, node count, and the worst
// node cost and zone. The worst zone drives operator policy: one node in
// governance puts the network in governance.
func (nw *Network) Metrics() Metrics {
	nw.mu.RLock()
	defer nw.mu.RUnlock()

	m := Metrics{
		Layout:      nw.layout,
		ActiveNodes: len(nw.nodes),
		Failover:    nw.failover,
	}
	for _, n := range nw.nodes {
		if c := n.Cost(); c > m.MaxCost {
			m.MaxCost = c
		}
		if z := n.Zone(); z > m.Zone {
			m.Zone = z
		}
	}
	m.ZoneName = m.Zone.String()
	return m
}
