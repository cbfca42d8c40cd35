// Package cluster holds the gateway's view of the storage cluster:
// the fixed, ordered node list and object identity. It is grounded on
// the teacher's cluster.Smap (immutable cluster map, versioned,
// passed by pointer) generalized to nimbus.io's simpler "fixed node
// list, no membership changes without a restart" topology (spec.md §9:
// "Changing N requires a full restart").
/*
 * Copyright (c) 2024, nimbus.io contributors.
 */
package cluster

import (
	"fmt"

	"github.com/nimbus-io/gateway/cmn"
)

// Topology is the immutable, process-wide ordered node list. Segment
// number i (1-indexed) is permanently bound to Nodes[i-1] (spec.md §3,
// invariant: "segment numbering must match the node list at every node,
// forever"). A Topology is never mutated after construction; it is
// handed around as a *Topology, and NewTopology copies the node list
// so no other code holds a reference to its backing array.
type Topology struct {
	Nodes    []string // ordered node names, 1:1 with segment numbers
	Self     string   // this process's own node name
	MinNodes int      // minimum connected primaries required to proceed (k)
}

// NewTopology builds a Topology from a gateway configuration, per
// spec.md §6's NIMBUSIO_NODE_NAME_SEQ contract. minConnected is the
// cluster's k (spec.md §4.6: "At least min_connected (8) of the N
// primaries").
func NewTopology(cfg *cmn.Config, minConnected int) *Topology {
	nodes := make([]string, len(cfg.NodeNames))
	copy(nodes, cfg.NodeNames)
	return &Topology{Nodes: nodes, Self: cfg.NodeName, MinNodes: minConnected}
}

// N is the cluster size (n in the k-of-n scheme).
func (t *Topology) N() int { return len(t.Nodes) }

// SegmentNode returns the node name permanently bound to segNum
// (1-indexed), per spec.md §3's global invariant.
func (t *Topology) SegmentNode(segNum int) (string, error) {
	if segNum < 1 || segNum > len(t.Nodes) {
		return "", fmt.Errorf("segment number %d out of range [1,%d]", segNum, len(t.Nodes))
	}
	return t.Nodes[segNum-1], nil
}

// SegmentNum returns the 1-indexed segment number permanently bound to
// node, the inverse of SegmentNode.
func (t *Topology) SegmentNum(node string) (int, error) {
	for i, n := range t.Nodes {
		if n == node {
			return i + 1, nil
		}
	}
	return 0, fmt.Errorf("node %q is not a member of this cluster", node)
}
