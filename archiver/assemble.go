package archiver

import (
	"github.com/nimbus-io/gateway/cluster"
	"github.com/nimbus-io/gateway/cmn"
	"github.com/nimbus-io/gateway/datawriter"
	"github.com/nimbus-io/gateway/transport"
)

// AssembleWriteAdapters builds the per-segment []WriteAdapter an
// Archiver needs from the cluster topology and its shared NodeClient
// pool: a direct DataWriter for every connected primary, and a
// HandoffClient drawing two backups "without replacement from the
// connected set" (spec.md §4.5) for every primary that is down. It
// refuses up front with ErrServiceUnavailable if fewer than
// topo.MinNodes primaries are connected (spec.md §4.6's precondition),
// matching property 3 ("any two backups substituting primary p:
// b1≠b2 ∧ b1≠p ∧ b2≠p").
func AssembleWriteAdapters(topo *cluster.Topology, pool *transport.Pool) ([]datawriter.WriteAdapter, error) {
	connected := make([]string, 0, topo.N())
	for _, node := range topo.Nodes {
		if c := pool.Client(node); c != nil && c.Connected() {
			connected = append(connected, node)
		}
	}
	if len(connected) < topo.MinNodes {
		return nil, cmn.ErrServiceUnavailable
	}

	// backupCursor walks the connected set round-robin so successive
	// down primaries draw different backup pairs where possible,
	// rather than always piling handoff traffic onto the same two
	// nodes.
	backupCursor := 0
	nextBackup := func(exclude string) string {
		for i := 0; i < len(connected); i++ {
			candidate := connected[backupCursor%len(connected)]
			backupCursor++
			if candidate != exclude {
				return candidate
			}
		}
		return connected[0]
	}

	adapters := make([]datawriter.WriteAdapter, topo.N())
	for i, node := range topo.Nodes {
		if c := pool.Client(node); c != nil && c.Connected() {
			adapters[i] = datawriter.NewDataWriter(node, c)
			continue
		}
		b1 := nextBackup(node)
		b2 := nextBackup(node)
		for b2 == b1 && len(connected) > 1 {
			b2 = nextBackup(node)
		}
		adapters[i] = datawriter.NewHandoffClient(node, pool.Client(b1), pool.Client(b2))
	}
	return adapters, nil
}
