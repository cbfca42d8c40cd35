// Package destroyer implements tombstone fan-out: broadcasting a
// destroy-key message for one unified_id to every node that might
// hold a segment of it. Grounded on the same ais/prxtxn.go broadcast
// shape as archiver and retriever, simplified here because destroy has
// no payload and no rollback path (spec.md §4.8: "destroy is
// unconditional once accepted ... it is not undone").
/*
 * Copyright (c) 2024, nimbus.io contributors.
 */
package destroyer

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/nimbus-io/gateway/cluster"
	"github.com/nimbus-io/gateway/cmn"
	"github.com/nimbus-io/gateway/gwlog"
	"github.com/nimbus-io/gateway/transport"
)

var log = gwlog.New("destroyer")

// Destroyer fans a single destroy-key message out across a topology's
// node clients.
type Destroyer struct {
	clients []*transport.NodeClient
}

// New builds a Destroyer over clients (one per cluster node, in
// segment-number order). Destroy has no quorum threshold: spec.md
// §4.8 requires all N writers to ack, identical to the Archiver's
// write path.
func New(clients []*transport.NodeClient) *Destroyer {
	return &Destroyer{clients: clients}
}

// Destroy broadcasts a destroy-key message for obj, recording
// unifiedIDToDestroy as the generation being torn down (spec.md §4.8:
// a destroy names the specific unified_id it retires, so a later
// archive of the same key is unaffected), and awaits an ack from every
// node. Any node failing to ack fails the whole call with a
// CompoundError wrapping ErrDestroyFailed. On success, it returns the
// removed size as reported by the nodes: the majority value across all
// N replies, or 0 if no value has a strict majority (spec.md §2: "the
// size removed (reported by the nodes; caller picks the majority
// value, or 0 if divided)").
func (d *Destroyer) Destroy(ctx context.Context, obj cluster.ObjectID, unifiedIDToDestroy uint64) (int64, error) {
	type result struct {
		size int64
		err  error
	}
	results := make([]result, len(d.clients))

	var wg errgroup.Group
	for i, c := range d.clients {
		i, c := i, c
		wg.Go(func() error {
			req := &transport.Request{
				MessageType:        transport.TypeDestroyKey,
				Object:             obj,
				UnifiedIDToDestroy: unifiedIDToDestroy,
			}
			reply, _, err := c.Send(ctx, req, nil)
			if err != nil {
				results[i] = result{err: err}
				return nil
			}
			results[i] = result{size: reply.RemovedSize}
			return nil
		})
	}
	_ = wg.Wait()

	var causes []error
	counts := make(map[int64]int, len(d.clients))
	for _, r := range results {
		if r.err != nil {
			causes = append(causes, r.err)
			continue
		}
		counts[r.size]++
	}

	if len(causes) > 0 {
		log.Warningf("destroy %s unified_id=%d: %d/%d nodes failed to ack", obj, unifiedIDToDestroy, len(causes), len(d.clients))
		return 0, cmn.NewCompoundError(cmn.ErrDestroyFailed, causes)
	}

	var majoritySize int64
	best := 0
	for size, count := range counts {
		if count > best {
			best, majoritySize = count, size
		}
	}
	if best*2 <= len(d.clients) {
		return 0, nil
	}
	return majoritySize, nil
}
