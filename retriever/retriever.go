// Package retriever implements the read half of the gateway: query
// every node for an object, reconstruct each slice from any k of the
// n segments that come back, and stream the reassembled plaintext to
// the HTTP boundary. Grounded on the teacher's ais/prxtxn.go broadcast
// helper (same "ask everyone, proceed once enough have answered"
// shape as the Archiver) and on ec/ec.go's GetObjReader restore path,
// generalized from AIStore's data+parity split to nimbus.io's
// streamed multi-slice retrieval (spec.md §4.7).
/*
 * Copyright (c) 2024, nimbus.io contributors.
 */
package retriever

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nimbus-io/gateway/cluster"
	"github.com/nimbus-io/gateway/cmn"
	"github.com/nimbus-io/gateway/ec"
	"github.com/nimbus-io/gateway/gwlog"
	"github.com/nimbus-io/gateway/transport"
)

var log = gwlog.New("retriever")

// source pairs a segment number with the NodeClient that owns it.
type source struct {
	segNum int
	client *transport.NodeClient
}

// Retriever drives one retrieve transaction for a single ObjectID.
type Retriever struct {
	obj     cluster.ObjectID
	seg     *ec.Segmenter
	sources []source
	k       int

	messageIDs map[int]string // segNum -> message-id, for sources that answered Start
	fileSize   int64
	Meta       map[string]string

	seqNum     int
	bytesSent  int64
	done       bool
}

// New builds a Retriever for obj. clients must contain exactly
// seg.N() entries, one per segment number 1..N, ordered the same way
// the Archiver ordered its WriteAdapters (spec.md §3's permanent
// segment-to-node binding). k is min_connected.
func New(obj cluster.ObjectID, seg *ec.Segmenter, clients []*transport.NodeClient, k int) (*Retriever, error) {
	if len(clients) != seg.N() {
		return nil, fmt.Errorf("retriever: need %d node clients, got %d", seg.N(), len(clients))
	}
	sources := make([]source, len(clients))
	for i, c := range clients {
		sources[i] = source{segNum: i + 1, client: c}
	}
	return &Retriever{
		obj:        obj,
		seg:        seg,
		sources:    sources,
		k:          k,
		messageIDs: make(map[int]string, len(sources)),
	}, nil
}

// Start broadcasts retrieve-key-start to every node holding a segment
// of obj. If fewer than k reply successfully, ErrRetrieveFailed is
// returned (property 4: "retrieval requires at least k reachable
// segment holders"). On success, FileSize and Meta are populated from
// the first node that answered authoritatively.
func (r *Retriever) Start(ctx context.Context) error {
	type result struct {
		segNum   int
		msgID    string
		fileSize int64
		meta     map[string]string
		err      error
	}
	results := make([]result, len(r.sources))

	var wg errgroup.Group
	for i, s := range r.sources {
		i, s := i, s
		wg.Go(func() error {
			req := &transport.Request{MessageType: transport.TypeRetrieveKeyStart, Object: r.obj, SegmentNum: s.segNum}
			reply, _, err := s.client.Send(ctx, req, nil)
			if err != nil {
				results[i] = result{segNum: s.segNum, err: err}
				return nil
			}
			results[i] = result{segNum: s.segNum, msgID: reply.MessageID, fileSize: reply.FileSize, meta: reply.Meta}
			return nil
		})
	}
	_ = wg.Wait()

	var causes []error
	succeeded := 0
	for _, res := range results {
		if res.err != nil {
			causes = append(causes, res.err)
			continue
		}
		r.messageIDs[res.segNum] = res.msgID
		if r.Meta == nil {
			r.fileSize = res.fileSize
			r.Meta = res.meta
		}
		succeeded++
	}

	if succeeded < r.k {
		log.Warningf("retrieve %s: only %d/%d segment holders reachable (need %d)", r.obj, succeeded, len(r.sources), r.k)
		return cmn.NewCompoundError(cmn.ErrRetrieveFailed, causes)
	}
	return nil
}

// FileSize returns the declared object size, valid after Start.
func (r *Retriever) FileSize() int64 { return r.fileSize }

// Next pulls the next slice, fanning retrieve-key-next out to every
// surviving source, and reconstructs it as soon as the first k
// segments come back (property 4: "any k of n") — it does not wait for
// every active source to answer, so one straggler node never holds up
// the whole stream. Slower in-flight replies are left to land in a
// buffered channel that nothing reads anymore rather than blocking the
// caller. It returns the reassembled plaintext and whether this was the
// final slice.
func (r *Retriever) Next(ctx context.Context) (plaintext []byte, last bool, err error) {
	if r.done {
		return nil, true, nil
	}

	type result struct {
		segNum  int
		payload []byte
		isLast  bool
		err     error
	}
	active := make([]source, 0, len(r.sources))
	for _, s := range r.sources {
		if _, ok := r.messageIDs[s.segNum]; ok {
			active = append(active, s)
		}
	}

	seq := r.seqNum
	resultsCh := make(chan result, len(active))
	for _, s := range active {
		s := s
		msgID := r.messageIDs[s.segNum]
		go func() {
			req := &transport.Request{
				MessageType: transport.TypeRetrieveKeyNext,
				MessageID:   msgID,
				SequenceNum: seq,
			}
			reply, payload, sendErr := s.client.Send(ctx, req, nil)
			if sendErr != nil {
				resultsCh <- result{segNum: s.segNum, err: sendErr}
				return
			}
			resultsCh <- result{segNum: s.segNum, payload: payload, isLast: reply.Last}
		}()
	}
	r.seqNum++

	segments := make(map[int][]byte, r.k)
	var anyLast bool
	var causes []error
	received := 0
	for received < len(active) && len(segments) < r.k {
		res := <-resultsCh
		received++
		if res.err != nil {
			log.Warningf("retrieve %s: segment %d dropped mid-stream: %v", r.obj, res.segNum, res.err)
			delete(r.messageIDs, res.segNum)
			causes = append(causes, res.err)
			continue
		}
		segments[res.segNum] = res.payload
		if res.isLast {
			anyLast = true
		}
	}

	if len(segments) < r.k {
		causes = append(causes, fmt.Errorf("only %d/%d segments for slice %d", len(segments), r.k, seq))
		return nil, false, cmn.NewCompoundError(cmn.ErrRetrieveFailed, causes)
	}

	// The original (pre-split) length of this slice is never carried on
	// the wire: every slice but the last is exactly ec.DefaultSliceSize
	// (spec.md §4.3's fixed per-cluster slice size), and the last is
	// whatever remains of the declared file size, so both sides can
	// derive it locally instead of trusting a value relayed by segment
	// holders that only ever see their own padded shard.
	remaining := r.fileSize - r.bytesSent
	origLen := ec.DefaultSliceSize
	if remaining < int64(origLen) {
		origLen = int(remaining)
	}

	chunk, err := r.seg.Decode(segments, origLen)
	if err != nil {
		return nil, false, err
	}
	r.bytesSent += int64(len(chunk))
	if anyLast || r.bytesSent >= r.fileSize {
		r.done = true
	}
	return chunk, r.done, nil
}

// Finalize broadcasts retrieve-key-final to every source that was
// still active when streaming ended, releasing any server-side
// retrieval state (spec.md §4.7: "there is always exactly one
// retrieve-key-final per segment stream started").
func (r *Retriever) Finalize(ctx context.Context) {
	var wg errgroup.Group
	for _, s := range r.sources {
		msgID, ok := r.messageIDs[s.segNum]
		if !ok {
			continue
		}
		s, msgID := s, msgID
		wg.Go(func() error {
			req := &transport.Request{MessageType: transport.TypeRetrieveKeyFinal, MessageID: msgID}
			if _, _, err := s.client.Send(ctx, req, nil); err != nil {
				log.Warningf("retrieve %s: final on segment %d failed: %v", r.obj, s.segNum, err)
			}
			return nil
		})
	}
	_ = wg.Wait()
}
