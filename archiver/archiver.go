// Package archiver implements the write half of the gateway: fan
// a single incoming object out to every node in the cluster as an
// erasure-coded segment, using a two-phase broadcast/commit protocol.
// Grounded on the teacher's ais/prxtxn.go, which runs the identical
// shape for bucket-metadata changes: broadcast an action to every
// target, require every one to ack, and on any failure, abort by
// broadcasting a matching undo to whoever already succeeded.
/*
 * Copyright (c) 2024, nimbus.io contributors.
 */
package archiver

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nimbus-io/gateway/cluster"
	"github.com/nimbus-io/gateway/cmn"
	"github.com/nimbus-io/gateway/datawriter"
	"github.com/nimbus-io/gateway/ec"
	"github.com/nimbus-io/gateway/gwlog"
)

var log = gwlog.New("archiver")

// destination pairs a cluster segment number with the WriteAdapter
// that will carry it, whether a direct DataWriter or a HandoffClient
// standing in for an unreachable node (spec.md §9). AssembleWriteAdapters
// already substitutes two backups for every down primary, so an
// Archiver always has exactly N destinations to drive and never
// tolerates fewer: k only governs how many of the N segments retrieval
// later needs back.
type destination struct {
	segNum  int
	adapter datawriter.WriteAdapter
}

// Archiver drives one archive transaction for a single ObjectID: a
// call to Start, zero or more calls to StreamSlice (one per Slicer
// chunk), and finally Finalize or Abort. The write path is
// all-or-nothing (spec.md §4.6: "failure of any one is fatal
// (abort)"; invariant 1: "exactly N segments have been accepted by N
// nodes total") — there is no quorum threshold on the write side.
type Archiver struct {
	obj   cluster.ObjectID
	seg   *ec.Segmenter
	dests []destination

	messageIDs map[int]string // segNum -> message-id, filled in by Start
	whole      *cmn.Cksum
	fileSize   int64
	seqNum     int

	// The Archiver holds exactly one slice back at a time: each
	// StreamSlice call flushes whatever was held from the previous
	// call as archive_slice, then buffers the new one. Finalize flushes
	// whatever is still held as the archive_final payload, so the last
	// slice's bytes travel inside archive_final rather than a trailing
	// archive_slice (spec.md §4.6 step 3, §4.4).
	pending      map[int][]byte
	pendingSeq   int
	pendingAdler uint32
	pendingMD5   string
	hasPending   bool
}

// New builds an Archiver for obj. adapters must contain exactly
// seg.N() entries, one per segment number 1..N (spec.md §3's permanent
// segment-to-node binding).
func New(obj cluster.ObjectID, seg *ec.Segmenter, adapters []datawriter.WriteAdapter) (*Archiver, error) {
	if len(adapters) != seg.N() {
		return nil, fmt.Errorf("archiver: need %d write adapters, got %d", seg.N(), len(adapters))
	}
	dests := make([]destination, len(adapters))
	for i, a := range adapters {
		dests[i] = destination{segNum: i + 1, adapter: a}
	}
	return &Archiver{
		obj:        obj,
		seg:        seg,
		dests:      dests,
		messageIDs: make(map[int]string, len(dests)),
		whole:      cmn.NewCksum(),
	}, nil
}

// Start broadcasts archive-key-start to every destination in
// parallel. If any destination fails to start, every destination that
// did succeed is rolled back with Cancel and a CompoundError wrapping
// ErrArchiveFailed is returned (spec.md §4.6 step 1: "wait for all to
// acknowledge ... failure of any one is fatal (abort)").
func (a *Archiver) Start(ctx context.Context, meta map[string]string, declaredFileSize int64) error {
	type result struct {
		segNum int
		msgID  string
		err    error
	}
	results := make([]result, len(a.dests))

	var wg errgroup.Group
	for i, d := range a.dests {
		i, d := i, d
		wg.Go(func() error {
			msgID, err := d.adapter.Start(ctx, a.obj, d.segNum, meta, declaredFileSize)
			results[i] = result{segNum: d.segNum, msgID: msgID, err: err}
			return nil // collect, don't short-circuit the group
		})
	}
	_ = wg.Wait()

	var causes []error
	for _, r := range results {
		if r.err != nil {
			causes = append(causes, r.err)
			continue
		}
		a.messageIDs[r.segNum] = r.msgID
	}

	if len(a.messageIDs) < len(a.dests) {
		log.Warningf("archive %s: only %d/%d nodes accepted start, aborting", a.obj, len(a.messageIDs), len(a.dests))
		a.abortStarted(ctx)
		return cmn.NewCompoundError(cmn.ErrArchiveFailed, causes)
	}
	return nil
}

// StreamSlice erasure-codes one slice and holds it; if a previous
// slice is already held, it is flushed first as archive_slice to
// every destination (spec.md §4.6 step 2: "wait for all N
// acknowledgements before starting the next slice"). plaintext,
// adler32, and md5hex are the slice's own values, recorded per spec.md
// §3 and folded into the archive-wide running checksum used by
// Finalize. A failure of any destination during the flush aborts the
// whole transaction.
func (a *Archiver) StreamSlice(ctx context.Context, plaintext []byte, adler32 uint32, md5hex string) error {
	// An empty slice (the Slicer's only slice for a zero-length object)
	// has nothing to erasure-code; Finalize still sends the one
	// archive_final per destination.
	if len(plaintext) == 0 {
		return nil
	}
	if a.hasPending {
		if err := a.flushPending(ctx); err != nil {
			return err
		}
	}

	segments, err := a.seg.Encode(plaintext)
	if err != nil {
		return err
	}

	a.whole.Write(plaintext)
	a.fileSize += int64(len(plaintext))

	pending := make(map[int][]byte, len(segments))
	for i, seg := range segments {
		pending[i+1] = seg
	}
	a.pending = pending
	a.pendingSeq = a.seqNum
	a.pendingAdler = adler32
	a.pendingMD5 = md5hex
	a.hasPending = true
	a.seqNum++
	return nil
}

// flushPending sends the held slice as archive_slice to every
// destination, requiring all N to ack.
func (a *Archiver) flushPending(ctx context.Context) error {
	errs := make([]error, len(a.dests))

	var wg errgroup.Group
	for i, d := range a.dests {
		i, d := i, d
		msgID := a.messageIDs[d.segNum]
		segment := a.pending[d.segNum]
		wg.Go(func() error {
			errs[i] = d.adapter.Next(ctx, msgID, a.pendingSeq, segment, a.pendingAdler, a.pendingMD5)
			return nil
		})
	}
	_ = wg.Wait()

	seq := a.pendingSeq
	a.hasPending = false
	a.pending = nil

	var causes []error
	for _, e := range errs {
		if e != nil {
			causes = append(causes, e)
		}
	}
	if len(causes) > 0 {
		log.Warningf("archive %s: %d/%d nodes failed slice %d, aborting", a.obj, len(causes), len(a.dests), seq)
		a.abortStarted(ctx)
		return cmn.NewCompoundError(cmn.ErrArchiveFailed, causes)
	}
	return nil
}

// Finalize sends archive_final to every destination, carrying the
// held last slice's payload and checksums plus the whole-object
// totals (spec.md §4.4/§4.6 step 3). A zero-slice archive (StreamSlice
// never called) still sends exactly one archive_final per destination,
// with an empty segment, matching "there is always exactly one
// archive_final message per writer per archive" (spec.md §4.6, edge
// cases). Any destination failing Final aborts the whole transaction.
func (a *Archiver) Finalize(ctx context.Context) error {
	if !a.hasPending {
		// Nothing was ever buffered (StreamSlice was never called): an
		// empty segment per destination still goes out, since every
		// writer gets exactly one archive_final (spec.md §4.6, edge
		// cases). The erasure coder is not involved here — there is no
		// plaintext to split.
		pending := make(map[int][]byte, len(a.dests))
		for _, d := range a.dests {
			pending[d.segNum] = nil
		}
		adler, md5hex := cmn.SliceCksum(nil)
		a.pending = pending
		a.pendingSeq = a.seqNum
		a.pendingAdler = adler
		a.pendingMD5 = md5hex
		a.hasPending = true
	}

	fileAdler32 := a.whole.Adler32()
	fileMD5 := a.whole.MD5Hex()

	type result struct {
		segNum int
		err    error
	}
	results := make([]result, len(a.dests))

	var wg errgroup.Group
	for i, d := range a.dests {
		i, d := i, d
		msgID := a.messageIDs[d.segNum]
		segment := a.pending[d.segNum]
		wg.Go(func() error {
			err := d.adapter.Final(ctx, msgID, a.pendingSeq, segment, a.pendingAdler, a.pendingMD5, a.fileSize, fileAdler32, fileMD5)
			results[i] = result{segNum: d.segNum, err: err}
			return nil
		})
	}
	_ = wg.Wait()
	a.hasPending = false

	var causes []error
	succeeded := 0
	for _, r := range results {
		if r.err != nil {
			causes = append(causes, r.err)
			delete(a.messageIDs, r.segNum)
			continue
		}
		succeeded++
	}

	if succeeded < len(a.dests) {
		log.Warningf("archive %s: only %d/%d nodes accepted final, aborting", a.obj, succeeded, len(a.dests))
		a.abortStarted(ctx)
		return cmn.NewCompoundError(cmn.ErrArchiveFailed, causes)
	}
	return nil
}

// Abort cancels every destination that successfully started, for
// callers that need to give up mid-stream (e.g. the client's HTTP
// connection dropped, spec.md §9: "client disconnect mid-stream
// aborts the transaction").
func (a *Archiver) Abort(ctx context.Context) {
	a.abortStarted(ctx)
}

func (a *Archiver) abortStarted(ctx context.Context) {
	var wg errgroup.Group
	for _, d := range a.dests {
		msgID, started := a.messageIDs[d.segNum]
		if !started {
			continue
		}
		d, msgID := d, msgID
		wg.Go(func() error {
			if err := d.adapter.Cancel(ctx, msgID); err != nil {
				log.Warningf("archive %s: cancel of segment %d on %s failed: %v", a.obj, d.segNum, d.adapter.Node(), err)
			}
			return nil
		})
	}
	_ = wg.Wait()
	a.messageIDs = make(map[int]string)
}
