// Package datawriter implements the write-side adapters that the
// Archiver fans a slice out to: DataWriter (talks to a storage node
// directly) and HandoffClient (talks to two backup storage nodes
// standing in for an unreachable node). Both satisfy WriteAdapter, so the Archiver
// never type-switches between them (spec.md §9: "duck-typed: both
// expose start/next/final/cancel"). Grounded on the teacher's
// mirror.XactMirror, which likewise hides "write to local disk" and
// "write via bucket mirroring" behind one interface for its callers.
/*
 * Copyright (c) 2024, nimbus.io contributors.
 */
package datawriter

import (
	"context"

	"github.com/nimbus-io/gateway/cluster"
	"github.com/nimbus-io/gateway/transport"
)

// WriteAdapter is the interface an Archiver drives per segment
// destination, independent of whether the destination is the node
// itself or a handoff stand-in for it (spec.md §9).
type WriteAdapter interface {
	// Start begins a single-segment archive
	// for obj at segNum, returning the message-id used to correlate
	// the Next/Final calls that follow.
	Start(ctx context.Context, obj cluster.ObjectID, segNum int, meta map[string]string, fileSize int64) (messageID string, err error)

	// Next sends one slice's segment payload plus its per-slice
	// checksums. It is never called for the last slice: that slice's
	// payload travels inside Final instead (spec.md §4.6 step 2: "for
	// each slice from Slicer except the last").
	Next(ctx context.Context, messageID string, sequenceNum int, segment []byte, adler32 uint32, md5hex string) error

	// Final closes out the segment, carrying the last slice's own
	// payload and checksums alongside the whole-file totals (spec.md
	// §4.4: "archive_final(..., last_segment_bytes, last_adler32,
	// last_md5)").
	Final(ctx context.Context, messageID string, sequenceNum int, segment []byte, sliceAdler32 uint32, sliceMD5 string, fileSize int64, fileAdler32 uint32, fileMD5 string) error

	// Cancel aborts an in-flight archive (spec.md §4.4: two-phase
	// commit rollback).
	Cancel(ctx context.Context, messageID string) error

	// Node identifies which cluster node this adapter ultimately
	// writes to (the segment's permanent destination, spec.md §3),
	// even when Cancel/Next/Final are being relayed through a handoff
	// peer rather than sent directly.
	Node() string
}

// DataWriter is the direct WriteAdapter: every call is a single
// request/reply round trip to the node itself.
type DataWriter struct {
	node   string
	client *transport.NodeClient
}

func NewDataWriter(node string, client *transport.NodeClient) *DataWriter {
	return &DataWriter{node: node, client: client}
}

func (w *DataWriter) Node() string { return w.node }

func (w *DataWriter) Start(ctx context.Context, obj cluster.ObjectID, segNum int, meta map[string]string, fileSize int64) (string, error) {
	req := &transport.Request{
		MessageType: transport.TypeArchiveKeyStart,
		Object:      obj,
		SegmentNum:  segNum,
		Meta:        meta,
		FileSize:    fileSize,
	}
	reply, _, err := w.client.Send(ctx, req, nil)
	if err != nil {
		return "", err
	}
	return reply.MessageID, nil
}

func (w *DataWriter) Next(ctx context.Context, messageID string, sequenceNum int, segment []byte, adler32 uint32, md5hex string) error {
	req := &transport.Request{
		MessageType:  transport.TypeArchiveKeyNext,
		MessageID:    messageID,
		SequenceNum:  sequenceNum,
		SliceSize:    len(segment),
		SliceAdler32: adler32,
		SliceMD5:     md5hex,
	}
	_, _, err := w.client.Send(ctx, req, segment)
	return err
}

func (w *DataWriter) Final(ctx context.Context, messageID string, sequenceNum int, segment []byte, sliceAdler32 uint32, sliceMD5 string, fileSize int64, fileAdler32 uint32, fileMD5 string) error {
	req := &transport.Request{
		MessageType:  transport.TypeArchiveKeyFinal,
		MessageID:    messageID,
		SequenceNum:  sequenceNum,
		SliceSize:    len(segment),
		SliceAdler32: sliceAdler32,
		SliceMD5:     sliceMD5,
		FileSize:     fileSize,
		FileAdler32:  fileAdler32,
		FileMD5:      fileMD5,
	}
	_, _, err := w.client.Send(ctx, req, segment)
	return err
}

func (w *DataWriter) Cancel(ctx context.Context, messageID string) error {
	req := &transport.Request{
		MessageType: transport.TypeArchiveKeyCancel,
		MessageID:   messageID,
	}
	_, _, err := w.client.Send(ctx, req, nil)
	return err
}
