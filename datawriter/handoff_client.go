package datawriter

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nimbus-io/gateway/cluster"
	"github.com/nimbus-io/gateway/cmn"
	"github.com/nimbus-io/gateway/transport"
)

// HandoffClient is the WriteAdapter used when targetNode is
// unreachable: every call is forwarded to two backup NodeClients,
// drawn without replacement from the connected set (spec.md §4.5),
// and succeeds only when both backups acknowledge. Either backup
// failing with Timeout or RemoteError fails the whole call with
// ErrHandoffFailed; the Archiver then treats that the same as any
// other write-adapter failure for that segment. Each message carries
// targetNode so a backup can persist a handoff record for replay once
// the primary reconnects (spec.md §3).
type HandoffClient struct {
	targetNode string
	backup1    *transport.NodeClient
	backup2    *transport.NodeClient
}

func NewHandoffClient(targetNode string, backup1, backup2 *transport.NodeClient) *HandoffClient {
	return &HandoffClient{targetNode: targetNode, backup1: backup1, backup2: backup2}
}

// Node reports the ultimate destination node, not either backup
// standing in for it, so the Archiver's per-node bookkeeping treats a
// handed-off segment identically to a directly-written one.
func (h *HandoffClient) Node() string { return h.targetNode }

// bothAck sends req (with an optional payload) to both backups in
// parallel and requires both to succeed, per spec.md §4.5. req must
// already carry a non-empty MessageID so both backups agree on it.
func (h *HandoffClient) bothAck(ctx context.Context, req *transport.Request, payload []byte) error {
	req.TargetNode = h.targetNode
	req1, req2 := *req, *req

	var errs [2]error
	var wg errgroup.Group
	wg.Go(func() error {
		_, _, err := h.backup1.Send(ctx, &req1, payload)
		errs[0] = err
		return nil
	})
	wg.Go(func() error {
		_, _, err := h.backup2.Send(ctx, &req2, payload)
		errs[1] = err
		return nil
	})
	_ = wg.Wait()

	if errs[0] != nil || errs[1] != nil {
		return cmn.NewCompoundError(cmn.ErrHandoffFailed, []error{errs[0], errs[1]})
	}
	return nil
}

func (h *HandoffClient) Start(ctx context.Context, obj cluster.ObjectID, segNum int, meta map[string]string, fileSize int64) (string, error) {
	req := &transport.Request{
		MessageType: transport.TypeHandoffStart,
		MessageID:   uuid.NewString(),
		Object:      obj,
		SegmentNum:  segNum,
		Meta:        meta,
		FileSize:    fileSize,
	}
	if err := h.bothAck(ctx, req, nil); err != nil {
		return "", err
	}
	return req.MessageID, nil
}

func (h *HandoffClient) Next(ctx context.Context, messageID string, sequenceNum int, segment []byte, adler32 uint32, md5hex string) error {
	req := &transport.Request{
		MessageType:  transport.TypeHandoffNext,
		MessageID:    messageID,
		SequenceNum:  sequenceNum,
		SliceSize:    len(segment),
		SliceAdler32: adler32,
		SliceMD5:     md5hex,
	}
	return h.bothAck(ctx, req, segment)
}

func (h *HandoffClient) Final(ctx context.Context, messageID string, sequenceNum int, segment []byte, sliceAdler32 uint32, sliceMD5 string, fileSize int64, fileAdler32 uint32, fileMD5 string) error {
	req := &transport.Request{
		MessageType:  transport.TypeHandoffFinal,
		MessageID:    messageID,
		SequenceNum:  sequenceNum,
		SliceSize:    len(segment),
		SliceAdler32: sliceAdler32,
		SliceMD5:     sliceMD5,
		FileSize:     fileSize,
		FileAdler32:  fileAdler32,
		FileMD5:      fileMD5,
	}
	return h.bothAck(ctx, req, segment)
}

func (h *HandoffClient) Cancel(ctx context.Context, messageID string) error {
	req := &transport.Request{
		MessageType: transport.TypeArchiveKeyCancel,
		MessageID:   messageID,
	}
	return h.bothAck(ctx, req, nil)
}

var _ WriteAdapter = (*DataWriter)(nil)
var _ WriteAdapter = (*HandoffClient)(nil)
