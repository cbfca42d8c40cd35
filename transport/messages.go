// Package transport implements the gateway's connection to the storage
// nodes: one NodeClient per node, carrying the message schema of
// spec.md §6 over a reconnecting NATS request-reply session. It is
// grounded on the teacher's transport package (a reconnecting,
// multi-stream bulk-data sender/receiver over raw TCP), generalized
// here to nimbus.io's simpler per-message request/reply pattern. No
// ZeroMQ binding exists anywhere in the example pack, so the ROUTER/
// DEALER transport of spec.md §1 is realized on NATS request-reply
// instead: a uniquely-subjected reply inbox per outstanding request is
// NATS's native analogue of ZeroMQ's envelope-based message-id
// correlation (spec.md §6: "message-id: correlates request/reply").
/*
 * Copyright (c) 2024, nimbus.io contributors.
 */
package transport

import "github.com/nimbus-io/gateway/cluster"

// MessageType enumerates the inter-node message types of spec.md §6.
type MessageType string

const (
	TypeArchiveKeyStart   MessageType = "archive-key-start"
	TypeArchiveKeyNext    MessageType = "archive-key-next"
	TypeArchiveKeyFinal   MessageType = "archive-key-final"
	TypeArchiveKeyCancel  MessageType = "archive-key-cancel"
	TypeRetrieveKeyStart  MessageType = "retrieve-key-start"
	TypeRetrieveKeyNext   MessageType = "retrieve-key-next"
	TypeRetrieveKeyFinal  MessageType = "retrieve-key-final"
	TypeDestroyKey        MessageType = "destroy-key"
	TypeHandoffBeacon     MessageType = "handoff-beacon"
	TypeHandoffStart      MessageType = "handoff-start"
	TypeHandoffNext       MessageType = "handoff-next"
	TypeHandoffFinal      MessageType = "handoff-final"
)

// Request is the envelope carried on every outbound message, matching
// spec.md §6's field list. SegmentNum and ConjoinedPart default to
// their zero values for message types that don't use them.
type Request struct {
	MessageType   MessageType      `json:"message-type"`
	MessageID     string           `json:"message-id"`
	NodeName      string           `json:"node-name,omitempty"`
	NodeID        string           `json:"node-id,omitempty"`
	ClientTag     string           `json:"client-tag"`
	ClientAddress string           `json:"client-address"`
	Object        cluster.ObjectID `json:"object"`
	SegmentNum    int              `json:"segment-num,omitempty"`
	SequenceNum   int              `json:"sequence-num,omitempty"`

	// Archive fields.
	SliceSize    int    `json:"slice-size,omitempty"`
	SliceAdler32 uint32 `json:"slice-adler32,omitempty"`
	SliceMD5     string `json:"slice-md5,omitempty"`
	FileSize     int64  `json:"file-size,omitempty"`
	FileAdler32  uint32 `json:"file-adler32,omitempty"`
	FileMD5      string `json:"file-md5,omitempty"`
	Meta         map[string]string `json:"meta,omitempty"`

	// Destroy fields.
	UnifiedIDToDestroy uint64 `json:"unified-id-to-destroy,omitempty"`

	// Handoff fields: the primary node a backup is standing in for,
	// so it can persist a handoff record for later replay (spec.md
	// §3: "handoff record ... plus intended destination node_name").
	TargetNode string `json:"target-node,omitempty"`
}

// Reply is the envelope carried on every inbound reply, matching
// spec.md §6's "result (0=OK), optional error-message" contract.
type Reply struct {
	MessageID    string `json:"message-id"`
	Result       int    `json:"result"`
	ErrorMessage string `json:"error-message,omitempty"`

	// Retrieve fields.
	SliceSize    int    `json:"slice-size,omitempty"`
	SliceAdler32 uint32 `json:"slice-adler32,omitempty"`
	SliceMD5     string `json:"slice-md5,omitempty"`
	FileSize     int64  `json:"file-size,omitempty"`
	Meta         map[string]string `json:"meta,omitempty"`
	Last         bool   `json:"last,omitempty"`

	// Destroy fields: the size removed, as seen by this node, so the
	// caller can take the majority value across all N replies (spec.md
	// §4.8: "return the size removed (reported by the nodes; caller
	// picks the majority value, or 0 if divided)").
	RemovedSize int64 `json:"removed-size,omitempty"`
}

// Ok reports whether the peer reported success.
func (r *Reply) Ok() bool { return r.Result == 0 }
