// Package handoff implements the periodic rejoin beacon a node sends
// after it (re)starts, asking every peer to replay whatever segments
// it holds on the node's behalf (spec.md §4.9). The receiving side is
// specified as an interface only: no node-side handoff server ships
// in this repo (spec.md's component table marks it "interface only").
// Grounded on the teacher's reb/global.go rebalance-beacon loop, which
// runs the same "broadcast to every other node, collect best-effort
// acks, retry on the next cycle" shape for AIStore's rebalance
// trigger.
/*
 * Copyright (c) 2024, nimbus.io contributors.
 */
package handoff

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nimbus-io/gateway/gwlog"
	"github.com/nimbus-io/gateway/transport"
)

var log = gwlog.New("handoff")

// DefaultAckTimeout is spec.md §4.9's "await an acknowledgement...
// within 60s" default.
const DefaultAckTimeout = 60 * time.Second

// PeerBeacon is the request-handoffs envelope a restarted node sends
// to every peer, and the payload a HandoffServer implementation is
// handed. client_tag and client_address are required fields here,
// fixing the Python original's bug of referencing but never setting
// them (spec.md §9, Design Notes).
type PeerBeacon struct {
	NodeName      string
	NodeID        string
	ClientTag     string
	ClientAddress string
	RequestTime   time.Time
}

// HandoffServer is the receiving side's contract: accept or reject a
// peer's rejoin beacon. No implementation ships in this repo; actual
// segment replay is driven by whatever a node-side process does in
// response (spec.md §4.9: "the Requestor only triggers it").
type HandoffServer interface {
	AcceptHandoffRequest(ctx context.Context, beacon PeerBeacon) (accepted bool, err error)
}

// Requestor runs the periodic beacon against a fixed set of peer
// NodeClients (every other node in the cluster). It keeps no state
// between cycles beyond the peer list itself (spec.md §4.9: "no state
// kept between cycles except 'still running'").
type Requestor struct {
	peers         []*transport.NodeClient
	nodeName      string
	nodeID        string
	clientTag     string
	clientAddress string
	ackTimeout    time.Duration
}

// NewRequestor builds a Requestor. nodeName/nodeID identify this
// (restarted) node to its peers; clientTag/clientAddress are passed
// explicitly since the original source never set them (spec.md §9).
func NewRequestor(peers []*transport.NodeClient, nodeName, nodeID, clientTag, clientAddress string) *Requestor {
	return &Requestor{
		peers:         peers,
		nodeName:      nodeName,
		nodeID:        nodeID,
		clientTag:     clientTag,
		clientAddress: clientAddress,
		ackTimeout:    DefaultAckTimeout,
	}
}

// WithAckTimeout overrides DefaultAckTimeout, mainly for tests that
// want S6's scenario to run faster than 60s.
func (r *Requestor) WithAckTimeout(d time.Duration) *Requestor {
	r.ackTimeout = d
	return r
}

// RunOnce sends exactly one request-handoffs message to every peer
// (property 7) and waits up to ackTimeout for each to reply. A reply
// with a zero result counts as an acknowledgement; the reply carries
// no separate accepted flag. A peer's failure to reply is logged and never
// propagated as an error: the beacon retries peers that missed a
// cycle on the caller's next call to RunOnce (spec.md §7:
// "HandoffRequestor retries on its next periodic cycle"), so RunOnce
// itself never returns an error — it only logs.
func (r *Requestor) RunOnce(ctx context.Context) {
	beaconCtx, cancel := context.WithTimeout(ctx, r.ackTimeout)
	defer cancel()

	req := &transport.Request{
		MessageType:   transport.TypeHandoffBeacon,
		MessageID:     uuid.NewString(),
		NodeName:      r.nodeName,
		NodeID:        r.nodeID,
		ClientTag:     r.clientTag,
		ClientAddress: r.clientAddress,
	}

	var wg errgroup.Group
	for i, peer := range r.peers {
		i, peer := i, peer
		peerReq := *req
		wg.Go(func() error {
			reply, _, err := peer.Send(beaconCtx, &peerReq, nil)
			switch {
			case err != nil:
				log.Warningf("peer #%d has not acknowledged: %v", i+1, err)
			case !reply.Ok():
				log.Warningf("peer #%d rejected handoff beacon: %s", i+1, reply.ErrorMessage)
			}
			return nil
		})
	}
	_ = wg.Wait()
}

// Run loops RunOnce every interval until ctx is cancelled, then
// returns. This is the "single OS process running many cooperative
// tasks... one per HandoffRequestor cycle" scheduling model of
// spec.md §5, realized as one goroutine per Requestor.
func (r *Requestor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Infof("handoff requestor for node %s halting", r.nodeName)
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}
