package handoff

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/nimbus-io/gateway/cmn"
	"github.com/nimbus-io/gateway/transport"
)

func startTestServer(t *testing.T) *server.Server {
	t.Helper()
	s, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1})
	require.NoError(t, err)
	go s.Start()
	if !s.ReadyForConnections(2 * time.Second) {
		t.Fatal("nats test server never became ready")
	}
	t.Cleanup(s.Shutdown)
	return s
}

func acceptingPeer(msg *nats.Msg) {
	var req transport.Request
	_ = cmn.JSON.Unmarshal([]byte(msg.Header.Get("message-header")), &req)
	reply := &transport.Reply{MessageID: req.MessageID, Result: cmn.ResultOK}
	_ = msg.RespondMsg(transport.NewReplyMsg(reply, nil))
}

// TestRequestorSendsExactlyOneMessagePerPeerPerCycle is S6 from
// spec.md §8: P1 and P3 accept, P2 never replies, RunOnce returns
// without panicking or blocking past its own ack timeout.
func TestRequestorSendsExactlyOneMessagePerPeerPerCycle(t *testing.T) {
	s := startTestServer(t)
	nc, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	var p1Count, p3Count int
	sub1, err := nc.Subscribe("nimbusio.node.p1", func(msg *nats.Msg) {
		p1Count++
		acceptingPeer(msg)
	})
	require.NoError(t, err)
	defer sub1.Unsubscribe()

	// p2 has no subscriber: its beacon always fails unacknowledged.

	sub3, err := nc.Subscribe("nimbusio.node.p3", func(msg *nats.Msg) {
		p3Count++
		acceptingPeer(msg)
	})
	require.NoError(t, err)
	defer sub3.Unsubscribe()

	peers := []*transport.NodeClient{
		transport.NewNodeClient("p1", nc),
		transport.NewNodeClient("p2", nc),
		transport.NewNodeClient("p3", nc),
	}
	r := NewRequestor(peers, "restarted-node", "node-id-7", "gw-tag", "10.0.0.9:9000").
		WithAckTimeout(200 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	r.RunOnce(ctx)

	require.Equal(t, 1, p1Count)
	require.Equal(t, 1, p3Count)
}

// TestRequestorBeaconCarriesNodeIdentity checks that the beacon's wire
// envelope carries node-name/node-id (spec.md §6), not just
// client-tag/client-address, so a peer can tell which node is
// rejoining.
func TestRequestorBeaconCarriesNodeIdentity(t *testing.T) {
	s := startTestServer(t)
	nc, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	var got transport.Request
	sub, err := nc.Subscribe("nimbusio.node.p1", func(msg *nats.Msg) {
		_ = cmn.JSON.Unmarshal([]byte(msg.Header.Get("message-header")), &got)
		acceptingPeer(msg)
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	peers := []*transport.NodeClient{transport.NewNodeClient("p1", nc)}
	r := NewRequestor(peers, "restarted-node", "node-id-7", "gw-tag", "10.0.0.9:9000").
		WithAckTimeout(200 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.RunOnce(ctx)

	require.Equal(t, "restarted-node", got.NodeName)
	require.Equal(t, "node-id-7", got.NodeID)
}

func TestRequestorRunStopsOnContextCancellation(t *testing.T) {
	s := startTestServer(t)
	nc, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.Subscribe("nimbusio.node.p1", acceptingPeer)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	peers := []*transport.NodeClient{transport.NewNodeClient("p1", nc)}
	r := NewRequestor(peers, "restarted-node", "node-id-7", "gw-tag", "10.0.0.9:9000").
		WithAckTimeout(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		r.Run(ctx, 50*time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
