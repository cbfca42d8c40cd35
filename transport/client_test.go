package transport

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/nimbus-io/gateway/cmn"
)

// startTestServer spins up an in-process NATS server, matching the
// teacher's ais/tests pattern of exercising real daemons rather than
// mocking the wire.
func startTestServer(t *testing.T) *server.Server {
	t.Helper()
	opts := &server.Options{Host: "127.0.0.1", Port: -1}
	s, err := server.NewServer(opts)
	require.NoError(t, err)
	go s.Start()
	if !s.ReadyForConnections(2 * time.Second) {
		t.Fatal("nats test server never became ready")
	}
	t.Cleanup(s.Shutdown)
	return s
}

func TestNodeClientSendReceivesReply(t *testing.T) {
	s := startTestServer(t)
	nc, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	// Fake storage node: echoes the message-id back with result 0.
	sub, err := nc.Subscribe(subjectPrefix+"node01", func(msg *nats.Msg) {
		var req Request
		require.NoError(t, cmn.JSON.Unmarshal([]byte(msg.Header.Get("message-header")), &req))
		reply := &Reply{MessageID: req.MessageID, Result: cmn.ResultOK, SliceSize: len(msg.Data)}
		require.NoError(t, msg.RespondMsg(NewReplyMsg(reply, nil)))
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	client := NewNodeClient("node01", nc)
	require.True(t, client.Connected())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	req := &Request{MessageType: TypeArchiveKeyNext, SegmentNum: 3}
	reply, err := client.Send(ctx, req, []byte("hello segment"))
	require.NoError(t, err)
	require.True(t, reply.Ok())
	require.Equal(t, req.MessageID, reply.MessageID)
	require.Equal(t, len("hello segment"), reply.SliceSize)
}

func TestNodeClientSendSurfacesRemoteError(t *testing.T) {
	s := startTestServer(t)
	nc, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.Subscribe(subjectPrefix+"node02", func(msg *nats.Msg) {
		var req Request
		require.NoError(t, cmn.JSON.Unmarshal([]byte(msg.Header.Get("message-header")), &req))
		reply := &Reply{MessageID: req.MessageID, Result: cmn.ResultTooOld, ErrorMessage: "stale unified-id"}
		require.NoError(t, msg.RespondMsg(NewReplyMsg(reply, nil)))
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	client := NewNodeClient("node02", nc)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = client.Send(ctx, &Request{MessageType: TypeArchiveKeyFinal}, nil)
	require.Error(t, err)
	require.True(t, cmn.IsRemoteError(err))
}

func TestNodeClientSendFailsWithNoResponder(t *testing.T) {
	s := startTestServer(t)
	nc, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	client := NewNodeClient("node03", nc)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = client.Send(ctx, &Request{MessageType: TypeArchiveKeyStart}, nil)
	require.Error(t, err)
}

func TestPoolDialHandsOutPerNodeClients(t *testing.T) {
	s := startTestServer(t)
	pool, err := Dial(s.ClientURL(), []string{"node01", "node02"})
	require.NoError(t, err)
	defer pool.Close()

	require.NotNil(t, pool.Client("node01"))
	require.NotNil(t, pool.Client("node02"))
	require.Nil(t, pool.Client("node99"))
}
