package datawriter

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/nimbus-io/gateway/cluster"
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

// fakeNode replies OK to start/next/final/cancel and records the
// sequence of message types it observed, so tests can assert the
// DataWriter drives the expected protocol.
type fakeNode struct {
	seen []transport.MessageType
}

func (f *fakeNode) handler(msg *nats.Msg) {
	var req transport.Request
	_ = cmn.JSON.Unmarshal([]byte(msg.Header.Get("message-header")), &req)
	f.seen = append(f.seen, req.MessageType)
	if req.MessageID == "" {
		req.MessageID = "generated-by-node"
	}
	_ = msg.RespondMsg(transport.NewReplyMsg(&transport.Reply{MessageID: req.MessageID, Result: cmn.ResultOK}, nil))
}

func TestDataWriterDrivesStartNextFinal(t *testing.T) {
	s := startTestServer(t)
	nc, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	node := &fakeNode{}
	sub, err := nc.Subscribe("nimbusio.node.node04", node.handler)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	w := NewDataWriter("node04", transport.NewNodeClient("node04", nc))
	require.Equal(t, "node04", w.Node())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	obj := cluster.ObjectID{CollectionID: 1, Key: "a/b", UnifiedID: cluster.NewUnifiedID()}
	msgID, err := w.Start(ctx, obj, 3, map[string]string{"x-amz-meta-color": "red"}, 42)
	require.NoError(t, err)
	require.NotEmpty(t, msgID)

	require.NoError(t, w.Next(ctx, msgID, 0, []byte("segment-bytes"), 123, "deadbeef"))
	require.NoError(t, w.Final(ctx, msgID, 1, []byte("last-segment"), 321, "feedface", 42, 456, "cafebabe"))

	require.Equal(t, []transport.MessageType{
		transport.TypeArchiveKeyStart,
		transport.TypeArchiveKeyNext,
		transport.TypeArchiveKeyFinal,
	}, node.seen)
}

func TestDataWriterCancel(t *testing.T) {
	s := startTestServer(t)
	nc, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	node := &fakeNode{}
	sub, err := nc.Subscribe("nimbusio.node.node05", node.handler)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	w := NewDataWriter("node05", transport.NewNodeClient("node05", nc))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, w.Cancel(ctx, "some-message-id"))
	require.Equal(t, []transport.MessageType{transport.TypeArchiveKeyCancel}, node.seen)
}

func TestHandoffClientRequiresBothBackupsToAck(t *testing.T) {
	s := startTestServer(t)
	nc, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	backup1, backup2 := &fakeNode{}, &fakeNode{}
	sub1, err := nc.Subscribe("nimbusio.node.backupA", backup1.handler)
	require.NoError(t, err)
	defer sub1.Unsubscribe()
	sub2, err := nc.Subscribe("nimbusio.node.backupB", backup2.handler)
	require.NoError(t, err)
	defer sub2.Unsubscribe()

	h := NewHandoffClient("node06", transport.NewNodeClient("backupA", nc), transport.NewNodeClient("backupB", nc))
	require.Equal(t, "node06", h.Node())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	obj := cluster.ObjectID{CollectionID: 1, Key: "c/d", UnifiedID: cluster.NewUnifiedID()}
	msgID, err := h.Start(ctx, obj, 5, nil, 7)
	require.NoError(t, err)
	require.NotEmpty(t, msgID)
	require.NoError(t, h.Next(ctx, msgID, 0, []byte("x"), 1, "hash"))
	require.NoError(t, h.Final(ctx, msgID, 1, []byte("y"), 2, "hash2", 7, 9, "hash3"))

	expected := []transport.MessageType{
		transport.TypeHandoffStart,
		transport.TypeHandoffNext,
		transport.TypeHandoffFinal,
	}
	require.Equal(t, expected, backup1.seen)
	require.Equal(t, expected, backup2.seen)
}

func TestHandoffClientFailsWhenOneBackupRejects(t *testing.T) {
	s := startTestServer(t)
	nc, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	sub1, err := nc.Subscribe("nimbusio.node.backupC", (&fakeNode{}).handler)
	require.NoError(t, err)
	defer sub1.Unsubscribe()
	// backupD has no subscriber: every send to it fails with no responders.

	h := NewHandoffClient("node07", transport.NewNodeClient("backupC", nc), transport.NewNodeClient("backupD", nc))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	obj := cluster.ObjectID{CollectionID: 1, Key: "e/f", UnifiedID: cluster.NewUnifiedID()}
	_, err = h.Start(ctx, obj, 5, nil, 7)
	require.Error(t, err)
	require.True(t, cmn.IsHandoffFailed(err))
}
