package destroyer

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

func ackHandler(removedSize int64) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var req transport.Request
		_ = cmn.JSON.Unmarshal([]byte(msg.Header.Get("message-header")), &req)
		reply := &transport.Reply{MessageID: req.MessageID, Result: cmn.ResultOK, RemovedSize: removedSize}
		_ = msg.RespondMsg(transport.NewReplyMsg(reply, nil))
	}
}

func TestDestroyerSucceedsWhenAllNodesAck(t *testing.T) {
	s := startTestServer(t)
	nc, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	clients := make([]*transport.NodeClient, 10)
	for i := 0; i < 10; i++ {
		node := "dnode" + string(rune('a'+i))
		sub, err := nc.Subscribe("nimbusio.node."+node, ackHandler(2048))
		require.NoError(t, err)
		t.Cleanup(func() { _ = sub.Unsubscribe() })
		clients[i] = transport.NewNodeClient(node, nc)
	}

	d := New(clients)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	obj := cluster.ObjectID{CollectionID: 1, Key: "gone", UnifiedID: cluster.NewUnifiedID()}
	size, err := d.Destroy(ctx, obj, obj.UnifiedID)
	require.NoError(t, err)
	require.Equal(t, int64(2048), size)
}

func TestDestroyerFailsWhenAnyNodeDoesNotAck(t *testing.T) {
	s := startTestServer(t)
	nc, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	clients := make([]*transport.NodeClient, 10)
	for i := 0; i < 10; i++ {
		node := "enode" + string(rune('a'+i))
		if i != 7 { // node index 7 never replies
			sub, err := nc.Subscribe("nimbusio.node."+node, ackHandler(1024))
			require.NoError(t, err)
			t.Cleanup(func() { _ = sub.Unsubscribe() })
		}
		clients[i] = transport.NewNodeClient(node, nc)
	}

	d := New(clients)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	obj := cluster.ObjectID{CollectionID: 1, Key: "gone", UnifiedID: cluster.NewUnifiedID()}
	_, err = d.Destroy(ctx, obj, obj.UnifiedID)
	require.Error(t, err)
}

func TestDestroyerReturnsMajorityReportedSize(t *testing.T) {
	s := startTestServer(t)
	nc, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	clients := make([]*transport.NodeClient, 10)
	for i := 0; i < 10; i++ {
		node := "fnode" + string(rune('a'+i))
		size := int64(4096)
		if i < 3 {
			size = 0 // 3 nodes disagree on the removed size
		}
		sub, err := nc.Subscribe("nimbusio.node."+node, ackHandler(size))
		require.NoError(t, err)
		t.Cleanup(func() { _ = sub.Unsubscribe() })
		clients[i] = transport.NewNodeClient(node, nc)
	}

	d := New(clients)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	obj := cluster.ObjectID{CollectionID: 1, Key: "gone", UnifiedID: cluster.NewUnifiedID()}
	size, err := d.Destroy(ctx, obj, obj.UnifiedID)
	require.NoError(t, err)
	require.Equal(t, int64(4096), size)
}

func TestDestroyerReturnsZeroWhenReportedSizeIsEvenlyDivided(t *testing.T) {
	s := startTestServer(t)
	nc, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	clients := make([]*transport.NodeClient, 10)
	for i := 0; i < 10; i++ {
		node := "gnode" + string(rune('a'+i))
		size := int64(1000)
		if i < 5 {
			size = 2000 // exactly a 5/5 split, no strict majority
		}
		sub, err := nc.Subscribe("nimbusio.node."+node, ackHandler(size))
		require.NoError(t, err)
		t.Cleanup(func() { _ = sub.Unsubscribe() })
		clients[i] = transport.NewNodeClient(node, nc)
	}

	d := New(clients)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	obj := cluster.ObjectID{CollectionID: 1, Key: "gone", UnifiedID: cluster.NewUnifiedID()}
	size, err := d.Destroy(ctx, obj, obj.UnifiedID)
	require.NoError(t, err)
	require.Equal(t, int64(0), size)
}
