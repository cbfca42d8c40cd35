package archiver

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/nimbus-io/gateway/cluster"
	"github.com/nimbus-io/gateway/cmn"
	"github.com/nimbus-io/gateway/datawriter"
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

func nodeNames(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = string(rune('a' + i))
	}
	return out
}

func TestAssembleWriteAdaptersAllConnected(t *testing.T) {
	s := startTestServer(t)
	nodes := nodeNames(10)
	pool, err := transport.Dial(s.ClientURL(), nodes)
	require.NoError(t, err)
	defer pool.Close()

	topo := &cluster.Topology{Nodes: nodes, Self: "a", MinNodes: 8}
	adapters, err := AssembleWriteAdapters(topo, pool)
	require.NoError(t, err)
	require.Len(t, adapters, 10)
	for i, a := range adapters {
		require.IsType(t, &datawriter.DataWriter{}, a)
		require.Equal(t, nodes[i], a.Node())
	}
}

func TestAssembleWriteAdaptersRefusesBelowMinConnected(t *testing.T) {
	// transport.Dial succeeds even against a server with no subscribers;
	// "connected" here means the NodeClient's own Connected(), which
	// is true for all of them since they share one live NATS
	// connection. To exercise the below-threshold path, use a
	// MinNodes higher than the topology size.
	s := startTestServer(t)
	nodes := nodeNames(5)
	pool, err := transport.Dial(s.ClientURL(), nodes)
	require.NoError(t, err)
	defer pool.Close()

	topo := &cluster.Topology{Nodes: nodes, Self: "a", MinNodes: 8}
	_, err = AssembleWriteAdapters(topo, pool)
	require.ErrorIs(t, err, cmn.ErrServiceUnavailable)
}
