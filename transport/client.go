package transport

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/nimbus-io/gateway/cmn"
	"github.com/nimbus-io/gateway/gwlog"
)

var log = gwlog.New("transport")

// subjectPrefix namespaces every node's request subject so that one
// NATS cluster can carry traffic for more than one nimbus.io cluster
// (spec.md's per-cluster fixed-k-of-n scheme is otherwise silent on
// multi-tenant NATS, so this is a deployment convenience, not a spec
// requirement).
const subjectPrefix = "nimbusio.node."

// NodeClient is a reconnecting request-reply session to one storage
// node. It is the Go-native realization of spec.md §1's "gateway
// issues multiple simultaneous req/rep exchanges with individually
// addressable storage nodes, correlated by message-id" — one
// NodeClient per node, each wrapping a shared *nats.Conn (NATS
// dedupes the TCP connection per server set; ZeroMQ's one-socket-per-
// peer model doesn't map 1:1 here, so NodeClient instead owns the
// request subject for its node and lets nats.Conn own reconnection).
type NodeClient struct {
	node string
	nc   *nats.Conn
}

// NewNodeClient builds a client addressed to node, sharing the
// connection nc with every other NodeClient in the process (grounded
// on the teacher's transport.Stream, which also multiplexes many
// logical streams over one underlying connection).
func NewNodeClient(node string, nc *nats.Conn) *NodeClient {
	return &NodeClient{node: node, nc: nc}
}

func (c *NodeClient) subject() string { return subjectPrefix + c.node }

// Connected reports whether the underlying NATS connection believes
// it is connected. nats.Conn reconnects transparently in the
// background (with backoff, per its own configuration); NodeClient
// does not re-implement that, matching spec.md §9's instruction that
// reconnection is a transport-layer concern, not the Archiver's.
func (c *NodeClient) Connected() bool {
	return c.nc != nil && c.nc.IsConnected()
}

// Send issues req (with an optional binary payload, e.g. a slice) to
// this node and blocks for its reply, honoring ctx's deadline. A
// message-id is minted here if req.MessageID is empty, so callers
// that need to correlate several sends (e.g. archive-key-start
// followed by archive-key-next) can pre-assign one.
//
// The reply envelope mirrors the request's: JSON metadata in a NATS
// header, an optional binary payload (a retrieved segment) in the
// message body. Send returns that payload alongside the decoded
// Reply so retrieve-key-next callers can pull segment bytes back out;
// every other message type simply gets a nil payload.
func (c *NodeClient) Send(ctx context.Context, req *Request, payload []byte) (*Reply, []byte, error) {
	if !c.Connected() {
		return nil, nil, errors.Wrapf(cmn.ErrNotConnected, "node %s", c.node)
	}
	if req.MessageID == "" {
		req.MessageID = uuid.NewString()
	}

	msg := nats.NewMsg(c.subject())
	msg.Header = nats.Header{}
	msg.Header.Set("message-type", string(req.MessageType))
	msg.Header.Set("message-header", string(cmn.MustMarshal(req)))
	msg.Data = payload

	timeout := replyTimeout(ctx)
	resp, err := c.nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, errors.Wrapf(cmn.ErrTimeout, "node %s after %s", c.node, timeout)
		}
		if errors.Is(err, nats.ErrNoResponders) || errors.Is(err, nats.ErrConnectionClosed) {
			return nil, nil, errors.Wrapf(cmn.ErrNotConnected, "node %s", c.node)
		}
		return nil, nil, errors.Wrapf(err, "node %s", c.node)
	}

	var reply Reply
	if err := cmn.JSON.Unmarshal([]byte(resp.Header.Get("reply-header")), &reply); err != nil {
		return nil, nil, errors.Wrapf(err, "node %s: malformed reply", c.node)
	}
	if !reply.Ok() {
		return &reply, nil, &cmn.RemoteError{Node: c.node, Code: reply.Result, Message: reply.ErrorMessage}
	}
	return &reply, resp.Data, nil
}

// NewReplyMsg builds the reply envelope a node (or a test double
// standing in for one) sends back via msg.RespondMsg, pairing
// JSON-encoded metadata with an optional binary payload, the mirror
// image of the request encoding above.
func NewReplyMsg(reply *Reply, payload []byte) *nats.Msg {
	m := nats.NewMsg("")
	m.Header = nats.Header{}
	m.Header.Set("reply-header", string(cmn.MustMarshal(reply)))
	m.Data = payload
	return m
}

func replyTimeout(ctx context.Context) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		return time.Until(dl)
	}
	return 0
}

// Close drains this client's share of the connection. NodeClient does
// not own nc (it is shared across every node in the Topology), so
// Close is a no-op placeholder kept for interface symmetry with
// io.Closer-based callers; the owning daemon closes nc itself at
// shutdown.
func (c *NodeClient) Close() error { return nil }

// Pool multiplexes a shared NATS connection into one NodeClient per
// cluster node (spec.md §9: "every writer/reader fans out across all
// N nodes"), matching the teacher's transport pattern of a small
// registry keyed by node name over one shared connection.
type Pool struct {
	nc      *nats.Conn
	clients map[string]*NodeClient
}

// Dial connects once to the given NATS servers and builds a Pool ready
// to hand out NodeClients for any node named in nodes.
func Dial(servers string, nodes []string, opts ...nats.Option) (*Pool, error) {
	nc, err := nats.Connect(servers, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to NATS")
	}
	p := &Pool{nc: nc, clients: make(map[string]*NodeClient, len(nodes))}
	for _, n := range nodes {
		p.clients[n] = NewNodeClient(n, nc)
	}
	log.Infof("dialed %s, %d node clients ready", servers, len(nodes))
	return p, nil
}

// Client returns the NodeClient for node, or nil if node is not a
// member of this pool's topology.
func (p *Pool) Client(node string) *NodeClient { return p.clients[node] }

// Close closes the shared NATS connection underlying every client in
// the pool.
func (p *Pool) Close() {
	p.nc.Close()
}
