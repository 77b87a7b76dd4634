package chord

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/zde37/chordkv/internal/config"
	"github.com/zde37/chordkv/pkg"
	"github.com/zde37/chordkv/pkg/hash"
)

// State is the lifecycle state of a node.
type State int32

const (
	StateBootstrapping State = iota
	StateJoining
	StateActive
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateBootstrapping:
		return "bootstrapping"
	case StateJoining:
		return "joining"
	case StateActive:
		return "active"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Node represents a node in the Chord DHT ring.
//
// All protocol state (successor, predecessor, fingers, keys) is owned by the
// goroutine running Run. Other goroutines observe the node through Snapshot
// and Stats only.
type Node struct {
	// Node identity
	id      uint64
	address NodeAddress

	// Configuration
	config    *config.Config
	ring      *hash.Ring
	bootstrap string

	transport Transport
	storage   *ChordStorage
	logger    *pkg.Logger

	// Routing state
	fingers     *FingerTable
	successor   *NodeAddress // nil until JOIN_REP while joining
	predecessor *NodeAddress // nil until the first NOTIFY

	// Joiners we admitted, by address, kept until the joiner answers our
	// PREDECESSOR so a lost JOIN_REP can be resent unchanged.
	admitted map[string]admission

	// Handed off keys whose owner answered NACK and is being asked for its value.
	verifying map[string]struct{}

	state    atomic.Int32
	stopped  atomic.Bool
	stats    *Stats
	snapshot atomic.Pointer[Snapshot]

	broadcaster RingUpdateBroadcaster
}

// NewNode creates a node bound to transport. The node id is cfg.NodeID when
// set, otherwise the ring hash of the transport address. Without a bootstrap
// peer the node forms a new ring and is Active immediately.
func NewNode(cfg *config.Config, transport Transport, logger *pkg.Logger) (*Node, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ring, err := hash.New(cfg.M, cfg.HashAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("failed to create ring: %w", err)
	}

	addr := transport.Addr()
	id, ok, err := cfg.ParseNodeID()
	if err != nil {
		return nil, err
	}
	if !ok {
		id = ring.Hash(addr)
	}
	self := NodeAddress{ID: id, Addr: addr}

	node := &Node{
		id:        id,
		address:   self,
		config:    cfg,
		ring:      ring,
		bootstrap: cfg.Bootstrap,
		transport: transport,
		storage:   NewChordStorage(ring),
		logger:    logger.WithFields(pkg.Fields{"node_id": id, "addr": addr}),
		fingers:   NewFingerTable(id, ring, self),
		stats:     newStats(),
		admitted:  make(map[string]admission),
		verifying: make(map[string]struct{}),
	}

	node.setState(StateBootstrapping)
	if node.bootstrap == "" || node.bootstrap == addr {
		node.bootstrap = ""
		node.successor = self.Copy()
		node.setState(StateActive)
		node.logger.Info().Int("m", cfg.M).Str("hash", ring.Algorithm()).Msg("Created new ring")
	} else {
		node.setState(StateJoining)
		node.logger.Info().Str("bootstrap", node.bootstrap).Int("m", cfg.M).Str("hash", ring.Algorithm()).Msg("Node created, joining ring")
	}
	node.storeSnapshot()

	return node, nil
}

// ID returns the node's identifier.
func (n *Node) ID() uint64 {
	return n.id
}

// Address returns the node's ring pointer.
func (n *Node) Address() NodeAddress {
	return n.address
}

// Ring returns the identifier space the node lives in.
func (n *Node) Ring() *hash.Ring {
	return n.ring
}

// State returns the current lifecycle state.
func (n *Node) State() State {
	return State(n.state.Load())
}

func (n *Node) setState(s State) {
	n.state.Store(int32(s))
}

// Stats returns a copy of the node counters.
func (n *Node) Stats() StatsSnapshot {
	s := n.stats.Snapshot()
	s.StoredKeys = n.storage.Len()
	return s
}

// SetBroadcaster sets the ring update broadcaster. It must be called before Run.
func (n *Node) SetBroadcaster(b RingUpdateBroadcaster) {
	n.broadcaster = b
}

// Run drives the node until Stop is called, ctx is done or the transport is
// closed. Each receive timeout is one stabilization tick.
func (n *Node) Run(ctx context.Context) error {
	n.logger.Info().Dur("timeout", n.config.Timeout).Msg("Node loop started")
	defer n.logger.Info().Msg("Node loop stopped")
	defer n.setState(StateStopped)

	if n.State() == StateJoining {
		n.sendJoinRequest()
	}

	for !n.stopped.Load() {
		if err := ctx.Err(); err != nil {
			return nil
		}

		msg, err := n.transport.Recv(n.config.Timeout)
		switch {
		case err == nil:
			n.dispatch(msg)
		case errors.Is(err, pkg.ErrTimeout):
			n.tick()
		case errors.Is(err, pkg.ErrMalformedPayload):
			n.stats.dropped.Add(1)
			n.logger.Debug().Err(err).Msg("Dropped malformed datagram")
			n.tick()
		case errors.Is(err, pkg.ErrTransportClosed):
			return nil
		default:
			n.logger.Warn().Err(err).Msg("Receive failed")
			n.tick()
		}
	}
	return nil
}

// Stop asks the loop to exit. It takes effect at the next iteration,
// i.e. within one receive timeout.
func (n *Node) Stop() {
	n.stopped.Store(true)
}

// Close releases the key store. The transport belongs to the caller.
func (n *Node) Close() error {
	return n.storage.Close()
}

// tick runs one idle round.
func (n *Node) tick() {
	n.stats.ticks.Add(1)

	switch n.State() {
	case StateJoining:
		n.sendJoinRequest()
	case StateActive:
		n.publishSnapshot()
		n.send(n.successor.Addr, NewPredecessorRequest())
	}
}

func (n *Node) sendJoinRequest() {
	n.logger.Debug().Str("bootstrap", n.bootstrap).Msg("Sending join request")
	n.send(n.bootstrap, NewJoinRequest(n.address))
}

// dispatch routes msg to its handler. Handler failures and panics are
// logged and counted; they never stop the loop.
func (n *Node) dispatch(msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			n.stats.handlerPanics.Add(1)
			n.logger.Error().
				Interface("panic", r).
				Str("method", msg.Method).
				Str("sender", msg.Sender).
				Msg("Handler panicked")
		}
	}()

	n.stats.countReceived(msg.Method)

	if n.State() == StateJoining && msg.Method != MethodJoinRep {
		n.stats.dropped.Add(1)
		n.logger.Debug().Str("method", msg.Method).Str("sender", msg.Sender).Msg("Dropping message while joining")
		return
	}

	var err error
	switch msg.Method {
	case MethodJoinReq:
		err = n.handleJoinRequest(msg)
	case MethodJoinRep:
		err = n.handleJoinReply(msg)
	case MethodNotify:
		err = n.handleNotify(msg)
	case MethodPredecessor:
		err = n.handlePredecessor(msg)
	case MethodStabilize:
		err = n.handleStabilize(msg)
	case MethodSuccessor:
		err = n.handleLookup(msg)
	case MethodSuccessorRep:
		err = n.handleLookupReply(msg)
	case MethodPut:
		err = n.handlePut(msg)
	case MethodGet:
		err = n.handleGet(msg)
	case MethodAck, MethodNack:
		err = n.handleKeyReply(msg)
	default:
		n.logger.Warn().Str("method", msg.Method).Str("sender", msg.Sender).Msg("Ignoring unknown method")
		return
	}

	if err != nil {
		n.stats.handlerErrors.Add(1)
		n.logger.Warn().Stack().Err(err).Str("method", msg.Method).Str("sender", msg.Sender).Msg("Handler failed")
	}
}

// send hands msg to the transport. Failures are counted and dropped.
func (n *Node) send(addr string, msg *Message) {
	n.stats.sent.Add(1)
	if err := n.transport.Send(addr, msg); err != nil {
		n.stats.sendFailures.Add(1)
		n.logger.Debug().Err(err).Str("to", addr).Str("method", msg.Method).Msg("Send failed")
	}
}

// owns reports whether keyID falls in this node's responsibility.
func (n *Node) owns(keyID uint64) bool {
	return IsResponsibleFor(n.id, n.predecessor, n.successor.ID, keyID)
}

// nextHop returns where to forward a message about target. The finger table
// never routes back to this node: if it would, the successor is used.
func (n *Node) nextHop(target uint64) string {
	addr := n.fingers.Find(target)
	if addr == n.address.Addr {
		return n.fingers.Successor().Addr
	}
	return addr
}

// admission is the answer given to a joiner.
type admission struct {
	joinerID  uint64
	successor NodeAddress
}

func (n *Node) setSuccessor(node NodeAddress) {
	if n.successor != nil && n.successor.Equals(&node) {
		_ = n.fingers.Update(1, node)
		return
	}
	n.logger.Info().Uint64("successor_id", node.ID).Str("successor_addr", node.Addr).Msg("Successor changed")
	n.successor = node.Copy()
	_ = n.fingers.Update(1, node)
	n.broadcast(EventSuccessorChanged, fmt.Sprintf("successor of %d is now %d", n.id, node.ID))
}

func (n *Node) setPredecessor(node NodeAddress) {
	if n.predecessor != nil && n.predecessor.Equals(&node) {
		return
	}
	n.logger.Info().Uint64("predecessor_id", node.ID).Str("predecessor_addr", node.Addr).Msg("Predecessor changed")
	n.predecessor = node.Copy()
	n.broadcast(EventPredecessorChanged, fmt.Sprintf("predecessor of %d is now %d", n.id, node.ID))
}
