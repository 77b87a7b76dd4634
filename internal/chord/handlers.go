package chord

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/zde37/chordkv/pkg"
	"github.com/zde37/chordkv/pkg/hash"
)

// handleJoinRequest places a joiner on the ring or passes the request along.
// A joiner we already admitted gets the same answer again.
func (n *Node) handleJoinRequest(msg *Message) error {
	var args JoinArgs
	if err := msg.Decode(&args); err != nil {
		return err
	}
	if args.Addr == "" {
		return fmt.Errorf("join request from %s without addr", msg.Sender)
	}
	if !n.ring.IsValidID(args.ID) {
		return fmt.Errorf("join request from %s with id %d outside the ring", args.Addr, args.ID)
	}
	joiner := NodeAddress{ID: args.ID, Addr: args.Addr}
	if joiner.Addr == n.address.Addr {
		n.logger.Debug().Msg("Ignoring own join request")
		return nil
	}

	if adm, ok := n.admitted[joiner.Addr]; ok && adm.joinerID == joiner.ID {
		n.logger.Debug().Str("joiner_addr", joiner.Addr).Uint64("successor_id", adm.successor.ID).Msg("Resending join reply")
		n.send(joiner.Addr, NewJoinReply(adm.successor))
		return nil
	}

	var successor NodeAddress
	switch {
	case n.successor.ID == n.id:
		// Alone on the ring: the joiner becomes everything we route to.
		successor = n.address
		n.setSuccessor(joiner)
		n.fingers.Fill(joiner)
	case hash.InRange(joiner.ID, n.id, n.successor.ID):
		successor = *n.successor
		n.setSuccessor(joiner)
	default:
		n.stats.forwarded.Add(1)
		n.send(n.successor.Addr, msg.Clone())
		return nil
	}

	n.admitted[joiner.Addr] = admission{joinerID: joiner.ID, successor: successor}
	n.send(joiner.Addr, NewJoinReply(successor))

	n.logger.Info().Uint64("joiner_id", joiner.ID).Str("joiner_addr", joiner.Addr).Msg("Admitted node to ring")
	return nil
}

// handleJoinReply completes a join.
func (n *Node) handleJoinReply(msg *Message) error {
	if n.State() != StateJoining {
		n.logger.Debug().Str("sender", msg.Sender).Msg("Ignoring join reply, already active")
		return nil
	}

	var args SuccessorArgs
	if err := msg.Decode(&args); err != nil {
		return err
	}
	if args.SuccessorAddr == "" {
		return fmt.Errorf("join reply from %s without successor_addr", msg.Sender)
	}
	if args.SuccessorAddr == n.address.Addr {
		return fmt.Errorf("join reply from %s names this node as its own successor", msg.Sender)
	}

	successor := NodeAddress{ID: args.SuccessorID, Addr: args.SuccessorAddr}
	n.successor = successor.Copy()
	n.fingers.Fill(successor)
	n.setState(StateActive)

	n.logger.Info().Uint64("successor_id", successor.ID).Str("successor_addr", successor.Addr).Msg("Joined ring")
	n.broadcast(EventNodeJoin, fmt.Sprintf("node %d joined with successor %d", n.id, successor.ID))
	return nil
}

// handleNotify considers the sender as our predecessor.
func (n *Node) handleNotify(msg *Message) error {
	var args NotifyArgs
	if err := msg.Decode(&args); err != nil {
		return err
	}
	if args.PredecessorAddr == "" {
		args.PredecessorAddr = msg.Sender
	}

	if !n.ring.IsValidID(args.PredecessorID) {
		return fmt.Errorf("notify from %s with id %d outside the ring", msg.Sender, args.PredecessorID)
	}

	candidate := NodeAddress{ID: args.PredecessorID, Addr: args.PredecessorAddr}
	if candidate.Addr == n.address.Addr && n.successor.ID != n.id {
		// only a node alone on the ring is its own predecessor
		n.logger.Debug().Msg("Ignoring notify from self")
		return nil
	}
	if n.predecessor == nil || hash.InRange(candidate.ID, n.predecessor.ID, n.id) {
		n.setPredecessor(candidate)
	}
	return nil
}

// handlePredecessor answers with our predecessor.
func (n *Node) handlePredecessor(msg *Message) error {
	if msg.Sender == "" {
		return errors.New("predecessor request without sender")
	}
	n.send(msg.Sender, NewStabilize(n.predecessor))
	return nil
}

// handleStabilize processes our successor's answer to PREDECESSOR.
func (n *Node) handleStabilize(msg *Message) error {
	var args StabilizeArgs
	if err := msg.Decode(&args); err != nil {
		return err
	}
	if args.PredecessorAddr == "" {
		args.PredecessorAddr = msg.Sender
	}
	// an answer proves the joiner we admitted is active
	delete(n.admitted, msg.Sender)
	n.stabilize(args.PredecessorID, args.PredecessorAddr)
	return nil
}

// handleLookup resolves the successor of an id, answering directly when we
// know it and forwarding otherwise.
func (n *Node) handleLookup(msg *Message) error {
	var args LookupArgs
	if err := msg.Decode(&args); err != nil {
		return err
	}
	if args.From == "" {
		args.From = msg.Sender
	}

	self := n.id
	switch {
	case hash.Contains(n.predecessor.IDRef(), &self, &args.ID):
		n.send(args.From, NewLookupReply(args.ID, n.address))
	case hash.InRange(args.ID, n.id, n.successor.ID):
		n.send(args.From, NewLookupReply(args.ID, *n.successor))
	default:
		n.stats.forwarded.Add(1)
		n.send(n.nextHop(args.ID), NewLookup(args.ID, args.From))
	}
	return nil
}

// handleLookupReply stores a resolved finger.
func (n *Node) handleLookupReply(msg *Message) error {
	var args LookupReplyArgs
	if err := msg.Decode(&args); err != nil {
		return err
	}

	index, ok := n.fingers.IndexOf(args.ReqID)
	if !ok {
		n.logger.Debug().Uint64("req_id", args.ReqID).Msg("Ignoring reply for unknown finger")
		return nil
	}
	return n.fingers.Update(index, NodeAddress{ID: args.SuccessorID, Addr: args.SuccessorAddr})
}

// handlePut stores a key we own or routes the request towards its owner.
func (n *Node) handlePut(msg *Message) error {
	var args KeyArgs
	if err := msg.Decode(&args); err != nil {
		return err
	}
	if args.From == "" {
		args.From = msg.Sender
	}

	keyID := n.storage.HashKeyToID(args.Key)
	if !n.owns(keyID) {
		n.stats.forwarded.Add(1)
		n.send(n.nextHop(keyID), NewPut(args.Key, args.Value, args.From))
		return nil
	}

	err := n.storage.Put(context.Background(), args.Key, args.Value)
	switch {
	case err == nil:
		n.logger.Debug().Str("key", args.Key).Uint64("key_id", keyID).Msg("Stored key")
		n.send(args.From, NewAck(args.Key, nil))
	case errors.Is(err, pkg.ErrKeyExists):
		n.send(args.From, NewNack(args.Key))
	default:
		return errors.Wrapf(err, "store key %q", args.Key)
	}
	return nil
}

// handleGet looks up a key we own or routes the request towards its owner.
func (n *Node) handleGet(msg *Message) error {
	var args KeyArgs
	if err := msg.Decode(&args); err != nil {
		return err
	}
	if args.From == "" {
		args.From = msg.Sender
	}

	keyID := n.storage.HashKeyToID(args.Key)
	if !n.owns(keyID) {
		n.stats.forwarded.Add(1)
		n.send(n.nextHop(keyID), NewGet(args.Key, args.From))
		return nil
	}

	value, err := n.storage.Get(context.Background(), args.Key)
	switch {
	case err == nil:
		n.send(args.From, NewAck(args.Key, value))
	case errors.Is(err, pkg.ErrKeyNotFound):
		n.send(args.From, NewNack(args.Key))
	default:
		return errors.Wrapf(err, "load key %q", args.Key)
	}
	return nil
}

// handleKeyReply receives the owner's answer about a handed off key. An ACK
// to our PUT means the owner stored our copy. A NACK means the owner already
// held the key, so we ask for its value before dropping ours; the owner's
// copy wins and a differing value is counted as a conflict.
func (n *Node) handleKeyReply(msg *Message) error {
	var args KeyArgs
	if err := msg.Decode(&args); err != nil {
		return err
	}

	if args.Key == "" || !n.storage.Has(args.Key) || n.owns(n.storage.HashKeyToID(args.Key)) {
		delete(n.verifying, args.Key)
		n.logger.Debug().Str("method", msg.Method).Str("key", args.Key).Msg("Ignoring key reply")
		return nil
	}

	if msg.Method == MethodNack {
		if _, ok := n.verifying[args.Key]; ok {
			// a second NACK ends this check; the next handoff round starts over
			delete(n.verifying, args.Key)
			return nil
		}
		n.verifying[args.Key] = struct{}{}
		n.send(n.nextHop(n.storage.HashKeyToID(args.Key)), NewGet(args.Key, n.address.Addr))
		return nil
	}

	if _, hasValue := msg.Args["value"]; hasValue {
		local, err := n.storage.Get(context.Background(), args.Key)
		if err != nil {
			return errors.Wrapf(err, "load handed off key %q", args.Key)
		}
		if !bytes.Equal(local, args.Value) {
			n.stats.conflicts.Add(1)
			n.logger.Warn().Str("key", args.Key).Str("owner", msg.Sender).Msg("Owner holds a different value, dropping local copy")
		}
	}
	delete(n.verifying, args.Key)

	if err := n.storage.Delete(context.Background(), args.Key); err != nil {
		return errors.Wrapf(err, "drop handed off key %q", args.Key)
	}
	n.stats.handoffs.Add(1)
	n.logger.Debug().Str("key", args.Key).Str("owner", msg.Sender).Msg("Key handed off")
	return nil
}
