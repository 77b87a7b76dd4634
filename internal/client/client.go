// Package client issues PUT and GET requests into a Chord ring through any
// node and waits for the owner's ACK or NACK.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/zde37/chordkv/internal/chord"
	"github.com/zde37/chordkv/pkg"
)

// pollInterval bounds a single receive so context cancellation is noticed.
const pollInterval = 100 * time.Millisecond

// Client talks to the ring through one entry node. Replies come straight
// from the key's owner to the client's own transport address.
type Client struct {
	transport chord.Transport
	node      string
	timeout   time.Duration
	logger    *pkg.Logger

	mu sync.Mutex // one outstanding request at a time
}

// New creates a client that sends through transport to the node at nodeAddr.
func New(transport chord.Transport, nodeAddr string, timeout time.Duration, logger *pkg.Logger) (*Client, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}
	if nodeAddr == "" {
		return nil, fmt.Errorf("node address cannot be empty")
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %s", timeout)
	}
	if logger == nil {
		logger = pkg.NewNop()
	}

	return &Client{
		transport: transport,
		node:      nodeAddr,
		timeout:   timeout,
		logger:    logger.WithFields(pkg.Fields{"component": "client", "node": nodeAddr}),
	}, nil
}

// Put stores value under key. It returns pkg.ErrKeyExists when the key is
// already stored and pkg.ErrTimeout when no answer arrives in time.
func (c *Client) Put(ctx context.Context, key string, value []byte) error {
	reply, err := c.roundTrip(ctx, chord.NewPut(key, value, ""), key)
	if err != nil {
		return err
	}
	if reply.Method == chord.MethodNack {
		return pkg.ErrKeyExists
	}
	c.logger.Debug().Str("key", key).Str("owner", reply.Sender).Msg("Key stored")
	return nil
}

// Get returns the value stored under key, or pkg.ErrKeyNotFound.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	reply, err := c.roundTrip(ctx, chord.NewGet(key, ""), key)
	if err != nil {
		return nil, err
	}
	if reply.Method == chord.MethodNack {
		return nil, pkg.ErrKeyNotFound
	}

	var args chord.KeyArgs
	if err := reply.Decode(&args); err != nil {
		return nil, err
	}
	if args.Value == nil {
		args.Value = []byte{}
	}
	return args.Value, nil
}

// Close releases the client's transport.
func (c *Client) Close() error {
	return c.transport.Close()
}

// roundTrip sends msg and waits for the ACK or NACK naming key. Replies to
// earlier, abandoned requests are skipped.
func (c *Client) roundTrip(ctx context.Context, msg *chord.Message, key string) (*chord.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.transport.Send(c.node, msg); err != nil {
		return nil, errors.Wrapf(err, "send %s", msg.Method)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	for {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, pkg.ErrTimeout
			}
			return nil, pkg.ErrContextCanceled
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, pkg.ErrTimeout
		}

		reply, err := c.transport.Recv(min(remaining, pollInterval))
		switch {
		case err == nil:
		case errors.Is(err, pkg.ErrTimeout), errors.Is(err, pkg.ErrMalformedPayload):
			continue
		default:
			return nil, err
		}

		if reply.Method != chord.MethodAck && reply.Method != chord.MethodNack {
			c.logger.Debug().Str("method", reply.Method).Str("sender", reply.Sender).Msg("Ignoring unexpected message")
			continue
		}

		var args chord.KeyArgs
		if err := reply.Decode(&args); err != nil || args.Key != key {
			c.logger.Debug().Str("key", args.Key).Msg("Ignoring stale reply")
			continue
		}
		return reply, nil
	}
}
