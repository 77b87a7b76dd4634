package transport

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/zde37/chordkv/internal/chord"
	"github.com/zde37/chordkv/pkg"
)

// getConnection returns a connection to the given address, creating one if needed.
func (t *GRPCTransport) getConnection(address string) (*grpc.ClientConn, error) {
	t.connMu.RLock()
	conn, exists := t.connections[address]
	t.connMu.RUnlock()

	if exists && conn.GetState() != connectivity.Shutdown {
		return conn, nil
	}

	// Need to create new connection
	t.connMu.Lock()
	defer t.connMu.Unlock()

	// Double-check after acquiring write lock
	conn, exists = t.connections[address]
	if exists && conn.GetState() != connectivity.Shutdown {
		return conn, nil
	}

	newConn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", address, err)
	}

	t.connections[address] = newConn
	t.logger.Debug().Str("address", address).Msg("Created new gRPC connection")

	return newConn, nil
}

// Send delivers msg to the transport listening on addr.
func (t *GRPCTransport) Send(addr string, msg *chord.Message) error {
	select {
	case <-t.closed:
		return pkg.ErrTransportClosed
	default:
	}

	data, err := Encode(stamp(msg, t.addr))
	if err != nil {
		return err
	}

	conn, err := t.getConnection(addr)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	if err := conn.Invoke(ctx, deliverMethod, wrapperspb.Bytes(data), new(emptypb.Empty)); err != nil {
		return fmt.Errorf("Deliver RPC to %s failed: %w", addr, err)
	}
	return nil
}

// closeConnections closes all pooled connections.
func (t *GRPCTransport) closeConnections() {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	for address, conn := range t.connections {
		if err := conn.Close(); err != nil {
			t.logger.Warn().Err(err).Str("address", address).Msg("Failed to close connection")
		}
	}
	t.connections = make(map[string]*grpc.ClientConn)
}
