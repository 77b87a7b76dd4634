package chord

import "time"

// Transport moves messages between nodes. Delivery is best effort: a send
// may be lost without error, and nothing is retried.
type Transport interface {
	// Addr returns the local endpoint ("host:port") peers reply to.
	Addr() string

	// Send delivers msg to addr. The transport fills in the sender.
	Send(addr string, msg *Message) error

	// Recv blocks for at most timeout and returns the next inbound message.
	// It returns pkg.ErrTimeout when nothing arrived in time,
	// pkg.ErrMalformedPayload for undecodable input and
	// pkg.ErrTransportClosed after Close.
	Recv(timeout time.Duration) (*Message, error)

	// Close releases the endpoint.
	Close() error
}
