package transport

import (
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/zde37/chordkv/internal/chord"
	"github.com/zde37/chordkv/pkg"
)

// Compile-time check to ensure UDPTransport implements chord.Transport
var _ chord.Transport = (*UDPTransport)(nil)

// UDPTransport carries one message per UDP datagram. Delivery is best
// effort; the sender of a received message is the datagram source address.
type UDPTransport struct {
	conn    *net.UDPConn
	addr    string
	maxSize int
	buf     []byte // owned by the Recv caller
	logger  *pkg.Logger
	closed  atomic.Bool
}

// NewUDPTransport listens on listenAddr ("host:port"; port 0 picks a free one).
func NewUDPTransport(listenAddr string, maxDatagramSize int, logger *pkg.Logger) (*UDPTransport, error) {
	if logger == nil {
		logger = pkg.NewNop()
	}
	if maxDatagramSize <= 0 {
		maxDatagramSize = 64 * 1024
	}

	host, _, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid listen address %q: %w", listenAddr, err)
	}
	udpAddr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", listenAddr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	port := conn.LocalAddr().(*net.UDPAddr).Port
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	t := &UDPTransport{
		conn:    conn,
		addr:    addr,
		maxSize: maxDatagramSize,
		buf:     make([]byte, maxDatagramSize),
		logger:  logger.WithFields(pkg.Fields{"component": "udp_transport"}),
	}
	t.logger.Info().Str("address", addr).Msg("UDP transport listening")
	return t, nil
}

// Addr returns the advertised "host:port".
func (t *UDPTransport) Addr() string {
	return t.addr
}

// Send encodes msg and writes it as a single datagram.
func (t *UDPTransport) Send(addr string, msg *chord.Message) error {
	if t.closed.Load() {
		return pkg.ErrTransportClosed
	}

	data, err := Encode(stamp(msg, t.addr))
	if err != nil {
		return err
	}
	if len(data) > t.maxSize {
		return fmt.Errorf("datagram of %d bytes exceeds limit of %d", len(data), t.maxSize)
	}

	dst, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", addr, err)
	}
	if _, err := t.conn.WriteToUDP(data, dst); err != nil {
		return errors.Wrapf(err, "send %s to %s", msg.Method, addr)
	}
	return nil
}

// Recv waits up to timeout for the next datagram.
func (t *UDPTransport) Recv(timeout time.Duration) (*chord.Message, error) {
	if t.closed.Load() {
		return nil, pkg.ErrTransportClosed
	}

	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, t.readError(err)
	}

	n, src, err := t.conn.ReadFromUDP(t.buf)
	if err != nil {
		return nil, t.readError(err)
	}

	msg, err := Decode(t.buf[:n])
	if err != nil {
		if errors.Is(err, pkg.ErrMalformedPayload) {
			t.logger.Debug().Err(err).Str("from", src.String()).Msg("Malformed datagram")
		}
		return nil, err
	}
	msg.Sender = src.String()
	return msg, nil
}

func (t *UDPTransport) readError(err error) error {
	var netErr net.Error
	switch {
	case t.closed.Load() || errors.Is(err, net.ErrClosed):
		return pkg.ErrTransportClosed
	case errors.As(err, &netErr) && netErr.Timeout():
		return pkg.ErrTimeout
	default:
		return errors.Wrap(err, "udp read")
	}
}

// Close releases the socket. Pending and future Recv calls return
// pkg.ErrTransportClosed.
func (t *UDPTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.logger.Info().Msg("UDP transport closed")
	return t.conn.Close()
}
