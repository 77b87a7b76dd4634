// Package transport carries chord messages between nodes as msgpack
// datagrams over UDP or a single-method gRPC service.
package transport

import (
	"fmt"

	"github.com/zde37/chordkv/internal/chord"
	"github.com/zde37/chordkv/internal/config"
	"github.com/zde37/chordkv/pkg"
)

// New opens the transport selected by cfg.Transport on listenAddr.
func New(cfg *config.Config, listenAddr string, logger *pkg.Logger) (chord.Transport, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	var (
		t   chord.Transport
		err error
	)
	switch cfg.Transport {
	case config.TransportUDP:
		t, err = NewUDPTransport(listenAddr, cfg.MaxDatagramSize, logger)
	case config.TransportGRPC:
		t, err = NewGRPCTransport(listenAddr, cfg.RPCTimeout, logger)
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}
