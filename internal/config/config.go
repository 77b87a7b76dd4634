package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/zde37/chordkv/pkg/hash"
)

// Transport kinds.
const (
	TransportUDP  = "udp"
	TransportGRPC = "grpc"
)

// Config holds all configuration for a Chord node
type Config struct {
	// Node identification. NodeID is an optional decimal identifier; when
	// empty the id is the ring hash of the node address.
	NodeID string
	Host   string
	Port   int

	// HTTP API (0 disables it)
	HTTPPort int

	// Bootstrap peer ("host:port"); empty starts a new ring
	Bootstrap string

	// Chord parameters
	M             int           // Identifier space size in bits (ring of 2^M ids)
	Timeout       time.Duration // Receive timeout; every expiry is one stabilization tick
	HashAlgorithm string        // fnv1a, sha256, xxhash

	// Transport
	Transport       string        // udp, grpc
	RPCTimeout      time.Duration // Per-datagram send timeout for grpc
	MaxDatagramSize int           // Largest payload accepted by udp
	ClientTimeout   time.Duration // How long a client waits for ACK/NACK

	// Logging
	LogLevel  string // trace, debug, info, warn, error
	LogFormat string // json, console
	LogFile   string // optional rotating log file
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Host:            "127.0.0.1",
		Port:            5000,
		HTTPPort:        0,
		M:               hash.DefaultM, // 2^10 address space
		Timeout:         3 * time.Second,
		HashAlgorithm:   hash.AlgorithmFNV1a,
		Transport:       TransportUDP,
		RPCTimeout:      2 * time.Second,
		MaxDatagramSize: 64 * 1024,
		ClientTimeout:   5 * time.Second,
		LogLevel:        "info",
		LogFormat:       "console",
	}
}

// Address returns the node's listen address in "host:port" format.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ParseNodeID returns the configured node id, or ok=false when the id
// should be derived from the address.
func (c *Config) ParseNodeID() (id uint64, ok bool, err error) {
	if c.NodeID == "" {
		return 0, false, nil
	}
	id, err = strconv.ParseUint(c.NodeID, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid node id %q: %w", c.NodeID, err)
	}
	if c.M > 0 && c.M < 64 && id >= uint64(1)<<uint(c.M) {
		return 0, false, fmt.Errorf("node id %d outside ring of 2^%d", id, c.M)
	}
	return id, true, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.M <= 0 || c.M > hash.MaxM {
		return fmt.Errorf("M must be between 1 and %d, got %d", hash.MaxM, c.M)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	switch c.HashAlgorithm {
	case hash.AlgorithmFNV1a, hash.AlgorithmSHA256, hash.AlgorithmXXHash:
	default:
		return fmt.Errorf("unknown hash algorithm %q", c.HashAlgorithm)
	}
	switch c.Transport {
	case TransportUDP, TransportGRPC:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.Bootstrap != "" {
		if _, _, err := net.SplitHostPort(c.Bootstrap); err != nil {
			return fmt.Errorf("invalid bootstrap address %q: %w", c.Bootstrap, err)
		}
	}
	if _, _, err := c.ParseNodeID(); err != nil {
		return err
	}
	return nil
}
