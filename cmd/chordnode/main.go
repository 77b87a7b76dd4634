package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/zde37/chordkv/internal/api"
	"github.com/zde37/chordkv/internal/chord"
	"github.com/zde37/chordkv/internal/client"
	"github.com/zde37/chordkv/internal/config"
	"github.com/zde37/chordkv/internal/transport"
	"github.com/zde37/chordkv/pkg"
)

func main() {
	defaults := config.DefaultConfig()

	// Parse command-line flags
	nodeID := flag.String("id", "", "Node id in [0, 2^m); derived from the address when empty")
	host := flag.String("host", defaults.Host, "Host address to bind to")
	port := flag.Int("port", defaults.Port, "Port for the Chord transport")
	httpPort := flag.Int("http-port", defaults.HTTPPort, "Port for HTTP API server (0 disables it)")
	bootstrap := flag.String("bootstrap", "", "Bootstrap node address (host:port) to join existing ring")
	m := flag.Int("m", defaults.M, "Identifier space size in bits")
	timeout := flag.Duration("timeout", defaults.Timeout, "Receive timeout; each expiry runs one stabilization round")
	hashAlg := flag.String("hash", defaults.HashAlgorithm, "Ring hash (fnv1a, sha256, xxhash)")
	transportKind := flag.String("transport", defaults.Transport, "Transport (udp, grpc)")
	rpcTimeout := flag.Duration("rpc-timeout", defaults.RPCTimeout, "Per-datagram send timeout for grpc")
	clientTimeout := flag.Duration("client-timeout", defaults.ClientTimeout, "How long HTTP key requests wait for the owner")
	logLevel := flag.String("log-level", defaults.LogLevel, "Log level (trace, debug, info, warn, error)")
	logFormat := flag.String("log-format", defaults.LogFormat, "Log format (json, console)")
	logFile := flag.String("log-file", "", "Also write logs to this rotating file")
	flag.Parse()

	// Create configuration
	cfg := defaults
	cfg.NodeID = *nodeID
	cfg.Host = *host
	cfg.Port = *port
	cfg.HTTPPort = *httpPort
	cfg.Bootstrap = *bootstrap
	cfg.M = *m
	cfg.Timeout = *timeout
	cfg.HashAlgorithm = *hashAlg
	cfg.Transport = *transportKind
	cfg.RPCTimeout = *rpcTimeout
	cfg.ClientTimeout = *clientTimeout
	cfg.LogLevel = *logLevel
	cfg.LogFormat = *logFormat
	cfg.LogFile = *logFile

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	loggerConfig := pkg.DefaultConfig()
	loggerConfig.Level = cfg.LogLevel
	loggerConfig.Format = cfg.LogFormat
	if cfg.LogFile != "" {
		loggerConfig.File.Enable = true
		loggerConfig.File.Path = cfg.LogFile
	}

	logger, err := pkg.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()
	pkg.SetGlobal(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("Node failed")
		logger.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *pkg.Logger) error {
	logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Int("http_port", cfg.HTTPPort).
		Str("transport", cfg.Transport).
		Str("bootstrap", cfg.Bootstrap).
		Msg("Starting chordkv node")

	tr, err := transport.New(cfg, cfg.Address(), logger)
	if err != nil {
		return fmt.Errorf("failed to open transport: %w", err)
	}
	defer tr.Close()

	node, err := chord.NewNode(cfg, tr, logger)
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}
	defer node.Close()

	if cfg.HTTPPort > 0 {
		httpServer, keys, err := startAPI(cfg, node, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := httpServer.Stop(); err != nil {
				logger.Error().Err(err).Msg("Error stopping HTTP server")
			}
			keys.Close()
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- node.Run(ctx)
	}()

	logger.Info().
		Uint64("node_id", node.ID()).
		Str("address", node.Address().Addr).
		Str("state", node.State().String()).
		Msg("chordkv node is ready")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
	case err := <-done:
		return err
	}

	node.Stop()
	cancel()
	tr.Close() // unblocks a pending receive
	if err := <-done; err != nil {
		return err
	}

	logger.Info().Msg("chordkv node shutdown complete")
	return nil
}

// startAPI serves the HTTP API; key requests go through a client with its
// own transport so replies from owners do not land in the node's inbox.
func startAPI(cfg *config.Config, node *chord.Node, logger *pkg.Logger) (*api.Server, *client.Client, error) {
	clientTransport, err := transport.New(cfg, net.JoinHostPort(cfg.Host, "0"), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open client transport: %w", err)
	}

	keys, err := client.New(clientTransport, node.Address().Addr, cfg.ClientTimeout, logger)
	if err != nil {
		clientTransport.Close()
		return nil, nil, fmt.Errorf("failed to create client: %w", err)
	}

	httpServer, err := api.NewServer(&api.Config{HTTPPort: cfg.HTTPPort}, node, keys, logger)
	if err != nil {
		keys.Close()
		return nil, nil, fmt.Errorf("failed to create HTTP API server: %w", err)
	}
	node.SetBroadcaster(httpServer.Hub())

	if err := httpServer.Start(); err != nil {
		keys.Close()
		return nil, nil, fmt.Errorf("failed to start HTTP API server: %w", err)
	}
	return httpServer, keys, nil
}
