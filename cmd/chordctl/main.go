package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"

	"github.com/zde37/chordkv/internal/client"
	"github.com/zde37/chordkv/internal/config"
	"github.com/zde37/chordkv/internal/transport"
	"github.com/zde37/chordkv/pkg"
)

const usage = `Usage: chordctl [flags] <command> <key> [value]

Commands:
  put <key> <value>   store value under key (fails if the key exists)
  get <key>           print the value stored under key

Flags:
`

func main() {
	defaults := config.DefaultConfig()

	node := flag.String("node", defaults.Address(), "Address (host:port) of any node in the ring")
	host := flag.String("host", defaults.Host, "Local address replies are sent to")
	transportKind := flag.String("transport", defaults.Transport, "Transport (udp, grpc)")
	timeout := flag.Duration("timeout", defaults.ClientTimeout, "How long to wait for the key's owner to answer")
	logLevel := flag.String("log-level", "warn", "Log level (trace, debug, info, warn, error)")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	loggerConfig := pkg.DefaultConfig()
	loggerConfig.Level = *logLevel
	loggerConfig.Output = pkg.OutputStderr

	logger, err := pkg.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg := defaults
	cfg.Transport = *transportKind
	cfg.ClientTimeout = *timeout

	code := run(cfg, *node, *host, flag.Args(), logger)
	logger.Close()
	os.Exit(code)
}

func run(cfg *config.Config, node, host string, args []string, logger *pkg.Logger) int {
	if len(args) < 2 {
		flag.Usage()
		return 2
	}

	tr, err := transport.New(cfg, net.JoinHostPort(host, "0"), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open transport: %v\n", err)
		return 1
	}

	c, err := client.New(tr, node, cfg.ClientTimeout, logger)
	if err != nil {
		tr.Close()
		fmt.Fprintf(os.Stderr, "Failed to create client: %v\n", err)
		return 1
	}
	defer c.Close()

	ctx := context.Background()
	key := args[1]

	switch args[0] {
	case "put":
		if len(args) != 3 {
			flag.Usage()
			return 2
		}
		if err := c.Put(ctx, key, []byte(args[2])); err != nil {
			return report(key, err)
		}
		fmt.Println("OK")

	case "get":
		if len(args) != 2 {
			flag.Usage()
			return 2
		}
		value, err := c.Get(ctx, key)
		if err != nil {
			return report(key, err)
		}
		fmt.Println(string(value))

	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", args[0])
		flag.Usage()
		return 2
	}
	return 0
}

func report(key string, err error) int {
	switch {
	case errors.Is(err, pkg.ErrKeyExists):
		fmt.Fprintf(os.Stderr, "Key %q already exists\n", key)
	case errors.Is(err, pkg.ErrKeyNotFound):
		fmt.Fprintf(os.Stderr, "Key %q not found\n", key)
	case errors.Is(err, pkg.ErrTimeout):
		fmt.Fprintln(os.Stderr, "No answer from the ring before the timeout")
	default:
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
	}
	return 1
}
