// mini-redis is a minimal in-memory key/value server speaking a
// line-oriented, RESP-like protocol.
//
// Usage:
//
//	mini-redis --port 6379
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/miniredis-io/miniredis/internal/clock"
	"github.com/miniredis-io/miniredis/internal/keyspace"
	"github.com/miniredis-io/miniredis/internal/server"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	logger := log.New(os.Stderr, "", log.LstdFlags)

	port, err := parseFlags(args, logger)
	if err != nil {
		return 1
	}

	addr := fmt.Sprintf(":%d", port)
	listener, err := server.Listen(addr)
	if err != nil {
		logger.Printf("mini-redis: failed to listen on %s: %v", addr, err)
		return 1
	}

	store := keyspace.New(clock.NewSystem())
	srv := server.New(listener, store, server.WithLogger(logger))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Printf("mini-redis: listening on %s", srv.Addr())
	if err := srv.Run(ctx); err != nil {
		logger.Printf("mini-redis: server stopped: %v", err)
		return 1
	}

	logger.Printf("mini-redis: shut down cleanly")
	return 0
}

// parseFlags reads --port, defaulting to 6379. Unknown flags are
// logged and ignored rather than treated as a startup error: this
// server has exactly one flag worth naming, and a future caller
// passing through an unrelated flag shouldn't be refused outright.
// Parsing stops at the first unknown flag, so flags after it keep
// their defaults.
func parseFlags(args []string, logger *log.Logger) (int, error) {
	fs := flag.NewFlagSet("mini-redis", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	port := fs.Int("port", 6379, "TCP port to listen on")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0, err
		}
		logger.Printf("mini-redis: ignoring unrecognized flags: %v", err)
		return *port, nil
	}

	return *port, nil
}
