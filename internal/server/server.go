// Package server implements the single-threaded, non-blocking TCP event
// loop: it multiplexes readiness across the listening socket and every
// client connection with a single poll(2)-style call per iteration,
// never spawning a goroutine per connection.
package server

import (
	"log"
	"net"

	"github.com/miniredis-io/miniredis/internal/clock"
	"github.com/miniredis-io/miniredis/internal/conn"
	"github.com/miniredis-io/miniredis/internal/keyspace"
)

// maxConnections is the fixed size of the connection slot table. Once
// full, newly accepted connections are closed immediately rather than
// queued, matching the bounded admission control the reference
// implementation uses in place of an unbounded fd table.
const maxConnections = 1024

// pollTimeoutMillis is how long a single poll iteration waits for
// readiness before looping again to check the shutdown flag.
const pollTimeoutMillis = 1000

// Server owns the listening socket, the keyspace every connection
// shares, and the fixed connection slot table the event loop scans
// each iteration.
type Server struct {
	listener net.Listener
	store    *keyspace.Table
	clock    clock.Clock
	logger   *log.Logger

	slots [maxConnections]*clientSlot
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithLogger overrides the Server's diagnostic logger. The default
// discards nothing special; it writes to the standard logger's
// destination (os.Stderr) with no prefix.
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithClock overrides the Server's time source. Production callers
// should not need this; it exists so tests can drive TTL behavior
// through the full accept/read/dispatch/write path with a clock.Fake.
func WithClock(clk clock.Clock) Option {
	return func(s *Server) {
		s.clock = clk
	}
}

// New constructs a Server bound to an already-listening socket. Callers
// typically obtain listener via Listen, which applies the platform
// address-reuse socket option before binding.
func New(listener net.Listener, store *keyspace.Table, opts ...Option) *Server {
	s := &Server{
		listener: listener,
		store:    store,
		clock:    clock.NewSystem(),
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Addr returns the address the Server is listening on.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// clientSlot is one entry in the connection table: the buffered
// connection state plus the raw file descriptor the poller multiplexes
// on, captured once at accept time so the poll loop never has to
// re-derive it.
type clientSlot struct {
	c  *conn.Conn
	fd int
}
