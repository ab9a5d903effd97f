//go:build !unix

package server

import (
	"context"
	"fmt"
	"runtime"
)

// Run is unavailable outside unix-family platforms: the event loop is
// built directly on poll(2) semantics (golang.org/x/sys/unix.Poll),
// which has no equivalent wired up here, the same way the original
// reference server (built on poll(2), fcntl, and accept(2) directly)
// only ever targeted POSIX systems.
func (s *Server) Run(ctx context.Context) error {
	return fmt.Errorf("server: event loop not supported on GOOS=%s", runtime.GOOS)
}
