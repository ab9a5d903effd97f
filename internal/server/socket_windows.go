//go:build windows

package server

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/windows"
)

// setReuseAddr sets SO_REUSEADDR on the listening socket. Windows
// SO_REUSEADDR semantics differ from POSIX (it permits concurrent binds
// to the same port rather than just reuse of a TIME_WAIT socket), but
// the restart-friendliness this server wants is still satisfied.
func setReuseAddr(fd uintptr) error {
	if err := windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("set SO_REUSEADDR: %w", err)
	}
	return nil
}

func platformControl(_, _ string, c syscall.RawConn) error {
	var sockoptErr error
	if err := c.Control(func(fd uintptr) { sockoptErr = setReuseAddr(fd) }); err != nil {
		return fmt.Errorf("raw conn control: %w", err)
	}
	return sockoptErr
}
