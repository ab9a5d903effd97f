package server

import (
	"context"
	"net"
	"syscall"
)

// Listen opens a TCP listening socket on addr with the platform
// address-reuse option applied before bind, matching §4.G's
// "non-blocking listening socket bound... with address-reuse enabled".
func Listen(addr string) (net.Listener, error) {
	lc := net.ListenConfig{Control: controlFunc}
	return lc.Listen(context.Background(), "tcp", addr)
}

func controlFunc(network, address string, c syscall.RawConn) error {
	return platformControl(network, address, c)
}
