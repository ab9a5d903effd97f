//go:build unix

package server

import (
	"bufio"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/miniredis-io/miniredis/internal/clock"
	"github.com/miniredis-io/miniredis/internal/keyspace"
)

func startTestServer(t *testing.T) (addr string, shutdown func()) {
	t.Helper()

	ln, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	clk := clock.NewFake(0)
	store := keyspace.New(clk)
	srv := New(ln, store, WithClock(clk))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Run(ctx)
		close(done)
	}()

	return ln.Addr().String(), func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("server did not shut down in time")
		}
	}
}

func TestServerRespondsToPing(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	c, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	if _, err := c.Write([]byte("*1\r\n$4\r\nPING\r\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil {
		t.Fatalf("ReadString() error = %v", err)
	}
	if line != "+PONG\r\n" {
		t.Fatalf("response = %q; want +PONG\\r\\n", line)
	}
}

func TestServerRoundTripsSetGet(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	c, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	req := "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n" + "*2\r\n$3\r\nGET\r\n$1\r\nk\r\n"
	if _, err := c.Write([]byte(req)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	r := bufio.NewReader(c)

	setReply, err := r.ReadString('\n')
	if err != nil || setReply != "+OK\r\n" {
		t.Fatalf("SET reply = %q, err = %v; want +OK\\r\\n", setReply, err)
	}

	getHeader, err := r.ReadString('\n')
	if err != nil || getHeader != "$1\r\n" {
		t.Fatalf("GET header = %q, err = %v; want $1\\r\\n", getHeader, err)
	}
	getBody, err := r.ReadString('\n')
	if err != nil || getBody != "v\r\n" {
		t.Fatalf("GET body = %q, err = %v; want v\\r\\n", getBody, err)
	}
}

func TestServerAcceptsBurstOfConnections(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	const n = 5
	conns := make([]net.Conn, n)
	for i := 0; i < n; i++ {
		c, err := net.DialTimeout("tcp", addr, time.Second)
		if err != nil {
			t.Fatalf("Dial() #%d error = %v", i, err)
		}
		conns[i] = c
		defer c.Close()
	}

	for i, c := range conns {
		if _, err := c.Write([]byte("*1\r\n$4\r\nPING\r\n")); err != nil {
			t.Fatalf("Write() #%d error = %v", i, err)
		}
	}
	for i, c := range conns {
		c.SetReadDeadline(time.Now().Add(2 * time.Second))
		line, err := bufio.NewReader(c).ReadString('\n')
		if err != nil || line != "+PONG\r\n" {
			t.Fatalf("connection #%d reply = %q, err = %v; want +PONG\\r\\n", i, line, err)
		}
	}
}

func TestServerClosesConnectionOnMalformedFrame(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	c, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	if _, err := c.Write([]byte("!not-resp\r\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	r := bufio.NewReader(c)
	line, err := r.ReadString('\n')
	if err != nil || line != "-ERR Protocol error\r\n" {
		t.Fatalf("reply = %q, err = %v; want -ERR Protocol error\\r\\n", line, err)
	}
	if rest, err := r.ReadString('\n'); err != io.EOF {
		t.Fatalf("read after protocol error = %q, err = %v; want io.EOF (connection closed)", rest, err)
	}
}
