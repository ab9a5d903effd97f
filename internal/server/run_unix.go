//go:build unix

package server

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/miniredis-io/miniredis/internal/command"
	"github.com/miniredis-io/miniredis/internal/conn"
	"github.com/miniredis-io/miniredis/internal/resp"
)

const readChunkSize = 4096

// Run drives the single-threaded event loop until ctx is canceled or an
// unrecoverable listener error occurs. Each iteration builds one pollfd
// set covering the listening socket and every active connection, blocks
// in a single poll(2) call for up to pollTimeoutMillis, then services
// whatever came back ready: new connections are accepted, readable
// connections are read and dispatched, writable ones are flushed, and
// hung-up or errored ones are closed.
func (s *Server) Run(ctx context.Context) error {
	listenerFD, err := rawFD(s.listener)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return nil
		default:
		}

		fds := s.buildPollSet(listenerFD)
		n, err := unix.Poll(fds, pollTimeoutMillis)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			s.closeAll()
			return err
		}
		if n == 0 {
			continue // timeout, loop back to check ctx
		}

		if fds[0].Revents&unix.POLLIN != 0 {
			s.acceptPending(listenerFD)
		}
		s.serviceSlots(fds[1:])
	}
}

// buildPollSet assembles the pollfd slice for one iteration: index 0 is
// always the listening socket, followed by one entry per active slot in
// table order. A slot only registers POLLOUT when it has queued output,
// mirroring the reference server's "only ask for what you'd act on".
func (s *Server) buildPollSet(listenerFD int) []unix.PollFd {
	fds := make([]unix.PollFd, 1, 1+maxConnections)
	fds[0] = unix.PollFd{Fd: int32(listenerFD), Events: unix.POLLIN}

	for _, slot := range s.slots {
		if slot == nil {
			continue
		}
		events := int16(unix.POLLIN)
		if slot.c.HasPendingWrite() {
			events |= unix.POLLOUT
		}
		fds = append(fds, unix.PollFd{Fd: int32(slot.fd), Events: events})
	}
	return fds
}

// serviceSlots walks the readiness results for every active slot (the
// same table order buildPollSet used) and acts on each one.
func (s *Server) serviceSlots(fds []unix.PollFd) {
	i := 0
	for idx, slot := range s.slots {
		if slot == nil {
			continue
		}
		pf := fds[i]
		i++

		if pf.Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
			s.closeSlot(idx)
			continue
		}
		if pf.Revents&unix.POLLIN != 0 {
			if !s.handleReadable(idx) {
				continue // slot was closed
			}
		}
		if pf.Revents&unix.POLLOUT != 0 {
			s.handleWritable(idx)
		}
	}
}

// maxAcceptsPerIteration bounds how many connections acceptPending will
// drain from the listen backlog in a single poll iteration, so a burst
// of incoming connections cannot starve already-open slots of service.
const maxAcceptsPerIteration = 16

// acceptPending drains the listen backlog until it would block, the
// iteration's accept budget is spent, or an accept fails. Connections
// accepted while the table is full are closed and count against the
// budget; they do not end the drain. net.Listener.Accept has no non-blocking peek, so readiness for each
// additional accept is confirmed with a zero-timeout poll on the
// listener fd before calling it again.
func (s *Server) acceptPending(listenerFD int) {
	for i := 0; i < maxAcceptsPerIteration; i++ {
		if !s.acceptOne() {
			return
		}

		peek := []unix.PollFd{{Fd: int32(listenerFD), Events: unix.POLLIN}}
		n, err := unix.Poll(peek, 0)
		if err != nil || n == 0 || peek[0].Revents&unix.POLLIN == 0 {
			return
		}
	}
}

// acceptOne accepts a single pending connection, reporting whether a
// connection was actually accepted. If the slot table is full, the
// connection is accepted and immediately closed rather than left to
// queue in the kernel backlog indefinitely.
func (s *Server) acceptOne() bool {
	c, err := s.listener.Accept()
	if err != nil {
		if !errors.Is(err, net.ErrClosed) {
			s.logger.Printf("server: accept failed: %v", err)
		}
		return false
	}

	idx := s.freeSlot()
	if idx == -1 {
		s.logger.Printf("server: connection table full, rejecting %s", c.RemoteAddr())
		c.Close()
		return true
	}

	fd, err := rawFD(c)
	if err != nil {
		s.logger.Printf("server: could not obtain fd for %s: %v", c.RemoteAddr(), err)
		c.Close()
		return true
	}

	s.slots[idx] = &clientSlot{c: conn.New(c), fd: fd}
	return true
}

func (s *Server) freeSlot() int {
	for i, slot := range s.slots {
		if slot == nil {
			return i
		}
	}
	return -1
}

// handleReadable reads one chunk from the slot's socket and runs every
// complete request currently buffered through the command dispatcher.
// It reports false if the connection was closed in the process (EOF,
// read error, or a malformed frame that forces a hangup).
func (s *Server) handleReadable(idx int) bool {
	slot := s.slots[idx]
	bufPtr := getReadBuffer()
	defer putReadBuffer(bufPtr)
	buf := *bufPtr

	n, err := slot.c.Socket.Read(buf)
	if n > 0 {
		slot.c.AppendRead(buf[:n])
	}
	if err != nil {
		if err != io.EOF {
			s.logger.Printf("server: read error on %s: %v", slot.c.Socket.RemoteAddr(), err)
		}
		s.closeSlot(idx)
		return false
	}

	for {
		req, consumed, perr := resp.Parse(slot.c.ReadBuf())
		if perr == resp.ErrNeedMore {
			break
		}
		if perr != nil {
			s.logger.Printf("server: malformed frame from %s: %v", slot.c.Socket.RemoteAddr(), perr)
			resp.WriteError(slot.c, "ERR Protocol error")
			s.flushBestEffort(slot)
			s.closeSlot(idx)
			return false
		}

		slot.c.ConsumeRead(consumed)
		command.Dispatch(req, s.store, s.clock, slot.c)
	}

	return true
}

// handleWritable flushes as much of the slot's pending output as a
// single Write call accepts, compacting the buffer by what was sent.
func (s *Server) handleWritable(idx int) {
	slot := s.slots[idx]
	if !slot.c.HasPendingWrite() {
		return
	}

	n, err := slot.c.Socket.Write(slot.c.WriteBuf())
	if n > 0 {
		slot.c.ConsumeWrite(n)
	}
	if err != nil {
		s.logger.Printf("server: write error on %s: %v", slot.c.Socket.RemoteAddr(), err)
		s.closeSlot(idx)
	}
}

// flushBestEffort attempts one Write of a protocol-error reply before
// the connection is torn down; a failure here is not itself logged
// since the connection is being closed regardless.
func (s *Server) flushBestEffort(slot *clientSlot) {
	if slot.c.HasPendingWrite() {
		n, _ := slot.c.Socket.Write(slot.c.WriteBuf())
		if n > 0 {
			slot.c.ConsumeWrite(n)
		}
	}
}

func (s *Server) closeSlot(idx int) {
	slot := s.slots[idx]
	if slot == nil {
		return
	}
	slot.c.Close()
	s.slots[idx] = nil
}

func (s *Server) closeAll() {
	for i := range s.slots {
		s.closeSlot(i)
	}
	s.listener.Close()
}

func rawFD(c interface{ SyscallConn() (syscall.RawConn, error) }) (int, error) {
	raw, err := c.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd int
	ctrlErr := raw.Control(func(p uintptr) { fd = int(p) })
	if ctrlErr != nil {
		return 0, ctrlErr
	}
	return fd, nil
}
