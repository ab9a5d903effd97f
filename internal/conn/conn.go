// Package conn holds per-connection state: the socket, and the read and
// write buffers that sit between the socket and the wire codec.
package conn

import "net"

const minBufferSize = 1024 // 1 KiB floor for both the read and write buffers

// Conn is one client connection's mutable state. It is owned exclusively
// by its slot in the server's connection table; nothing outside the
// event loop touches it.
type Conn struct {
	Socket net.Conn

	read     []byte // bytes received but not yet consumed by the parser
	readLen  int
	write    []byte // bytes queued but not yet sent
	writeLen int
}

// New wraps an accepted socket in a fresh Conn with empty buffers.
func New(socket net.Conn) *Conn {
	return &Conn{Socket: socket}
}

// ReadBuf returns the unconsumed prefix of the read buffer.
func (c *Conn) ReadBuf() []byte {
	return c.read[:c.readLen]
}

// AppendRead grows the read buffer as needed and appends p, as received
// from a single recv call.
func (c *Conn) AppendRead(p []byte) {
	c.read = growAndAppend(c.read, c.readLen, p)
	c.readLen += len(p)
}

// ConsumeRead drops the first n bytes of the read buffer, left-shifting
// the remainder so the buffer holds only unconsumed residue.
func (c *Conn) ConsumeRead(n int) {
	remaining := c.readLen - n
	if remaining > 0 {
		copy(c.read, c.read[n:c.readLen])
	}
	c.readLen = remaining
}

// Append queues p onto the write buffer. It implements resp.Writer so
// the serializer can write directly into a connection's outbound queue.
func (c *Conn) Append(p []byte) {
	c.write = growAndAppend(c.write, c.writeLen, p)
	c.writeLen += len(p)
}

// WriteBuf returns the unflushed prefix of the write buffer.
func (c *Conn) WriteBuf() []byte {
	return c.write[:c.writeLen]
}

// HasPendingWrite reports whether any bytes are queued to send.
func (c *Conn) HasPendingWrite() bool {
	return c.writeLen > 0
}

// ConsumeWrite drops the first n bytes of the write buffer, after a
// successful send of that many bytes.
func (c *Conn) ConsumeWrite(n int) {
	remaining := c.writeLen - n
	if remaining > 0 {
		copy(c.write, c.write[n:c.writeLen])
	}
	c.writeLen = remaining
}

// Close releases the socket and buffers. The Conn is left usable (but
// disconnected); the server drops the slot reference entirely rather
// than reusing this value.
func (c *Conn) Close() error {
	c.read = nil
	c.readLen = 0
	c.write = nil
	c.writeLen = 0
	if c.Socket == nil {
		return nil
	}
	err := c.Socket.Close()
	c.Socket = nil
	return err
}

// growAndAppend returns a buffer, at least minBufferSize and doubling
// each time it must grow, that holds buf[:usedLen] followed by p.
func growAndAppend(buf []byte, usedLen int, p []byte) []byte {
	needed := usedLen + len(p)
	if needed > cap(buf) {
		newCap := cap(buf)
		if newCap < minBufferSize {
			newCap = minBufferSize
		}
		for newCap < needed {
			newCap *= 2
		}
		grown := make([]byte, newCap)
		copy(grown, buf[:usedLen])
		buf = grown
	}
	buf = buf[:cap(buf)]
	copy(buf[usedLen:needed], p)
	return buf
}
