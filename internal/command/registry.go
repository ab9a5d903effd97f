// Package command implements the mini-redis verb table: parsing a
// request into a handler call, arity checking, and the 12 command
// handlers themselves.
package command

import (
	"github.com/miniredis-io/miniredis/internal/bytestr"
	"github.com/miniredis-io/miniredis/internal/clock"
	"github.com/miniredis-io/miniredis/internal/keyspace"
	"github.com/miniredis-io/miniredis/internal/resp"
)

// maxNameLen is the verb-name truncation limit before table lookup,
// matching the C reference's fixed 64-byte name_buf (63 usable bytes
// plus the trailing NUL that Go strings don't need).
const maxNameLen = 63

// Context is everything a handler needs: the keyspace it mutates, the
// clock it reads for TTL arithmetic, the raw request arguments
// (Args[0] is the verb itself, matching the C source's args[] layout),
// and the sink its reply is written to.
type Context struct {
	Store *keyspace.Table
	Clock clock.Clock
	Args  []bytestr.ByteString
	Out   resp.Writer
}

// Handler executes one verb against ctx, writing exactly one RESP
// reply to ctx.Out.
type Handler func(ctx *Context)

type entry struct {
	name    string
	handler Handler
	minArgs int
	maxArgs int // -1 means unbounded
}

var commandTable = []entry{
	{"PING", cmdPing, 1, 2},
	{"ECHO", cmdEcho, 2, 2},
	{"SET", cmdSet, 3, 5},
	{"GET", cmdGet, 2, 2},
	{"DEL", cmdDel, 2, -1},
	{"EXISTS", cmdExists, 2, -1},
	{"EXPIRE", cmdExpire, 3, 3},
	{"TTL", cmdTTL, 2, 2},
	{"KEYS", cmdKeys, 2, 2},
	{"TYPE", cmdType, 2, 2},
	{"INCR", cmdIncr, 2, 2},
	{"DECR", cmdDecr, 2, 2},
}

// Dispatch validates req as a command frame (a non-empty array of bulk
// strings), looks up its verb, checks arity, and runs the handler. Any
// rejection is written as a normal RESP error reply via out; Dispatch
// itself never returns an error, since every failure mode here is
// protocol-visible rather than connection-fatal.
func Dispatch(req resp.Value, store *keyspace.Table, clk clock.Clock, out resp.Writer) {
	if req.Type != resp.Array || len(req.Elems) == 0 {
		reply(out, errorf("ERR invalid command format"))
		return
	}
	args := make([]bytestr.ByteString, len(req.Elems))
	for i, el := range req.Elems {
		if el.Type != resp.BulkString {
			reply(out, errorf("ERR invalid command format"))
			return
		}
		args[i] = bytestr.New(el.Str)
	}

	name := upperTruncate(args[0])
	for _, e := range commandTable {
		if e.name != name {
			continue
		}
		argc := len(args)
		if argc < e.minArgs || (e.maxArgs != -1 && argc > e.maxArgs) {
			reply(out, errorf("ERR wrong number of arguments for '"+e.name+"' command"))
			return
		}
		e.handler(&Context{Store: store, Clock: clk, Args: args, Out: out})
		return
	}

	reply(out, errorf("ERR unknown command '"+name+"'"))
}

// reply writes a command.Error as its RESP error reply. Centralizing
// this keeps every rejection path (here and in the handlers) going
// through the same typed error rather than bare strings.
func reply(out resp.Writer, err *Error) {
	resp.WriteError(out, err.Message)
}

// upperTruncate uppercases name byte-by-byte (ASCII only, so arbitrary
// binary input stays well-defined) and truncates it to maxNameLen
// bytes, mirroring the C reference's fixed-size name_buf before
// comparison against the command table.
func upperTruncate(name bytestr.ByteString) string {
	n := len(name)
	if n > maxNameLen {
		n = maxNameLen
	}
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		b := name[i]
		if b >= 'a' && b <= 'z' {
			b -= 'a' - 'A'
		}
		buf[i] = b
	}
	return string(buf)
}
