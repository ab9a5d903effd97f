package command

import (
	"strconv"

	"github.com/miniredis-io/miniredis/internal/bytestr"
	"github.com/miniredis-io/miniredis/internal/glob"
	"github.com/miniredis-io/miniredis/internal/resp"
)

func cmdPing(ctx *Context) {
	if len(ctx.Args) == 1 {
		resp.WriteSimpleString(ctx.Out, "PONG")
		return
	}
	resp.WriteBulkString(ctx.Out, ctx.Args[1])
}

func cmdEcho(ctx *Context) {
	resp.WriteBulkString(ctx.Out, ctx.Args[1])
}

func cmdSet(ctx *Context) {
	key := ctx.Args[1]
	value := ctx.Args[2]
	// The value is stored before the option tokens are checked, and a
	// rejected option deletes the key: a failed SET leaves the key absent
	// even if it existed before.
	ctx.Store.Set(key, value)

	if len(ctx.Args) == 5 {
		if !isEX(ctx.Args[3]) {
			ctx.Store.Delete(key)
			reply(ctx.Out, errorf("ERR syntax error"))
			return
		}
		seconds, ok := parseInt64Strict(ctx.Args[4])
		if !ok || seconds <= 0 {
			ctx.Store.Delete(key)
			reply(ctx.Out, errorf("ERR invalid expire time in 'set' command"))
			return
		}
		ctx.Store.SetExpire(key, ctx.Clock.NowMillis()+seconds*1000)
	}

	resp.WriteSimpleString(ctx.Out, "OK")
}

// isEX reports whether tok is "EX" case-insensitively, matching the C
// reference's 2-byte-then-toupper comparison exactly.
func isEX(tok bytestr.ByteString) bool {
	if len(tok) != 2 {
		return false
	}
	up := func(b byte) byte {
		if b >= 'a' && b <= 'z' {
			return b - ('a' - 'A')
		}
		return b
	}
	return up(tok[0]) == 'E' && up(tok[1]) == 'X'
}

func cmdGet(ctx *Context) {
	val, ok := ctx.Store.Get(ctx.Args[1])
	if !ok {
		resp.WriteNullBulk(ctx.Out)
		return
	}
	resp.WriteBulkString(ctx.Out, val)
}

func cmdDel(ctx *Context) {
	var count int64
	for _, key := range ctx.Args[1:] {
		if ctx.Store.Delete(key) {
			count++
		}
	}
	resp.WriteInteger(ctx.Out, count)
}

func cmdExists(ctx *Context) {
	var count int64
	for _, key := range ctx.Args[1:] {
		if ctx.Store.Exists(key) {
			count++
		}
	}
	resp.WriteInteger(ctx.Out, count)
}

func cmdExpire(ctx *Context) {
	seconds, ok := parseInt64Strict(ctx.Args[2])
	if !ok {
		reply(ctx.Out, errorf("ERR value is not an integer or out of range"))
		return
	}

	key := ctx.Args[1]
	if !ctx.Store.Exists(key) {
		resp.WriteInteger(ctx.Out, 0)
		return
	}

	ctx.Store.SetExpire(key, ctx.Clock.NowMillis()+seconds*1000)
	resp.WriteInteger(ctx.Out, 1)
}

func cmdTTL(ctx *Context) {
	key := ctx.Args[1]
	if !ctx.Store.Exists(key) {
		resp.WriteInteger(ctx.Out, -2)
		return
	}

	expireAt := ctx.Store.GetExpire(key)
	if expireAt == -1 {
		resp.WriteInteger(ctx.Out, -1)
		return
	}

	remainingMs := expireAt - ctx.Clock.NowMillis()
	if remainingMs <= 0 {
		ctx.Store.Delete(key)
		resp.WriteInteger(ctx.Out, -2)
		return
	}

	seconds := (remainingMs + 999) / 1000
	resp.WriteInteger(ctx.Out, seconds)
}

func cmdKeys(ctx *Context) {
	pattern := ctx.Args[1]
	var matches []bytestr.ByteString

	it := ctx.Store.Iterate()
	for {
		key, _, ok := it.Next()
		if !ok {
			break
		}
		if glob.Match(pattern, key) {
			matches = append(matches, key)
		}
	}

	resp.WriteArrayHeader(ctx.Out, len(matches))
	for _, key := range matches {
		resp.WriteBulkString(ctx.Out, key)
	}
}

func cmdType(ctx *Context) {
	if ctx.Store.Exists(ctx.Args[1]) {
		resp.WriteSimpleString(ctx.Out, "string")
		return
	}
	resp.WriteSimpleString(ctx.Out, "none")
}

func cmdIncr(ctx *Context) {
	step(ctx, 1)
}

func cmdDecr(ctx *Context) {
	step(ctx, -1)
}

// step implements INCR (delta=1) and DECR (delta=-1): both read the
// current value (defaulting to 0 when the key is absent), reject
// non-integer contents, guard against wraparound at the relevant bound,
// and preserve any existing TTL across the rewrite.
func step(ctx *Context, delta int64) {
	key := ctx.Args[1]

	var current int64
	expireAt := int64(-1)

	if val, ok := ctx.Store.Get(key); ok {
		expireAt = ctx.Store.GetExpire(key)
		parsed, ok := parseInt64Strict(val)
		if !ok {
			reply(ctx.Out, errorf("ERR value is not an integer or out of range"))
			return
		}
		current = parsed
	}

	if delta > 0 && current == maxInt64 {
		reply(ctx.Out, errorf("ERR value is not an integer or out of range"))
		return
	}
	if delta < 0 && current == minInt64 {
		reply(ctx.Out, errorf("ERR value is not an integer or out of range"))
		return
	}
	current += delta

	ctx.Store.Set(key, bytestr.New([]byte(strconv.FormatInt(current, 10))))
	if expireAt != -1 {
		ctx.Store.SetExpire(key, expireAt)
	}
	resp.WriteInteger(ctx.Out, current)
}

const (
	maxInt64 = 1<<63 - 1
	minInt64 = -1 << 63
)
