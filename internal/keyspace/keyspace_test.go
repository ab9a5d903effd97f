package keyspace

import (
	"strconv"
	"testing"

	"github.com/miniredis-io/miniredis/internal/bytestr"
	"github.com/miniredis-io/miniredis/internal/clock"
)

func bs(s string) bytestr.ByteString { return bytestr.New([]byte(s)) }

func TestSetGet(t *testing.T) {
	tbl := New(clock.NewFake(0))

	isNew := tbl.Set(bs("foo"), bs("bar"))
	if !isNew {
		t.Fatalf("Set() on a fresh key reported isNew = false")
	}

	v, ok := tbl.Get(bs("foo"))
	if !ok || v.String() != "bar" {
		t.Fatalf("Get(foo) = %q, %v; want bar, true", v, ok)
	}

	if isNew := tbl.Set(bs("foo"), bs("baz")); isNew {
		t.Fatalf("Set() overwriting an existing key reported isNew = true")
	}
	v, _ = tbl.Get(bs("foo"))
	if v.String() != "baz" {
		t.Fatalf("Get(foo) after overwrite = %q, want baz", v)
	}
}

func TestGetMissing(t *testing.T) {
	tbl := New(clock.NewFake(0))
	if _, ok := tbl.Get(bs("missing")); ok {
		t.Fatalf("Get(missing) = _, true; want false")
	}
	if tbl.Exists(bs("missing")) {
		t.Fatalf("Exists(missing) = true; want false")
	}
}

func TestDelete(t *testing.T) {
	tbl := New(clock.NewFake(0))
	tbl.Set(bs("k"), bs("v"))

	if !tbl.Delete(bs("k")) {
		t.Fatalf("Delete(k) = false; want true")
	}
	if tbl.Delete(bs("k")) {
		t.Fatalf("second Delete(k) = true; want false")
	}
	if tbl.Exists(bs("k")) {
		t.Fatalf("Exists(k) after delete = true; want false")
	}
	if tbl.Count() != 0 {
		t.Fatalf("Count() after delete = %d; want 0", tbl.Count())
	}
}

func TestTombstoneKeepsProbeChainIntact(t *testing.T) {
	tbl := New(clock.NewFake(0))
	tbl.Set(bs("a"), bs("1"))
	tbl.Set(bs("b"), bs("2"))
	tbl.Delete(bs("a"))

	// b must still be reachable even though a's slot, which may sit
	// earlier in b's probe chain, is now a tombstone rather than Empty.
	if v, ok := tbl.Get(bs("b")); !ok || v.String() != "2" {
		t.Fatalf("Get(b) after deleting a = %q, %v; want 2, true", v, ok)
	}
}

func TestLazyExpiry(t *testing.T) {
	clk := clock.NewFake(0)
	tbl := New(clk)
	tbl.Set(bs("k"), bs("v"))
	tbl.SetExpire(bs("k"), 1000)

	if !tbl.Exists(bs("k")) {
		t.Fatalf("Exists(k) before expiry = false; want true")
	}

	clk.Set(1000)
	if tbl.Exists(bs("k")) {
		t.Fatalf("Exists(k) at expiry boundary = true; want false")
	}
	if tbl.Count() != 0 {
		t.Fatalf("Count() after lazy expiry = %d; want 0", tbl.Count())
	}
}

func TestSetExpireOnMissingKeyIsNoop(t *testing.T) {
	tbl := New(clock.NewFake(0))
	tbl.SetExpire(bs("missing"), 12345) // must not panic or create the key
	if tbl.Exists(bs("missing")) {
		t.Fatalf("SetExpire on a missing key created it")
	}
}

func TestGetExpireSentinel(t *testing.T) {
	tbl := New(clock.NewFake(0))
	tbl.Set(bs("no-ttl"), bs("v"))

	if got := tbl.GetExpire(bs("no-ttl")); got != NoExpiry {
		t.Fatalf("GetExpire(no-ttl) = %d; want NoExpiry", got)
	}
	if got := tbl.GetExpire(bs("absent")); got != NoExpiry {
		t.Fatalf("GetExpire(absent) = %d; want NoExpiry", got)
	}
}

func TestResizeGrowsAndPreservesEntries(t *testing.T) {
	tbl := New(clock.NewFake(0))
	const n = 100 // forces several resizes past the 0.7 load factor
	for i := 0; i < n; i++ {
		tbl.Set(bs(string(rune('a'+i%26))+strconv.Itoa(i)), bs(strconv.Itoa(i)))
	}
	if tbl.Count() != n {
		t.Fatalf("Count() = %d; want %d", tbl.Count(), n)
	}
	if tbl.Capacity() < 128 {
		t.Fatalf("Capacity() = %d; want >= 128 after %d inserts", tbl.Capacity(), n)
	}
	for i := 0; i < n; i++ {
		key := bs(string(rune('a'+i%26)) + strconv.Itoa(i))
		v, ok := tbl.Get(key)
		if !ok || v.String() != strconv.Itoa(i) {
			t.Fatalf("Get(%s) = %q, %v; want %s, true", key, v, ok, strconv.Itoa(i))
		}
	}
}

func TestIterateSkipsExpiredAndNonOccupied(t *testing.T) {
	clk := clock.NewFake(0)
	tbl := New(clk)
	tbl.Set(bs("live"), bs("1"))
	tbl.Set(bs("dying"), bs("2"))
	tbl.SetExpire(bs("dying"), 500)
	tbl.Set(bs("deleted"), bs("3"))
	tbl.Delete(bs("deleted"))

	clk.Set(500)

	seen := map[string]string{}
	it := tbl.Iterate()
	for {
		k, v, ok := it.Next()
		if !ok {
			break
		}
		seen[k.String()] = v.String()
	}

	if len(seen) != 1 || seen["live"] != "1" {
		t.Fatalf("Iterate() = %v; want only {live: 1}", seen)
	}
	if tbl.Count() != 1 {
		t.Fatalf("Count() after iteration expired dying = %d; want 1", tbl.Count())
	}
}

func TestBinarySafety(t *testing.T) {
	tbl := New(clock.NewFake(0))
	key := bytestr.New([]byte{0x00, 0x0D, 0x0A, 0xFF})
	value := bytestr.New([]byte{0x00, 0x01, 0x02})

	tbl.Set(key, value)
	got, ok := tbl.Get(key)
	if !ok || !got.Equal(value) {
		t.Fatalf("Get(binary key) = %v, %v; want %v, true", got, ok, value)
	}
}

