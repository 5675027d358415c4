package cache

import (
	"encoding/hex"
	"hash/fnv"
)

// saltA and saltB are fixed, literal salts mixed into two independent
// FNV-1a passes over key to produce a 128-bit digest. hash/maphash was
// considered first, but maphash.MakeSeed() returns a fresh random seed
// on every call (by design, to resist hash-flooding); since spec §4.I
// requires the cache's on-disk filenames to be a reproducible function
// of the input across process restarts, a random per-process seed
// would silently orphan every previously-cached file on each restart.
// FNV-1a has no seed to randomize, so salting with a fixed literal
// prefix is enough to decorrelate the two 64-bit halves while staying
// identical run to run.
const (
	saltA = "importengine-cache-a"
	saltB = "importengine-cache-b"
)

// Hash128 returns a 32-character hex string: two independent 64-bit
// FNV-1a digests of key concatenated into a 128-bit name. Deterministic
// across process restarts for the same key, per spec §4.I.
func Hash128(key string) string {
	ha := fnv.New64a()
	_, _ = ha.Write([]byte(saltA))
	_, _ = ha.Write([]byte(key))

	hb := fnv.New64a()
	_, _ = hb.Write([]byte(saltB))
	_, _ = hb.Write([]byte(key))

	var buf [16]byte
	putUint64(buf[0:8], ha.Sum64())
	putUint64(buf[8:16], hb.Sum64())
	return hex.EncodeToString(buf[:])
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * (7 - i)))
	}
}
