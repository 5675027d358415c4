// Package checksum computes the MD5 content fingerprint used as a
// change detector for locally materialized files (spec §9 "MD5
// caveat": not a security primitive, collisions are tolerable).
package checksum

import (
	"crypto/md5"
	"encoding/hex"
)

// Hex returns the lowercase hex MD5 digest of data.
func Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
