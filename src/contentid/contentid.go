/*
Content-derived identity for archived attachments.

The identifier is a dedup hint and a log-friendly opaque id, not a security
boundary: md5 is kept for continuity with existing archives and is not safe
against adversarial collisions. Two attachments get the same identifier only
when their bytes, length, and declared MIME type all match - the same bytes
served under two content types are two distinct attachments.
*/
package contentid

import (
	"crypto/md5"
	"fmt"
	"math/big"
)

type Identity struct {
	// Short, URL-safe identifier derived from (bytes, length, MIME type).
	ID string
	// Length of the raw content in bytes.
	Length int
	// Hex digest over the raw content alone.
	Hash string
}

const base62Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Identify computes the content identity for an attachment. It never fails;
// empty content produces a well-defined identity (callers skip zero-length
// parts before archiving).
func Identify(content []byte, mimeType string) Identity {
	contentHash := md5.Sum(content)

	idDigest := md5.New()
	idDigest.Write(content)
	fmt.Fprintf(idDigest, ":%d:%s", len(content), mimeType)

	return Identity{
		ID:     base62(idDigest.Sum(nil)),
		Length: len(content),
		Hash:   fmt.Sprintf("%x", contentHash),
	}
}

// base62 renders a digest as a big-endian unsigned integer in a dense
// base-62 alphabet (digits, then lowercase, then uppercase).
func base62(digest []byte) string {
	n := new(big.Int).SetBytes(digest)
	if n.Sign() == 0 {
		return string(base62Alphabet[0])
	}

	base := big.NewInt(int64(len(base62Alphabet)))
	rem := new(big.Int)

	var buf [32]byte
	i := len(buf)
	for n.Sign() > 0 {
		n.DivMod(n, base, rem)
		i--
		buf[i] = base62Alphabet[rem.Int64()]
	}
	return string(buf[i:])
}
