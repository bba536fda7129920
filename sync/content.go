// Package sync decides when the local directory cache is stale and refreshes it.
//
// Staleness is judged from a cheap remote fingerprint (types.DataVersion)
// rather than by diffing records. The engine serves the cache whenever the
// fingerprint matches or the backend cannot be reached, and replaces the
// cache wholesale otherwise.
//
// Content hashing produces a deterministic digest from a business's
// listing fields. A backend that exposes the same digest in its version RPC
// lets the fingerprint catch edits that keep the count and timestamp equal.
package sync

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/teranos/jawala/directory/types"
)

// Hash is a SHA-256 content digest
type Hash = [32]byte

// ContentHash computes a deterministic SHA-256 digest over a business's
// listing fields. Rating aggregates and timestamps are excluded: aggregates
// are server-derived and move the fingerprint through LastUpdated already.
func ContentHash(b types.Business) Hash {
	h := sha256.New()

	// Each field separated by a domain separator so that values cannot
	// run into each other (shop "a\nb" vs shop "a", owner "b").
	h.Write([]byte("id:"))
	h.Write([]byte(b.ID))
	h.Write([]byte("\ncat:"))
	h.Write([]byte(b.Category))
	h.Write([]byte("\nshop:"))
	h.Write([]byte(b.ShopName))
	h.Write([]byte("\nown:"))
	h.Write([]byte(b.OwnerName))
	h.Write([]byte("\ntel:"))
	h.Write([]byte(b.ContactNumber))
	h.Write([]byte("\naddr:"))
	h.Write(optional(b.Address))
	h.Write([]byte("\nhrs:"))
	h.Write(optional(b.OpeningHours))
	h.Write([]byte("\nsvc:"))
	h.Write(canonical(b.Services))
	h.Write([]byte("\npay:"))
	h.Write(canonical(b.PaymentOptions))
	h.Write([]byte("\ndel:"))
	h.Write([]byte(strconv.FormatBool(b.HomeDelivery)))

	var out Hash
	h.Sum(out[:0])
	return out
}

// SnapshotHash digests a set of businesses independent of their order.
// An empty set hashes to the digest of no input.
func SnapshotHash(businesses []types.Business) string {
	leaves := make([]Hash, len(businesses))
	for i, b := range businesses {
		leaves[i] = ContentHash(b)
	}
	sort.Slice(leaves, func(i, j int) bool {
		return strings.Compare(string(leaves[i][:]), string(leaves[j][:])) < 0
	})

	h := sha256.New()
	for _, leaf := range leaves {
		h.Write(leaf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// HexHash renders a digest for logs and metadata
func HexHash(h Hash) string {
	return hex.EncodeToString(h[:])
}

// canonical sorts a copy of ss and joins elements with null bytes
func canonical(ss []string) []byte {
	sorted := make([]string, len(ss))
	copy(sorted, ss)
	sort.Strings(sorted)
	return []byte(strings.Join(sorted, "\x00"))
}

// optional distinguishes an absent value from an empty one
func optional(s *string) []byte {
	if s == nil {
		return []byte{0}
	}
	return append([]byte{1}, *s...)
}
