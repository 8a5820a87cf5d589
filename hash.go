// Package eden holds the data model and external-dependency interfaces
// shared by every edenvfs package: the content hash, object keys, the
// immutable Tree/Blob shapes read from the ObjectStore, the Overlay and
// Journal contracts, and the typed error kinds the core signals.
//
// Nothing in this package knows about FUSE, bolt, gocql, or any other
// concrete backend — those live in mount/, overlay/, objectstore/, and
// journal/ respectively, and depend on eden, never the reverse.
package eden

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// HashSize is the width of a content hash in bytes. The teacher hashes
// directory blobs with crypto/sha1 (20 bytes); edenvfs hashes with
// unkeyed BLAKE3 (32-byte output) instead, following bureau-foundation-bureau's choice
// of hash function for its own content-addressed store.
const HashSize = 32

// Hash is a fixed-width content address for an immutable Tree or Blob.
type Hash [HashSize]byte

// ZeroHash is the all-zero hash; it never addresses a real object. It
// stands for "no tree": a mount with no reference tree starts from it.
var ZeroHash Hash

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// HashBytes computes the content hash of a byte slice.
func HashBytes(data []byte) Hash {
	sum := blake3.Sum256(data)
	return Hash(sum)
}

// ParseHash decodes a hex-encoded hash. It returns an error if the input is
// not exactly HashSize bytes once decoded.
func ParseHash(s string) (Hash, error) {
	var h Hash
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(raw) != HashSize {
		return h, &Error{Kind: InvalidArgument, Msg: "hash has wrong length"}
	}
	copy(h[:], raw)
	return h, nil
}
