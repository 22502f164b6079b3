package scmtypes

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ChangesetId is the 32-byte content hash of a bonsai changeset.
type ChangesetId [32]byte

// HashChangeset derives a ChangesetId by hashing the given canonical byte
// representation of a bonsai changeset (callers are responsible for
// producing a stable, deterministic encoding — see rewrite.Rewrite's
// idempotence requirement in spec.md §8).
func HashChangeset(canonical []byte) ChangesetId {
	return ChangesetId(sha256.Sum256(canonical))
}

func (c ChangesetId) String() string {
	return hex.EncodeToString(c[:])
}

// IsZero reports whether c is the zero ChangesetId (no changeset).
func (c ChangesetId) IsZero() bool {
	return c == ChangesetId{}
}

// ChangesetIdFromHex parses a 64-hex-character ChangesetId.
func ChangesetIdFromHex(s string) (ChangesetId, error) {
	var id ChangesetId
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("scmtypes: invalid changeset id %q: %w", s, err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("scmtypes: changeset id %q has %d bytes, want %d", s, len(b), len(id))
	}
	copy(id[:], b)
	return id, nil
}

// HgChangesetId is the 20-byte Mercurial changeset hash.
type HgChangesetId [20]byte

func (c HgChangesetId) String() string {
	return hex.EncodeToString(c[:])
}

// HgChangesetIdFromHex parses a 40-hex-character Mercurial changeset id,
// the framing used on the wire by getfiles (spec.md §6).
func HgChangesetIdFromHex(s string) (HgChangesetId, error) {
	var id HgChangesetId
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("scmtypes: invalid hg changeset id %q: %w", s, err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("scmtypes: hg changeset id %q has %d bytes, want %d", s, len(b), len(id))
	}
	copy(id[:], b)
	return id, nil
}

// RepositoryId is a small integer, stable per repo.
type RepositoryId int32

// Generation is a non-negative integer depth from any root.
type Generation uint64

// ContentId is the content-addressed id of a file's bytes.
type ContentId [32]byte

func (c ContentId) String() string {
	return hex.EncodeToString(c[:])
}

// Equal reports whether two content ids refer to the same content — the
// basis of "a leaf reuses a parent's id iff their file-ids match" (spec.md §3).
func (c ContentId) Equal(o ContentId) bool {
	return c == o
}
