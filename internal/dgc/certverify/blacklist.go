package certverify

import (
	"crypto/sha512"
	"encoding/hex"
	"regexp"

	"certpass/pkg/dgcerrors"
)

// entityPattern captures the issuing entity token of a UVCI: the first
// slash-delimited segment following a two-letter country code.
var entityPattern = regexp.MustCompile(`([a-zA-Z]{2}/[^/]+)/`)

// Blacklist rejects certificates whose issuing entity is known-bad. Entries
// are hex encoded SHA-512 digests of the entity token, compared
// case-sensitively.
type Blacklist struct {
	hashes map[string]struct{}
}

func NewBlacklist(hashes ...string) *Blacklist {
	b := &Blacklist{hashes: make(map[string]struct{}, len(hashes))}
	for _, h := range hashes {
		b.hashes[h] = struct{}{}
	}
	return b
}

// ValidateEntity checks the issuing entity of the given certificate
// identifier. A UVCI without an extractable entity segment is skipped, not
// failed.
func (b *Blacklist) ValidateEntity(uvci string) error {
	if len(b.hashes) == 0 {
		return nil
	}
	m := entityPattern.FindStringSubmatch(uvci)
	if m == nil {
		return nil
	}

	digest := sha512.Sum512([]byte(m[1]))
	if _, bad := b.hashes[hex.EncodeToString(digest[:])]; bad {
		return dgcerrors.New(dgcerrors.CodeBlacklisted, "blacklisted issuing entity")
	}
	return nil
}
