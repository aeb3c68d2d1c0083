package trust

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strings"

	"certpass/pkg/dgcerrors"
)

// ListDecoder verifies and parses signed trust-list documents. The
// verification key is pinned at build time; trust-on-first-use is not
// permitted.
type ListDecoder struct {
	pinnedKey *ecdsa.PublicKey
}

// NewListDecoder pins the given public key for all future list decodes.
func NewListDecoder(key *ecdsa.PublicKey) *ListDecoder {
	return &ListDecoder{pinnedKey: key}
}

// Decode verifies the signed distribution document and returns the contained
// trust list. The wire format is a base64 ECDSA signature on the first line
// followed by the JSON payload.
func (d *ListDecoder) Decode(data string) (DscList, error) {
	signaturePart, payload, found := strings.Cut(data, "\n")
	if !found {
		return DscList{}, dgcerrors.New(dgcerrors.CodeDecode, "trust list: missing signature line")
	}

	signature, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signaturePart))
	if err != nil {
		return DscList{}, dgcerrors.Wrap(err, dgcerrors.CodeDecode, "trust list: invalid signature encoding")
	}

	digest := sha256.Sum256([]byte(payload))
	if !ecdsa.VerifyASN1(d.pinnedKey, digest[:], signature) {
		return DscList{}, dgcerrors.New(dgcerrors.CodeSignature, "trust list: signature verification failed")
	}

	list, err := ParseDscList([]byte(payload))
	if err != nil {
		return DscList{}, dgcerrors.Wrap(err, dgcerrors.CodeDecode, "trust list: malformed payload")
	}
	return list, nil
}

// ParsePublicKey reads a PEM encoded ECDSA public key, as shipped in the
// build-time pinned key asset.
func ParsePublicKey(pemData []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in pinned key")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse pinned key: %w", err)
	}
	ecKey, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("pinned key is %T, want *ecdsa.PublicKey", key)
	}
	return ecKey, nil
}
