// Package codec implements the multi-layer decoding pipeline that turns a
// scanned QR string into a raw signed token: Base45 decode, zlib inflate and
// COSE Sign1 parsing. The package is pure and safe for concurrent use.
package codec

import (
	"bytes"
	"compress/zlib"
	"io"
	"strings"

	"github.com/veraison/go-cose"

	"certpass/pkg/dgcerrors"
)

// SchemePrefix marks health certificate QR payloads. Callers may pass the
// text with or without it; without it the Base45 layer rejects the input.
const SchemePrefix = "HC1:"

// maxInflatedSize caps zlib output so crafted payloads cannot exhaust memory.
const maxInflatedSize = 10 << 20

// SignedToken is the parsed COSE Sign1 envelope prior to any trust decision.
type SignedToken struct {
	Message *cose.Sign1Message
}

// KeyID returns the signer key identifier from the protected header, falling
// back to the unprotected header as the DCC spec allows.
func (t SignedToken) KeyID() []byte {
	if kid, ok := t.Message.Headers.Protected[cose.HeaderLabelKeyID].([]byte); ok && len(kid) > 0 {
		return kid
	}
	if kid, ok := t.Message.Headers.Unprotected[cose.HeaderLabelKeyID].([]byte); ok {
		return kid
	}
	return nil
}

// Payload returns the raw CWT bytes covered by the signature.
func (t SignedToken) Payload() []byte {
	return t.Message.Payload
}

// Decode runs the full QR-to-token pipeline. All failures are decode errors;
// nothing here consults the trust list.
func Decode(qr string) (SignedToken, error) {
	raw, err := decodeRawCOSE(qr)
	if err != nil {
		return SignedToken{}, err
	}
	return parseCOSE(raw)
}

func decodeRawCOSE(qr string) ([]byte, error) {
	compressed, err := base45Decode(strings.TrimPrefix(qr, SchemePrefix))
	if err != nil {
		return nil, err
	}

	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, dgcerrors.Wrap(err, dgcerrors.CodeDecode, "invalid compression")
	}
	defer zr.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(zr, maxInflatedSize)); err != nil {
		return nil, dgcerrors.Wrap(err, dgcerrors.CodeDecode, "invalid compression")
	}
	return buf.Bytes(), nil
}

func parseCOSE(raw []byte) (SignedToken, error) {
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(raw); err != nil {
		// Some issuers omit the CBOR tag around the Sign1 array.
		var untagged cose.UntaggedSign1Message
		if err := untagged.UnmarshalCBOR(raw); err != nil {
			return SignedToken{}, dgcerrors.Wrap(err, dgcerrors.CodeDecode, "invalid cose structure")
		}
		msg = cose.Sign1Message(untagged)
	}
	if len(msg.Payload) == 0 {
		return SignedToken{}, dgcerrors.New(dgcerrors.CodeDecode, "invalid cose structure")
	}
	return SignedToken{Message: &msg}, nil
}
