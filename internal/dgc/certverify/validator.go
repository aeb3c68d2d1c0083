// Package certverify drives the codec and trust store to produce a
// cryptographically verified certificate record, or a typed failure.
package certverify

import (
	"context"
	"crypto"
	"fmt"
	"time"

	"github.com/veraison/go-cose"

	"certpass/internal/dgc"
	"certpass/internal/dgc/codec"
	"certpass/pkg/dgcerrors"
)

// KeyResolver resolves a signer key by the exact (country, keyID) pair.
type KeyResolver interface {
	Resolve(country string, keyID []byte) (crypto.PublicKey, error)
}

// Validator decodes and verifies signed tokens. It is stateless apart from
// its collaborators and safe for concurrent use.
type Validator struct {
	resolver  KeyResolver
	blacklist *Blacklist
	now       func() time.Time
}

type Option func(*Validator)

// WithClock overrides the expiry reference clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

func New(resolver KeyResolver, blacklist *Blacklist, opts ...Option) (*Validator, error) {
	if resolver == nil {
		return nil, fmt.Errorf("key resolver is required")
	}
	if blacklist == nil {
		blacklist = NewBlacklist()
	}

	v := &Validator{resolver: resolver, blacklist: blacklist, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// VerifyQR runs the full pipeline from scanned text to verified certificate.
func (v *Validator) VerifyQR(ctx context.Context, qr string) (dgc.CovCertificate, error) {
	token, err := codec.Decode(qr)
	if err != nil {
		return dgc.CovCertificate{}, err
	}
	return v.ValidateAndDecode(ctx, token)
}

// ValidateAndDecode verifies the token signature against the trust list,
// checks the CWT time claims, maps the claims into a CovCertificate and runs
// the issuing entity blacklist check. Idempotent and free of side effects.
func (v *Validator) ValidateAndDecode(_ context.Context, token codec.SignedToken) (dgc.CovCertificate, error) {
	keyID := token.KeyID()
	if len(keyID) == 0 {
		return dgc.CovCertificate{}, dgcerrors.New(dgcerrors.CodeSignature, "unknown signer")
	}

	// The issuer country needed for trust resolution lives in the CWT
	// claims, so the payload is parsed structurally before any signature
	// decision is made.
	cwt, err := dgc.DecodeCWT(token.Payload())
	if err != nil {
		return dgc.CovCertificate{}, err
	}

	key, err := v.resolver.Resolve(cwt.Issuer, keyID)
	if err != nil {
		return dgc.CovCertificate{}, dgcerrors.Wrap(err, dgcerrors.CodeSignature, "unknown signer")
	}

	if err := verifySignature(token, key); err != nil {
		return dgc.CovCertificate{}, err
	}

	if !cwt.ExpiresAt.After(v.now()) {
		return dgc.CovCertificate{}, dgcerrors.New(dgcerrors.CodeExpired, "certificate expired")
	}

	entry := cwt.Certificate.DGCEntry()
	if err := v.blacklist.ValidateEntity(dgc.UVCIWithoutPrefix(entry.UVCI())); err != nil {
		return dgc.CovCertificate{}, err
	}

	return cwt.Certificate, nil
}

func verifySignature(token codec.SignedToken, key crypto.PublicKey) error {
	alg, err := token.Message.Headers.Protected.Algorithm()
	if err != nil {
		return dgcerrors.Wrap(err, dgcerrors.CodeSignature, "invalid signature")
	}
	verifier, err := cose.NewVerifier(alg, key)
	if err != nil {
		return dgcerrors.Wrap(err, dgcerrors.CodeSignature, "invalid signature")
	}
	if err := token.Message.Verify(nil, verifier); err != nil {
		return dgcerrors.Wrap(err, dgcerrors.CodeSignature, "invalid signature")
	}
	return nil
}
