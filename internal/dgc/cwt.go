package dgc

import (
	"time"

	"github.com/fxamacker/cbor/v2"

	"certpass/pkg/dgcerrors"
)

// hcertClaimKey is the CWT claim carrying the health certificate container.
const hcertClaimKey = -260

// euDGCKey selects the EU DGC schema inside the hcert container.
const euDGCKey = 1

// CWT is the decoded CBOR Web Token carried inside the COSE envelope.
type CWT struct {
	Issuer      string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Certificate CovCertificate
}

type cwtClaims struct {
	Issuer    string                    `cbor:"1,keyasint"`
	ExpiresAt int64                     `cbor:"4,keyasint"`
	IssuedAt  int64                     `cbor:"6,keyasint"`
	HCert     map[int64]cbor.RawMessage `cbor:"-260,keyasint"`
}

// DecodeCWT parses the raw CWT payload bytes. Structural violations are
// decode errors; temporal validation is the caller's concern.
func DecodeCWT(payload []byte) (CWT, error) {
	var claims cwtClaims
	if err := cbor.Unmarshal(payload, &claims); err != nil {
		return CWT{}, dgcerrors.Wrap(err, dgcerrors.CodeDecode, "invalid cwt payload")
	}

	raw, ok := claims.HCert[euDGCKey]
	if !ok {
		return CWT{}, dgcerrors.New(dgcerrors.CodeDecode, "missing health certificate claim")
	}

	var cert CovCertificate
	if err := cbor.Unmarshal(raw, &cert); err != nil {
		return CWT{}, dgcerrors.Wrap(err, dgcerrors.CodeDecode, "invalid health certificate claim")
	}

	token := CWT{
		Issuer:      claims.Issuer,
		Certificate: cert,
	}
	if claims.IssuedAt > 0 {
		token.IssuedAt = time.Unix(claims.IssuedAt, 0).UTC()
	}
	if claims.ExpiresAt > 0 {
		token.ExpiresAt = time.Unix(claims.ExpiresAt, 0).UTC()
	}

	token.Certificate.Issuer = claims.Issuer
	token.Certificate.IssuedAt = token.IssuedAt
	token.Certificate.ValidUntil = token.ExpiresAt

	if token.Certificate.DGCEntry() == nil {
		return CWT{}, dgcerrors.New(dgcerrors.CodeDecode, "certificate carries no dgc entry")
	}

	return token, nil
}
