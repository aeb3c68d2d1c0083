// Package dgctest builds signed health certificate tokens for tests. It is
// the encoding mirror of the production decode pipeline: CBOR claims, COSE
// Sign1, zlib deflate and Base45.
package dgctest

import (
	"bytes"
	"compress/zlib"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"

	"certpass/internal/dgc"
)

const base45Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ $%*+-./:"

// Keypair is a signing identity for test tokens.
type Keypair struct {
	Key   *ecdsa.PrivateKey
	KeyID []byte
}

// NewKeypair generates a P-256 key under the given key identifier.
func NewKeypair(keyID string) (*Keypair, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Keypair{Key: key, KeyID: []byte(keyID)}, nil
}

// Public returns the verification key.
func (k *Keypair) Public() *ecdsa.PublicKey {
	return &k.Key.PublicKey
}

type testClaims struct {
	Issuer    string              `cbor:"1,keyasint"`
	ExpiresAt int64               `cbor:"4,keyasint"`
	IssuedAt  int64               `cbor:"6,keyasint"`
	HCert     map[int64]testHCert `cbor:"-260,keyasint"`
}

type testHCert = dgc.CovCertificate

// EncodeQR produces a complete scannable token for the given certificate.
func EncodeQR(cert dgc.CovCertificate, issuer string, issuedAt, expiresAt time.Time, kp *Keypair) (string, error) {
	claims := testClaims{
		Issuer:    issuer,
		IssuedAt:  issuedAt.Unix(),
		ExpiresAt: expiresAt.Unix(),
		HCert:     map[int64]testHCert{1: cert},
	}
	payload, err := cbor.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("encode claims: %w", err)
	}

	signer, err := cose.NewSigner(cose.AlgorithmES256, kp.Key)
	if err != nil {
		return "", fmt.Errorf("build signer: %w", err)
	}

	msg := cose.NewSign1Message()
	msg.Headers.Protected[cose.HeaderLabelAlgorithm] = cose.AlgorithmES256
	msg.Headers.Protected[cose.HeaderLabelKeyID] = kp.KeyID
	msg.Payload = payload
	if err := msg.Sign(rand.Reader, nil, signer); err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	raw, err := msg.MarshalCBOR()
	if err != nil {
		return "", fmt.Errorf("encode cose message: %w", err)
	}

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(raw); err != nil {
		return "", fmt.Errorf("compress token: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compress token: %w", err)
	}

	return "HC1:" + Base45Encode(compressed.Bytes()), nil
}

// Base45Encode encodes per RFC 9285: byte pairs become three symbols, a
// trailing byte becomes two.
func Base45Encode(data []byte) string {
	var out []byte
	for len(data) >= 2 {
		v := uint32(data[0])<<8 | uint32(data[1])
		out = append(out,
			base45Alphabet[v%45],
			base45Alphabet[v/45%45],
			base45Alphabet[v/(45*45)],
		)
		data = data[2:]
	}
	if len(data) == 1 {
		v := uint32(data[0])
		out = append(out,
			base45Alphabet[v%45],
			base45Alphabet[v/45],
		)
	}
	return string(out)
}
