// Package trust holds the rotating trust list of document signer
// certificates and resolves signer keys for signature verification.
package trust

import (
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// TrustedCert is one trust-list entry: a signer certificate pinned to the
// issuing country and the truncated key identifier carried in COSE headers.
type TrustedCert struct {
	Country     string
	KeyID       []byte
	Certificate *x509.Certificate
}

// PublicKey exposes the verification key of the entry.
func (c TrustedCert) PublicKey() crypto.PublicKey {
	return c.Certificate.PublicKey
}

// DscList is one versioned trust-list snapshot. It is replaced atomically as
// a whole and never partially mutated.
type DscList struct {
	Certificates []TrustedCert
}

type dscEntryJSON struct {
	CertificateType string `json:"certificateType"`
	Country         string `json:"country"`
	KID             string `json:"kid"`
	RawData         string `json:"rawData"`
}

type dscListJSON struct {
	Certificates []dscEntryJSON `json:"certificates"`
}

// ParseDscList decodes the distribution JSON document into a DscList. Each
// entry carries a base64 key id and a base64 DER certificate.
func ParseDscList(data []byte) (DscList, error) {
	var doc dscListJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return DscList{}, fmt.Errorf("parse dsc list: %w", err)
	}

	list := DscList{Certificates: make([]TrustedCert, 0, len(doc.Certificates))}
	for i, entry := range doc.Certificates {
		kid, err := base64.StdEncoding.DecodeString(entry.KID)
		if err != nil {
			return DscList{}, fmt.Errorf("dsc list entry %d: decode kid: %w", i, err)
		}
		der, err := base64.StdEncoding.DecodeString(entry.RawData)
		if err != nil {
			return DscList{}, fmt.Errorf("dsc list entry %d: decode certificate: %w", i, err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return DscList{}, fmt.Errorf("dsc list entry %d: parse certificate: %w", i, err)
		}
		list.Certificates = append(list.Certificates, TrustedCert{
			Country:     entry.Country,
			KeyID:       kid,
			Certificate: cert,
		})
	}
	return list, nil
}
