package dgc

import (
	"strings"
	"time"
)

// EntryKind discriminates the single payload variant a certificate carries.
type EntryKind string

const (
	EntryKindVaccination EntryKind = "vaccination"
	EntryKindRecovery    EntryKind = "recovery"
	EntryKindTest        EntryKind = "test"
)

// Test type codes from the EU value set for test devices.
const (
	TestTypePCR     = "LP6464-4"
	TestTypeAntigen = "LP217198-3"
)

const uvciPrefix = "URN:UVCI:"

// Entry is the tagged union over the three DGC payload variants. Exactly one
// variant is present per token.
type Entry interface {
	Kind() EntryKind
	UVCI() string
	isDGCEntry()
}

// Name holds the certificate holder's name in both native and ICAO
// transliterated form.
type Name struct {
	GivenName       string `cbor:"gn" json:"givenName,omitempty"`
	FamilyName      string `cbor:"fn" json:"familyName,omitempty"`
	GivenNameTrans  string `cbor:"gnt" json:"givenNameTransliterated,omitempty"`
	FamilyNameTrans string `cbor:"fnt" json:"familyNameTransliterated"`
}

// FullName prefers the native spelling and falls back to the transliteration.
func (n Name) FullName() string {
	given := n.GivenName
	if given == "" {
		given = n.GivenNameTrans
	}
	family := n.FamilyName
	if family == "" {
		family = n.FamilyNameTrans
	}
	return strings.TrimSpace(given + " " + family)
}

type Vaccination struct {
	TargetDisease     string `cbor:"tg" json:"targetDisease"`
	Vaccine           string `cbor:"vp" json:"vaccine"`
	Product           string `cbor:"mp" json:"product"`
	Manufacturer      string `cbor:"ma" json:"manufacturer"`
	DoseNumber        int    `cbor:"dn" json:"doseNumber"`
	TotalSerialDoses  int    `cbor:"sd" json:"totalSerialDoses"`
	Occurrence        string `cbor:"dt" json:"occurrence"`
	Country           string `cbor:"co" json:"country"`
	CertificateIssuer string `cbor:"is" json:"certificateIssuer"`
	ID                string `cbor:"ci" json:"id"`
}

func (v Vaccination) Kind() EntryKind { return EntryKindVaccination }
func (v Vaccination) UVCI() string    { return v.ID }
func (Vaccination) isDGCEntry()       {}

// OccurrenceTime parses the vaccination date; zero time on malformed input.
func (v Vaccination) OccurrenceTime() time.Time {
	return parseDate(v.Occurrence)
}

// IsComplete reports whether the full immunization series is done.
func (v Vaccination) IsComplete() bool {
	return v.DoseNumber >= v.TotalSerialDoses
}

// IsBooster reports a dose beyond the original series.
func (v Vaccination) IsBooster() bool {
	return v.DoseNumber > v.TotalSerialDoses
}

type Recovery struct {
	TargetDisease     string `cbor:"tg" json:"targetDisease"`
	FirstResult       string `cbor:"fr" json:"firstResult"`
	ValidFrom         string `cbor:"df" json:"validFrom"`
	ValidUntil        string `cbor:"du" json:"validUntil"`
	Country           string `cbor:"co" json:"country"`
	CertificateIssuer string `cbor:"is" json:"certificateIssuer"`
	ID                string `cbor:"ci" json:"id"`
}

func (r Recovery) Kind() EntryKind { return EntryKindRecovery }
func (r Recovery) UVCI() string    { return r.ID }
func (Recovery) isDGCEntry()       {}

// FirstResultTime parses the first positive result date; zero time on
// malformed input.
func (r Recovery) FirstResultTime() time.Time {
	return parseDate(r.FirstResult)
}

type TestCert struct {
	TargetDisease     string    `cbor:"tg" json:"targetDisease"`
	TestType          string    `cbor:"tt" json:"testType"`
	TestResult        string    `cbor:"tr" json:"testResult"`
	SampleCollection  time.Time `cbor:"sc" json:"sampleCollection"`
	TestingCenter     string    `cbor:"tc" json:"testingCenter"`
	Country           string    `cbor:"co" json:"country"`
	CertificateIssuer string    `cbor:"is" json:"certificateIssuer"`
	ID                string    `cbor:"ci" json:"id"`
}

func (t TestCert) Kind() EntryKind { return EntryKindTest }
func (t TestCert) UVCI() string    { return t.ID }
func (TestCert) isDGCEntry()       {}

// IsPCR distinguishes PCR from rapid antigen tests for presentation routing.
func (t TestCert) IsPCR() bool {
	return t.TestType == TestTypePCR
}

// CovCertificate is the verified, structured certificate record. Immutable
// once decoded.
type CovCertificate struct {
	Issuer       string        `cbor:"-" json:"issuer"`
	IssuedAt     time.Time     `cbor:"-" json:"issuedAt"`
	ValidUntil   time.Time     `cbor:"-" json:"validUntil"`
	Version      string        `cbor:"ver" json:"version"`
	Name         Name          `cbor:"nam" json:"name"`
	BirthDate    string        `cbor:"dob" json:"birthDate"`
	Vaccinations []Vaccination `cbor:"v,omitempty" json:"vaccinations,omitempty"`
	Recoveries   []Recovery    `cbor:"r,omitempty" json:"recoveries,omitempty"`
	Tests        []TestCert    `cbor:"t,omitempty" json:"tests,omitempty"`
}

// DGCEntry returns the single payload variant, preferring vaccination over
// recovery over test when a malformed token carries several.
func (c CovCertificate) DGCEntry() Entry {
	switch {
	case len(c.Vaccinations) > 0:
		return c.Vaccinations[0]
	case len(c.Recoveries) > 0:
		return c.Recoveries[0]
	case len(c.Tests) > 0:
		return c.Tests[0]
	}
	return nil
}

// Vaccination returns the vaccination entry if that is the payload variant.
func (c CovCertificate) Vaccination() (Vaccination, bool) {
	if len(c.Vaccinations) > 0 {
		return c.Vaccinations[0], true
	}
	return Vaccination{}, false
}

// Recovery returns the recovery entry if present.
func (c CovCertificate) Recovery() (Recovery, bool) {
	if len(c.Recoveries) > 0 {
		return c.Recoveries[0], true
	}
	return Recovery{}, false
}

// PersonKey identifies the certificate holder for grouping. Certificates of
// the same person share transliterated name and date of birth.
func (c CovCertificate) PersonKey() string {
	return strings.ToUpper(c.Name.FamilyNameTrans) + "<<" +
		strings.ToUpper(c.Name.GivenNameTrans) + "<<" + c.BirthDate
}

// UVCIWithoutPrefix strips the URN:UVCI: scheme for blacklist checks.
func UVCIWithoutPrefix(id string) string {
	return strings.TrimPrefix(id, uvciPrefix)
}

func parseDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}
	}
	return t
}
