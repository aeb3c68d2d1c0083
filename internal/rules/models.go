// Package rules holds the business rule, value set and booster rule models,
// the selection logic, and the verdict aggregation used for certificate
// checks.
package rules

import (
	"encoding/json"
	"time"

	"certpass/internal/dgc"
)

// Verdict is the outcome of evaluating one rule expression.
type Verdict string

const (
	VerdictPassed Verdict = "PASSED"
	VerdictFailed Verdict = "FAILED"
	VerdictOpen   Verdict = "OPEN"
)

// RuleType distinguishes acceptance rules from invalidation rules.
type RuleType string

const (
	RuleTypeAcceptance   RuleType = "Acceptance"
	RuleTypeInvalidation RuleType = "Invalidation"
)

// CertificateType scopes a rule to a payload variant, or to all of them.
type CertificateType string

const (
	CertTypeGeneral     CertificateType = "General"
	CertTypeVaccination CertificateType = "Vaccination"
	CertTypeRecovery    CertificateType = "Recovery"
	CertTypeTest        CertificateType = "Test"
)

// Matches reports whether a rule scoped to this type applies to the given
// entry kind.
func (t CertificateType) Matches(kind dgc.EntryKind) bool {
	switch t {
	case CertTypeGeneral:
		return true
	case CertTypeVaccination:
		return kind == dgc.EntryKindVaccination
	case CertTypeRecovery:
		return kind == dgc.EntryKindRecovery
	case CertTypeTest:
		return kind == dgc.EntryKindTest
	}
	return false
}

// Rule is one declarative business or booster rule. The expression is opaque
// to this service and handed to the injected evaluation engine as-is.
type Rule struct {
	Identifier      string            `json:"identifier"`
	Type            RuleType          `json:"type"`
	Country         string            `json:"country,omitempty"`
	Version         string            `json:"version"`
	SchemaVersion   string            `json:"schemaVersion,omitempty"`
	Engine          string            `json:"engine,omitempty"`
	EngineVersion   string            `json:"engineVersion,omitempty"`
	CertificateType CertificateType   `json:"certificateType"`
	Descriptions    map[string]string `json:"descriptions,omitempty"`
	ValidFrom       time.Time         `json:"validFrom"`
	ValidTo         time.Time         `json:"validTo"`
	AffectedFields  []string          `json:"affectedFields,omitempty"`
	Expression      json.RawMessage   `json:"logic"`
	Hash            string            `json:"hash"`
}

// Key is the sync identity: identifier plus country for business rules,
// plain identifier for booster rules.
func (r Rule) Key() string {
	if r.Country == "" {
		return r.Identifier
	}
	return r.Country + "/" + r.Identifier
}

// ContentHash drives change detection during diff sync.
func (r Rule) ContentHash() string { return r.Hash }

// DescriptionFor returns the rule description in the given language, empty
// when the language is not provided.
func (r Rule) DescriptionFor(lang string) string {
	return r.Descriptions[lang]
}

// AppliesAt reports whether asOf falls inside the rule's half-open validity
// window [ValidFrom, ValidTo).
func (r Rule) AppliesAt(asOf time.Time) bool {
	return !asOf.Before(r.ValidFrom) && asOf.Before(r.ValidTo)
}

// RuleIdentifier is one manifest entry of the remote rule listing.
type RuleIdentifier struct {
	Identifier string `json:"identifier"`
	Version    string `json:"version"`
	Country    string `json:"country,omitempty"`
	Hash       string `json:"hash"`
}

func (r RuleIdentifier) Key() string {
	if r.Country == "" {
		return r.Identifier
	}
	return r.Country + "/" + r.Identifier
}

func (r RuleIdentifier) ContentHash() string { return r.Hash }

// ValueSet maps coded certificate fields to display values. The mapping
// stays raw JSON; only the evaluation engine interprets it.
type ValueSet struct {
	ID     string          `json:"valueSetId"`
	Date   string          `json:"valueSetDate"`
	Values json.RawMessage `json:"valueSetValues"`
	Hash   string          `json:"hash"`
}

func (v ValueSet) Key() string         { return v.ID }
func (v ValueSet) ContentHash() string { return v.Hash }

// ValueSetIdentifier is one manifest entry of the remote value set listing.
type ValueSetIdentifier struct {
	ID   string `json:"id"`
	Hash string `json:"hash"`
}

func (v ValueSetIdentifier) Key() string         { return v.ID }
func (v ValueSetIdentifier) ContentHash() string { return v.Hash }

// ValidationResult pairs a selected rule with its evaluation verdict.
type ValidationResult struct {
	Rule    Rule    `json:"rule"`
	Verdict Verdict `json:"verdict"`
}
