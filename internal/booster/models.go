// Package booster derives booster-eligibility notifications for grouped
// certificates by evaluating booster rules over a person's latest
// vaccination and recovery records.
package booster

import (
	"time"

	"github.com/google/uuid"

	"certpass/internal/dgc"
)

// Result is the binary outcome of a booster check for one group.
type Result string

const (
	ResultPassed Result = "Passed"
	ResultFailed Result = "Failed"
)

// Description languages carried on notifications.
const (
	LangEnglish = "en"
	LangGerman  = "de"
)

// Notification is the one-time-per-new-passing-rule alert attached to a
// certificate group. Only the engine mutates it; the seen flags are owned by
// the presentation layer but persisted alongside.
type Notification struct {
	Result        Result `json:"result"`
	DescriptionEN string `json:"descriptionEn,omitempty"`
	DescriptionDE string `json:"descriptionDe,omitempty"`
	RuleID        string `json:"ruleId,omitempty"`
}

// Group collects all certificates of one person together with the persisted
// booster state.
type Group struct {
	ID           uuid.UUID            `json:"id"`
	PersonKey    string               `json:"personKey"`
	Certificates []dgc.CovCertificate `json:"certificates"`

	Notification              Notification `json:"boosterNotification"`
	SeenRuleIDs               []string     `json:"boosterNotificationRuleIds"`
	HasSeenNotification       bool         `json:"hasSeenBoosterNotification"`
	HasSeenDetailNotification bool         `json:"hasSeenBoosterDetailNotification"`
}

// LatestVaccination returns the certificate holding the most recent
// vaccination record in the group.
func (g Group) LatestVaccination() (dgc.CovCertificate, bool) {
	var (
		best  dgc.CovCertificate
		at    time.Time
		found bool
	)
	for _, cert := range g.Certificates {
		v, ok := cert.Vaccination()
		if !ok {
			continue
		}
		if !found || v.OccurrenceTime().After(at) {
			best, at, found = cert, v.OccurrenceTime(), true
		}
	}
	return best, found
}

// LatestRecovery returns the certificate holding the most recent recovery
// record in the group.
func (g Group) LatestRecovery() (dgc.CovCertificate, bool) {
	var (
		best  dgc.CovCertificate
		at    time.Time
		found bool
	)
	for _, cert := range g.Certificates {
		r, ok := cert.Recovery()
		if !ok {
			continue
		}
		if !found || r.FirstResultTime().After(at) {
			best, at, found = cert, r.FirstResultTime(), true
		}
	}
	return best, found
}

// HasSeenRule reports whether a passing rule id was already recorded for
// this group, which suppresses re-firing the notification.
func (g Group) HasSeenRule(ruleID string) bool {
	for _, id := range g.SeenRuleIDs {
		if id == ruleID {
			return true
		}
	}
	return false
}
