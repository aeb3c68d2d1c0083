package certlogic_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certpass/internal/dgc"
	"certpass/internal/rules"
	"certpass/internal/rules/certlogic"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newEvaluator() *certlogic.Evaluator {
	return certlogic.New(certlogic.WithClock(func() time.Time { return now }))
}

func vaccinated(doseNumber, totalDoses int, occurrence string) dgc.CovCertificate {
	return dgc.CovCertificate{
		Version:   "1.3.0",
		Name:      dgc.Name{FamilyNameTrans: "MUSTERMANN", GivenNameTrans: "ERIKA"},
		BirthDate: "1964-08-12",
		Vaccinations: []dgc.Vaccination{{
			TargetDisease:     "840539006",
			Product:           "EU/1/20/1528",
			DoseNumber:        doseNumber,
			TotalSerialDoses:  totalDoses,
			Occurrence:        occurrence,
			Country:           "DE",
			CertificateIssuer: "Robert Koch-Institut",
			ID:                "URN:UVCI:01DE/IZ12345A/ABC",
		}},
	}
}

func evaluate(t *testing.T, expression string, cert dgc.CovCertificate, valueSets map[string]json.RawMessage) rules.Verdict {
	t.Helper()
	verdict, err := newEvaluator().Evaluate(context.Background(), json.RawMessage(expression), cert, valueSets)
	require.NoError(t, err)
	return verdict
}

func TestFullImmunizationRule(t *testing.T) {
	// dn >= sd, the canonical vaccination completeness check.
	rule := `{"if":[{"var":"payload.v.0"},{">=":[{"var":"payload.v.0.dn"},{"var":"payload.v.0.sd"}]},true]}`

	assert.Equal(t, rules.VerdictPassed, evaluate(t, rule, vaccinated(2, 2, "2026-01-10"), nil))
	assert.Equal(t, rules.VerdictFailed, evaluate(t, rule, vaccinated(1, 2, "2026-01-10"), nil))
}

func TestVaccineAllowedByValueSet(t *testing.T) {
	rule := `{"in":[{"var":"payload.v.0.mp"},{"var":"external.valueSets.vaccines-covid-19-names"}]}`
	valueSets := map[string]json.RawMessage{
		"vaccines-covid-19-names": json.RawMessage(`["EU/1/20/1528","EU/1/20/1507"]`),
	}

	assert.Equal(t, rules.VerdictPassed, evaluate(t, rule, vaccinated(2, 2, "2026-01-10"), valueSets))

	cert := vaccinated(2, 2, "2026-01-10")
	cert.Vaccinations[0].Product = "ObscureVax"
	assert.Equal(t, rules.VerdictFailed, evaluate(t, rule, cert, valueSets))
}

func TestValidityWindowWithPlusTime(t *testing.T) {
	// Vaccination is valid from 14 days after the dose up to one year.
	rule := `{"not-after":[
		{"plusTime":[{"var":"payload.v.0.dt"},14,"day"]},
		{"plusTime":[{"var":"external.validationClock"},0,"day"]},
		{"plusTime":[{"var":"payload.v.0.dt"},365,"day"]}
	]}`

	assert.Equal(t, rules.VerdictPassed, evaluate(t, rule, vaccinated(2, 2, "2026-01-10"), nil))
	// Too fresh: dose 3 days ago.
	assert.Equal(t, rules.VerdictFailed, evaluate(t, rule, vaccinated(2, 2, "2026-02-26"), nil))
	// Too old: dose over a year ago.
	assert.Equal(t, rules.VerdictFailed, evaluate(t, rule, vaccinated(2, 2, "2025-01-10"), nil))
}

func TestTestCertificateAge(t *testing.T) {
	rule := `{"not-before":[
		{"plusTime":[{"var":"payload.t.0.sc"},0,"day"]},
		{"plusTime":[{"var":"external.validationClock"},-48,"hour"]}
	]}`

	cert := dgc.CovCertificate{
		Tests: []dgc.TestCert{{
			TestType:         dgc.TestTypePCR,
			SampleCollection: now.Add(-24 * time.Hour),
			ID:               "URN:UVCI:01DE/T/1",
		}},
	}
	assert.Equal(t, rules.VerdictPassed, evaluate(t, rule, cert, nil))

	cert.Tests[0].SampleCollection = now.Add(-72 * time.Hour)
	assert.Equal(t, rules.VerdictFailed, evaluate(t, rule, cert, nil))
}

func TestExtractFromUVCI(t *testing.T) {
	rule := `{"===":[{"extractFromUVCI":[{"var":"payload.v.0.ci"},0]},"01DE"]}`
	assert.Equal(t, rules.VerdictPassed, evaluate(t, rule, vaccinated(2, 2, "2026-01-10"), nil))
}

func TestReduce(t *testing.T) {
	rule := `{">":[
		{"reduce":[{"var":"payload.v"},{"+":[{"var":"accumulator"},1]},0]},
		0
	]}`
	assert.Equal(t, rules.VerdictPassed, evaluate(t, rule, vaccinated(2, 2, "2026-01-10"), nil))

	noVacc := dgc.CovCertificate{Recoveries: []dgc.Recovery{{ID: "URN:UVCI:01DE/R/1"}}}
	assert.Equal(t, rules.VerdictFailed, evaluate(t, rule, noVacc, nil))
}

func TestMissingFieldFallsBack(t *testing.T) {
	rule := `{"===":[{"var":"payload.v.0.mp"},"EU/1/20/1528"]}`
	noVacc := dgc.CovCertificate{Recoveries: []dgc.Recovery{{ID: "URN:UVCI:01DE/R/1"}}}
	assert.Equal(t, rules.VerdictFailed, evaluate(t, rule, noVacc, nil))
}

func TestUnsupportedOperatorReturnsOpen(t *testing.T) {
	verdict, err := newEvaluator().Evaluate(context.Background(),
		json.RawMessage(`{"merge":[1,2]}`), vaccinated(2, 2, "2026-01-10"), nil)
	require.Error(t, err)
	assert.Equal(t, rules.VerdictOpen, verdict)
}

func TestMalformedExpressionReturnsOpen(t *testing.T) {
	verdict, err := newEvaluator().Evaluate(context.Background(),
		json.RawMessage(`{"if":`), vaccinated(2, 2, "2026-01-10"), nil)
	require.Error(t, err)
	assert.Equal(t, rules.VerdictOpen, verdict)
}
