package scanner_test

import (
	"context"
	"crypto"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certpass/internal/dgc"
	"certpass/internal/dgc/certverify"
	"certpass/internal/rules"
	"certpass/internal/scanner"
	"certpass/pkg/dgcerrors"
	"certpass/pkg/testutil/dgctest"
)

type staticResolver struct {
	key crypto.PublicKey
}

func (r staticResolver) Resolve(string, []byte) (crypto.PublicKey, error) {
	if r.key == nil {
		return nil, dgcerrors.New(dgcerrors.CodeNotFound, "trust list entry not found")
	}
	return r.key, nil
}

type stubRules struct {
	results []rules.ValidationResult
	err     error
}

func (s stubRules) Validate(context.Context, dgc.CovCertificate, string, time.Time) ([]rules.ValidationResult, error) {
	return s.results, s.err
}

type ServiceSuite struct {
	suite.Suite

	keypair *dgctest.Keypair
	now     time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	kp, err := dgctest.NewKeypair("test-dsc-01")
	s.Require().NoError(err)
	s.keypair = kp
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *ServiceSuite) newService(ruleResults []rules.ValidationResult) *scanner.Service {
	verifier, err := certverify.New(
		staticResolver{key: s.keypair.Public()},
		certverify.NewBlacklist(),
		certverify.WithClock(func() time.Time { return s.now }),
	)
	s.Require().NoError(err)

	svc, err := scanner.New(verifier, stubRules{results: ruleResults}, "DE",
		scanner.WithClock(func() time.Time { return s.now }),
	)
	s.Require().NoError(err)
	return svc
}

func (s *ServiceSuite) signedQR(cert dgc.CovCertificate) string {
	qr, err := dgctest.EncodeQR(cert, "DE", s.now.Add(-time.Hour), s.now.Add(24*time.Hour), s.keypair)
	s.Require().NoError(err)
	return qr
}

func vaccinationCert() dgc.CovCertificate {
	return dgc.CovCertificate{
		Version:   "1.3.0",
		Name:      dgc.Name{FamilyNameTrans: "MUSTERMANN", GivenNameTrans: "ERIKA"},
		BirthDate: "1964-08-12",
		Vaccinations: []dgc.Vaccination{{
			TargetDisease:    "840539006",
			Product:          "EU/1/20/1528",
			DoseNumber:       2,
			TotalSerialDoses: 2,
			Occurrence:       "2026-01-10",
			Country:          "DE",
			ID:               "URN:UVCI:01DE/IZ12345A/5CWLU12RNOB9RXSEOP6FG8#W",
		}},
	}
}

func pcrTestCert() dgc.CovCertificate {
	return dgc.CovCertificate{
		Version:   "1.3.0",
		Name:      dgc.Name{FamilyNameTrans: "MUSTERMANN", GivenNameTrans: "ERIKA"},
		BirthDate: "1964-08-12",
		Tests: []dgc.TestCert{{
			TargetDisease:    "840539006",
			TestType:         dgc.TestTypePCR,
			TestResult:       "260415000",
			SampleCollection: time.Date(2026, 2, 28, 18, 0, 0, 0, time.UTC),
			Country:          "DE",
			ID:               "URN:UVCI:01DE/TEST/1",
		}},
	}
}

func passed(id string) rules.ValidationResult {
	return rules.ValidationResult{Rule: rules.Rule{Identifier: id}, Verdict: rules.VerdictPassed}
}

func failed(id string) rules.ValidationResult {
	return rules.ValidationResult{Rule: rules.Rule{Identifier: id}, Verdict: rules.VerdictFailed}
}

// =========================================================================
// Outcomes
// =========================================================================

func (s *ServiceSuite) TestSuccessfulScan() {
	svc := s.newService([]rules.ValidationResult{passed("GR-DE-0001"), passed("VR-DE-0002")})

	result, err := svc.Check(context.Background(), s.signedQR(vaccinationCert()))
	s.Require().NoError(err)

	s.Equal(scanner.OutcomeSuccess, result.Outcome)
	s.Require().NotNil(result.Certificate)
	s.Equal("MUSTERMANN", result.Certificate.Name.FamilyNameTrans)
	s.Len(result.RuleResults, 2)
	s.Empty(result.TestType)
}

func (s *ServiceSuite) TestFailedRuleIsValidationError() {
	svc := s.newService([]rules.ValidationResult{passed("GR-DE-0001"), failed("VR-DE-0002")})

	result, err := svc.Check(context.Background(), s.signedQR(vaccinationCert()))
	s.Require().NoError(err)

	s.Equal(scanner.OutcomeValidationError, result.Outcome)
	s.Equal(dgcerrors.CodeRuleFailed, result.ErrorCode)
}

func (s *ServiceSuite) TestNoApplicableRulesIsTechnicalError() {
	svc := s.newService(nil)

	result, err := svc.Check(context.Background(), s.signedQR(vaccinationCert()))
	s.Require().NoError(err)

	s.Equal(scanner.OutcomeTechnicalError, result.Outcome)
	s.Equal(dgcerrors.CodeNoRules, result.ErrorCode)
}

func (s *ServiceSuite) TestMalformedInputIsTechnicalError() {
	svc := s.newService([]rules.ValidationResult{passed("GR-DE-0001")})

	result, err := svc.Check(context.Background(), "HC1:NOT A CERTIFICATE")
	s.Require().NoError(err)

	s.Equal(scanner.OutcomeTechnicalError, result.Outcome)
	s.Equal(dgcerrors.CodeDecode, result.ErrorCode)
	s.Nil(result.Certificate)
}

func (s *ServiceSuite) TestExpiredCertificateIsValidationError() {
	svc := s.newService([]rules.ValidationResult{passed("GR-DE-0001")})

	qr, err := dgctest.EncodeQR(vaccinationCert(), "DE", s.now.Add(-48*time.Hour), s.now.Add(-time.Hour), s.keypair)
	s.Require().NoError(err)

	result, err := svc.Check(context.Background(), qr)
	s.Require().NoError(err)

	s.Equal(scanner.OutcomeValidationError, result.Outcome)
	s.Equal(dgcerrors.CodeExpired, result.ErrorCode)
}

// =========================================================================
// Test certificate routing
// =========================================================================

func (s *ServiceSuite) TestPassingTestCertificateCarriesTestType() {
	svc := s.newService([]rules.ValidationResult{passed("TR-DE-0001")})

	result, err := svc.Check(context.Background(), s.signedQR(pcrTestCert()))
	s.Require().NoError(err)

	s.Equal(scanner.OutcomeSuccess, result.Outcome)
	s.Equal(dgc.TestTypePCR, result.TestType)
}
