// Package scanner orchestrates one certificate check: decode and verify the
// QR token, evaluate the business rules, and aggregate the verdict.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"certpass/internal/audit"
	"certpass/internal/dgc"
	"certpass/internal/dgc/certverify"
	"certpass/internal/platform/middleware"
	"certpass/internal/rules"
	"certpass/pkg/dgcerrors"
)

const tracerName = "certpass/scanner"

// Outcome is the top-level result of a scan.
type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeValidationError Outcome = "validation_error"
	OutcomeTechnicalError  Outcome = "technical_error"
)

// Result is everything the transport layer needs to render a check.
type Result struct {
	Outcome     Outcome
	ErrorCode   dgcerrors.Code
	Certificate *dgc.CovCertificate
	RuleResults []rules.ValidationResult
	// TestType routes the presentation of passing test certificates: PCR
	// and rapid antigen results are displayed differently.
	TestType string
}

// RuleValidator is the rule evaluation half of a check.
type RuleValidator interface {
	Validate(ctx context.Context, cert dgc.CovCertificate, countryCode string, asOf time.Time) ([]rules.ValidationResult, error)
}

// Service runs the full check pipeline.
type Service struct {
	verifier *certverify.Validator
	rules    RuleValidator
	audit    *audit.Service
	metrics  ScanRecorder
	logger   *slog.Logger
	tracer   trace.Tracer
	country  string
	now      func() time.Time
}

// ScanRecorder receives the outcome of every scan, for metrics.
type ScanRecorder interface {
	ObserveScan(result string, duration time.Duration)
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAudit(service *audit.Service) Option {
	return func(s *Service) { s.audit = service }
}

func WithScanRecorder(recorder ScanRecorder) Option {
	return func(s *Service) { s.metrics = recorder }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New builds the scan service. countryCode is the arrival country whose
// acceptance rules are applied.
func New(verifier *certverify.Validator, ruleValidator RuleValidator, countryCode string, opts ...Option) (*Service, error) {
	if verifier == nil {
		return nil, fmt.Errorf("certificate verifier is required")
	}
	if ruleValidator == nil {
		return nil, fmt.Errorf("rule validator is required")
	}
	if countryCode == "" {
		return nil, fmt.Errorf("country code is required")
	}

	s := &Service{
		verifier: verifier,
		rules:    ruleValidator,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
		country:  countryCode,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Check runs the whole pipeline for one scanned QR payload. The returned
// error is reserved for infrastructure failures; every certificate-level
// problem is expressed through the Result.
func (s *Service) Check(ctx context.Context, qr string) (Result, error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "scanner.Check")
	defer span.End()

	cert, err := s.verifier.VerifyQR(ctx, qr)
	if err != nil {
		result := rejected(err)
		span.SetAttributes(attribute.String("scan.outcome", string(result.Outcome)))
		s.record(ctx, result, nil, start)
		return result, nil
	}
	entry := cert.DGCEntry()

	span.SetAttributes(
		attribute.String("certificate.kind", string(entry.Kind())),
		attribute.String("certificate.issuer", cert.Issuer),
	)

	ruleResults, err := s.rules.Validate(ctx, cert, s.country, s.now())
	if err != nil {
		return Result{}, dgcerrors.Wrap(err, dgcerrors.CodeInternal, "evaluate rules")
	}

	result := Result{
		Certificate: &cert,
		RuleResults: ruleResults,
	}
	switch rules.CheckVerdict(ruleResults) {
	case rules.CheckSuccess:
		result.Outcome = OutcomeSuccess
		if test, ok := testEntry(cert); ok {
			result.TestType = test.TestType
		}
	case rules.CheckValidationError:
		result.Outcome = OutcomeValidationError
		result.ErrorCode = dgcerrors.CodeRuleFailed
	default:
		result.Outcome = OutcomeTechnicalError
		result.ErrorCode = dgcerrors.CodeNoRules
	}

	span.SetAttributes(attribute.String("scan.outcome", string(result.Outcome)))
	s.record(ctx, result, entry, start)
	return result, nil
}

// rejected maps a pipeline error to a result. Decode, signature and internal
// failures are technical; an expired or blacklisted certificate was read
// fine and failed a check, which is a validation outcome.
func rejected(err error) Result {
	code := dgcerrors.GetCode(err)
	outcome := OutcomeValidationError
	if dgcerrors.IsTechnical(err) {
		outcome = OutcomeTechnicalError
	}
	return Result{Outcome: outcome, ErrorCode: code}
}

func (s *Service) record(ctx context.Context, result Result, entry dgc.Entry, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveScan(string(result.Outcome), s.now().Sub(start))
	}
	if s.audit == nil {
		return
	}

	event := audit.Event{
		Action:    audit.ActionScanRejected,
		Result:    string(result.Outcome),
		ErrorCode: string(result.ErrorCode),
		RequestID: middleware.GetRequestID(ctx),
	}
	if result.Outcome == OutcomeSuccess {
		event.Action = audit.ActionScanVerified
	}
	if entry != nil {
		event.EntryKind = string(entry.Kind())
		event.UVCIHash = audit.HashUVCI(entry.UVCI())
	}
	if result.Certificate != nil {
		if v, ok := result.Certificate.Vaccination(); ok {
			event.Country = v.Country
		} else if r, ok := result.Certificate.Recovery(); ok {
			event.Country = r.Country
		} else if t, ok := testEntry(*result.Certificate); ok {
			event.Country = t.Country
		}
	}
	s.audit.Emit(ctx, event)
}

func testEntry(cert dgc.CovCertificate) (dgc.TestCert, bool) {
	if len(cert.Tests) > 0 {
		return cert.Tests[0], true
	}
	return dgc.TestCert{}, false
}
