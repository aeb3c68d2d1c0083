package rules

// CheckResult is the three-way aggregate over the per-rule results.
type CheckResult string

const (
	// CheckTechnicalError means no applicable rule could be found. This is
	// ambiguous, not a pass; callers must not report it as success.
	CheckTechnicalError CheckResult = "TechnicalError"
	// CheckValidationError means at least one applicable rule failed.
	CheckValidationError CheckResult = "ValidationError"
	// CheckSuccess means every applicable rule passed.
	CheckSuccess CheckResult = "Success"
)

// CheckVerdict aggregates per-rule results into the top-level outcome. OPEN
// verdicts count against success but are not failures.
func CheckVerdict(results []ValidationResult) CheckResult {
	if len(results) == 0 {
		return CheckTechnicalError
	}
	for _, result := range results {
		if result.Verdict != VerdictPassed {
			return CheckValidationError
		}
	}
	return CheckSuccess
}
