// Package certlogic evaluates the JsonLogic dialect used by health
// certificate business rules. The dialect restricts JsonLogic and adds
// date arithmetic (plusTime) and chained datetime comparisons.
package certlogic

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"certpass/internal/dgc"
	"certpass/internal/rules"
)

// Evaluator interprets rule expressions against a certificate payload. It
// is stateless and safe for concurrent use.
type Evaluator struct {
	now func() time.Time
}

type Option func(*Evaluator)

// WithClock overrides the validation clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

func New(opts ...Option) *Evaluator {
	e := &Evaluator{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs one expression. The data context mirrors the rule schema:
// the certificate under "payload", value sets and the validation clock
// under "external".
func (e *Evaluator) Evaluate(_ context.Context, expression json.RawMessage, cert dgc.CovCertificate, valueSets map[string]json.RawMessage) (rules.Verdict, error) {
	var logic any
	if err := json.Unmarshal(expression, &logic); err != nil {
		return rules.VerdictOpen, fmt.Errorf("parse rule expression: %w", err)
	}

	payload := payloadFor(cert)
	sets := make(map[string]any, len(valueSets))
	for id, raw := range valueSets {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return rules.VerdictOpen, fmt.Errorf("decode value set %s: %w", id, err)
		}
		sets[id] = v
	}

	data := map[string]any{
		"payload": payload,
		"external": map[string]any{
			"valueSets":       sets,
			"validationClock": e.now().UTC().Format(time.RFC3339),
		},
	}

	result, err := apply(logic, data)
	if err != nil {
		return rules.VerdictOpen, err
	}
	if isTruthy(result) {
		return rules.VerdictPassed, nil
	}
	return rules.VerdictFailed, nil
}

// payloadFor renders the certificate under the schema field names rule
// expressions address (payload.v.0.dn and friends), not the Go API names.
func payloadFor(cert dgc.CovCertificate) map[string]any {
	payload := map[string]any{
		"ver": cert.Version,
		"dob": cert.BirthDate,
		"nam": map[string]any{
			"gn":  cert.Name.GivenName,
			"fn":  cert.Name.FamilyName,
			"gnt": cert.Name.GivenNameTrans,
			"fnt": cert.Name.FamilyNameTrans,
		},
	}
	if len(cert.Vaccinations) > 0 {
		entries := make([]any, 0, len(cert.Vaccinations))
		for _, v := range cert.Vaccinations {
			entries = append(entries, map[string]any{
				"tg": v.TargetDisease,
				"vp": v.Vaccine,
				"mp": v.Product,
				"ma": v.Manufacturer,
				"dn": float64(v.DoseNumber),
				"sd": float64(v.TotalSerialDoses),
				"dt": v.Occurrence,
				"co": v.Country,
				"is": v.CertificateIssuer,
				"ci": v.ID,
			})
		}
		payload["v"] = entries
	}
	if len(cert.Recoveries) > 0 {
		entries := make([]any, 0, len(cert.Recoveries))
		for _, r := range cert.Recoveries {
			entries = append(entries, map[string]any{
				"tg": r.TargetDisease,
				"fr": r.FirstResult,
				"df": r.ValidFrom,
				"du": r.ValidUntil,
				"co": r.Country,
				"is": r.CertificateIssuer,
				"ci": r.ID,
			})
		}
		payload["r"] = entries
	}
	if len(cert.Tests) > 0 {
		entries := make([]any, 0, len(cert.Tests))
		for _, t := range cert.Tests {
			entries = append(entries, map[string]any{
				"tg": t.TargetDisease,
				"tt": t.TestType,
				"tr": t.TestResult,
				"sc": t.SampleCollection.UTC().Format(time.RFC3339),
				"tc": t.TestingCenter,
				"co": t.Country,
				"is": t.CertificateIssuer,
				"ci": t.ID,
			})
		}
		payload["t"] = entries
	}
	return payload
}

func apply(logic, data any) (any, error) {
	expr, ok := logic.(map[string]any)
	if !ok {
		// Literals evaluate to themselves.
		return logic, nil
	}
	if len(expr) != 1 {
		return nil, fmt.Errorf("expression must have exactly one operator, got %d", len(expr))
	}

	var op string
	var rawArgs any
	for k, v := range expr {
		op, rawArgs = k, v
	}
	args, ok := rawArgs.([]any)
	if !ok {
		args = []any{rawArgs}
	}

	switch op {
	case "var":
		return applyVar(args, data)
	case "if":
		return applyIf(args, data)
	case "and":
		return applyAnd(args, data)
	case "===":
		return applyEquals(args, data)
	case "in":
		return applyIn(args, data)
	case "!":
		return applyNot(args, data)
	case "+":
		return applyPlus(args, data)
	case ">", "<", ">=", "<=":
		return applyCompare(op, args, data)
	case "plusTime":
		return applyPlusTime(args, data)
	case "after", "before", "not-after", "not-before":
		return applyDateCompare(op, args, data)
	case "reduce":
		return applyReduce(args, data)
	case "extractFromUVCI":
		return applyExtractFromUVCI(args, data)
	}
	return nil, fmt.Errorf("unsupported operator %q", op)
}

func applyVar(args []any, data any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("var needs a path")
	}
	path, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("var path must be a string")
	}
	var fallback any
	if len(args) > 1 {
		fallback = args[1]
	}

	if path == "" {
		return data, nil
	}
	current := data
	for _, part := range strings.Split(path, ".") {
		switch c := current.(type) {
		case map[string]any:
			var ok bool
			current, ok = c[part]
			if !ok {
				return fallback, nil
			}
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(c) {
				return fallback, nil
			}
			current = c[idx]
		default:
			return fallback, nil
		}
	}
	if current == nil {
		return fallback, nil
	}
	return current, nil
}

func applyIf(args []any, data any) (any, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("if needs exactly 3 operands")
	}
	cond, err := apply(args[0], data)
	if err != nil {
		return nil, err
	}
	if isTruthy(cond) {
		return apply(args[1], data)
	}
	return apply(args[2], data)
}

func applyAnd(args []any, data any) (any, error) {
	var last any = true
	for _, arg := range args {
		v, err := apply(arg, data)
		if err != nil {
			return nil, err
		}
		if !isTruthy(v) {
			return v, nil
		}
		last = v
	}
	return last, nil
}

func applyEquals(args []any, data any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("=== needs exactly 2 operands")
	}
	left, err := apply(args[0], data)
	if err != nil {
		return nil, err
	}
	right, err := apply(args[1], data)
	if err != nil {
		return nil, err
	}
	return jsonEqual(left, right), nil
}

func applyIn(args []any, data any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("in needs exactly 2 operands")
	}
	needle, err := apply(args[0], data)
	if err != nil {
		return nil, err
	}
	haystack, err := apply(args[1], data)
	if err != nil {
		return nil, err
	}
	list, ok := haystack.([]any)
	if !ok {
		if haystack == nil {
			return false, nil
		}
		return nil, fmt.Errorf("in needs an array on the right")
	}
	for _, item := range list {
		if jsonEqual(needle, item) {
			return true, nil
		}
	}
	return false, nil
}

func applyNot(args []any, data any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("! needs exactly 1 operand")
	}
	v, err := apply(args[0], data)
	if err != nil {
		return nil, err
	}
	return !isTruthy(v), nil
}

func applyPlus(args []any, data any) (any, error) {
	var sum float64
	for _, arg := range args {
		v, err := apply(arg, data)
		if err != nil {
			return nil, err
		}
		n, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("+ needs numeric operands")
		}
		sum += n
	}
	return sum, nil
}

func applyCompare(op string, args []any, data any) (any, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, fmt.Errorf("%s needs 2 or 3 operands", op)
	}
	values := make([]float64, len(args))
	for i, arg := range args {
		v, err := apply(arg, data)
		if err != nil {
			return nil, err
		}
		n, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("%s needs numeric operands", op)
		}
		values[i] = n
	}
	for i := 0; i+1 < len(values); i++ {
		if !compareNumbers(op, values[i], values[i+1]) {
			return false, nil
		}
	}
	return true, nil
}

func compareNumbers(op string, a, b float64) bool {
	switch op {
	case ">":
		return a > b
	case "<":
		return a < b
	case ">=":
		return a >= b
	case "<=":
		return a <= b
	}
	return false
}

func applyPlusTime(args []any, data any) (any, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("plusTime needs exactly 3 operands")
	}
	base, err := apply(args[0], data)
	if err != nil {
		return nil, err
	}
	t, err := asTime(base)
	if err != nil {
		return nil, err
	}
	amount, ok := args[1].(float64)
	if !ok {
		return nil, fmt.Errorf("plusTime amount must be a number")
	}
	unit, ok := args[2].(string)
	if !ok {
		return nil, fmt.Errorf("plusTime unit must be a string")
	}

	n := int(amount)
	switch unit {
	case "day":
		return t.AddDate(0, 0, n), nil
	case "hour":
		return t.Add(time.Duration(amount * float64(time.Hour))), nil
	case "month":
		return t.AddDate(0, n, 0), nil
	case "year":
		return t.AddDate(n, 0, 0), nil
	}
	return nil, fmt.Errorf("unsupported time unit %q", unit)
}

func applyDateCompare(op string, args []any, data any) (any, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, fmt.Errorf("%s needs 2 or 3 operands", op)
	}
	times := make([]time.Time, len(args))
	for i, arg := range args {
		v, err := apply(arg, data)
		if err != nil {
			return nil, err
		}
		t, err := asTime(v)
		if err != nil {
			return nil, fmt.Errorf("%s operand %d: %w", op, i, err)
		}
		times[i] = t
	}
	for i := 0; i+1 < len(times); i++ {
		if !compareTimes(op, times[i], times[i+1]) {
			return false, nil
		}
	}
	return true, nil
}

func compareTimes(op string, a, b time.Time) bool {
	switch op {
	case "after":
		return a.After(b)
	case "before":
		return a.Before(b)
	case "not-after":
		return !a.After(b)
	case "not-before":
		return !a.Before(b)
	}
	return false
}

func applyReduce(args []any, data any) (any, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("reduce needs exactly 3 operands")
	}
	source, err := apply(args[0], data)
	if err != nil {
		return nil, err
	}
	accumulator, err := apply(args[2], data)
	if err != nil {
		return nil, err
	}
	list, ok := source.([]any)
	if !ok {
		if source == nil {
			return accumulator, nil
		}
		return nil, fmt.Errorf("reduce needs an array")
	}
	for _, current := range list {
		accumulator, err = apply(args[1], map[string]any{
			"current":     current,
			"accumulator": accumulator,
		})
		if err != nil {
			return nil, err
		}
	}
	return accumulator, nil
}

func applyExtractFromUVCI(args []any, data any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("extractFromUVCI needs exactly 2 operands")
	}
	v, err := apply(args[0], data)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	uvci, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("extractFromUVCI needs a string")
	}
	idx, ok := args[1].(float64)
	if !ok {
		return nil, fmt.Errorf("extractFromUVCI index must be a number")
	}

	fragments := strings.Split(strings.TrimPrefix(uvci, "URN:UVCI:"), "/")
	i := int(idx)
	if i < 0 || i >= len(fragments) {
		return nil, nil
	}
	return fragments[i], nil
}

// asTime accepts the date and datetime formats certificates carry.
func asTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("unparseable datetime %q", t)
	}
	return time.Time{}, fmt.Errorf("expected a datetime, got %T", v)
}

func isTruthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

func jsonEqual(a, b any) bool {
	ar, errA := json.Marshal(a)
	br, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ar) == string(br)
}
