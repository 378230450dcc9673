package challenge

import (
	"strings"
)

// Gas costs, grounded on verification.py's ChallengeVerifier constants.
const (
	gasBase                  = 1000
	gasPerField              = 100
	gasPerCitation           = 200
	gasContradictionAnalysis = 5000
)

// VerificationResult is one verifier's deterministic judgment of a
// submitted proof, grounded on verification.py's VerificationResult
// dataclass.
type VerificationResult struct {
	IsValid  bool
	GasUsed  int64
	Reason   string
	Evidence map[string]interface{}
}

// Verifier runs the gas-metered, deterministic checks for each proof
// type, grounded on verification.py's ChallengeVerifier.
type Verifier struct {
	gasLimit int64
}

func NewVerifier(gasLimit int64) *Verifier {
	if gasLimit <= 0 {
		gasLimit = MaxGasEstimate
	}
	return &Verifier{gasLimit: gasLimit}
}

func (v *Verifier) cap(gas int64) int64 {
	if gas > v.gasLimit {
		return v.gasLimit
	}
	return gas
}

// VerifyProof dispatches to the verifier matching p.ProofType.
func (v *Verifier) VerifyProof(p Proof, commitData map[string]interface{}) VerificationResult {
	switch p.ProofType {
	case ProofSchemaViolation:
		return v.verifySchemaViolation(p.Metadata)
	case ProofMissingCitation:
		return v.verifyMissingCitation(p.Metadata)
	case ProofSemanticContradiction:
		return v.verifySemanticContradiction(p.Metadata)
	case ProofOutputMismatch:
		return v.verifyOutputMismatch(p.Metadata)
	case ProofPolicyBreach:
		return v.verifyPolicyBreach(p.Metadata)
	default:
		return VerificationResult{IsValid: false, Reason: "unknown proof type"}
	}
}

func stringSlice(v interface{}) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func mapField(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return nil
}

// checkType mirrors verification.py's _check_type: unknown expected
// types are permissive (always pass).
func checkType(value interface{}, expectedType string) bool {
	switch strings.ToLower(expectedType) {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case int, int64, float64:
			return true
		}
		return false
	case "integer":
		switch value.(type) {
		case int, int64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	default:
		return true
	}
}

// verifySchemaViolation checks claimed schema violations against an
// expected_schema/actual_output pair in the proof's evidence metadata.
func (v *Verifier) verifySchemaViolation(evidence map[string]interface{}) VerificationResult {
	schema := mapField(evidence["expected_schema"])
	actual := mapField(evidence["actual_output"])
	claimed := stringSlice(evidence["violations"])

	gas := int64(gasBase) + int64(gasPerField)*int64(len(schema))

	var confirmed []string
	for _, field := range claimed {
		expectedType, hasField := schema[field]
		if !hasField {
			continue
		}
		actualValue, present := actual[field]
		if !present || !checkType(actualValue, expectedType.(string)) {
			confirmed = append(confirmed, field)
		}
	}

	isValid := len(confirmed) > 0
	reason := "No schema violations confirmed"
	if isValid {
		reason = "Confirmed schema violations"
	}
	return VerificationResult{
		IsValid:  isValid,
		GasUsed:  v.cap(gas),
		Reason:   reason,
		Evidence: map[string]interface{}{"confirmed_violations": confirmed},
	}
}

// verifyMissingCitation checks required_citations against
// provided_citations.
func (v *Verifier) verifyMissingCitation(evidence map[string]interface{}) VerificationResult {
	required := stringSlice(evidence["required_citations"])
	provided := make(map[string]bool)
	for _, c := range stringSlice(evidence["provided_citations"]) {
		provided[c] = true
	}

	gas := int64(gasBase) + int64(gasPerCitation)*int64(len(required))

	var missing []string
	for _, c := range required {
		if !provided[c] {
			missing = append(missing, c)
		}
	}

	isValid := len(missing) > 0
	reason := "All required citations present"
	if isValid {
		reason = "Missing required citations found"
	}
	return VerificationResult{
		IsValid:  isValid,
		GasUsed:  v.cap(gas),
		Reason:   reason,
		Evidence: map[string]interface{}{"missing_citations": missing},
	}
}

// verifySemanticContradiction pairs statements and flags contradictions
// via opposing-keyword + subject-overlap heuristics, grounded on
// verification.py's _detect_simple_contradiction.
func (v *Verifier) verifySemanticContradiction(evidence map[string]interface{}) VerificationResult {
	statements := stringSlice(evidence["statements"])
	gas := int64(gasBase) + int64(gasContradictionAnalysis)

	var contradictions [][2]string
	for i := 0; i < len(statements); i++ {
		for j := i + 1; j < len(statements); j++ {
			if detectSimpleContradiction(statements[i], statements[j]) {
				contradictions = append(contradictions, [2]string{statements[i], statements[j]})
			}
		}
	}

	isValid := len(contradictions) > 0
	reason := "No contradictions detected"
	if isValid {
		reason = "Semantic contradiction confirmed"
	}
	return VerificationResult{
		IsValid:  isValid,
		GasUsed:  v.cap(gas),
		Reason:   reason,
		Evidence: map[string]interface{}{"contradictions": contradictions},
	}
}

var opposingPairs = [][2]string{
	{" is ", " is not "},
	{" true", " false"},
	{" yes", " no"},
	{" correct", " incorrect"},
	{" valid", " invalid"},
}

// detectSimpleContradiction mirrors verification.py exactly: opposing
// keyword pair present across the two statements, plus at least 3 words
// in common (a crude same-subject check).
func detectSimpleContradiction(stmt1, stmt2 string) bool {
	s1, s2 := strings.ToLower(stmt1), strings.ToLower(stmt2)
	for _, pair := range opposingPairs {
		pos, neg := pair[0], pair[1]
		if (strings.Contains(s1, pos) && strings.Contains(s2, neg)) ||
			(strings.Contains(s1, neg) && strings.Contains(s2, pos)) {
			if len(commonWords(s1, s2)) >= 3 {
				return true
			}
		}
	}
	return false
}

func commonWords(a, b string) map[string]bool {
	setA := make(map[string]bool)
	for _, w := range strings.Fields(a) {
		setA[w] = true
	}
	common := make(map[string]bool)
	for _, w := range strings.Fields(b) {
		if setA[w] {
			common[w] = true
		}
	}
	return common
}

// verifyOutputMismatch compares specified_output against actual_output
// field by field.
func (v *Verifier) verifyOutputMismatch(evidence map[string]interface{}) VerificationResult {
	specified := mapField(evidence["specified_output"])
	actual := mapField(evidence["actual_output"])

	gas := int64(gasBase) + int64(gasPerField)*int64(len(specified))

	type mismatch struct {
		Field     string      `json:"field"`
		Specified interface{} `json:"specified"`
		Actual    interface{} `json:"actual"`
	}
	var mismatches []mismatch
	for field, specifiedValue := range specified {
		actualValue := actual[field]
		if specifiedValue != actualValue {
			mismatches = append(mismatches, mismatch{Field: field, Specified: specifiedValue, Actual: actualValue})
		}
	}

	isValid := len(mismatches) > 0
	reason := "Output matches specification"
	if isValid {
		reason = "Output mismatches confirmed"
	}
	return VerificationResult{
		IsValid:  isValid,
		GasUsed:  v.cap(gas),
		Reason:   reason,
		Evidence: map[string]interface{}{"mismatches": mismatches},
	}
}

// verifyPolicyBreach checks a claimed policy_rule/violation_details pair.
// Simplified per verification.py's own comment: production would defer
// to pkg/policy's actual rule engine.
func (v *Verifier) verifyPolicyBreach(evidence map[string]interface{}) VerificationResult {
	gas := int64(gasBase) + int64(gasPerField)*3

	policyRule, _ := evidence["policy_rule"].(string)
	details := mapField(evidence["violation_details"])

	if policyRule == "" {
		return VerificationResult{IsValid: false, GasUsed: v.cap(gas), Reason: "No policy rule specified"}
	}

	isValid := len(details) > 0
	reason := "No policy breach detected"
	if isValid {
		reason = "Policy breach confirmed: " + policyRule
	}
	return VerificationResult{
		IsValid:  isValid,
		GasUsed:  v.cap(gas),
		Reason:   reason,
		Evidence: map[string]interface{}{"policy_rule": policyRule, "details": details},
	}
}
