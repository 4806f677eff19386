package dsl

import "testing"

func testVars() map[string]any {
	return map[string]any{
		"detect": map[string]any{
			"success": true,
			"output":  "found 3 issues",
			"tokens":  1200,
		},
		"review": map[string]any{
			"success": false,
			"error":   "timeout",
		},
		"inputs": map[string]any{
			"issue_id": "42",
			"severity": 7,
		},
	}
}

func TestEvaluate(t *testing.T) {
	cases := []struct {
		expr string
		want bool
	}{
		{"detect.success", true},
		{"review.success", false},
		{"!review.success", true},
		{"not review.success", true},
		{"detect.success && !review.success", true},
		{"detect.success and review.success", false},
		{"detect.success or review.success", true},
		{"detect.success || review.success", true},
		{"detect.success == true", true},
		{"review.success == false", true},
		{"detect.success != review.success", true},
		{"inputs.severity > 5", true},
		{"inputs.severity >= 7", true},
		{"inputs.severity < 7", false},
		{"inputs.severity <= 6", false},
		// numeric comparison applies when both sides parse as numbers
		{"inputs.issue_id == 42", true},
		{`detect.output == "found 3 issues"`, true},
		{`detect.output != 'found 3 issues'`, false},
		{`review.error == "timeout"`, true},
		{"(detect.success or review.success) and inputs.severity > 1", true},
		{"inputs.severity > -1", true},
		// missing paths resolve to nil
		{"missing.path", false},
		{"missing.path == null", true},
		{"missing.path != nil", false},
		{"detect.output != null", true},
		// nil orders below every non-nil value
		{"missing.path < 0", true},
		{"", false},
		{"   ", false},
		{"true", true},
		{"false", false},
		{"0", false},
		{"1", true},
		{`""`, false},
		{`"yes"`, true},
	}

	vars := testVars()
	for _, tc := range cases {
		got, err := Evaluate(tc.expr, vars)
		if err != nil {
			t.Errorf("Evaluate(%q) error: %v", tc.expr, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Evaluate(%q) = %v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestEvaluate_Errors(t *testing.T) {
	cases := []string{
		"detect.success &&",
		"(detect.success",
		`"unterminated`,
		"detect.success extra",
		"@bogus",
	}
	for _, expr := range cases {
		if _, err := Evaluate(expr, testVars()); err == nil {
			t.Errorf("Evaluate(%q) expected error, got nil", expr)
		}
	}
}

func TestLookup(t *testing.T) {
	vars := testVars()

	if got := Lookup("detect.output", vars); got != "found 3 issues" {
		t.Errorf("Lookup(detect.output) = %v", got)
	}
	if got := Lookup("inputs.issue_id", vars); got != "42" {
		t.Errorf("Lookup(inputs.issue_id) = %v", got)
	}
	if got := Lookup("detect", vars); got == nil {
		t.Error("Lookup(detect) = nil, want map")
	}
	if got := Lookup("detect.output.deeper", vars); got != nil {
		t.Errorf("Lookup through a leaf = %v, want nil", got)
	}
	if got := Lookup("nope", vars); got != nil {
		t.Errorf("Lookup(nope) = %v, want nil", got)
	}
}
