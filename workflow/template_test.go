package workflow

import (
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/adwhq/adwflow/types"
)

func TestInterpolate(t *testing.T) {
	vars := map[string]any{
		"issue_id": "42",
		"inputs":   map[string]any{"issue_id": "42"},
		"detect": map[string]any{
			"success": true,
			"output":  "null pointer in handler",
			"tokens":  1200,
		},
	}

	cases := []struct {
		name     string
		template string
		want     string
	}{
		{"input key", "Fix issue {{issue_id}}", "Fix issue 42"},
		{"inputs path", "Fix issue {{inputs.issue_id}}", "Fix issue 42"},
		{"step field", "Context: {{detect.output}}", "Context: null pointer in handler"},
		{"bool field", "ok={{detect.success}}", "ok=true"},
		{"numeric field", "used {{detect.tokens}}", "used 1200"},
		{"whitespace in braces", "{{ detect.output }}", "null pointer in handler"},
		{"missing renders empty", "before {{no.such.step}} after", "before  after"},
		{"no placeholders", "plain text", "plain text"},
		{"adjacent", "{{issue_id}}{{issue_id}}", "4242"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Interpolate(tc.template, vars); got != tc.want {
				t.Errorf("Interpolate(%q) = %q, want %q", tc.template, got, tc.want)
			}
		})
	}
}

func TestInterpolate_WholeStepRendersJSON(t *testing.T) {
	vars := map[string]any{
		"detect": map[string]any{"success": true, "output": "hi"},
	}
	got := Interpolate("{{detect}}", vars)
	if !strings.Contains(got, `"success":true`) || !strings.Contains(got, `"output":"hi"`) {
		t.Errorf("whole-step placeholder rendered %q", got)
	}
}

func TestRunContext(t *testing.T) {
	run := &Run{
		Inputs: map[string]any{"issue_id": "42"},
		StepResults: map[string]StepResult{
			"detect": {
				Success: true,
				Output:  "found it",
				Tokens:  types.TokenUsage{TotalTokens: 10},
			},
			"skipped_step": {Skipped: true, Reason: "condition not met"},
		},
	}

	vars := runContext(run)

	if vars["issue_id"] != "42" {
		t.Errorf("top-level input missing: %v", vars["issue_id"])
	}
	inputs, ok := vars["inputs"].(map[string]any)
	if !ok || inputs["issue_id"] != "42" {
		t.Errorf("inputs namespace missing: %v", vars["inputs"])
	}

	detect, ok := vars["detect"].(map[string]any)
	if !ok {
		t.Fatalf("detect vars missing: %v", vars["detect"])
	}
	if detect["success"] != true || detect["output"] != "found it" || detect["tokens"] != 10 {
		t.Errorf("detect vars = %v", detect)
	}

	sk, ok := vars["skipped_step"].(map[string]any)
	if !ok || sk["skipped"] != true || sk["reason"] != "condition not met" {
		t.Errorf("skipped vars = %v", vars["skipped_step"])
	}
}

func TestInterpolate_Rapid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		key := rapid.StringMatching(`[a-z_][a-z0-9_]{0,8}`).Draw(t, "key")
		val := rapid.StringMatching(`[^{}]{0,20}`).Draw(t, "val")
		prefix := rapid.StringMatching(`[^{}]{0,10}`).Draw(t, "prefix")
		suffix := rapid.StringMatching(`[^{}]{0,10}`).Draw(t, "suffix")

		vars := map[string]any{key: val}
		got := Interpolate(prefix+"{{"+key+"}}"+suffix, vars)
		want := prefix + val + suffix
		if got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	})
}
