// Package validation defines the validation-runner collaborator contract
// and the closed-loop retry helper that turns "run checks once" into
// "verify, repair, re-verify".
package validation

import (
	"context"
	"strings"
)

// CheckResult is the outcome of one individual check.
type CheckResult struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

// Report aggregates a validation pass.
type Report struct {
	AllPassed    bool          `json:"all_passed"`
	ErrorSummary string        `json:"error_summary,omitempty"`
	Results      []CheckResult `json:"results"`
}

// Summarize builds an ErrorSummary from the failing results.
func (r *Report) Summarize() {
	var failed []string
	for _, res := range r.Results {
		if !res.Passed {
			failed = append(failed, res.Name+": "+res.Message)
		}
	}
	r.AllPassed = len(failed) == 0
	r.ErrorSummary = strings.Join(failed, "\n")
}

// Runner is the external validation collaborator: it executes lint,
// type-check, and test suites and reports structured results. The engine
// has no opinion on what the checks are.
type Runner interface {
	ValidateFiles(ctx context.Context, paths []string) (*Report, error)
	ValidateAll(ctx context.Context) (*Report, error)
}
