package workflow

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/adwhq/adwflow/workflow/dsl"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][\w.]*)\s*\}\}`)

// Interpolate substitutes {{placeholder}} references in a prompt template
// against the run context. A placeholder may name an input key, a step
// result field (stepName.field), or a whole step result (stepName), which
// renders as JSON. Unresolvable placeholders render as the empty string so
// a malformed template degrades instead of failing the run.
func Interpolate(template string, vars map[string]any) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		path := placeholderRe.FindStringSubmatch(match)[1]
		return renderValue(dsl.Lookup(path, vars))
	})
}

// renderValue formats a looked-up value for prompt text. Composite values
// are JSON-encoded so a whole step result can be referenced at once.
func renderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return fmt.Sprintf("%t", val)
	case float64, int, int64:
		return fmt.Sprintf("%v", val)
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(raw)
	}
}

// runContext builds the variable map shared by condition evaluation,
// validation gates, and template interpolation: input keys at the top level
// (and under "inputs"), each processed step's result under its step name.
func runContext(run *Run) map[string]any {
	vars := make(map[string]any, len(run.Inputs)+len(run.StepResults)+1)
	inputs := make(map[string]any, len(run.Inputs))
	for k, v := range run.Inputs {
		vars[k] = v
		inputs[k] = v
	}
	vars["inputs"] = inputs
	for name, res := range run.StepResults {
		vars[name] = stepResultVars(res)
	}
	return vars
}

// stepResultVars converts a StepResult to the map shape the expression
// evaluator and templates traverse.
func stepResultVars(res StepResult) map[string]any {
	m := map[string]any{
		"success": res.Success,
		"output":  res.Output,
		"skipped": res.Skipped,
		"tokens":  res.Tokens.TotalTokens,
	}
	if res.Reason != "" {
		m["reason"] = res.Reason
	}
	if res.Error != "" {
		m["error"] = res.Error
	}
	if res.Items != nil {
		items := make([]any, len(res.Items))
		for i, it := range res.Items {
			items[i] = stepResultVars(it)
		}
		m["items"] = items
	}
	return m
}
