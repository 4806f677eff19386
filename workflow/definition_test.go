package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/adwhq/adwflow/types"
)

const sampleDefinition = `
name: detect_and_fix
steps:
  - name: detect
    agent: premium
    prompt: "Find the root cause of issue {{issue_id}}"
    load_expert: debugging
  - name: fix
    agent: premium|generic
    prompt: "Apply a fix for: {{detect.output}}"
    depends_on: [detect]
    condition: detect.success
    model: fast-large
    validation:
      - fix.success
    on_failure:
      retry: true
      max_attempts: 3
  - name: review
    agent: generic
    prompt: "Review {{item}}"
    depends_on: [fix]
    for_each: fix.items
    on_failure:
      continue: true
`

func TestParseDefinition(t *testing.T) {
	def, err := ParseDefinition([]byte(sampleDefinition))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if def.Name != "detect_and_fix" || len(def.Steps) != 3 {
		t.Fatalf("def = %s with %d steps", def.Name, len(def.Steps))
	}

	fix, ok := def.Step("fix")
	if !ok {
		t.Fatal("step fix not found")
	}
	if fix.Agent != "premium|generic" || fix.Condition != "detect.success" || fix.Model != "fast-large" {
		t.Errorf("fix = %+v", fix)
	}
	if fix.OnFailure == nil || !fix.OnFailure.Retry || fix.OnFailure.MaxAttempts != 3 {
		t.Errorf("fix.on_failure = %+v", fix.OnFailure)
	}
	if len(fix.Validation) != 1 || fix.Validation[0] != "fix.success" {
		t.Errorf("fix.validation = %v", fix.Validation)
	}

	review, _ := def.Step("review")
	if review.ForEach != "fix.items" || review.OnFailure == nil || !review.OnFailure.Continue {
		t.Errorf("review = %+v", review)
	}

	detect, _ := def.Step("detect")
	if detect.LoadExpert != "debugging" {
		t.Errorf("detect.load_expert = %q", detect.LoadExpert)
	}

	if _, ok := def.Step("ghost"); ok {
		t.Error("unknown step reported found")
	}
}

func TestParseDefinition_Invalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		code types.ErrorCode
	}{
		{
			"malformed yaml",
			"name: [unclosed",
			types.ErrDefinitionLoad,
		},
		{
			"missing name",
			"steps:\n  - name: a\n    agent: x\n    prompt: p\n",
			types.ErrDefinitionLoad,
		},
		{
			"no steps",
			"name: empty\n",
			types.ErrDefinitionLoad,
		},
		{
			"unnamed step",
			"name: w\nsteps:\n  - agent: x\n    prompt: p\n",
			types.ErrDefinitionLoad,
		},
		{
			"duplicate step name",
			"name: w\nsteps:\n  - name: a\n    agent: x\n    prompt: p\n  - name: a\n    agent: x\n    prompt: p\n",
			types.ErrDefinitionLoad,
		},
		{
			"unknown dependency",
			"name: w\nsteps:\n  - name: a\n    agent: x\n    prompt: p\n    depends_on: [ghost]\n",
			types.ErrDefinitionLoad,
		},
		{
			"dependency cycle",
			"name: w\nsteps:\n  - name: a\n    agent: x\n    prompt: p\n    depends_on: [b]\n  - name: b\n    agent: x\n    prompt: p\n    depends_on: [a]\n",
			types.ErrCircularDependency,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseDefinition([]byte(tc.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !types.HasCode(err, tc.code) {
				t.Errorf("expected code %s, got %v", tc.code, err)
			}
		})
	}
}

func TestLoadDefinition(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "detect_and_fix.yaml")
	if err := os.WriteFile(path, []byte(sampleDefinition), 0o644); err != nil {
		t.Fatal(err)
	}

	def, err := LoadDefinition(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if def.Name != "detect_and_fix" {
		t.Errorf("name = %q", def.Name)
	}

	_, err = LoadDefinition(filepath.Join(dir, "missing.yaml"))
	if !types.HasCode(err, types.ErrDefinitionLoad) {
		t.Errorf("expected DEFINITION_LOAD for missing file, got %v", err)
	}
}
