package workflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/adwhq/adwflow/types"
)

// Definition is an immutable workflow definition: a named set of steps with
// dependencies. Loaded once, never mutated by a run.
type Definition struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Step is one unit of work in a workflow definition.
type Step struct {
	// Name uniquely identifies the step inside its definition.
	Name string `yaml:"name"`
	// Agent is the backend hint, possibly "a|b|c" alternation.
	Agent string `yaml:"agent"`
	// Prompt is the template interpolated with inputs and prior results.
	Prompt string `yaml:"prompt"`
	// DependsOn lists step names that must be processed first.
	DependsOn []string `yaml:"depends_on,omitempty"`
	// Condition gates execution; false marks the step skipped.
	Condition string `yaml:"condition,omitempty"`
	// ForEach names a dot-path whose value fans the step out per item.
	ForEach string `yaml:"for_each,omitempty"`
	// Validation expressions are checked after the step; any false result
	// fails the whole run.
	Validation []string `yaml:"validation,omitempty"`
	// LoadExpert names a knowledge domain whose context is prepended to
	// the prompt.
	LoadExpert string `yaml:"load_expert,omitempty"`
	// Model overrides the backend's default model for this step.
	Model string `yaml:"model,omitempty"`
	// OnFailure controls dispatch-failure handling.
	OnFailure *OnFailure `yaml:"on_failure,omitempty"`
}

// OnFailure configures what happens when a step's dispatch chain fails.
type OnFailure struct {
	// Retry re-dispatches the step before giving a verdict.
	Retry bool `yaml:"retry,omitempty"`
	// MaxAttempts bounds total dispatch attempts when Retry is set.
	MaxAttempts int `yaml:"max_attempts,omitempty"`
	// Continue records a failed StepResult instead of failing the run.
	Continue bool `yaml:"continue,omitempty"`
}

// LoadDefinition parses a workflow definition document from path and
// validates it. The step graph must have unique names, resolvable
// depends_on references, and no cycles.
func LoadDefinition(path string) (*Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewError(types.ErrDefinitionLoad, fmt.Sprintf("read %s", path)).WithCause(err)
	}
	return ParseDefinition(raw)
}

// ParseDefinition parses and validates a workflow definition from raw YAML.
func ParseDefinition(raw []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return nil, types.NewError(types.ErrDefinitionLoad, "malformed definition").WithCause(err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks the definition invariants.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return types.NewError(types.ErrDefinitionLoad, "definition has no name")
	}
	if len(d.Steps) == 0 {
		return types.NewError(types.ErrDefinitionLoad, fmt.Sprintf("definition %s has no steps", d.Name))
	}

	names := make(map[string]bool, len(d.Steps))
	for _, s := range d.Steps {
		if s.Name == "" {
			return types.NewError(types.ErrDefinitionLoad, fmt.Sprintf("definition %s has an unnamed step", d.Name))
		}
		if names[s.Name] {
			return types.NewError(types.ErrDefinitionLoad, fmt.Sprintf("duplicate step name %q", s.Name)).WithStep(s.Name)
		}
		names[s.Name] = true
	}
	for _, s := range d.Steps {
		for _, dep := range s.DependsOn {
			if !names[dep] {
				return types.NewError(types.ErrDefinitionLoad,
					fmt.Sprintf("step %q depends on unknown step %q", s.Name, dep)).WithStep(s.Name)
			}
		}
	}

	// Resolve also detects cycles; run it here so a bad definition fails
	// at load time rather than at execution time.
	if _, err := Resolve(d.Steps); err != nil {
		return err
	}
	return nil
}

// Step returns the step with the given name.
func (d *Definition) Step(name string) (*Step, bool) {
	for i := range d.Steps {
		if d.Steps[i].Name == name {
			return &d.Steps[i], true
		}
	}
	return nil, false
}
