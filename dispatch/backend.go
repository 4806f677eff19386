package dispatch

import (
	"context"
	"time"

	"github.com/adwhq/adwflow/types"
)

// Result is the response of one backend execution. A backend call either
// produces a complete Result or the dispatcher falls through to the next
// backend in the chain; partially constructed results never escape.
type Result struct {
	SessionKey string           `json:"session_key,omitempty"`
	Output     string           `json:"output"`
	Tokens     types.TokenUsage `json:"tokens"`
	Success    bool             `json:"success"`
	Backend    string           `json:"backend,omitempty"`

	// Exhausted is set when every hop of the fallback chain failed. A
	// Result with Success=false but Exhausted=false is a completed call
	// whose agent reported failure; callers treat that as data.
	Exhausted bool `json:"exhausted,omitempty"`
}

// Options carries the per-call parameters a backend may honor.
type Options struct {
	// Model overrides the backend's default model identifier.
	Model string
	// WorkDir is an opaque workspace path the backend should execute in.
	// Empty means the process working directory.
	WorkDir string
	// Timeout bounds this single hop. Zero means the backend default.
	Timeout time.Duration
}

// Backend is a concrete execution target reachable through the dispatcher.
// Implementations must never return a partially filled Result: on failure
// they return a non-nil error and the dispatcher records the hop as failed.
type Backend interface {
	// Name returns the identifier the backend is registered under.
	Name() string
	// Execute runs the prompt and returns the complete result.
	Execute(ctx context.Context, prompt string, opts Options) (*Result, error)
}

// Tier orders backends in the fallback chain. Lower tiers are cheaper and
// are only reached when every higher hop has failed.
type Tier int

const (
	TierPremium Tier = iota
	TierGeneric
	TierCLI
)
