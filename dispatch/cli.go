package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adwhq/adwflow/types"
)

// CLIBackendConfig configures the local command-line fallback hop.
type CLIBackendConfig struct {
	// Name is the registry identifier, normally "cli".
	Name string `yaml:"name"`
	// Command is the agent runtime binary, e.g. "claude".
	Command string `yaml:"command"`
	// Args are prepended before the prompt-file flag.
	Args []string `yaml:"args"`
	// Timeout is the default per-call timeout. The CLI hop gets a little
	// longer than the API hops to allow for process spin-up.
	Timeout time.Duration `yaml:"timeout"`
}

// CLIBackend invokes the agent runtime as a subprocess. It is the lowest
// tier of the fallback chain and has no fallback of its own.
//
// The prompt is written to a uniquely named temporary file rather than
// passed on the command line, which sidesteps shell-escaping hazards and
// argument length limits. The file is removed on every exit path.
type CLIBackend struct {
	cfg       CLIBackendConfig
	logger    *zap.Logger
	estimator *tokenEstimator
}

// NewCLIBackend creates the subprocess backend.
func NewCLIBackend(cfg CLIBackendConfig, logger *zap.Logger) *CLIBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "cli"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultHopTimeout + 30*time.Second
	}
	return &CLIBackend{
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "cli_backend")),
		estimator: newTokenEstimator(),
	}
}

func (b *CLIBackend) Name() string { return b.cfg.Name }

// Execute writes the prompt to a temp file, runs the agent command with the
// file path appended, and returns stdout as the output. Token usage is
// estimated because the subprocess does not report it.
func (b *CLIBackend) Execute(ctx context.Context, prompt string, opts Options) (*Result, error) {
	if b.cfg.Command == "" {
		return nil, fmt.Errorf("cli backend has no command configured")
	}

	promptPath := filepath.Join(os.TempDir(), fmt.Sprintf("adwflow-prompt-%s.md", uuid.New().String()))
	if err := os.WriteFile(promptPath, []byte(prompt), 0o600); err != nil {
		return nil, fmt.Errorf("write prompt file: %w", err)
	}
	defer os.Remove(promptPath)

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = b.cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string(nil), b.cfg.Args...), promptPath)
	cmd := exec.CommandContext(ctx, b.cfg.Command, args...)
	if opts.WorkDir != "" {
		cmd.Dir = opts.WorkDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("agent command timed out after %s", timeout)
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("agent command failed: %s", msg)
	}

	output := stdout.String()
	total := b.estimator.Count(prompt) + b.estimator.Count(output)

	b.logger.Debug("cli hop completed",
		zap.String("command", b.cfg.Command),
		zap.Duration("elapsed", elapsed),
		zap.Int("estimated_tokens", total),
	)

	return &Result{
		SessionKey: uuid.New().String(),
		Output:     output,
		Success:    true,
		Tokens:     types.TokenUsage{TotalTokens: total},
	}, nil
}
