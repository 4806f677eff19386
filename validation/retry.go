package validation

import (
	"context"

	"go.uber.org/zap"
)

// RetryConfig bounds the closed validation loop.
type RetryConfig struct {
	// MaxRetries is the number of repair attempts after the first failing
	// pass. Zero means validate once with no repair.
	MaxRetries int
	// OnRetry repairs the workspace given the structured failure summary,
	// typically by re-prompting an agent with the concrete error text.
	OnRetry func(ctx context.Context, attempt int, errorSummary string) error
	// Logger is optional.
	Logger *zap.Logger
}

// WithRetry runs the closed loop: validate, and while failures remain and
// retries are left, invoke the repair callback with the failure summary and
// re-validate. It returns the final report; the error is non-nil only when
// the runner or the repair callback itself errored.
func WithRetry(ctx context.Context, runner Runner, cfg RetryConfig) (*Report, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "validation"))

	report, err := runner.ValidateAll(ctx)
	if err != nil {
		return nil, err
	}

	for attempt := 1; !report.AllPassed && attempt <= cfg.MaxRetries; attempt++ {
		logger.Info("validation failed, attempting repair",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", cfg.MaxRetries),
		)
		if cfg.OnRetry != nil {
			if err := cfg.OnRetry(ctx, attempt, report.ErrorSummary); err != nil {
				return report, err
			}
		}
		report, err = runner.ValidateAll(ctx)
		if err != nil {
			return nil, err
		}
	}

	if report.AllPassed {
		logger.Debug("validation passed")
	} else {
		logger.Warn("validation still failing after retries", zap.Int("retries", cfg.MaxRetries))
	}
	return report, nil
}
