package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultHopTimeout bounds a single backend attempt when neither the call
// options nor the backend configure one.
const DefaultHopTimeout = 5 * time.Minute

// Dispatcher routes an abstract step-execution request to a concrete backend
// and walks the fallback chain on failure. Dispatch never returns an error:
// an exhausted chain is reported as a Result with Success=false so the
// caller can record it as data and later steps can branch on it.
type Dispatcher struct {
	registry *Registry
	logger   *zap.Logger

	// limiters throttles calls per backend name. Nil entries mean unlimited.
	limiters map[string]*rate.Limiter

	// onHop, when set, observes every attempted hop. Used for metrics.
	onHop func(backend string, success bool, elapsed time.Duration)
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *Registry, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		registry: registry,
		logger:   logger.With(zap.String("component", "dispatcher")),
		limiters: make(map[string]*rate.Limiter),
	}
}

// SetRateLimit throttles a backend to n calls per second with the given
// burst. Intended for the premium tier where provider quotas apply. Limits
// must be configured before the dispatcher starts serving; the limiter map
// is not guarded against concurrent mutation.
func (d *Dispatcher) SetRateLimit(backend string, perSecond float64, burst int) {
	d.limiters[backend] = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// SetHopObserver registers a callback invoked after every hop attempt.
func (d *Dispatcher) SetHopObserver(fn func(backend string, success bool, elapsed time.Duration)) {
	d.onHop = fn
}

// Dispatch resolves the agent hint against the given signals, then tries the
// resolved backend followed by the registry's fallback chain, one attempt
// per hop, in order. The first complete result wins. If every hop fails the
// returned Result has Success=false and Output holds the per-hop diagnostics.
func (d *Dispatcher) Dispatch(ctx context.Context, hint, prompt string, signals []string, opts Options) *Result {
	ctx, span := otel.Tracer("adwflow/dispatch").Start(ctx, "dispatch")
	defer span.End()

	resolved := ResolveHint(hint, signals)
	span.SetAttributes(
		attribute.String("dispatch.hint", hint),
		attribute.String("dispatch.resolved", resolved),
	)

	attempts := d.attemptOrder(resolved)
	if len(attempts) == 0 {
		d.logger.Error("no backend registered for hint", zap.String("hint", hint))
		return &Result{Success: false, Exhausted: true, Output: fmt.Sprintf("no backend registered for hint %q", hint)}
	}

	var failures []string
	for _, name := range attempts {
		backend, ok := d.registry.Get(name)
		if !ok {
			failures = append(failures, fmt.Sprintf("%s: not registered", name))
			continue
		}

		if lim := d.limiters[name]; lim != nil {
			if err := lim.Wait(ctx); err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", name, err))
				continue
			}
		}

		res, err := d.attempt(ctx, backend, prompt, opts)
		if err == nil {
			res.Backend = name
			d.logger.Debug("dispatch succeeded",
				zap.String("backend", name),
				zap.Int("total_tokens", res.Tokens.TotalTokens),
			)
			return res
		}

		d.logger.Warn("backend hop failed, falling through",
			zap.String("backend", name),
			zap.Error(err),
		)
		failures = append(failures, fmt.Sprintf("%s: %v", name, err))
	}

	return &Result{
		Success:   false,
		Exhausted: true,
		Output:    "all backends exhausted: " + strings.Join(failures, "; "),
	}
}

// attempt runs a single hop under its own timeout.
func (d *Dispatcher) attempt(ctx context.Context, backend Backend, prompt string, opts Options) (*Result, error) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultHopTimeout
	}
	hopCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	res, err := backend.Execute(hopCtx, prompt, opts)
	elapsed := time.Since(start)

	if d.onHop != nil {
		d.onHop(backend.Name(), err == nil, elapsed)
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("backend %s returned no result", backend.Name())
	}
	return res, nil
}

// attemptOrder builds the strict linear hop sequence: the resolved backend
// first, then the chain entries below it. A premium hint degrades
// premium -> generic -> cli; a hint naming the lowest chain entry gets a
// single attempt with nothing to fall back to.
func (d *Dispatcher) attemptOrder(resolved string) []string {
	var order []string
	if _, ok := d.registry.Get(resolved); ok {
		order = append(order, resolved)
	}

	chain := d.registry.FallbackChain()
	from := 0
	for i, name := range chain {
		if name == resolved {
			from = i + 1
			break
		}
	}
	for _, name := range chain[from:] {
		if name != resolved {
			order = append(order, name)
		}
	}
	return order
}
