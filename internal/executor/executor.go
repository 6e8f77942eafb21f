// Package executor runs a plan's steps in dependency waves: every step whose
// dependencies are resolved executes concurrently with the rest of its wave,
// failures propagate to dependents as skips, and independent subgraphs keep
// going.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/openintentos/openintent/internal/bus"
	"github.com/openintentos/openintent/internal/plan"
	"github.com/openintentos/openintent/internal/tools"
)

// Config tunes per-step retry and timeout behavior. Zero values take the
// defaults below; MaxRetries is a pointer so an explicit 0 still means "run
// once, never retry".
type Config struct {
	MaxRetries        *int          // extra attempts after the first (nil defaults to 2)
	InitialRetryDelay time.Duration // default 500ms
	BackoffFactor     float64       // default 2.0
	MaxRetryDelay     time.Duration // default 10s
	StepTimeout       time.Duration // per attempt (default 60s)
}

// Retries builds the MaxRetries field for a Config literal.
func Retries(n int) *int { return &n }

func (c Config) withDefaults() Config {
	if c.MaxRetries == nil {
		c.MaxRetries = Retries(2)
	}
	if c.InitialRetryDelay <= 0 {
		c.InitialRetryDelay = 500 * time.Millisecond
	}
	if c.BackoffFactor <= 0 {
		c.BackoffFactor = 2.0
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = 10 * time.Second
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = 60 * time.Second
	}
	return c
}

// Executor schedules plan steps against the adapter registry.
type Executor struct {
	registry *tools.Registry
	cfg      Config
	retries  int
	bus      *bus.Bus
	logger   *slog.Logger
}

// New builds an executor. The bus may be nil.
func New(registry *tools.Registry, cfg Config, eventBus *bus.Bus, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Executor{
		registry: registry,
		cfg:      cfg,
		retries:  *cfg.MaxRetries,
		bus:      eventBus,
		logger:   logger,
	}
}

// ExecutePlan runs every step of p and returns one result per step, sorted by
// step index. The returned error covers scheduling problems (invalid plan,
// dependency cycle, cancellation); individual step failures live in the
// results.
func (e *Executor) ExecutePlan(ctx context.Context, p *plan.Plan) ([]plan.StepResult, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	if len(p.Steps) == 0 {
		return []plan.StepResult{}, nil
	}

	ctx, span := otel.Tracer("openintent").Start(ctx, "executor.plan")
	span.SetAttributes(attribute.Int("plan.steps", len(p.Steps)))
	defer span.End()

	executed := make(map[int]plan.StepResult, len(p.Steps))
	outputs := make(map[int]string)
	waves := 0

	for len(executed) < len(p.Steps) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		wave := e.eligibleSteps(p, executed)
		if len(wave) == 0 {
			// No progress possible. With a failure upstream the remainder is
			// unreachable; without one the plan has a cycle.
			if !anyFailureOrSkip(executed) {
				return nil, fmt.Errorf("plan contains a dependency cycle")
			}
			for _, step := range p.Steps {
				if _, done := executed[step.Index]; !done {
					executed[step.Index] = plan.StepResult{
						StepIndex: step.Index,
						Status:    plan.StepSkipped,
						Error:     "unreachable due to failed dependency",
					}
				}
			}
			break
		}

		waves++
		e.logger.Debug("executing wave", "wave", waves, "steps", len(wave))
		results := make([]plan.StepResult, len(wave))
		g, waveCtx := errgroup.WithContext(ctx)
		for i, step := range wave {
			// Skips are decided from pre-wave state, so compute them here and
			// only launch runnable steps.
			if reason, skip := e.skipReason(step, executed); skip {
				results[i] = plan.StepResult{StepIndex: step.Index, Status: plan.StepSkipped, Error: reason}
				continue
			}
			i, step := i, step
			resolved := resolveArguments(step.Arguments, outputs)
			g.Go(func() error {
				results[i] = e.executeStep(waveCtx, step, resolved)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		for _, res := range results {
			executed[res.StepIndex] = res
			if res.Status == plan.StepCompleted {
				outputs[res.StepIndex] = res.Output
			}
			e.publishStep(res)
		}
	}

	out := make([]plan.StepResult, 0, len(executed))
	for _, res := range executed {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepIndex < out[j].StepIndex })
	span.SetAttributes(attribute.Int("plan.waves", waves))
	return out, nil
}

// eligibleSteps returns unexecuted steps whose dependencies are all resolved,
// meaning completed or failed. A skipped dependency keeps its dependents
// blocked; those surface as unreachable at termination.
func (e *Executor) eligibleSteps(p *plan.Plan, executed map[int]plan.StepResult) []plan.Step {
	var wave []plan.Step
	for _, step := range p.Steps {
		if _, done := executed[step.Index]; done {
			continue
		}
		ready := true
		for _, dep := range step.DependsOn {
			res, done := executed[dep]
			if !done || (res.Status != plan.StepCompleted && res.Status != plan.StepFailed) {
				ready = false
				break
			}
		}
		if ready {
			wave = append(wave, step)
		}
	}
	return wave
}

// skipReason decides whether a step must be skipped instead of run: a failed
// dependency, or a completed dependency that recorded no output for a
// placeholder to consume.
func (e *Executor) skipReason(step plan.Step, executed map[int]plan.StepResult) (string, bool) {
	for _, dep := range step.DependsOn {
		if executed[dep].Status == plan.StepFailed {
			return "skipped due to failed dependency", true
		}
	}
	for _, dep := range referencedSteps(step.Arguments) {
		if res, done := executed[dep]; done && res.Status == plan.StepCompleted && res.Output == "" {
			return fmt.Sprintf("dependency step %d has no output", dep), true
		}
	}
	return "", false
}

// executeStep runs one step with per-attempt timeout and exponential backoff.
func (e *Executor) executeStep(ctx context.Context, step plan.Step, args map[string]any) plan.StepResult {
	ctx, span := otel.Tracer("openintent").Start(ctx, "executor.step")
	span.SetAttributes(
		attribute.Int("step.index", step.Index),
		attribute.String("step.tool", step.ToolName),
	)
	defer span.End()

	if _, ok := e.registry.FindByTool(step.ToolName); !ok {
		return plan.StepResult{
			StepIndex: step.Index,
			Status:    plan.StepFailed,
			Error:     fmt.Sprintf("no adapter found for tool `%s`", step.ToolName),
		}
	}

	delay := e.cfg.InitialRetryDelay
	var lastErr error
	for attempt := 1; attempt <= e.retries+1; attempt++ {
		output, err := e.runAttempt(ctx, step, args)
		if err == nil {
			return plan.StepResult{
				StepIndex: step.Index,
				Status:    plan.StepCompleted,
				Output:    output,
				Attempts:  attempt,
			}
		}
		lastErr = err
		e.logger.Warn("step attempt failed",
			"step", step.Index, "tool", step.ToolName, "attempt", attempt, "error", err)

		if attempt <= e.retries {
			select {
			case <-ctx.Done():
				return plan.StepResult{
					StepIndex: step.Index,
					Status:    plan.StepFailed,
					Error:     ctx.Err().Error(),
					Attempts:  attempt,
				}
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * e.cfg.BackoffFactor)
			if delay > e.cfg.MaxRetryDelay {
				delay = e.cfg.MaxRetryDelay
			}
		}
	}
	return plan.StepResult{
		StepIndex: step.Index,
		Status:    plan.StepFailed,
		Error:     lastErr.Error(),
		Attempts:  e.retries + 1,
	}
}

func (e *Executor) runAttempt(ctx context.Context, step plan.Step, args map[string]any) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.StepTimeout)
	defer cancel()
	output, err := e.registry.Execute(attemptCtx, step.ToolName, args)
	if err != nil {
		if attemptCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("step %d timed out after %s", step.Index, e.cfg.StepTimeout)
		}
		return "", err
	}
	return output, nil
}

func anyFailureOrSkip(executed map[int]plan.StepResult) bool {
	for _, res := range executed {
		if res.Status == plan.StepFailed || res.Status == plan.StepSkipped {
			return true
		}
	}
	return false
}

func (e *Executor) publishStep(res plan.StepResult) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(bus.TopicExecutorStep, bus.ExecutorStepEvent{
		StepIndex: res.StepIndex,
		Status:    string(res.Status),
		Attempts:  res.Attempts,
	})
}
