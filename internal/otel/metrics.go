package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds all OpenIntent metrics instruments.
type Metrics struct {
	AgentRunDuration metric.Float64Histogram
	LLMCallDuration  metric.Float64Histogram
	TokensUsed       metric.Int64Counter
	ToolCallDuration metric.Float64Histogram
	ToolCallErrors   metric.Int64Counter
	StepsExecuted    metric.Int64Counter
	StepRetries      metric.Int64Counter
	DevTasksActive   metric.Int64UpDownCounter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.AgentRunDuration, err = meter.Float64Histogram("openintent.agent.duration",
		metric.WithDescription("Agent run duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.LLMCallDuration, err = meter.Float64Histogram("openintent.llm.duration",
		metric.WithDescription("LLM API call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.TokensUsed, err = meter.Int64Counter("openintent.llm.tokens",
		metric.WithDescription("Total tokens consumed"),
	)
	if err != nil {
		return nil, err
	}

	m.ToolCallDuration, err = meter.Float64Histogram("openintent.tool.duration",
		metric.WithDescription("Tool call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.ToolCallErrors, err = meter.Int64Counter("openintent.tool.errors",
		metric.WithDescription("Tool call error count"),
	)
	if err != nil {
		return nil, err
	}

	m.StepsExecuted, err = meter.Int64Counter("openintent.executor.steps",
		metric.WithDescription("Total plan steps executed"),
	)
	if err != nil {
		return nil, err
	}

	m.StepRetries, err = meter.Int64Counter("openintent.executor.retries",
		metric.WithDescription("Total plan step retry attempts"),
	)
	if err != nil {
		return nil, err
	}

	m.DevTasksActive, err = meter.Int64UpDownCounter("openintent.devtask.active",
		metric.WithDescription("Number of dev tasks currently in flight"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
