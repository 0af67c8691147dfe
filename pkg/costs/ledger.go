package costs

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Usage represents token usage accumulated over one turn, across all
// requests issued during the tool-call loop.
type Usage struct {
	InputTokens     int `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens    int `json:"output_tokens" yaml:"output_tokens"`
	ReasoningTokens int `json:"reasoning_tokens,omitempty" yaml:"reasoning_tokens,omitempty"`
}

// Add accumulates another usage report into this one.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.ReasoningTokens += other.ReasoningTokens
}

// Total is a point-in-time read of everything the ledger has accumulated.
type Total struct {
	Usage     Usage   `json:"usage" yaml:"usage"`
	ToolUnits float64 `json:"tool_units" yaml:"tool_units"`
	ToolCalls int     `json:"tool_calls" yaml:"tool_calls"`
}

// Ledger is the per-turn cost accumulator. It tallies raw usage and tool
// cost units; converting units into currency is a pricing collaborator's
// job. All mutators are monotonic: totals never decrease.
type Ledger struct {
	mu        sync.Mutex
	usage     Usage
	toolUnits float64
	toolCalls int
	perTool   map[string]float64
}

func NewLedger() *Ledger {
	return &Ledger{perTool: map[string]float64{}}
}

// AddAPIUsage records token usage reported by the backend for one request.
// Negative counts are a provider bug and are dropped rather than allowed to
// shrink the total.
func (l *Ledger) AddAPIUsage(inputTokens, outputTokens, reasoningTokens int) {
	if inputTokens < 0 || outputTokens < 0 || reasoningTokens < 0 {
		log.Warn().
			Int("input_tokens", inputTokens).
			Int("output_tokens", outputTokens).
			Int("reasoning_tokens", reasoningTokens).
			Msg("ledger: dropping negative usage report")
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.usage.InputTokens += inputTokens
	l.usage.OutputTokens += outputTokens
	l.usage.ReasoningTokens += reasoningTokens
}

// AddToolCost attributes cost units to one tool invocation.
func (l *Ledger) AddToolCost(toolName string, costUnits float64) {
	if costUnits < 0 {
		log.Warn().Str("tool", toolName).Float64("cost_units", costUnits).
			Msg("ledger: dropping negative tool cost")
		costUnits = 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.toolUnits += costUnits
	l.toolCalls++
	l.perTool[toolName] += costUnits
}

// Usage returns a copy of the accumulated token usage.
func (l *Ledger) Usage() Usage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.usage
}

// Total returns a copy of everything accumulated so far.
func (l *Ledger) Total() Total {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Total{Usage: l.usage, ToolUnits: l.toolUnits, ToolCalls: l.toolCalls}
}

// PerTool returns a copy of the per-tool cost breakdown.
func (l *Ledger) PerTool() map[string]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]float64, len(l.perTool))
	for k, v := range l.perTool {
		out[k] = v
	}
	return out
}
