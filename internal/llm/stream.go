package llm

import (
	"sort"
	"strings"
)

// toolCallAccumulator assembles streamed tool calls whose argument JSON
// arrives in fragments keyed by a block/choice index. finish drains the
// remaining builders in index order.
type toolCallAccumulator struct {
	builders map[int]*toolCallBuilder
	done     map[int]bool
}

type toolCallBuilder struct {
	id   string
	name string
	args strings.Builder
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{
		builders: make(map[int]*toolCallBuilder),
		done:     make(map[int]bool),
	}
}

func (a *toolCallAccumulator) start(index int, id, name string) {
	b, ok := a.builders[index]
	if !ok {
		b = &toolCallBuilder{}
		a.builders[index] = b
	}
	if id != "" {
		b.id = id
	}
	if name != "" {
		b.name = name
	}
}

func (a *toolCallAccumulator) appendArgs(index int, fragment string) {
	b, ok := a.builders[index]
	if !ok {
		b = &toolCallBuilder{}
		a.builders[index] = b
	}
	b.args.WriteString(fragment)
}

// stop closes one builder and returns its assembled call.
func (a *toolCallAccumulator) stop(index int) (ToolCall, bool) {
	b, ok := a.builders[index]
	if !ok || a.done[index] {
		return ToolCall{}, false
	}
	a.done[index] = true
	return b.toolCall(), true
}

// finish returns every call not yet emitted via stop, in index order.
func (a *toolCallAccumulator) finish() []ToolCall {
	var indices []int
	for idx := range a.builders {
		if !a.done[idx] {
			indices = append(indices, idx)
		}
	}
	sort.Ints(indices)

	var out []ToolCall
	for _, idx := range indices {
		a.done[idx] = true
		out = append(out, a.builders[idx].toolCall())
	}
	return out
}

func (b *toolCallBuilder) toolCall() ToolCall {
	args := b.args.String()
	if args == "" {
		args = "{}"
	}
	return ToolCall{ID: b.id, Name: b.name, Arguments: args}
}
