package executor

import (
	"reflect"
	"testing"
)

func TestResolveArgumentsNested(t *testing.T) {
	outputs := map[int]string{0: "alpha", 2: "gamma"}
	args := map[string]any{
		"plain":  "{{step_0.output}}",
		"mixed":  "see {{step_0.output}} and {{step_2.output}}",
		"number": 42,
		"nested": map[string]any{"inner": "{{step_2.output}}"},
		"list":   []any{"{{step_0.output}}", true},
	}

	got := resolveArguments(args, outputs)
	want := map[string]any{
		"plain":  "alpha",
		"mixed":  "see alpha and gamma",
		"number": 42,
		"nested": map[string]any{"inner": "gamma"},
		"list":   []any{"alpha", true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestResolveArgumentsUnknownStepStaysLiteral(t *testing.T) {
	got := resolveArguments(map[string]any{"x": "{{step_9.output}}"}, map[int]string{})
	if got["x"] != "{{step_9.output}}" {
		t.Fatalf("got %v", got["x"])
	}
}

func TestResolveArgumentsNil(t *testing.T) {
	if got := resolveArguments(nil, map[int]string{0: "x"}); got != nil {
		t.Fatalf("got %v", got)
	}
}

func TestReferencedSteps(t *testing.T) {
	args := map[string]any{
		"a": "{{step_1.output}}",
		"b": []any{"{{step_3.output}} {{step_1.output}}"},
		"c": 7,
	}
	got := referencedSteps(args)
	seen := make(map[int]bool)
	for _, idx := range got {
		seen[idx] = true
	}
	if !seen[1] || !seen[3] || len(got) != 3 {
		t.Fatalf("got %v", got)
	}
}
