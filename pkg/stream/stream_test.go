package stream

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateScenario(t *testing.T) {
	chunks := []Chunk{
		{ToolCalls: []ToolCallDelta{{Index: 0, Name: "update", Arguments: `{"filename":"plan.md","con`}}},
		{ToolCalls: []ToolCallDelta{{Index: 0, Name: "Artifact", Arguments: `tents":"# Plan"}`}}},
	}

	got, err := Aggregate(FromSlice(chunks), nil)
	require.NoError(t, err)

	want := []FunctionCall{{Index: 0, Name: "updateArtifact", Arguments: `{"filename":"plan.md","contents":"# Plan"}`}}
	if diff := cmp.Diff(want, got.Calls); diff != "" {
		t.Errorf("Aggregate() calls mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, got.Text)
}

func TestAggregateForwardsTextInOrder(t *testing.T) {
	var seen []string
	chunks := []Chunk{{Text: "Hel"}, {Text: ""}, {Text: "lo, "}, {Text: "world"}}

	got, err := Aggregate(FromSlice(chunks), func(s string) { seen = append(seen, s) })
	require.NoError(t, err)

	assert.Equal(t, []string{"Hel", "lo, ", "world"}, seen)
	assert.Equal(t, "Hello, world", got.Text)
	assert.Empty(t, got.Calls)
}

func TestAggregateTextAndToolCallInSameChunk(t *testing.T) {
	chunks := []Chunk{
		{Text: "Saving. ", ToolCalls: []ToolCallDelta{{Index: 0, ID: "call_1", Name: "callAgent", Arguments: `{"agent_`}}},
		{Text: "Done.", ToolCalls: []ToolCallDelta{{Index: 0, Arguments: `name":"planning"}`}}},
	}

	got, err := Aggregate(FromSlice(chunks), nil)
	require.NoError(t, err)

	assert.Equal(t, "Saving. Done.", got.Text)
	assert.Equal(t, []FunctionCall{{Index: 0, ID: "call_1", Name: "callAgent", Arguments: `{"agent_name":"planning"}`}}, got.Calls)
}

func TestAggregateOrdersCallsByIndex(t *testing.T) {
	chunks := []Chunk{
		{ToolCalls: []ToolCallDelta{{Index: 2, Name: "c", Arguments: "{}"}}},
		{ToolCalls: []ToolCallDelta{{Index: 0, Name: "a", Arguments: "{"}, {Index: 1, Name: "b", Arguments: "{}"}}},
		{ToolCalls: []ToolCallDelta{{Index: 0, Arguments: "}"}}},
	}

	got, err := Aggregate(FromSlice(chunks), nil)
	require.NoError(t, err)

	var names []string
	for _, c := range got.Calls {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
	assert.Equal(t, "{}", got.Calls[0].Arguments)
}

func TestAggregateStreamFailure(t *testing.T) {
	broken := errors.New("connection reset")
	chunks := func(yield func(Chunk, error) bool) {
		if !yield(Chunk{Text: "partial ", ToolCalls: []ToolCallDelta{{Index: 0, Name: "callAgent"}}}, nil) {
			return
		}
		yield(Chunk{}, broken)
	}

	got, err := Aggregate(chunks, nil)
	assert.ErrorIs(t, err, broken)
	require.NotNil(t, got)
	assert.Equal(t, "partial ", got.Text)
	assert.Empty(t, got.Calls, "calls must not be finalized before the stream ends")
}

// split cuts a reference response into chunks at random boundaries.
func split(r *rand.Rand, text string, calls []FunctionCall) []Chunk {
	var chunks []Chunk
	cut := func(s string) []string {
		var pieces []string
		for len(s) > 0 {
			n := 1 + r.IntN(len(s))
			pieces = append(pieces, s[:n])
			s = s[n:]
		}
		return pieces
	}
	for _, piece := range cut(text) {
		chunks = append(chunks, Chunk{Text: piece})
	}
	for _, c := range calls {
		names := cut(c.Name)
		args := cut(c.Arguments)
		// position of the latest fragment of c; later fragments must follow it.
		last := -1
		for i := 0; i < max(len(names), len(args)); i++ {
			d := ToolCallDelta{Index: c.Index}
			if i == 0 {
				d.ID = c.ID
			}
			if i < len(names) {
				d.Name = names[i]
			}
			if i < len(args) {
				d.Arguments = args[i]
			}
			// interleave with an existing chunk now and then.
			if free := len(chunks) - last - 1; free > 0 && r.IntN(3) == 0 {
				j := last + 1 + r.IntN(free)
				chunks[j].ToolCalls = append(chunks[j].ToolCalls, d)
				last = j
				continue
			}
			chunks = append(chunks, Chunk{ToolCalls: []ToolCallDelta{d}})
			last = len(chunks) - 1
		}
	}
	return chunks
}

func TestAggregateSplitInvariance(t *testing.T) {
	text := "I will save the plan and then hand over to the engineer."
	calls := []FunctionCall{
		{Index: 0, ID: "call_a", Name: "updateArtifact", Arguments: `{"filename":"plan.md","contents":"# Overview\n- [ ] 1. header"}`},
		{Index: 1, ID: "call_b", Name: "callAgent", Arguments: `{"agent_name":"implementation"}`},
	}
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 200; i++ {
		chunks := split(r, text, calls)
		got, err := Aggregate(FromSlice(chunks), nil)
		require.NoError(t, err)
		assert.Equal(t, text, got.Text)
		if diff := cmp.Diff(calls, got.Calls); diff != "" {
			t.Fatalf("iteration %d: calls mismatch (-want +got):\n%s", i, diff)
		}
	}
}
