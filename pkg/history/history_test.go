package history

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForAgentReplacesLeadingSystemMessage(t *testing.T) {
	h := New(nil, System("you are a pirate"), User("hello"))

	msgs := h.ForAgent("you are a planner")

	want := []Message{System("you are a planner"), User("hello")}
	if diff := cmp.Diff(want, msgs); diff != "" {
		t.Errorf("ForAgent() mismatch (-want +got):\n%s", diff)
	}
	// the shared copy is untouched.
	assert.Equal(t, System("you are a pirate"), h.At(0))
}

func TestForAgentPrependsWithoutSystemMessage(t *testing.T) {
	h := New(nil, User("hello"))

	msgs := h.ForAgent("prompt")

	require.Len(t, msgs, 2)
	assert.Equal(t, System("prompt"), msgs[0])
	assert.Equal(t, User("hello"), msgs[1])
	assert.Equal(t, 1, h.Len())
}

func TestMessagesReturnsCopy(t *testing.T) {
	img := &Blob{Data: []byte{1, 2, 3}, MimeType: "image/png"}
	msg, _ := UserInput("look", img)
	h := New(nil, msg)

	got := h.Messages()
	got[0].Parts[0].Text = "mutated"

	assert.Equal(t, "look", h.At(0).Parts[0].Text)
	assert.Equal(t, 1, h.Len())
}

func TestUserInputKeepsFirstImage(t *testing.T) {
	first := &Blob{Data: []byte("a"), MimeType: "image/png"}
	second := &Blob{Data: []byte("b"), MimeType: "image/jpeg"}

	msg, dropped := UserInput("build this", first, second)

	assert.Equal(t, 1, dropped)
	require.Len(t, msg.Parts, 2)
	assert.Equal(t, "build this", msg.Parts[0].Text)
	assert.Same(t, first, msg.Parts[1].Image)
	assert.Equal(t, "build this", msg.Content())

	plain, dropped := UserInput("just text")
	assert.Zero(t, dropped)
	assert.False(t, plain.Multimodal())
}

func TestDataURL(t *testing.T) {
	b := &Blob{Data: []byte("hi"), MimeType: "image/jpeg"}
	assert.Equal(t, "data:image/jpeg;base64,aGk=", b.DataURL())
}

func TestFileRecorderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	rec, err := NewFileRecorder(path)
	require.NoError(t, err)

	img := &Blob{Data: []byte{0xff, 0xd8}, MimeType: "image/jpeg"}
	input, _ := UserInput("page", img)
	h := New(rec)
	require.NoError(t, h.Append(input, Assistant("supervisor", "on it"), System("The artifact 'plan.md' was updated.")))
	require.NoError(t, rec.Close())

	loaded, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(h.Messages(), loaded); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMissingFile(t *testing.T) {
	msgs, err := Load(filepath.Join(t.TempDir(), "nope.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
