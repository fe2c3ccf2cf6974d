package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/invopop/jsonschema"
	"github.com/jmuk/pagecrew/pkg/history"
	"github.com/jmuk/pagecrew/pkg/llm"
	"github.com/jmuk/pagecrew/pkg/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	responses []string
	path      string
	body      map[string]any
}

func (s *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.path = r.URL.Path
	data, _ := io.ReadAll(r.Body)
	s.body = map[string]any{}
	_ = json.Unmarshal(data, &s.body)
	w.Header().Set("Content-Type", "text/event-stream")
	for _, resp := range s.responses {
		fmt.Fprintf(w, "data: %s\n\n", resp)
	}
}

func newTestBackend(t *testing.T, s *fakeServer) *Backend {
	t.Helper()
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	b, err := (&Config{
		ConfigName: "gemini",
		ModelName:  "gemini-test",
		APIKey:     "k",
		Backend:    "BackendGeminiAPI",
		BaseURL:    srv.URL + "/",
	}).NewBackend(context.Background())
	require.NoError(t, err)
	return b
}

func TestStreamTextAndCalls(t *testing.T) {
	s := &fakeServer{responses: []string{
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"thinking","thought":true},{"text":"Delegating "}]}}]}`,
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"now."}]}}]}`,
		`{"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"name":"callAgent","args":{"agent_name":"reviewer"}}},{"functionCall":{"id":"c2","name":"callAgent","args":{"agent_name":"planning"}}}]}}]}`,
	}}
	b := newTestBackend(t, s)
	temp := 1.0
	req := &llm.Request{
		Messages: []history.Message{
			history.System("supervise"),
			history.User("build"),
			history.Assistant("supervisor", "ok"),
			history.System("The artifact 'plan.md' was updated."),
		},
		Tools:       []llm.ToolSchema{{Name: "callAgent", Description: "Call.", Parameters: &jsonschema.Schema{Type: "object"}}},
		ToolChoice:  llm.ToolChoiceNone,
		Temperature: &temp,
	}

	res, err := stream.Aggregate(b.Stream(context.Background(), req), nil)
	require.NoError(t, err)

	assert.Equal(t, "Delegating now.", res.Text)
	assert.Equal(t, []stream.FunctionCall{
		{Index: 0, Name: "callAgent", Arguments: `{"agent_name":"reviewer"}`},
		{Index: 1, ID: "c2", Name: "callAgent", Arguments: `{"agent_name":"planning"}`},
	}, res.Calls)

	assert.True(t, strings.HasSuffix(s.path, "models/gemini-test:streamGenerateContent"), s.path)
	contents := s.body["contents"].([]any)
	require.Len(t, contents, 3)
	var roles []any
	for _, c := range contents {
		roles = append(roles, c.(map[string]any)["role"])
	}
	assert.Equal(t, []any{"user", "model", "user"}, roles)
	sys := s.body["systemInstruction"].(map[string]any)["parts"].([]any)[0].(map[string]any)
	assert.Equal(t, "supervise", sys["text"])
	mode := s.body["toolConfig"].(map[string]any)["functionCallingConfig"].(map[string]any)["mode"]
	assert.Equal(t, "NONE", mode)
}

func TestStreamImage(t *testing.T) {
	s := &fakeServer{responses: []string{`{"candidates":[{"content":{"role":"model","parts":[{"text":"ok"}]}}]}`}}
	b := newTestBackend(t, s)
	msg, _ := history.UserInput("copy", &history.Blob{Data: []byte("png"), MimeType: "image/png"})

	_, err := stream.Aggregate(b.Stream(context.Background(), &llm.Request{
		Messages: []history.Message{history.System("p"), msg},
	}), nil)
	require.NoError(t, err)

	parts := s.body["contents"].([]any)[0].(map[string]any)["parts"].([]any)
	require.Len(t, parts, 2)
	inline := parts[1].(map[string]any)["inlineData"].(map[string]any)
	assert.Equal(t, "image/png", inline["mimeType"])
	assert.Equal(t, "cG5n", inline["data"])
	assert.NotContains(t, s.body, "toolConfig")
}

func TestConfigKeyFromEnv(t *testing.T) {
	t.Setenv("PAGECREW_TEST_GEMINI_KEY", "")
	_, err := (&Config{ConfigName: "g", ModelName: "m", APIKeyFromEnv: "PAGECREW_TEST_GEMINI_KEY"}).NewBackend(context.Background())
	assert.ErrorContains(t, err, "PAGECREW_TEST_GEMINI_KEY")
}
