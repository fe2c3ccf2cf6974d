package crew

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/invopop/jsonschema"
	"github.com/jmuk/pagecrew/pkg/artifact"
	"github.com/jmuk/pagecrew/pkg/history"
	"github.com/jmuk/pagecrew/pkg/llm"
	"github.com/jmuk/pagecrew/pkg/llm/scripted"
	"github.com/jmuk/pagecrew/pkg/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type team struct {
	roles *Roles
	crew  *Crew
	store *artifact.MemStore
}

// newTeam builds the default team with one scripted backend per role.
func newTeam(t *testing.T, backends map[string]*scripted.Backend, opts Options) *team {
	t.Helper()
	roles := DefaultRoles(nil)
	for _, r := range roles.All() {
		b, ok := backends[r.Name]
		if !ok {
			b = scripted.New(r.Name)
		}
		r.Backend = b
	}
	store := artifact.NewMemStore(artifact.DefaultExtensions)
	c, err := NewDefault(store, roles, opts)
	require.NoError(t, err)
	return &team{roles: roles, crew: c, store: store}
}

func callAgent(index int, name string) stream.FunctionCall {
	return scripted.Call(index, ToolCallAgent, `{"agent_name":"`+name+`"}`)
}

func contents(t *testing.T, s artifact.Store, name string) string {
	t.Helper()
	got, err := s.Get(name)
	require.NoError(t, err)
	return got
}

func TestUpdateArtifactFromFragments(t *testing.T) {
	impl := scripted.New("impl",
		scripted.Turn{Chunks: []stream.Chunk{
			{ToolCalls: []stream.ToolCallDelta{{Index: 0, Name: "update", Arguments: `{"filename":"plan.md","con`}}},
			{ToolCalls: []stream.ToolCallDelta{{Index: 0, Name: "Artifact", Arguments: `tents":"# Plan"}`}}},
		}},
		scripted.Reply("Saved the plan."),
	)
	tm := newTeam(t, map[string]*scripted.Backend{AgentImplementation: impl}, Options{})
	h := history.New(nil, history.User("go"))

	got, err := tm.crew.Execute(context.Background(), tm.roles.Implementation, h)
	require.NoError(t, err)

	assert.Equal(t, "Saved the plan.", got)
	assert.Equal(t, "# Plan", contents(t, tm.store, "plan.md"))
	assert.Equal(t, []history.Message{
		history.User("go"),
		history.System("The artifact 'plan.md' was updated."),
		history.Assistant(AgentImplementation, "Saved the plan."),
	}, h.Messages())

	reqs := impl.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, llm.ToolChoiceAuto, reqs[0].ToolChoice)
	assert.Equal(t, llm.ToolChoiceNone, reqs[1].ToolChoice, "the follow-up only acknowledges")
	// the follow-up sees the artifact it just wrote.
	assert.Contains(t, reqs[1].Messages[0].Text, "<FILE name='plan.md'>\n# Plan\n</FILE>")
}

func TestSystemPromptIsFirstMessage(t *testing.T) {
	reviewer := scripted.New("reviewer", scripted.Reply("Looks good."))
	tm := newTeam(t, map[string]*scripted.Backend{AgentReviewer: reviewer}, Options{})
	require.NoError(t, tm.store.Put("index.html", "<main></main>"))
	h := history.New(nil, history.System("front end prompt"), history.User("review please"))

	_, err := tm.crew.Execute(context.Background(), tm.roles.Reviewer, h)
	require.NoError(t, err)

	req := reviewer.Requests()[0]
	require.Len(t, req.Messages, 2)
	first := req.Messages[0]
	assert.Equal(t, history.RoleSystem, first.Role)
	assert.True(t, strings.HasPrefix(first.Text, strings.TrimRight(reviewerPrompt, "\n")+"\n<ARTIFACTS>\n"), first.Text)
	assert.True(t, strings.HasSuffix(first.Text, "<FILE name='index.html'>\n<main></main>\n</FILE>\n</ARTIFACTS>"), first.Text)
	assert.Equal(t, history.System("front end prompt"), h.At(0), "the shared history keeps its own system message")
}

func TestReviewerCannotWriteArtifacts(t *testing.T) {
	reviewer := scripted.New("reviewer", scripted.Reply("Needs changes.",
		scripted.Call(0, ToolUpdateArtifact, `{"filename":"index.html","contents":"<p>hacked</p>"}`),
		callAgent(1, AgentImplementation),
	))
	tm := newTeam(t, map[string]*scripted.Backend{AgentReviewer: reviewer}, Options{})
	h := history.New(nil, history.User("review"))

	got, err := tm.crew.Execute(context.Background(), tm.roles.Reviewer, h)
	require.NoError(t, err)

	assert.Equal(t, "Needs changes.", got)
	arts, err := tm.store.List()
	require.NoError(t, err)
	assert.Empty(t, arts)
	assert.Equal(t, 2, h.Len(), "only the review text is appended")
	assert.Equal(t, 0, tm.roles.Implementation.Backend.(*scripted.Backend).Polls())

	req := reviewer.Requests()[0]
	assert.Empty(t, req.Tools)
	assert.Empty(t, req.ToolChoice)
}

var wantRequired = map[string][]string{
	ToolUpdateArtifact: {"filename", "contents"},
	ToolCallAgent:      {"agent_name"},
}

func TestAdvertisedToolsFollowCapability(t *testing.T) {
	for _, tc := range []struct {
		role  func(*Roles) *Role
		tools []string
	}{
		{func(r *Roles) *Role { return r.Supervisor }, []string{ToolCallAgent}},
		{func(r *Roles) *Role { return r.Planning }, []string{ToolUpdateArtifact, ToolCallAgent}},
		{func(r *Roles) *Role { return r.Implementation }, []string{ToolUpdateArtifact}},
		{func(r *Roles) *Role { return r.Reviewer }, nil},
	} {
		b := scripted.New("b", scripted.Reply("ok"))
		tm := newTeam(t, nil, Options{})
		role := tc.role(tm.roles)
		role.Backend = b
		t.Run(role.Name, func(t *testing.T) {
			_, err := tm.crew.Execute(context.Background(), role, history.New(nil, history.User("hi")))
			require.NoError(t, err)
			var names []string
			for _, s := range b.Requests()[0].Tools {
				names = append(names, s.Name)
				require.NotNil(t, s.Parameters)
				assert.Equal(t, "object", s.Parameters.Type)
				assert.Equal(t, wantRequired[s.Name], s.Parameters.Required, s.Name)
				assert.Equal(t, jsonschema.FalseSchema, s.Parameters.AdditionalProperties, s.Name)
			}
			assert.Equal(t, tc.tools, names)
		})
	}
}

func TestSupervisorTerminatesAfterKDelegations(t *testing.T) {
	const k = 3
	var supTurns, revTurns []scripted.Turn
	for i := 0; i < k; i++ {
		supTurns = append(supTurns, scripted.Reply("", callAgent(0, AgentReviewer)))
		revTurns = append(revTurns, scripted.Reply("review"))
	}
	supTurns = append(supTurns, scripted.Reply("All milestones are done."))
	sup := scripted.New("sup", supTurns...)
	rev := scripted.New("rev", revTurns...)
	tm := newTeam(t, map[string]*scripted.Backend{AgentSupervisor: sup, AgentReviewer: rev}, Options{})

	got, err := tm.crew.Run(context.Background(), history.New(nil, history.User("build it")))
	require.NoError(t, err)

	assert.Equal(t, "All milestones are done.", got)
	assert.Equal(t, k+1, sup.Polls())
	assert.Equal(t, k, rev.Polls())
}

func TestSupervisorSeesDelegateResults(t *testing.T) {
	sup := scripted.New("sup",
		scripted.Reply("Asking the architect.", callAgent(0, AgentPlanning)),
		scripted.Reply("Plan is ready."),
	)
	planning := scripted.New("planning",
		scripted.Reply("Here is the plan.", scripted.Call(0, ToolUpdateArtifact, `{"filename":"plan.md","contents":"- [ ] 1. header"}`)),
		scripted.Reply("Saved."),
	)
	tm := newTeam(t, map[string]*scripted.Backend{AgentSupervisor: sup, AgentPlanning: planning}, Options{})
	h := history.New(nil, history.User("build it"))

	_, err := tm.crew.Run(context.Background(), h)
	require.NoError(t, err)

	want := []history.Message{
		history.User("build it"),
		history.Assistant(AgentSupervisor, "Asking the architect."),
		history.System("The supervisor agent delegated the task to the planning agent. Create the plan, or revise it on feedback."),
		history.Assistant(AgentPlanning, "Here is the plan."),
		history.System("The artifact 'plan.md' was updated."),
		history.Assistant(AgentPlanning, "Saved."),
		history.Assistant(AgentSupervisor, "Plan is ready."),
	}
	assert.Equal(t, want, h.Messages())

	second := sup.Requests()[1]
	assert.Equal(t, want[:6], second.Messages[1:], "the supervisor re-polls with everything the planner added")
	assert.Contains(t, second.Messages[0].Text, "- [ ] 1. header")
}

func TestHistoryIsAppendOnlyAcrossDelegations(t *testing.T) {
	sup := scripted.New("sup",
		scripted.Reply("", callAgent(0, AgentImplementation)),
		scripted.Reply("", callAgent(0, AgentReviewer)),
		scripted.Reply("done"),
	)
	impl := scripted.New("impl",
		scripted.Reply("", scripted.Call(0, ToolUpdateArtifact, `{"filename":"index.html","contents":"<h1>hi</h1>"}`),
			scripted.Call(1, ToolUpdateArtifact, `{"filename":"styles.css","contents":"h1{}"}`)),
		scripted.Reply("Implemented milestone 1."),
	)
	rev := scripted.New("rev", scripted.Reply("Approved."))
	tm := newTeam(t, map[string]*scripted.Backend{AgentSupervisor: sup, AgentImplementation: impl, AgentReviewer: rev}, Options{})
	h := history.New(nil, history.System("pirate"), history.User("build"))

	before := h.Messages()
	_, err := tm.crew.Run(context.Background(), h)
	require.NoError(t, err)
	after := h.Messages()

	require.GreaterOrEqual(t, len(after), len(before))
	assert.Equal(t, before, after[:len(before)])
	// every request any role received is a prefix of the final history.
	var snapshots [][]history.Message
	for _, b := range []*scripted.Backend{sup, impl, rev} {
		for _, req := range b.Requests() {
			snapshots = append(snapshots, req.Messages[1:])
		}
	}
	for _, s := range snapshots {
		assert.Equal(t, after[1:1+len(s)], s)
	}
	assert.Equal(t, "<h1>hi</h1>", contents(t, tm.store, "index.html"))
	assert.Equal(t, "h1{}", contents(t, tm.store, "styles.css"))
	assert.Contains(t, after, history.System("Proceed to the next milestone that has not been implemented yet."))
}

func TestSiblingCallsRunInIndexOrder(t *testing.T) {
	planning := scripted.New("planning",
		scripted.Reply("First draft.", scripted.Call(0, ToolUpdateArtifact, `{"filename":"plan.md","contents":"v1"}`)),
		scripted.Reply("ok"),
	)
	rev := scripted.New("rev", scripted.Reply("Reviewed."))
	sup := scripted.New("sup",
		scripted.Turn{Chunks: []stream.Chunk{
			{ToolCalls: []stream.ToolCallDelta{{Index: 1, Name: ToolCallAgent, Arguments: `{"agent_name":"reviewer"}`}}},
			{ToolCalls: []stream.ToolCallDelta{{Index: 0, Name: ToolCallAgent, Arguments: `{"agent_name":"planning"}`}}},
		}},
		scripted.Reply("done"),
	)
	tm := newTeam(t, map[string]*scripted.Backend{AgentSupervisor: sup, AgentPlanning: planning, AgentReviewer: rev}, Options{})

	_, err := tm.crew.Run(context.Background(), history.New(nil, history.User("go")))
	require.NoError(t, err)

	// the reviewer (index 1) ran after the planner (index 0) and saw its work.
	req := rev.Requests()[0]
	assert.Contains(t, req.Messages, history.Assistant(AgentPlanning, "First draft."))
	assert.Contains(t, req.Messages[0].Text, "<FILE name='plan.md'>\nv1\n</FILE>")
}

func TestSoftFailures(t *testing.T) {
	impl := scripted.New("impl",
		scripted.Reply("",
			scripted.Call(0, ToolUpdateArtifact, `{"filename":"plan.md","contents":`),
			scripted.Call(1, ToolUpdateArtifact, `{"filename":"","contents":"x"}`),
			scripted.Call(2, ToolUpdateArtifact, `{"filename":"index.html"}`),
			scripted.Call(3, ToolUpdateArtifact, `{"filename":"../../etc/passwd","contents":"x"}`),
			scripted.Call(4, ToolUpdateArtifact, `{"filename":"`+strings.Repeat("x", 220)+`.md","contents":"x"}`),
			scripted.Call(5, ToolUpdateArtifact, `{"filename":"styles.css","contents":"body{}"}`),
		),
		scripted.Reply("ok"),
	)
	tm := newTeam(t, map[string]*scripted.Backend{AgentImplementation: impl}, Options{})
	h := history.New(nil, history.User("go"))

	_, err := tm.crew.Execute(context.Background(), tm.roles.Implementation, h)
	require.NoError(t, err)

	arts, err := tm.store.List()
	require.NoError(t, err)
	assert.Equal(t, []artifact.Artifact{{Filename: "styles.css", Contents: "body{}"}}, arts)
	assert.Equal(t, []history.Message{
		history.User("go"),
		history.System("The artifact 'styles.css' was updated."),
		history.Assistant(AgentImplementation, "ok"),
	}, h.Messages())
}

func TestUnknownAgentIsIgnored(t *testing.T) {
	sup := scripted.New("sup",
		scripted.Reply("", callAgent(0, "marketing")),
		scripted.Reply("Nobody to call."),
	)
	tm := newTeam(t, map[string]*scripted.Backend{AgentSupervisor: sup}, Options{})
	h := history.New(nil, history.User("go"))

	got, err := tm.crew.Run(context.Background(), h)
	require.NoError(t, err)

	assert.Equal(t, "Nobody to call.", got)
	assert.Equal(t, 2, sup.Polls())
	assert.Equal(t, []history.Message{history.User("go"), history.Assistant(AgentSupervisor, "Nobody to call.")}, h.Messages())
}

func TestTurnBudget(t *testing.T) {
	sup := scripted.New("sup",
		scripted.Reply("", callAgent(0, AgentReviewer)),
		scripted.Reply("", callAgent(0, AgentReviewer)),
		scripted.Reply("", callAgent(0, AgentReviewer)),
	)
	rev := scripted.New("rev", scripted.Reply("a"), scripted.Reply("b"), scripted.Reply("c"))
	tm := newTeam(t, map[string]*scripted.Backend{AgentSupervisor: sup, AgentReviewer: rev}, Options{MaxTurns: 3})

	_, err := tm.crew.Run(context.Background(), history.New(nil, history.User("go")))

	assert.ErrorIs(t, err, ErrTurnBudgetExceeded)
	assert.Equal(t, 3, sup.Polls())
}

func TestDelegationDepth(t *testing.T) {
	sup := scripted.New("sup", scripted.Reply("", callAgent(0, AgentPlanning)))
	planning := scripted.New("planning",
		scripted.Reply("", callAgent(0, AgentPlanning)),
		scripted.Reply("", callAgent(0, AgentPlanning)),
	)
	tm := newTeam(t, map[string]*scripted.Backend{AgentSupervisor: sup, AgentPlanning: planning}, Options{MaxDepth: 2})

	_, err := tm.crew.Run(context.Background(), history.New(nil, history.User("go")))

	assert.ErrorIs(t, err, ErrDepthExceeded)
	assert.Equal(t, 2, planning.Polls())
}

func TestStreamFailureKeepsPartialText(t *testing.T) {
	broken := errors.New("stream dropped")
	sup := scripted.New("sup", scripted.Turn{
		Chunks: []stream.Chunk{{Text: "Let me "}, {Text: "think", ToolCalls: []stream.ToolCallDelta{{Index: 0, Name: ToolCallAgent}}}},
		Err:    broken,
	})
	tm := newTeam(t, map[string]*scripted.Backend{AgentSupervisor: sup}, Options{})
	h := history.New(nil, history.User("go"))

	got, err := tm.crew.Run(context.Background(), h)

	assert.ErrorIs(t, err, broken)
	assert.Equal(t, "Let me think", got)
	assert.Equal(t, history.Assistant(AgentSupervisor, "Let me think"), h.At(h.Len()-1))
}

type recordingObserver struct {
	NopObserver
	events []string
}

func (o *recordingObserver) TurnStarted(agent string, depth int) {
	o.events = append(o.events, "start:"+agent)
}

func (o *recordingObserver) ArtifactUpdated(agent, filename, previous, contents string) {
	o.events = append(o.events, "artifact:"+filename+":"+previous+"->"+contents)
}

func (o *recordingObserver) Delegated(from, to string) {
	o.events = append(o.events, "delegate:"+from+"->"+to)
}

func TestObserverEvents(t *testing.T) {
	sup := scripted.New("sup", scripted.Reply("", callAgent(0, AgentImplementation)), scripted.Reply("done"))
	impl := scripted.New("impl",
		scripted.Reply("", scripted.Call(0, ToolUpdateArtifact, `{"filename":"plan.md","contents":"new"}`)),
		scripted.Reply("ok"),
	)
	obs := &recordingObserver{}
	tm := newTeam(t, map[string]*scripted.Backend{AgentSupervisor: sup, AgentImplementation: impl}, Options{Observer: obs})
	require.NoError(t, tm.store.Put("plan.md", "old"))

	_, err := tm.crew.Run(context.Background(), history.New(nil, history.User("go")))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"start:supervisor",
		"delegate:supervisor->implementation",
		"start:implementation",
		"artifact:plan.md:old->new",
		"start:implementation",
		"start:supervisor",
	}, obs.events)
}

func TestNewRejectsDuplicateAgents(t *testing.T) {
	roles := DefaultRoles(scripted.New("b"))
	_, err := New(artifact.NewMemStore(nil), roles.Supervisor, []*Delegate{{Role: roles.Planning}, {Role: roles.Planning}}, Options{})
	assert.Error(t, err)
}

func TestAgentNames(t *testing.T) {
	tm := newTeam(t, nil, Options{})
	assert.Equal(t, []string{AgentPlanning, AgentImplementation, AgentReviewer}, tm.crew.AgentNames())
}
