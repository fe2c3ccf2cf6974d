package crew

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmuk/pagecrew/pkg/artifact"
	"github.com/jmuk/pagecrew/pkg/history"
	"github.com/jmuk/pagecrew/pkg/llm"
	"github.com/jmuk/pagecrew/pkg/session"
	"github.com/jmuk/pagecrew/pkg/stream"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var (
	ErrTurnBudgetExceeded = errors.New("turn budget exceeded")
	ErrDepthExceeded      = errors.New("delegation depth exceeded")
)

const (
	DefaultMaxTurns = 16
	DefaultMaxDepth = 4
)

type Options struct {
	// MaxTurns bounds the polls of one role invocation.
	MaxTurns int
	// MaxDepth bounds nested delegations; the supervisor runs at depth 0.
	MaxDepth int
	Observer Observer
}

// Crew owns the artifact store and the registry of roles reachable through
// callAgent. Only one role executes at a time.
type Crew struct {
	store      artifact.Store
	supervisor *Role
	delegates  *orderedmap.OrderedMap[string, *Delegate]
	observer   Observer
	maxTurns   int
	maxDepth   int
}

func New(store artifact.Store, supervisor *Role, delegates []*Delegate, opts Options) (*Crew, error) {
	c := &Crew{
		store:      store,
		supervisor: supervisor,
		delegates:  orderedmap.New[string, *Delegate](),
		observer:   opts.Observer,
		maxTurns:   opts.MaxTurns,
		maxDepth:   opts.MaxDepth,
	}
	if c.observer == nil {
		c.observer = NopObserver{}
	}
	if c.maxTurns <= 0 {
		c.maxTurns = DefaultMaxTurns
	}
	if c.maxDepth <= 0 {
		c.maxDepth = DefaultMaxDepth
	}
	for _, d := range delegates {
		if d.Role == nil || d.Role.Backend == nil {
			return nil, fmt.Errorf("delegate %v has no backend", d.Role)
		}
		if _, present := c.delegates.Set(d.Role.Name, d); present {
			return nil, fmt.Errorf("duplicated agent name %s", d.Role.Name)
		}
	}
	if supervisor == nil || supervisor.Backend == nil {
		return nil, errors.New("supervisor has no backend")
	}
	return c, nil
}

// AgentNames lists the names accepted by callAgent, in registration order.
func (c *Crew) AgentNames() []string {
	names := make([]string, 0, c.delegates.Len())
	for pair := c.delegates.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Run hands a task recorded in h to the supervisor.
func (c *Crew) Run(ctx context.Context, h *history.History) (string, error) {
	return c.Execute(ctx, c.supervisor, h)
}

// Execute runs role on the shared history until its policy says it is done,
// and returns the latest assistant text it produced.
func (c *Crew) Execute(ctx context.Context, role *Role, h *history.History) (string, error) {
	return c.execute(ctx, role, h, 0)
}

func (c *Crew) execute(ctx context.Context, role *Role, h *history.History, depth int) (string, error) {
	logger, err := session.LoggerFromContext(ctx, "crew")
	if err != nil {
		return "", err
	}
	logger = logger.With("agent", role.Name, "depth", depth)
	if depth > c.maxDepth {
		logger.Error("Delegation too deep", "max_depth", c.maxDepth)
		return "", fmt.Errorf("%s at depth %d: %w", role.Name, depth, ErrDepthExceeded)
	}
	inv := &invocation{
		crew:    c,
		role:    role,
		history: h,
		depth:   depth,
		logger:  logger,
	}
	toolset, err := inv.toolset()
	if err != nil {
		return "", err
	}

	var last string
	choice := llm.ToolChoiceAuto
	for turn := 0; ; turn++ {
		if turn >= c.maxTurns {
			logger.Error("Too many turns", "max_turns", c.maxTurns)
			return last, fmt.Errorf("%s after %d turns: %w", role.Name, turn, ErrTurnBudgetExceeded)
		}
		req, err := inv.request(toolset.Schemas(), choice)
		if err != nil {
			return last, err
		}
		res, err := inv.poll(ctx, req)
		if res != nil && res.Text != "" {
			last = res.Text
			inv.appendHistory(history.Assistant(role.Name, res.Text))
		}
		if err != nil {
			logger.Error("Stream failed", "turn", turn, "error", err)
			return last, fmt.Errorf("%s: %w", role.Name, err)
		}
		if choice == llm.ToolChoiceNone {
			// acknowledgement turn; calls are not expected.
			return last, nil
		}

		emitted, delegations, err := inv.dispatch(ctx, toolset, res.Calls)
		if err != nil {
			return last, err
		}
		logger.Debug("Turn finished", "turn", turn, "calls", emitted, "delegations", delegations)
		switch role.Policy {
		case PolicySingleTurn:
			return last, nil
		case PolicyAcknowledge:
			if emitted == 0 {
				return last, nil
			}
			choice = llm.ToolChoiceNone
		case PolicyDelegate:
			if delegations == 0 {
				return last, nil
			}
		default:
			return last, fmt.Errorf("%s: unknown policy %v", role.Name, role.Policy)
		}
	}
}

// invocation is the state of one Execute of a role.
type invocation struct {
	crew    *Crew
	role    *Role
	history *history.History
	depth   int
	logger  *slog.Logger
}

func (inv *invocation) systemPrompt() (string, error) {
	snapshot, err := artifact.Render(inv.crew.store)
	if err != nil {
		return "", fmt.Errorf("failed to render artifacts: %w", err)
	}
	return strings.TrimRight(inv.role.Prompt, "\n") + "\n" + snapshot, nil
}

func (inv *invocation) request(tools []llm.ToolSchema, choice llm.ToolChoice) (*llm.Request, error) {
	prompt, err := inv.systemPrompt()
	if err != nil {
		return nil, err
	}
	req := &llm.Request{
		Messages:    inv.history.ForAgent(prompt),
		Temperature: inv.role.Temperature,
	}
	if len(tools) > 0 {
		req.Tools = tools
		req.ToolChoice = choice
	}
	return req, nil
}

func (inv *invocation) poll(ctx context.Context, req *llm.Request) (*stream.Result, error) {
	obs := inv.crew.observer
	obs.TurnStarted(inv.role.Name, inv.depth)
	defer obs.TurnFinished(inv.role.Name)
	inv.logger.Debug("Sending", "messages", len(req.Messages), "tools", len(req.Tools), "tool_choice", req.ToolChoice)
	res, err := stream.Aggregate(inv.role.Backend.Stream(ctx, req), func(delta string) {
		obs.Text(inv.role.Name, delta)
	})
	if err == nil {
		inv.logger.Debug("Received", "text", res.Text, "calls", res.Calls)
	}
	return res, err
}

// appendHistory adds to the shared history. A failure to record the
// transcript does not stop the task.
func (inv *invocation) appendHistory(msgs ...history.Message) {
	if err := inv.history.Append(msgs...); err != nil {
		inv.logger.Warn("Failed to record history", "error", err)
	}
}
