package crew

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmuk/pagecrew/pkg/artifact"
	"github.com/jmuk/pagecrew/pkg/history"
	"github.com/jmuk/pagecrew/pkg/stream"
	"github.com/jmuk/pagecrew/pkg/tools"
)

const (
	ToolUpdateArtifact = "updateArtifact"
	ToolCallAgent      = "callAgent"
)

type updateArtifactRequest struct {
	Filename string `json:"filename" jsonschema_description:"The name of the file to update."`
	Contents string `json:"contents" jsonschema_description:"The markdown, HTML, or CSS contents to write to the file."`
}

type callAgentRequest struct {
	AgentName string `json:"agent_name" jsonschema_description:"The name of the agent to execute a task."`
}

// UpdatedNotice is the system notice appended after an artifact is written.
func UpdatedNotice(filename string) string {
	return fmt.Sprintf("The artifact '%s' was updated.", filename)
}

// toolset returns the tools of the role's capability, bound to this
// invocation.
func (inv *invocation) toolset() (*tools.Set, error) {
	var defs []tools.Definition
	if inv.role.Capability.Has(CapUpdateArtifact) {
		defs = append(defs, tools.New(
			ToolUpdateArtifact,
			"Update an artifact file which is HTML, CSS, or markdown with the given contents.",
			inv.updateArtifact,
		))
	}
	if inv.role.Capability.Has(CapCallAgent) {
		defs = append(defs, tools.New(
			ToolCallAgent,
			fmt.Sprintf("Call another agent to delegate a task. Available agents: %s.",
				strings.Join(inv.crew.AgentNames(), ", ")),
			inv.callAgent,
		))
	}
	return tools.NewSet(defs...)
}

// dispatch runs the calls of one turn in index order. It reports how many
// calls belonged to the role's tools and how many of them were callAgent.
func (inv *invocation) dispatch(ctx context.Context, toolset *tools.Set, calls []stream.FunctionCall) (emitted, delegations int, err error) {
	for _, call := range calls {
		logger := inv.logger.With("tool", call.Name, "index", call.Index)
		def, ok := toolset.Lookup(call.Name)
		if !ok {
			logger.Warn("Ignoring call outside of the capability", "arguments", call.Arguments)
			continue
		}
		emitted++
		if call.Name == ToolCallAgent {
			delegations++
		}
		err := def.Invoke(ctx, call.Arguments)
		var decodeErr *tools.DecodeError
		if errors.As(err, &decodeErr) {
			logger.Warn("Skipping call with malformed arguments", "arguments", call.Arguments, "error", err)
			continue
		}
		if err != nil {
			return emitted, delegations, err
		}
	}
	return emitted, delegations, nil
}

func (inv *invocation) updateArtifact(ctx context.Context, req updateArtifactRequest) error {
	logger := inv.logger.With("filename", req.Filename)
	if req.Filename == "" || req.Contents == "" {
		logger.Debug("Skipping updateArtifact with missing fields")
		return nil
	}
	store := inv.crew.store
	previous, err := store.Get(req.Filename)
	if err != nil && !errors.Is(err, artifact.ErrNotFound) && !errors.Is(err, artifact.ErrInvalidName) {
		logger.Warn("Failed to read the previous contents", "error", err)
	}
	if err := store.Put(req.Filename, req.Contents); err != nil {
		if errors.Is(err, artifact.ErrInvalidName) {
			logger.Warn("Rejected artifact name", "error", err)
			return nil
		}
		return fmt.Errorf("failed to write artifact %s: %w", req.Filename, err)
	}
	logger.Info("Artifact updated", "bytes", len(req.Contents))
	inv.appendHistory(history.System(UpdatedNotice(req.Filename)))
	inv.crew.observer.ArtifactUpdated(inv.role.Name, req.Filename, previous, req.Contents)
	return nil
}

func (inv *invocation) callAgent(ctx context.Context, req callAgentRequest) error {
	d, ok := inv.crew.delegates.Get(req.AgentName)
	if !ok {
		inv.logger.Debug("Unknown agent", "agent_name", req.AgentName)
		return nil
	}
	notice := fmt.Sprintf("The %s agent delegated the task to the %s agent.", inv.role.Name, d.Role.Name)
	if d.Briefing != "" {
		notice += " " + d.Briefing
	}
	inv.logger.Info("Delegating", "to", d.Role.Name)
	inv.appendHistory(history.System(notice))
	inv.crew.observer.Delegated(inv.role.Name, d.Role.Name)
	if _, err := inv.crew.execute(ctx, d.Role, inv.history, inv.depth+1); err != nil {
		return err
	}
	if d.Debrief != "" {
		inv.appendHistory(history.System(d.Debrief))
	}
	return nil
}
