// Package crew runs the agents collaborating on a task: each role streams a
// response from its backend, the function calls in it are dispatched, and
// callAgent hands control to another role until it returns.
package crew

import (
	"github.com/jmuk/pagecrew/pkg/llm"
)

// Capability is the set of tools a role may use. The schemas advertised to
// the backend and the calls accepted from it are both derived from it.
type Capability uint8

const (
	CapUpdateArtifact Capability = 1 << iota
	CapCallAgent

	CapNone Capability = 0
)

func (c Capability) Has(other Capability) bool {
	return c&other == other
}

// Policy decides whether a role polls its backend again after dispatching
// the calls of a turn.
type Policy int

const (
	// PolicySingleTurn polls once.
	PolicySingleTurn Policy = iota
	// PolicyAcknowledge polls once more with tool_choice none after a turn
	// which emitted calls, so that the model can acknowledge their effects.
	PolicyAcknowledge
	// PolicyDelegate keeps polling while the latest turn emitted callAgent.
	PolicyDelegate
)

func (p Policy) String() string {
	switch p {
	case PolicySingleTurn:
		return "single-turn"
	case PolicyAcknowledge:
		return "acknowledge"
	case PolicyDelegate:
		return "delegate"
	}
	return "unknown"
}

// Role is the fixed configuration of an agent. It holds no conversation
// state; every Execute starts afresh from the history passed in.
type Role struct {
	Name       string
	Prompt     string
	Capability Capability
	Policy     Policy
	Backend    llm.Backend
	// Temperature overrides the backend default when non-nil.
	Temperature *float64
}

// Delegate is an entry of the callAgent registry.
type Delegate struct {
	Role *Role
	// Briefing is added to the system notice announcing the delegation.
	Briefing string
	// Debrief, if not empty, is appended as a system notice once the
	// delegate returns.
	Debrief string
}
