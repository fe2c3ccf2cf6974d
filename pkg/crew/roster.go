package crew

import (
	"github.com/jmuk/pagecrew/pkg/artifact"
	"github.com/jmuk/pagecrew/pkg/llm"
)

const (
	AgentSupervisor     = "supervisor"
	AgentPlanning       = "planning"
	AgentImplementation = "implementation"
	AgentReviewer       = "reviewer"
)

const supervisorPrompt = `
You are a software engineering manager leading a team that builds the web page
shown in the image the user sends.

First work with the software architect ("planning") to create and save the plan.
Then work with the software engineer ("implementation") to implement the
milestones of the plan, ONE milestone at a time. After each milestone, ask the
reviewer ("reviewer") for feedback. If the reviewer requests changes, ask the
engineer to rework the same milestone and get it reviewed again. Move to the
next milestone only once the current one is approved.

You coordinate; you never write the plan, the code or the review yourself. The
only action available to you is callAgent with one of 'planning',
'implementation' or 'reviewer'.

Once every milestone has been implemented, reviewed and marked off in the plan,
report the result and do not call any agent again until the user provides
further input.
`

const planningPrompt = `
You are a software architect preparing to build the web page in the image the
user sends. Write a plan in markdown with two sections.

"Overview": describe the elements of the page, their positions and the layout
of the major sections. Discuss layout choices which have several options in
vanilla HTML and CSS, weigh them, and recommend one.

"Milestones": an ordered list of small implementation milestones so that errors
are caught early. Be precise about alignment. No testing milestones. Format:

 - [ ] 1. This is the first milestone
 - [ ] 2. This is the second milestone

Save the plan with updateArtifact as plan.md once the user or the reviewer
confirms it, and save it again after revising it on feedback. Do not save it
again when nothing changed. You never write code. If the user wants the plan
implemented, use callAgent('implementation').
`

const implementationPrompt = `
You are a software engineer implementing the web page described by the plan in
the artifacts at the end of this prompt. Implement ONE milestone at a time:
pick the first milestone which is not marked yet.

Write the implementation into index.html and styles.css with updateArtifact;
do not paste the code in your reply. Then mark the milestone in plan.md as
done and save the whole plan again with updateArtifact:

 - [*] 1. An implemented milestone
 - [ ] 2. A milestone which is not implemented yet

Take feedback to fix the current milestone. Do not save files which did not
change. Never rewrite the plan beyond marking milestones.
`

const reviewerPrompt = `
You are a meticulous front-end reviewer. Compare the latest implementation in
the artifacts (index.html, styles.css) with the plan and the image the user
sent, for the milestone which was just marked as done. Point out concrete
problems in layout, alignment, semantics and styling, and state clearly whether
the milestone is approved or needs changes. You cannot modify any file.
`

// Roles is the default team.
type Roles struct {
	Supervisor     *Role
	Planning       *Role
	Implementation *Role
	Reviewer       *Role
}

// DefaultTemperature is the sampling temperature of the default team.
const DefaultTemperature = 0.2

func defaultTemperature() *float64 {
	t := DefaultTemperature
	return &t
}

// DefaultRoles returns the default team, every role using backend.
func DefaultRoles(backend llm.Backend) *Roles {
	return &Roles{
		Supervisor: &Role{
			Name:        AgentSupervisor,
			Prompt:      supervisorPrompt,
			Capability:  CapCallAgent,
			Policy:      PolicyDelegate,
			Backend:     backend,
			Temperature: defaultTemperature(),
		},
		Planning: &Role{
			Name:        AgentPlanning,
			Prompt:      planningPrompt,
			Capability:  CapUpdateArtifact | CapCallAgent,
			Policy:      PolicyAcknowledge,
			Backend:     backend,
			Temperature: defaultTemperature(),
		},
		Implementation: &Role{
			Name:        AgentImplementation,
			Prompt:      implementationPrompt,
			Capability:  CapUpdateArtifact,
			Policy:      PolicyAcknowledge,
			Backend:     backend,
			Temperature: defaultTemperature(),
		},
		Reviewer: &Role{
			Name:        AgentReviewer,
			Prompt:      reviewerPrompt,
			Capability:  CapNone,
			Policy:      PolicySingleTurn,
			Backend:     backend,
			Temperature: defaultTemperature(),
		},
	}
}

// All lists the roles, supervisor first.
func (r *Roles) All() []*Role {
	return []*Role{r.Supervisor, r.Planning, r.Implementation, r.Reviewer}
}

// Delegates is the callAgent registry of the team.
func (r *Roles) Delegates() []*Delegate {
	return []*Delegate{
		{
			Role:     r.Planning,
			Briefing: "Create the plan, or revise it on feedback.",
		},
		{
			Role:     r.Implementation,
			Briefing: "Implement the next milestone that has not been implemented yet. Start from milestone 1.",
			Debrief:  "Proceed to the next milestone that has not been implemented yet.",
		},
		{
			Role:     r.Reviewer,
			Briefing: "Review the implementation of the latest milestone.",
		},
	}
}

// NewDefault builds a crew of the default team.
func NewDefault(store artifact.Store, roles *Roles, opts Options) (*Crew, error) {
	return New(store, roles.Supervisor, roles.Delegates(), opts)
}
