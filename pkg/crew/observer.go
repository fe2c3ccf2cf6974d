package crew

// Observer is notified of what the agents do, typically to render it live.
type Observer interface {
	TurnStarted(agent string, depth int)
	Text(agent, delta string)
	TurnFinished(agent string)
	ArtifactUpdated(agent, filename, previous, contents string)
	Delegated(from, to string)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) TurnStarted(string, int)                        {}
func (NopObserver) Text(string, string)                            {}
func (NopObserver) TurnFinished(string)                            {}
func (NopObserver) ArtifactUpdated(string, string, string, string) {}
func (NopObserver) Delegated(string, string)                       {}
