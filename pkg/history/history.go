package history

import (
	"sync"
)

// Recorder receives every message appended to a History.
type Recorder interface {
	Record(msg Message) error
}

// History is the ordered transcript of one task. Messages are only ever
// appended; agents work on private copies obtained from ForAgent.
type History struct {
	mu       sync.Mutex
	messages []Message
	recorder Recorder
}

// New creates a history with the given initial messages. The recorder may
// be nil.
func New(recorder Recorder, initial ...Message) *History {
	h := &History{recorder: recorder}
	for _, m := range initial {
		h.messages = append(h.messages, m.clone())
	}
	return h
}

// Append adds messages to the end of the history. Messages are kept even
// if the recorder fails.
func (h *History) Append(msgs ...Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var err error
	for _, m := range msgs {
		m = m.clone()
		h.messages = append(h.messages, m)
		if h.recorder != nil && err == nil {
			err = h.recorder.Record(m)
		}
	}
	return err
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

func (h *History) At(i int) Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.messages[i].clone()
}

// Messages returns a copy of the whole transcript.
func (h *History) Messages() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	result := make([]Message, len(h.messages))
	for i, m := range h.messages {
		result[i] = m.clone()
	}
	return result
}

// ForAgent returns a private copy of the transcript whose first message is
// the given system prompt: a leading system message is replaced, otherwise
// the prompt is prepended.
func (h *History) ForAgent(systemPrompt string) []Message {
	msgs := h.Messages()
	prompt := System(systemPrompt)
	if len(msgs) > 0 && msgs[0].Role == RoleSystem {
		msgs[0] = prompt
		return msgs
	}
	return append([]Message{prompt}, msgs...)
}
