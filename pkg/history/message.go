// Package history holds the conversation transcript shared by all the agents
// working on one task.
package history

import (
	"encoding/base64"
	"fmt"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Blob is inline binary data, such as an attached image.
type Blob struct {
	Data     []byte `json:"data"`
	MimeType string `json:"mime_type"`
}

// DataURL encodes the blob as a base64 data URL.
func (b *Blob) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", b.MimeType, base64.StdEncoding.EncodeToString(b.Data))
}

// Part is one element of a structured message. Exactly one of the
// fields is set.
type Part struct {
	Text  string `json:"text,omitempty"`
	Image *Blob  `json:"image,omitempty"`
}

// Message is one entry of the transcript. A message carries either plain
// Text or structured Parts.
type Message struct {
	Role Role `json:"role"`
	// Agent is the name of the role which produced the message. It is
	// metadata only and never sent to the backend.
	Agent string `json:"agent,omitempty"`
	Text  string `json:"text,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

func System(text string) Message {
	return Message{Role: RoleSystem, Text: text}
}

func User(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

func Assistant(agent, text string) Message {
	return Message{Role: RoleAssistant, Agent: agent, Text: text}
}

// UserInput builds the user turn delivered by the front end. Only the first
// image is attached; it reports how many images were dropped.
func UserInput(text string, images ...*Blob) (Message, int) {
	if len(images) == 0 {
		return User(text), 0
	}
	return Message{
		Role: RoleUser,
		Parts: []Part{
			{Text: text},
			{Image: images[0]},
		},
	}, len(images) - 1
}

// Multimodal reports whether the message uses structured parts.
func (m Message) Multimodal() bool {
	return len(m.Parts) > 0
}

// Content returns the textual content of the message; image parts are
// skipped.
func (m Message) Content() string {
	if !m.Multimodal() {
		return m.Text
	}
	var texts []string
	for _, p := range m.Parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

func (m Message) clone() Message {
	if m.Parts != nil {
		m.Parts = append([]Part(nil), m.Parts...)
	}
	return m
}
