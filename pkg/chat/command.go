package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jmuk/pagecrew/pkg/artifact"
	"github.com/jmuk/pagecrew/pkg/history"
)

type command int

const (
	commandNone command = iota
	commandEmpty
	commandUnknown
	commandQuit
	commandList
	commandArtifacts
	commandShow
	commandHistory
	commandBackend
	commandSession
)

func (c *Chat) parseCommand(line string) (command, []string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return commandEmpty, nil
	}
	if line[0] != '/' {
		return commandNone, nil
	}
	words := strings.Fields(line[1:])
	if len(words) == 0 {
		return commandUnknown, nil
	}
	switch strings.ToLower(words[0]) {
	case "q", "quit":
		return commandQuit, words[1:]
	case "commands", "help", "list-commands", "?":
		return commandList, words[1:]
	case "artifacts":
		return commandArtifacts, words[1:]
	case "show":
		return commandShow, words[1:]
	case "history":
		return commandHistory, words[1:]
	case "backend", "backends":
		return commandBackend, words[1:]
	case "session":
		return commandSession, words[1:]
	default:
		return commandUnknown, nil
	}
}

func (c *Chat) handleListCommand() {
	fmt.Fprintln(c.out, `List of possible commands:
- help, commands, or ?: this command -- show the list of commands.
- artifacts: list the artifacts built so far.
- show <name>: print an artifact.
- history: print the conversation of this session.
- backend [name]: choose the backend of the agents.
- session [id|last]: switch to another session.
- q, quit: quit this program.
Attach a screenshot with @path/to/image.png.`)
}

func (c *Chat) handleArtifactsCommand() error {
	arts, err := c.store.List()
	if err != nil {
		return err
	}
	if len(arts) == 0 {
		fmt.Fprintln(c.out, "No artifacts yet.")
		return nil
	}
	for _, a := range arts {
		fmt.Fprintf(c.out, "%s (%d bytes)\n", a.Filename, len(a.Contents))
	}
	return nil
}

func (c *Chat) handleShowCommand(args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(c.out, "Usage: /show <name>")
		return nil
	}
	for _, name := range args {
		contents, err := c.store.Get(name)
		if errors.Is(err, artifact.ErrNotFound) || errors.Is(err, artifact.ErrInvalidName) {
			fmt.Fprintln(c.out, err)
			continue
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "--- %s\n%s\n", name, contents)
	}
	return nil
}

// summaryWidth bounds the width of a message in /history.
const summaryWidth = 100

func summarize(m history.Message) string {
	text := strings.Join(strings.Fields(m.Content()), " ")
	if r := []rune(text); len(r) > summaryWidth {
		text = string(r[:summaryWidth-3]) + "..."
	}
	for _, p := range m.Parts {
		if p.Image != nil {
			text += fmt.Sprintf(" [%s]", p.Image.MimeType)
		}
	}
	return text
}

func (c *Chat) handleHistoryCommand() error {
	if err := c.ensureHistory(); err != nil {
		return err
	}
	for i, m := range c.history.Messages() {
		who := string(m.Role)
		if m.Agent != "" {
			who += "/" + m.Agent
		}
		fmt.Fprintf(c.out, "%3d %-24s %s\n", i, who, summarize(m))
	}
	return nil
}
