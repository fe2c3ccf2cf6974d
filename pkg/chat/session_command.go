package chat

import (
	"fmt"
	"time"

	"github.com/jmuk/pagecrew/pkg/session"
	"github.com/manifoldco/promptui"
)

func (c *Chat) chooseNewSession() (*session.Session, error) {
	// ListSessions returns the newest first.
	sessions, err := session.ListSessions(c.cwd)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(c.out, "No sessions found to select")
		return nil, nil
	}
	var foundExisting bool
	for _, s := range sessions {
		if s.ID() == c.s.ID() {
			foundExisting = true
			break
		}
	}
	if !foundExisting {
		sessions = append([]*session.Session{c.s}, sessions...)
	}
	items := make([]string, 0, len(sessions))
	var cursorPos int
	for i, s := range sessions {
		item := fmt.Sprintf("%s at %s", s.ID(), s.Timestamp().Format(time.RFC1123Z))
		if s.ID() == c.s.ID() {
			item += " (current session)"
			cursorPos = i
		}
		items = append(items, item)
	}
	sel := promptui.Select{
		Label:     "Select the session to switch",
		Items:     items,
		CursorPos: cursorPos,
	}
	idx, _, err := sel.Run()
	if err != nil {
		return nil, err
	}
	if sessions[idx].ID() == c.s.ID() {
		return nil, nil
	}
	return sessions[idx], nil
}

// handleSessionCommands switches the session. The new session's
// transcript becomes the history of the next message.
func (c *Chat) handleSessionCommands(args []string) error {
	var newSession *session.Session
	if len(args) == 0 {
		var err error
		newSession, err = c.chooseNewSession()
		if err != nil {
			return err
		}
	} else {
		sessionID := args[0]
		if sessionID == "last" {
			sessions, err := session.ListSessions(c.cwd)
			if err != nil {
				return err
			}
			if len(sessions) > 0 && sessions[0].ID() != c.s.ID() {
				newSession = sessions[0]
			}
		} else {
			var err error
			newSession, err = session.NewFromID(sessionID)
			if err != nil {
				fmt.Fprintln(c.out, err)
				return nil
			}
		}
	}
	if newSession == nil {
		return nil
	}
	if err := c.closeSession(); err != nil {
		return err
	}
	newSession.SetLogLevel(c.cfg.LogLevel)
	c.s = newSession
	fmt.Fprintf(c.out, "Session is updated to %s\n", c.s.ID())
	return nil
}
