package chat

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmuk/pagecrew/pkg/history"
)

var instructionFiles = []string{"PAGECREW.md", "AGENTS.md"}

// initialMessages returns the messages a fresh session starts with: the
// project instructions found in cwd, if any.
func initialMessages(cwd string) ([]history.Message, error) {
	for _, name := range instructionFiles {
		content, err := os.ReadFile(filepath.Join(cwd, name))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if len(content) == 0 {
			continue
		}
		return []history.Message{
			history.User(fmt.Sprintf("Also please check the following instructions:\n%s", content)),
		}, nil
	}
	return nil, nil
}
