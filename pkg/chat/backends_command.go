package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jmuk/pagecrew/pkg/config"
	"github.com/manifoldco/promptui"
)

func (c *Chat) selectBackend() (string, error) {
	backendNames := c.cfg.BackendNames()
	pos := slices.Index(backendNames, c.cfg.BackendName)
	sel := promptui.Select{
		Label:     "Select the backend of the agents",
		Items:     backendNames,
		CursorPos: max(pos, 0),
		Size:      20,
	}
	_, selected, err := sel.Run()
	return selected, err
}

func (c *Chat) handleBackendsCommand(ctx context.Context, args []string) error {
	var selected string
	if len(args) > 0 {
		selected = args[0]
		if _, ok := c.cfg.Backend(selected); !ok {
			fmt.Fprintf(c.out, "Unknown backend %s\n", selected)
			return nil
		}
	} else {
		var err error
		selected, err = c.selectBackend()
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	if selected == c.cfg.BackendName {
		return nil
	}

	err := config.EditConfig(c.configFile, func(cfg *config.Config) (*config.Config, error) {
		cfg.BackendName = selected
		return cfg, nil
	})
	if err != nil {
		return err
	}
	c.cfg.BackendName = selected
	// rebuilt with the new backend on the next message.
	c.crew = nil
	fmt.Fprintf(c.out, "The agents now use %s.\n", selected)
	return nil
}
