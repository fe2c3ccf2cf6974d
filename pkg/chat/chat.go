// Package chat implements the interactive front end: the user describes a
// page, attaches a screenshot, and watches the crew build it.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/chzyer/readline"
	"github.com/jmuk/pagecrew/pkg/artifact"
	"github.com/jmuk/pagecrew/pkg/config"
	"github.com/jmuk/pagecrew/pkg/crew"
	"github.com/jmuk/pagecrew/pkg/history"
	"github.com/jmuk/pagecrew/pkg/session"
)

type Options struct {
	ConfigFile string
	Cwd        string
	// ResumeID continues the session of the ID with its transcript.
	ResumeID string
	Out      io.Writer
}

type Chat struct {
	cfg        *config.Config
	configFile string
	cwd        string
	root       *os.Root
	store      *artifact.DirStore
	out        io.Writer

	s        *session.Session
	history  *history.History
	recorder *history.FileRecorder
	crew     *crew.Crew

	// newRoles builds the team; replaced in tests.
	newRoles func(ctx context.Context) (*crew.Roles, error)
}

// ArtifactsDir resolves the artifact directory of the config for cwd.
func ArtifactsDir(cfg *config.Config, cwd string) string {
	if filepath.IsAbs(cfg.ArtifactsDir) {
		return cfg.ArtifactsDir
	}
	return filepath.Join(cwd, cfg.ArtifactsDir)
}

func New(ctx context.Context, opts Options) (*Chat, error) {
	cfg, err := config.LoadConfig(opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	root, err := os.OpenRoot(opts.Cwd)
	if err != nil {
		return nil, err
	}
	store, err := artifact.NewDirStore(ArtifactsDir(cfg, opts.Cwd), cfg.AllowedExtensions)
	if err != nil {
		return nil, errors.Join(err, root.Close())
	}
	var s *session.Session
	if opts.ResumeID != "" {
		s, err = session.NewFromID(opts.ResumeID)
	} else {
		s, err = session.New(opts.Cwd)
	}
	if err != nil {
		return nil, errors.Join(err, store.Close(), root.Close())
	}
	s.SetLogLevel(cfg.LogLevel)
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	c := &Chat{
		cfg:        cfg,
		configFile: opts.ConfigFile,
		cwd:        opts.Cwd,
		root:       root,
		store:      store,
		out:        out,
		s:          s,
	}
	c.newRoles = func(ctx context.Context) (*crew.Roles, error) {
		return c.cfg.NewRoles(ctx)
	}
	return c, nil
}

func (c *Chat) Close() error {
	return errors.Join(c.closeSession(), c.store.Close(), c.root.Close())
}

func (c *Chat) closeSession() error {
	var errs []error
	if c.recorder != nil {
		errs = append(errs, c.recorder.Close())
	}
	c.recorder = nil
	c.history = nil
	errs = append(errs, c.s.Close())
	return errors.Join(errs...)
}

func (c *Chat) logger() *slog.Logger {
	l, err := c.s.GetLogger("chat")
	if err != nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}

// ensureHistory initializes the session on the first message and loads
// its transcript, if any.
func (c *Chat) ensureHistory() error {
	if c.history != nil {
		return nil
	}
	if err := c.s.Init(); err != nil {
		return err
	}
	transcript := c.s.TranscriptFile()
	previous, err := history.Load(transcript)
	if err != nil {
		return fmt.Errorf("failed to load the transcript: %w", err)
	}
	recorder, err := history.NewFileRecorder(transcript)
	if err != nil {
		return err
	}
	c.recorder = recorder
	c.history = history.New(recorder, previous...)
	if len(previous) == 0 {
		initial, err := initialMessages(c.cwd)
		if err != nil {
			return err
		}
		if err := c.history.Append(initial...); err != nil {
			c.logger().Warn("Failed to record history", "error", err)
		}
	} else {
		fmt.Fprintf(c.out, "Resumed session %s with %d messages.\n", c.s.ID(), len(previous))
	}
	return nil
}

func (c *Chat) ensureCrew(ctx context.Context) error {
	if c.crew != nil {
		return nil
	}
	roles, err := c.newRoles(ctx)
	if err != nil {
		return err
	}
	cr, err := crew.NewDefault(c.store, roles, c.cfg.CrewOptions(newRenderer(c.out)))
	if err != nil {
		return err
	}
	c.crew = cr
	return nil
}

func (c *Chat) RunLoop(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		AutoComplete:    newCombinedCompleter(c.root, c.store),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()
	c.handleListCommand()
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		quit, err := c.HandleLine(ctx, line)
		if err != nil {
			return err
		}
		if quit {
			return nil
		}
	}
}

// HandleLine processes one line of input; it reports whether the user
// asked to quit.
func (c *Chat) HandleLine(ctx context.Context, line string) (bool, error) {
	command, args := c.parseCommand(line)
	switch command {
	case commandEmpty:
		return false, nil
	case commandQuit:
		return true, nil
	case commandList:
		c.handleListCommand()
	case commandArtifacts:
		return false, c.handleArtifactsCommand()
	case commandShow:
		return false, c.handleShowCommand(args)
	case commandHistory:
		return false, c.handleHistoryCommand()
	case commandBackend:
		return false, c.handleBackendsCommand(ctx, args)
	case commandSession:
		return false, c.handleSessionCommands(args)
	case commandUnknown:
		fmt.Fprintf(c.out, "Unknown command %s, ignoring...\n", line)
	case commandNone:
		return false, c.HandleMessage(ctx, line)
	}
	return false, nil
}

// HandleMessage hands the user input to the crew. A failed run is
// reported and the chat continues; it returns an error only when the
// session itself is broken.
func (c *Chat) HandleMessage(ctx context.Context, input string) error {
	if err := c.ensureHistory(); err != nil {
		return err
	}
	ctx = c.s.With(ctx)
	l := c.logger()
	if err := c.ensureCrew(ctx); err != nil {
		fmt.Fprintf(c.out, "Failed to set up the agents: %v\n", err)
		l.Error("Failed to set up the agents", "error", err)
		return nil
	}

	text, images := c.parseAttachments(input)
	msg, dropped := history.UserInput(text, images...)
	if dropped > 0 {
		fmt.Fprintf(c.out, "Only the first image is attached; %d ignored.\n", dropped)
	}
	if err := c.history.Append(msg); err != nil {
		l.Warn("Failed to record history", "error", err)
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	l.Debug("Running", "text", text, "images", len(images))
	if _, err := c.crew.Run(runCtx, c.history); err != nil {
		l.Error("Run failed", "error", err)
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(c.out, "Interrupted.")
		} else {
			fmt.Fprintf(c.out, "The run stopped: %v\n", err)
		}
	}
	return nil
}
