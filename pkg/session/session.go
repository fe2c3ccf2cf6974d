// Package session manages the per-conversation state kept on disk: the
// session metadata, its logs and the transcript of the history.
package session

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

const (
	appName         = "pagecrew"
	sessionIDsFile  = "session-ids.txt"
	sessionMetaFile = "session.toml"
	transcriptFile  = "transcript.jsonl"
)

type sessionMeta struct {
	SessionID  string    `toml:"session_id"`
	Timestamp  time.Time `toml:"timestamp"`
	WorkingDir string    `toml:"path"`
}

type logHandler struct {
	f *os.File
	h slog.Handler
}

func newLogHandler(p string, opts *slog.HandlerOptions) (*logHandler, error) {
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &logHandler{
		f: f,
		h: slog.NewJSONHandler(f, opts),
	}, nil
}

func (h *logHandler) Close() error {
	return h.f.Close()
}

type Session struct {
	meta        sessionMeta
	sessionPath string
	level       slog.Leveler

	mu       sync.Mutex
	handlers map[string]*logHandler
}

func (s *Session) ID() string {
	return s.meta.SessionID
}

func (s *Session) Timestamp() time.Time {
	return s.meta.Timestamp
}

func (s *Session) WorkingDir() string {
	return s.meta.WorkingDir
}

// Path is the directory holding the session data.
func (s *Session) Path() string {
	return s.sessionPath
}

// TranscriptFile is the JSONL file the history is recorded to.
func (s *Session) TranscriptFile() string {
	return filepath.Join(s.sessionPath, transcriptFile)
}

// SetLogLevel changes the level of the loggers created afterwards.
func (s *Session) SetLogLevel(level slog.Leveler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = level
}

func (s *Session) updateSessionsFile(workingDir string) error {
	sessionsFile := filepath.Join(workingDir, sessionIDsFile)
	sessionsContent, err := os.ReadFile(sessionsFile)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		sessionsContent = []byte{}
	}
	var lines []string
	for line := range strings.Lines(string(sessionsContent)) {
		line = strings.TrimSpace(line)
		if line == s.meta.SessionID {
			return nil
		}
		if line != "" {
			lines = append(lines, line)
		}
	}
	lines = append(lines, s.meta.SessionID)
	return os.WriteFile(sessionsFile, []byte(strings.Join(lines, "\n")), 0644)
}

// Init writes the session metadata. It is safe to call it more than once.
func (s *Session) Init() error {
	if s.meta.SessionID == "" {
		// likely generated on tempdir; skipping.
		return nil
	}

	cacheDir, err := cacheDir()
	if err != nil {
		return err
	}

	workingDir := getWorkingDir(cacheDir, s.meta.WorkingDir)
	if err := os.MkdirAll(workingDir, 0755); err != nil {
		return err
	}

	if err := s.updateSessionsFile(workingDir); err != nil {
		return err
	}

	if err := os.MkdirAll(s.sessionPath, 0755); err != nil {
		return err
	}

	metaFile := filepath.Join(s.sessionPath, sessionMetaFile)
	encodedMeta, err := toml.Marshal(s.meta)
	if err != nil {
		return err
	}
	return os.WriteFile(metaFile, encodedMeta, 0644)
}

func (s *Session) logPath() string {
	return filepath.Join(s.sessionPath, "logs")
}

// GetLogger returns the logger for the category name; each category is
// written to its own JSONL file.
func (s *Session) GetLogger(name string) (*slog.Logger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handlers[name]; ok {
		return slog.New(h.h), nil
	}
	if strings.Contains(name, "/") {
		return nil, fmt.Errorf("malformed log name %s", name)
	}
	pathName := name
	if !strings.Contains(name, ".") {
		pathName = name + ".jsonl"
	}
	if err := os.MkdirAll(s.logPath(), 0755); err != nil {
		return nil, err
	}
	h, err := newLogHandler(filepath.Join(s.logPath(), pathName), &slog.HandlerOptions{
		AddSource: true,
		Level:     s.level,
	})
	if err != nil {
		return nil, err
	}
	if s.handlers == nil {
		s.handlers = map[string]*logHandler{}
	}
	s.handlers[name] = h
	return slog.New(h.h), nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var allerr error
	for name, h := range s.handlers {
		err := h.Close()
		if err != nil {
			allerr = errors.Join(allerr, fmt.Errorf("failed to close %s: %w", name, err))
		}
	}
	s.handlers = nil
	return allerr
}

func cacheDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userCacheDir, appName), nil
}

func getWorkingDir(cacheDir, p string) string {
	h := sha256.Sum256([]byte(p))
	hhex := hex.EncodeToString(h[:])
	return filepath.Join(cacheDir, "paths", hhex)
}

// ListSessions returns the sessions started in cwd, newest first.
func ListSessions(cwd string) ([]*Session, error) {
	cacheDir, err := cacheDir()
	if err != nil {
		return nil, err
	}
	workingDir := getWorkingDir(cacheDir, cwd)
	if finfo, err := os.Stat(workingDir); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	} else if !finfo.IsDir() {
		return nil, fmt.Errorf("path %s is not a dir", workingDir)
	}

	sessionsFile := filepath.Join(workingDir, sessionIDsFile)
	content, err := os.ReadFile(sessionsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var results []*Session
	for line := range strings.Lines(string(content)) {
		session, err := newFromID(strings.TrimSpace(line), cacheDir)
		if err != nil {
			continue
		}
		if session.meta.WorkingDir == cwd {
			results = append(results, session)
		}
	}
	slices.SortFunc(results, func(a, b *Session) int {
		// Newer one comes earlier; v7 IDs sort by creation time.
		return cmp.Or(
			b.meta.Timestamp.Compare(a.meta.Timestamp),
			strings.Compare(b.meta.SessionID, a.meta.SessionID),
		)
	})
	return results, nil
}

func NewFromID(sessionID string) (*Session, error) {
	cacheDir, err := cacheDir()
	if err != nil {
		return nil, err
	}
	return newFromID(sessionID, cacheDir)
}

func newFromID(sessionID, cacheDir string) (*Session, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, fmt.Errorf("illformed session ID %s: %w", sessionID, err)
	}
	sessionDir := filepath.Join(cacheDir, "sessions", sessionID)
	if finfo, err := os.Stat(sessionDir); err != nil {
		return nil, err
	} else if !finfo.IsDir() {
		return nil, fmt.Errorf("path %s is not a directory", sessionDir)
	}

	metaFile := filepath.Join(sessionDir, sessionMetaFile)
	metadata, err := os.ReadFile(metaFile)
	if err != nil {
		return nil, err
	}
	var m sessionMeta
	if err := toml.Unmarshal(metadata, &m); err != nil {
		return nil, err
	}
	return &Session{
		meta:        m,
		sessionPath: sessionDir,
		level:       slog.LevelInfo,
	}, nil
}

func New(cwd string) (*Session, error) {
	now := time.Now()
	cacheDir, err := cacheDir()
	if err != nil {
		log.Printf("Failed to obtain the user cache dir: %v", err)
		log.Printf("Falls back to the temporary directory...")
		tempDir, err := os.MkdirTemp("", appName)
		if err != nil {
			return nil, err
		}
		log.Printf("Session stored at: %s", tempDir)
		return &Session{
			meta: sessionMeta{
				Timestamp: now,
			},
			sessionPath: tempDir,
			level:       slog.LevelInfo,
		}, nil
	}

	sessionUUID, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	sessionPath := filepath.Join(cacheDir, "sessions", sessionUUID.String())
	return &Session{
		meta: sessionMeta{
			SessionID:  sessionUUID.String(),
			Timestamp:  now,
			WorkingDir: cwd,
		},
		sessionPath: sessionPath,
		level:       slog.LevelInfo,
	}, nil
}

type sessionKey struct{}

// With returns a context carrying the session.
func (s *Session) With(ctx context.Context) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok
}

// LoggerFromContext returns the logger of the category from the session in
// ctx, or a logger discarding everything when ctx has no session.
func LoggerFromContext(ctx context.Context, name string) (*slog.Logger, error) {
	s, ok := FromContext(ctx)
	if !ok {
		return slog.New(slog.DiscardHandler), nil
	}
	return s.GetLogger(name)
}
