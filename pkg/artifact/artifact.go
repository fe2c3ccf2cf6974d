// Package artifact provides the shared store of named text documents the
// agents produce, and renders it as a context block for their prompts.
package artifact

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

var (
	ErrNotFound    = errors.New("artifact not found")
	ErrInvalidName = errors.New("invalid artifact name")
)

// Artifact is a named text document.
type Artifact struct {
	Filename string `json:"filename"`
	Contents string `json:"contents"`
}

// Store keeps artifacts in a flat namespace. Put replaces the whole
// contents of the artifact.
type Store interface {
	Get(filename string) (string, error)
	Put(filename, contents string) error
	List() ([]Artifact, error)
}

// DefaultExtensions is the set of extensions accepted for artifact names.
var DefaultExtensions = []string{".md", ".html", ".css"}

// MaxNameLength bounds artifact names so that the temporary file of a write
// still fits in the file name limit of common file systems.
const MaxNameLength = 200

// ValidateName checks that filename is a plain file name in the flat
// namespace. When extensions is not empty, the extension must be one of them.
func ValidateName(filename string, extensions []string) error {
	if filename == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if len(filename) > MaxNameLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidName, MaxNameLength)
	}
	if strings.ContainsAny(filename, `/\`) || filename != filepath.Base(filename) {
		return fmt.Errorf("%w: %q contains a path", ErrInvalidName, filename)
	}
	if strings.HasPrefix(filename, ".") {
		return fmt.Errorf("%w: %q is hidden", ErrInvalidName, filename)
	}
	if len(extensions) > 0 && !slices.Contains(extensions, strings.ToLower(filepath.Ext(filename))) {
		return fmt.Errorf("%w: extension of %q is not one of %s", ErrInvalidName, filename, strings.Join(extensions, ", "))
	}
	return nil
}

// Render builds the snapshot block appended to every system prompt. The
// artifacts are listed in the order returned by the store.
func Render(s Store) (string, error) {
	arts, err := s.List()
	if err != nil {
		return "", err
	}
	b := &strings.Builder{}
	b.WriteString("<ARTIFACTS>\n")
	for _, a := range arts {
		fmt.Fprintf(b, "<FILE name='%s'>\n%s\n</FILE>\n", a.Filename, a.Contents)
	}
	b.WriteString("</ARTIFACTS>")
	return b.String(), nil
}
