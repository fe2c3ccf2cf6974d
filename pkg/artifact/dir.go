package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/google/uuid"
)

// DirStore keeps each artifact as one file in a single directory.
type DirStore struct {
	mu         sync.Mutex
	root       *os.Root
	extensions []string
}

// NewDirStore opens (and creates if needed) the directory dir. Names are
// checked against extensions, see ValidateName.
func NewDirStore(dir string, extensions []string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}
	return &DirStore{root: root, extensions: extensions}, nil
}

func (s *DirStore) Close() error {
	return s.root.Close()
}

// Name returns the directory of the store.
func (s *DirStore) Name() string {
	return s.root.Name()
}

func (s *DirStore) Get(filename string) (string, error) {
	if err := ValidateName(filename, nil); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.root.ReadFile(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, filename)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Put writes contents into a temporary file and renames it over the
// artifact, so readers never observe a partial write.
func (s *DirStore) Put(filename, contents string) error {
	if err := ValidateName(filename, s.extensions); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tmp := fmt.Sprintf(".%s.%s.tmp", filename, uuid.NewString())
	if err := s.root.WriteFile(tmp, []byte(contents), 0644); err != nil {
		return err
	}
	if err := s.root.Rename(tmp, filename); err != nil {
		return errors.Join(err, s.root.Remove(tmp))
	}
	return nil
}

func (s *DirStore) List() ([]Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ents, err := fs.ReadDir(s.root.FS(), ".")
	if err != nil {
		return nil, err
	}
	var results []Artifact
	for _, ent := range ents {
		if !ent.Type().IsRegular() || ValidateName(ent.Name(), nil) != nil {
			continue
		}
		data, err := s.root.ReadFile(ent.Name())
		if err != nil {
			return nil, err
		}
		results = append(results, Artifact{Filename: ent.Name(), Contents: string(data)})
	}
	return results, nil
}
