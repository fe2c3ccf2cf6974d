package artifact

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// MemStore is an in-memory Store.
type MemStore struct {
	mu         sync.Mutex
	files      map[string]string
	extensions []string
}

func NewMemStore(extensions []string) *MemStore {
	return &MemStore{files: map[string]string{}, extensions: extensions}
}

func (s *MemStore) Get(filename string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	contents, ok := s.files[filename]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, filename)
	}
	return contents, nil
}

func (s *MemStore) Put(filename, contents string) error {
	if err := ValidateName(filename, s.extensions); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[filename] = contents
	return nil
}

func (s *MemStore) List() ([]Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]Artifact, 0, len(s.files))
	for _, name := range slices.Sorted(maps.Keys(s.files)) {
		results = append(results, Artifact{Filename: name, Contents: s.files[name]})
	}
	return results, nil
}
