package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// FileRecorder appends messages as JSON lines to a transcript file.
type FileRecorder struct {
	mu sync.Mutex
	f  *os.File
}

func NewFileRecorder(path string) (*FileRecorder, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, err
	}
	return &FileRecorder{f: f}, nil
}

func (r *FileRecorder) Record(msg Message) error {
	encoded, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err = r.f.Write(append(encoded, '\n'))
	return err
}

func (r *FileRecorder) Close() error {
	return r.f.Close()
}

// Load reads a transcript written by FileRecorder. A missing file is an
// empty transcript.
func Load(path string) ([]Message, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	// image parts easily exceed the default token size.
	s.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	var msgs []Message
	for line := 1; s.Scan(); line++ {
		if len(s.Bytes()) == 0 {
			continue
		}
		var m Message
		if err := json.Unmarshal(s.Bytes(), &m); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, s.Err()
}
