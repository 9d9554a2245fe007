package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// MemoryStore is the single free-text memory file.
type MemoryStore struct {
	mu   sync.Mutex
	path string
}

// NewMemoryStore opens path, creating an empty file if it does not exist.
func NewMemoryStore(path string) (*MemoryStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create memory directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory file: %w", err)
	}
	f.Close()
	return &MemoryStore{path: path}, nil
}

// Path returns the memory file path.
func (m *MemoryStore) Path() string { return m.path }

// Read returns the whole memory.
func (m *MemoryStore) Read() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if err != nil {
		return "", fmt.Errorf("failed to read memory: %w", err)
	}
	return string(data), nil
}

// Write replaces the memory with text plus a trailing newline. The file is
// written beside the target and renamed over it.
func (m *MemoryStore) Write(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(m.path), ".memory-*")
	if err != nil {
		return fmt.Errorf("failed to write memory: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(strings.TrimRight(text, "\n") + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write memory: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write memory: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		return fmt.Errorf("failed to replace memory: %w", err)
	}
	return nil
}
