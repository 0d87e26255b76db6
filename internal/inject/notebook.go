package inject

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Notebook appends each transcript as a line to a text file.
type Notebook struct {
	mu   sync.Mutex
	path string
}

// NewNotebook creates the file's parent directory and the file itself.
func NewNotebook(path string) (*Notebook, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("inject: create notebook dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("inject: create notebook: %w", err)
	}
	f.Close()
	return &Notebook{path: path}, nil
}

// Path returns the notebook file path.
func (n *Notebook) Path() string {
	return n.path
}

// Deliver appends text and a newline.
func (n *Notebook) Deliver(text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	f, err := os.OpenFile(n.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("inject: open notebook: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(text + "\n"); err != nil {
		return fmt.Errorf("inject: append to notebook: %w", err)
	}
	return nil
}

// Content returns the whole notebook.
func (n *Notebook) Content() (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	data, err := os.ReadFile(n.path)
	if err != nil {
		return "", fmt.Errorf("inject: read notebook: %w", err)
	}
	return string(data), nil
}

// Clear truncates the notebook.
func (n *Notebook) Clear() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := os.WriteFile(n.path, nil, 0644); err != nil {
		return fmt.Errorf("inject: clear notebook: %w", err)
	}
	return nil
}
