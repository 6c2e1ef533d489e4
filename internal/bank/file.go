package bank

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gokatarajesh/live-quiz/internal/quiz"
)

// FileLoader reads one bank from a YAML file on every call.
type FileLoader struct {
	path string
}

var _ Loader = (*FileLoader)(nil)

func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

// LoadBank returns the file's bank. A bank without an id takes the requested one.
func (l *FileLoader) LoadBank(_ context.Context, id string) (*quiz.Bank, error) {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read bank file: %w", err)
	}

	var b quiz.Bank
	if err := yaml.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("parse bank file %s: %w", l.path, err)
	}
	if b.ID == "" {
		b.ID = id
	}
	if id != "" && b.ID != id {
		return nil, fmt.Errorf("%w: %q (file holds %q)", ErrNotFound, id, b.ID)
	}
	return checked(&b)
}
