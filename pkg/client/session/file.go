package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mpapenbr/sentinel-replay/pkg/model"
)

// FileLoader reads a session fixture. Files ending in .yml or .yaml are read as
// YAML, everything else as JSON.
type FileLoader struct {
	path string
}

func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

// Load ignores key except for filling in the session key if the file has none.
func (f *FileLoader) Load(_ context.Context, key model.SessionKey) (*model.SessionData, error) {
	return ReadFile(f.path, key)
}

func ReadFile(path string, key model.SessionKey) (*model.SessionData, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	defer r.Close()
	data, err := Decode(r, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if data.Key == (model.SessionKey{}) {
		data.Key = key
	}
	return data, nil
}

func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return FormatYAML
	default:
		return FormatJSON
	}
}
