package stt

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultModelExt is the ggml model file extension.
const DefaultModelExt = ".bin"

// ListModels returns the names of regular files in dir ending in ext, in
// lexical order. A missing directory yields no models.
func ListModels(dir string, ext string) ([]string, error) {
	if ext == "" {
		ext = DefaultModelExt
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var models []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		models = append(models, e.Name())
	}
	return models, nil
}

func ResolveModelPath(dir, name string) string {
	return filepath.Join(dir, name)
}
