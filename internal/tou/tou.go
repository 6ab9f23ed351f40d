// Package tou loads terms-of-use documents shown before metadata imports.
package tou

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Fallback is returned when a named document does not exist on disk.
const Fallback = "Please, accept these terms of use."

// Document names used by the metadata forms.
const (
	MetadataImport = "metadata-import"
	UserRegister   = "user-register"
)

// Loader reads named terms-of-use documents from a directory, caching
// each document after the first read.
type Loader struct {
	dir string

	mu    sync.Mutex
	cache map[string]string
}

// NewLoader creates a Loader reading from dir. An empty dir means every
// lookup yields the fallback text.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir, cache: make(map[string]string)}
}

// Load returns the text of the named document, or Fallback when the
// file is missing.
func (l *Loader) Load(name string) (string, error) {
	if strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("tou: invalid document name: %s", name)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if text, ok := l.cache[name]; ok {
		return text, nil
	}
	if l.dir == "" {
		return Fallback, nil
	}
	data, err := os.ReadFile(filepath.Join(l.dir, name+".md"))
	if os.IsNotExist(err) {
		return Fallback, nil
	}
	if err != nil {
		return "", fmt.Errorf("tou: read %s: %w", name, err)
	}
	text := string(data)
	l.cache[name] = text
	return text, nil
}
