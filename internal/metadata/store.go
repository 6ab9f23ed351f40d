// Package metadata implements the versioned metadata store. Each entity
// owns a directory under the store root holding the current content, a
// commit log, and one file per revision.
package metadata

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/checksum"
)

// Revision is one versioned snapshot of an entity's metadata.
type Revision struct {
	ID        string    `yaml:"id" json:"id"`
	Seq       int       `yaml:"seq" json:"seq"`
	Author    string    `yaml:"author" json:"author"`
	Message   string    `yaml:"message" json:"message"`
	Checksum  string    `yaml:"checksum" json:"checksum"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
}

// Provider is the interface for versioned metadata operations.
type Provider interface {
	// GetRevision returns the current metadata content for name, or
	// apperr.ErrNotFound when nothing has been saved yet.
	GetRevision(name string) (string, error)
	// Save writes content as a new revision and makes it current.
	Save(name, content, author, message string) (*Revision, error)
	// Revisions returns the commit log for name, newest first.
	Revisions(name string) ([]Revision, error)
	// GetRevisionByID returns the content of a specific revision.
	GetRevisionByID(name, id string) (string, error)
}

const (
	currentFile = "current.xml"
	commitsFile = "commits.yaml"
	revisionDir = "revisions"
)

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to store root
	mu   sync.Mutex
}

// Verify *FS satisfies Provider at compile time.
var _ Provider = (*FS)(nil)

// NewFS creates a new FS store rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("metadata: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("metadata: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("metadata: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute store root, used by the store watcher.
func (f *FS) Root() string {
	return f.root
}

// entityDir resolves the directory for name and rejects any result that
// escapes the store root (directory traversal).
func (f *FS) entityDir(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("metadata: empty name")
	}
	cleaned := filepath.Clean(name)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("metadata: absolute names not allowed: %s", name)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("metadata: resolve name: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("metadata: name escapes store root: %s", name)
	}
	return abs, nil
}

// GetRevision returns the current metadata content for name.
func (f *FS) GetRevision(name string) (string, error) {
	dir, err := f.entityDir(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(dir, currentFile))
	if os.IsNotExist(err) {
		return "", apperr.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("metadata: read %s: %w", name, err)
	}
	return string(data), nil
}

// Save writes content as a new revision of name and makes it current.
func (f *FS) Save(name, content, author, message string) (*Revision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	dir, err := f.entityDir(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(dir, revisionDir), 0o755); err != nil {
		return nil, fmt.Errorf("metadata: mkdir: %w", err)
	}

	log, err := f.readLog(dir)
	if err != nil {
		return nil, err
	}

	rev := Revision{
		ID:        uuid.NewString(),
		Seq:       len(log) + 1,
		Author:    author,
		Message:   message,
		Checksum:  checksum.Sum([]byte(content)),
		CreatedAt: time.Now().UTC(),
	}
	log = append(log, rev)

	revPath := filepath.Join(dir, revisionDir, revFileName(rev.Seq))
	if err := atomicWrite(revPath, []byte(content)); err != nil {
		return nil, err
	}
	logData, err := yaml.Marshal(log)
	if err != nil {
		return nil, fmt.Errorf("metadata: marshal log: %w", err)
	}
	if err := atomicWrite(filepath.Join(dir, commitsFile), logData); err != nil {
		return nil, err
	}
	if err := atomicWrite(filepath.Join(dir, currentFile), []byte(content)); err != nil {
		return nil, err
	}
	return &rev, nil
}

// Revisions returns the commit log for name, newest first.
func (f *FS) Revisions(name string) ([]Revision, error) {
	dir, err := f.entityDir(name)
	if err != nil {
		return nil, err
	}
	log, err := f.readLog(dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(log, func(i, j int) bool { return log[i].Seq > log[j].Seq })
	return log, nil
}

// GetRevisionByID returns the content of the revision with the given ID.
func (f *FS) GetRevisionByID(name, id string) (string, error) {
	dir, err := f.entityDir(name)
	if err != nil {
		return "", err
	}
	log, err := f.readLog(dir)
	if err != nil {
		return "", err
	}
	for _, rev := range log {
		if rev.ID == id {
			data, err := os.ReadFile(filepath.Join(dir, revisionDir, revFileName(rev.Seq)))
			if err != nil {
				return "", fmt.Errorf("metadata: read revision %s: %w", id, err)
			}
			return string(data), nil
		}
	}
	return "", apperr.ErrNotFound
}

func (f *FS) readLog(dir string) ([]Revision, error) {
	data, err := os.ReadFile(filepath.Join(dir, commitsFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("metadata: read commit log: %w", err)
	}
	var log []Revision
	if err := yaml.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("metadata: parse commit log: %w", err)
	}
	return log, nil
}

func revFileName(seq int) string {
	return fmt.Sprintf("%04d.xml", seq)
}

// atomicWrite writes content via tmp file, fsync, and rename.
func atomicWrite(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".raido-tmp-*")
	if err != nil {
		return fmt.Errorf("metadata: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("metadata: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("metadata: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("metadata: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("metadata: rename: %w", err)
	}
	success = true
	return nil
}
