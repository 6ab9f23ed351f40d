package forms

import (
	"github.com/starford/raido/internal/metadata"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/registry"
)

// Registry is the subset of registry operations the entity forms need.
type Registry interface {
	GetDomain(id int64) (*models.Domain, error)
	EntityExists(name string, domainID, except int64) (bool, error)
	CreateEntity(name string, domainID int64) (*models.Entity, error)
	RenameEntity(id int64, name string) error
	TouchEntity(id int64, url string) error
}

// GroupRegistry is the subset of registry operations the group form needs.
type GroupRegistry interface {
	CreateGroup(name, query string) (*models.EntityGroup, error)
	UpdateGroup(id int64, name, query string) error
}

// Store is the subset of metadata store operations the forms need.
type Store interface {
	GetRevision(name string) (string, error)
	Save(name, content, author, message string) (*metadata.Revision, error)
}

// ValidateFunc checks metadata for an entity and returns every problem
// found as a user-facing message.
type ValidateFunc func(entityName, metadata string) []string

// Verify *registry.DB satisfies the form interfaces at compile time.
var (
	_ Registry      = (*registry.DB)(nil)
	_ GroupRegistry = (*registry.DB)(nil)
	_ Store         = (*metadata.FS)(nil)
)
