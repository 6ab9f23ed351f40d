package api

import (
	"github.com/starford/raido/internal/metadata"
)

// CreateEntityRequest is the request body for creating an entity.
type CreateEntityRequest struct {
	Name     string `json:"name" example:"Example IdP" validate:"required"`
	DomainID int64  `json:"domain_id" example:"1" validate:"required"`
}

// UpdateEntityRequest is the request body for renaming an entity.
type UpdateEntityRequest struct {
	Name string `json:"name" example:"Renamed IdP" validate:"required"`
}

// MetarefreshRequest sets the automatic refresh frequency.
type MetarefreshRequest struct {
	Frequency string `json:"metarefresh_frequency" example:"daily" validate:"required"`
}

// GroupRequest is the request body for creating or updating a group.
type GroupRequest struct {
	Name  string `json:"name" example:"Production IdPs" validate:"required"`
	Query string `json:"query" example:"idp" validate:"required"`
}

// MetadataTextRequest submits pasted metadata text.
type MetadataTextRequest struct {
	MetadataText  string `json:"metadata_text" validate:"required"`
	CommitMessage string `json:"commit_message" example:"Update certificates" validate:"required"`
}

// MetadataRemoteRequest submits a metadata URL to fetch.
type MetadataRemoteRequest struct {
	MetadataURL   string `json:"metadata_url" example:"https://idp.example.org/metadata.xml" validate:"required"`
	CommitMessage string `json:"commit_message" example:"Import remote metadata" validate:"required"`
	AcceptToU     bool   `json:"accept_tou" example:"true" validate:"required"`
}

// MetadataSaveResponse is returned after a successful metadata edit.
type MetadataSaveResponse struct {
	Revision metadata.Revision `json:"revision"`
	Diff     string            `json:"diff,omitempty"`
}
