// Package models defines the domain types for Raido.
package models

import (
	"strconv"
	"time"
)

// MetarefreshFrequency controls how often remote metadata is refetched.
type MetarefreshFrequency string

// Metarefresh frequencies.
const (
	FreqNever   MetarefreshFrequency = "never"
	FreqDaily   MetarefreshFrequency = "daily"
	FreqWeekly  MetarefreshFrequency = "weekly"
	FreqMonthly MetarefreshFrequency = "monthly"
)

// Interval returns the refresh period, or zero for FreqNever.
func (f MetarefreshFrequency) Interval() time.Duration {
	switch f {
	case FreqDaily:
		return 24 * time.Hour
	case FreqWeekly:
		return 7 * 24 * time.Hour
	case FreqMonthly:
		return 30 * 24 * time.Hour
	}
	return 0
}

// Entity is a registered organizational record with attached SAML metadata.
// The (Name, DomainID) pair is unique across the registry.
type Entity struct {
	ID          int64                `json:"id"`
	Name        string               `json:"name"`
	DomainID    int64                `json:"domain_id"`
	Metarefresh MetarefreshFrequency `json:"metarefresh_frequency"`
	MetadataURL string               `json:"metadata_url,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// MetadataName is the name the entity's metadata is stored under.
// It is derived from the immutable entity ID so that renames do not
// move files in the store.
func (e *Entity) MetadataName() string {
	return strconv.FormatInt(e.ID, 10)
}

// Domain groups entities under an owner. Only the owner or a team
// member may attach entities to it, and only once it is validated.
type Domain struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Owner     string   `json:"owner"`
	Team      []string `json:"team,omitempty"`
	Validated bool     `json:"validated"`
}

// Usable reports whether username may attach entities to this domain.
func (d *Domain) Usable(username string) bool {
	if !d.Validated {
		return false
	}
	if d.Owner == username {
		return true
	}
	for _, member := range d.Team {
		if member == username {
			return true
		}
	}
	return false
}

// EntityGroup is a saved query over entity names.
type EntityGroup struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Query string `json:"query"`
}

// User identifies a registry account. Authentication happens in front
// of the service; Raido only resolves usernames to display names.
type User struct {
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email,omitempty"`
}

// AuthorName is the name recorded on revisions authored by the user.
func (u *User) AuthorName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}
