package forms

import (
	"context"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/raido/internal/models"
)

// EntityGroupForm validates and saves a saved-query entity group.
type EntityGroupForm struct {
	Name  string
	Query string

	reg   GroupRegistry
	group *models.EntityGroup // nil when creating
	valid bool
}

// NewEntityGroupForm creates a form for a new group.
func NewEntityGroupForm(reg GroupRegistry) *EntityGroupForm {
	return &EntityGroupForm{reg: reg}
}

// NewEditEntityGroupForm creates a form editing an existing group.
func NewEditEntityGroupForm(reg GroupRegistry, group *models.EntityGroup) *EntityGroupForm {
	return &EntityGroupForm{reg: reg, group: group}
}

// Validate checks the group name and query.
func (f *EntityGroupForm) Validate(_ context.Context) (Errors, error) {
	errs := Errors{}
	f.Name = strings.TrimSpace(f.Name)
	f.Query = strings.TrimSpace(f.Query)

	if err := validation.Validate(f.Name,
		validation.Required, validation.Length(1, 255)); err != nil {
		errs.Add("name", "A name for the entity group is required")
	}
	if err := validation.Validate(f.Query, validation.Required); err != nil {
		errs.Add("query", "A query for the entity group is required")
	}

	f.valid = !errs.Any()
	return errs, nil
}

// Save creates or updates the group. Validate must have passed first.
func (f *EntityGroupForm) Save(_ context.Context) (*models.EntityGroup, error) {
	if !f.valid {
		return nil, fmt.Errorf("forms: group form not validated")
	}
	if f.group == nil {
		return f.reg.CreateGroup(f.Name, f.Query)
	}
	if err := f.reg.UpdateGroup(f.group.ID, f.Name, f.Query); err != nil {
		return nil, err
	}
	f.group.Name = f.Name
	f.group.Query = f.Query
	return f.group, nil
}
