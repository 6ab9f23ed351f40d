package forms

import (
	"context"
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
)

// reservedChars may not appear in entity names; they collide with the
// group query syntax.
const reservedChars = `!:&\|`

const (
	msgReservedChars   = `Illegal characters in the name: you cannot use &, |, !, : or \`
	msgDomainNotUsable = "You cannot use this domain"
	msgDuplicateEntity = "There is already an entity with that name for that domain"
)

// EntityForm validates and creates a new entity for a user.
type EntityForm struct {
	Name     string
	DomainID int64

	reg    Registry
	user   *models.User
	domain *models.Domain
}

// NewEntityForm creates a form bound to the submitting user.
func NewEntityForm(reg Registry, user *models.User) *EntityForm {
	return &EntityForm{reg: reg, user: user}
}

// Validate checks the submitted fields and returns user-facing messages.
// The returned error reports infrastructure failures only.
func (f *EntityForm) Validate(_ context.Context) (Errors, error) {
	errs := Errors{}
	f.Name = strings.TrimSpace(f.Name)
	f.domain = nil

	if err := validation.Validate(f.Name,
		validation.Required, validation.Length(1, 255)); err != nil {
		errs.Add("name", "A name is required")
	} else if strings.ContainsAny(f.Name, reservedChars) {
		errs.Add("name", msgReservedChars)
	}

	if f.DomainID == 0 {
		errs.Add("domain", "You need to associate the entity with a domain")
	} else {
		domain, err := f.reg.GetDomain(f.DomainID)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			errs.Add("domain", msgDomainNotUsable)
		case err != nil:
			return nil, err
		case !domain.Usable(f.user.Username):
			errs.Add("domain", msgDomainNotUsable)
		default:
			f.domain = domain
		}
	}

	if !errs.Has("name") && f.domain != nil {
		exists, err := f.reg.EntityExists(f.Name, f.DomainID, 0)
		if err != nil {
			return nil, err
		}
		if exists {
			errs.Add(NonField, msgDuplicateEntity)
		}
	}
	return errs, nil
}

// Save creates the entity. Validate must have passed first.
func (f *EntityForm) Save(_ context.Context) (*models.Entity, error) {
	if f.domain == nil {
		return nil, fmt.Errorf("forms: entity form not validated")
	}
	return f.reg.CreateEntity(f.Name, f.DomainID)
}

// EditEntityForm validates and applies an entity rename.
type EditEntityForm struct {
	Name string

	reg    Registry
	entity *models.Entity
	valid  bool
}

// NewEditEntityForm creates a rename form bound to an existing entity.
func NewEditEntityForm(reg Registry, entity *models.Entity) *EditEntityForm {
	return &EditEntityForm{reg: reg, entity: entity}
}

// Validate checks the new name.
func (f *EditEntityForm) Validate(_ context.Context) (Errors, error) {
	errs := Errors{}
	f.Name = strings.TrimSpace(f.Name)
	f.valid = false

	if err := validation.Validate(f.Name,
		validation.Required, validation.Length(1, 255)); err != nil {
		errs.Add("name", "A name is required")
	} else if strings.ContainsAny(f.Name, reservedChars) {
		errs.Add("name", msgReservedChars)
	} else {
		exists, err := f.reg.EntityExists(f.Name, f.entity.DomainID, f.entity.ID)
		if err != nil {
			return nil, err
		}
		if exists {
			errs.Add(NonField, msgDuplicateEntity)
		}
	}

	f.valid = !errs.Any()
	return errs, nil
}

// Save applies the rename. Validate must have passed first.
func (f *EditEntityForm) Save(_ context.Context) error {
	if !f.valid {
		return fmt.Errorf("forms: edit form not validated")
	}
	return f.reg.RenameEntity(f.entity.ID, f.Name)
}
