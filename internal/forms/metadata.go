package forms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/metadata"
	"github.com/starford/raido/internal/models"
)

// Metadata form field names, shared with the API payloads.
const (
	FieldText      = "metadata_text"
	FieldFile      = "metadata_file"
	FieldURL       = "metadata_url"
	FieldCommitMsg = "commit_message"
	FieldAcceptToU = "accept_tou"
)

const (
	MsgEmptyMetadata  = "Empty metadata is not allowed"
	MsgNoChanges      = "There are no changes in the metadata"
	MsgCommitRequired = "A commit message is required"
	MsgAcceptToU      = "You must accept the terms of use"
)

// Deps bundles the collaborators shared by the metadata forms.
type Deps struct {
	Store    Store
	Registry Registry
	Validate ValidateFunc
}

// source produces metadata text from one of the three supported inputs.
type source interface {
	field() string
	resolve(ctx context.Context) (string, error)
}

// MetadataEditForm acquires new metadata content from a single source,
// validates it, and persists it as a new revision on Save.
//
// The pipeline mirrors the edit workflow: normalize the input, reject
// empty content, reject a no-op change against the current revision,
// run the metadata validator (all of its messages attach to the source
// field), then stage the content for Save.
type MetadataEditForm struct {
	CommitMsg string
	AcceptToU bool

	deps    Deps
	entity  *models.Entity
	user    *models.User
	src     source
	needToU bool

	sourceURL string // recorded on the entity for remote submissions
	metadata  string // staged content, set only after a clean Validate
}

func newMetadataForm(deps Deps, entity *models.Entity, user *models.User, src source) *MetadataEditForm {
	return &MetadataEditForm{
		deps:   deps,
		entity: entity,
		user:   user,
		src:    src,
	}
}

// NewTextForm edits metadata from pasted text.
func NewTextForm(deps Deps, entity *models.Entity, user *models.User, text, commitMsg string) *MetadataEditForm {
	f := newMetadataForm(deps, entity, user, &textSource{text: text})
	f.CommitMsg = commitMsg
	return f
}

// NewFileForm edits metadata from an uploaded file. Terms of use must
// be accepted.
func NewFileForm(deps Deps, entity *models.Entity, user *models.User, file io.Reader, commitMsg string, acceptToU bool) *MetadataEditForm {
	f := newMetadataForm(deps, entity, user, &fileSource{r: file})
	f.CommitMsg = commitMsg
	f.AcceptToU = acceptToU
	f.needToU = true
	return f
}

// NewRemoteForm edits metadata fetched from a URL. Terms of use must
// be accepted.
func NewRemoteForm(deps Deps, entity *models.Entity, user *models.User, fetcher *Fetcher, url, commitMsg string, acceptToU bool) *MetadataEditForm {
	src := &remoteSource{fetcher: fetcher, url: url}
	f := newMetadataForm(deps, entity, user, src)
	src.form = f
	f.CommitMsg = commitMsg
	f.AcceptToU = acceptToU
	f.needToU = true
	return f
}

// Validate runs the clean pipeline and returns user-facing messages.
// The returned error reports infrastructure failures only.
func (f *MetadataEditForm) Validate(ctx context.Context) (Errors, error) {
	errs := Errors{}
	f.metadata = ""
	field := f.src.field()

	if strings.TrimSpace(f.CommitMsg) == "" {
		errs.Add(FieldCommitMsg, MsgCommitRequired)
	}
	if f.needToU && !f.AcceptToU {
		errs.Add(FieldAcceptToU, MsgAcceptToU)
	}

	text, err := f.src.resolve(ctx)
	if err != nil {
		// Every acquisition failure surfaces as a field message; the
		// form is redisplayed rather than the request failing.
		errs.Add(field, err.Error())
		return errs, nil
	}
	if strings.TrimSpace(text) == "" {
		errs.Add(field, MsgEmptyMetadata)
		return errs, nil
	}

	current, err := f.deps.Store.GetRevision(f.entity.MetadataName())
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	if err == nil && current == text {
		errs.Add(field, MsgNoChanges)
		return errs, nil
	}

	if msgs := f.deps.Validate(f.entity.Name, text); len(msgs) > 0 {
		// All validator messages attach to the source field and the
		// value is discarded; other field errors still report.
		errs.Merge(field, msgs)
		return errs, nil
	}

	if !errs.Any() {
		f.metadata = text
	}
	return errs, nil
}

// Metadata returns the staged content, empty before a clean Validate.
func (f *MetadataEditForm) Metadata() string {
	return f.metadata
}

// Diff returns a unified diff between the staged metadata and the
// current revision.
func (f *MetadataEditForm) Diff() (string, error) {
	current, err := f.deps.Store.GetRevision(f.entity.MetadataName())
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return "", err
	}
	return UnifiedDiff(f.metadata, current, "proposed", "current")
}

// UnifiedDiff returns a unified diff from a to b with the given labels.
func UnifiedDiff(a, b, fromLabel, toLabel string) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: fromLabel,
		ToFile:   toLabel,
		Context:  3,
	})
}

// Save persists the staged metadata as a new revision authored by the
// submitting user and bumps the entity record. Validate must have
// passed first.
func (f *MetadataEditForm) Save(_ context.Context) (*metadata.Revision, error) {
	if f.metadata == "" {
		return nil, fmt.Errorf("forms: metadata form not validated")
	}
	rev, err := f.deps.Store.Save(
		f.entity.MetadataName(), f.metadata, f.user.AuthorName(), f.CommitMsg)
	if err != nil {
		return nil, err
	}
	if err := f.deps.Registry.TouchEntity(f.entity.ID, f.sourceURL); err != nil {
		return nil, err
	}
	return rev, nil
}

type textSource struct {
	text string
}

func (s *textSource) field() string { return FieldText }

func (s *textSource) resolve(context.Context) (string, error) {
	return strings.TrimSpace(s.text), nil
}

type fileSource struct {
	r io.Reader
}

func (s *fileSource) field() string { return FieldFile }

func (s *fileSource) resolve(context.Context) (string, error) {
	if s.r == nil {
		return "", errors.New(MsgEmptyMetadata)
	}
	data, err := io.ReadAll(s.r)
	if err != nil {
		return "", fmt.Errorf("could not read the uploaded file: %v", err)
	}
	return string(data), nil
}

type remoteSource struct {
	fetcher *Fetcher
	url     string
	form    *MetadataEditForm
}

func (s *remoteSource) field() string { return FieldURL }

func (s *remoteSource) resolve(ctx context.Context) (string, error) {
	url := strings.TrimSpace(s.url)
	if url == "" {
		return "", errors.New(MsgEmptyMetadata)
	}
	text, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	s.form.sourceURL = url
	return text, nil
}
