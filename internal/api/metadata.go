package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/forms"
	"github.com/starford/raido/internal/metadata"
	"github.com/starford/raido/internal/metrics"
	"github.com/starford/raido/internal/models"
)

const maxUploadBytes = 10 << 20

// GetMetadata handles GET /entities/{id}/metadata, serving the current
// revision as XML.
func (h *Handler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	entity := h.loadEntity(w, r)
	if entity == nil {
		return
	}
	content, err := h.store.GetRevision(entity.MetadataName())
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("no metadata has been saved for this entity"))
		} else {
			slog.Error("get metadata failed", slog.Int64("id", entity.ID), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.Header().Set("Content-Type", "application/samlmetadata+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(content))
}

// submitMetadata runs the shared validate/save tail of the three
// metadata edit endpoints.
func (h *Handler) submitMetadata(w http.ResponseWriter, r *http.Request, entity *models.Entity, form *forms.MetadataEditForm, source string) {
	errs, err := form.Validate(r.Context())
	if err != nil {
		slog.Error("metadata form failed", slog.Int64("id", entity.ID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if errs.Any() {
		h.metrics.RecordSubmission(source, metrics.OutcomeRejected)
		if source == "remote" && errs.Has(forms.FieldURL) {
			h.metrics.RecordFetchError("fetch")
		}
		writeFormErrors(w, errs)
		return
	}

	diff, err := form.Diff()
	if err != nil {
		slog.Error("metadata diff failed", slog.Int64("id", entity.ID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	rev, err := form.Save(r.Context())
	if err != nil {
		slog.Error("save metadata failed", slog.Int64("id", entity.ID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	h.metrics.RecordSubmission(source, metrics.OutcomeAccepted)
	h.metrics.RecordRevision()
	h.publish("metadata", entity.ID, entity.Name)
	writeJSON(w, http.StatusOK, MetadataSaveResponse{Revision: *rev, Diff: diff})
}

// EditMetadataText handles PUT /entities/{id}/metadata.
func (h *Handler) EditMetadataText(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	entity := h.loadEntity(w, r)
	if entity == nil {
		return
	}
	if !h.canEdit(w, user, entity) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	var req MetadataTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	form := forms.NewTextForm(h.deps, entity, user, req.MetadataText, req.CommitMessage)
	h.submitMetadata(w, r, entity, form, "text")
}

// EditMetadataFile handles POST /entities/{id}/metadata/file
// (multipart/form-data with a "metadata_file" field).
func (h *Handler) EditMetadataFile(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	entity := h.loadEntity(w, r)
	if entity == nil {
		return
	}
	if !h.canEdit(w, user, entity) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	file, _, err := r.FormFile(forms.FieldFile)
	if err != nil {
		errs := forms.Errors{}
		errs.Add(forms.FieldFile, forms.MsgEmptyMetadata)
		writeFormErrors(w, errs)
		return
	}
	defer file.Close()

	form := forms.NewFileForm(h.deps, entity, user, file,
		r.FormValue(forms.FieldCommitMsg), r.FormValue(forms.FieldAcceptToU) == "true")
	h.submitMetadata(w, r, entity, form, "file")
}

// EditMetadataRemote handles POST /entities/{id}/metadata/remote.
func (h *Handler) EditMetadataRemote(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	entity := h.loadEntity(w, r)
	if entity == nil {
		return
	}
	if !h.canEdit(w, user, entity) {
		return
	}
	var req MetadataRemoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	form := forms.NewRemoteForm(h.deps, entity, user, h.fetcher,
		req.MetadataURL, req.CommitMessage, req.AcceptToU)
	h.submitMetadata(w, r, entity, form, "remote")
}

// ListRevisions handles GET /entities/{id}/metadata/revisions.
func (h *Handler) ListRevisions(w http.ResponseWriter, r *http.Request) {
	entity := h.loadEntity(w, r)
	if entity == nil {
		return
	}
	revs, err := h.store.Revisions(entity.MetadataName())
	if err != nil {
		slog.Error("list revisions failed", slog.Int64("id", entity.ID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if revs == nil {
		revs = []metadata.Revision{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"revisions": revs})
}

// DiffRevision handles GET /entities/{id}/metadata/diff?rev=<id>,
// diffing a stored revision against the current content.
func (h *Handler) DiffRevision(w http.ResponseWriter, r *http.Request) {
	entity := h.loadEntity(w, r)
	if entity == nil {
		return
	}
	revID := r.URL.Query().Get("rev")
	if revID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'rev' is required"))
		return
	}
	old, err := h.store.GetRevisionByID(entity.MetadataName(), revID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("unknown revision"))
		} else {
			slog.Error("get revision failed", slog.Int64("id", entity.ID), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	current, err := h.store.GetRevision(entity.MetadataName())
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	diff, err := forms.UnifiedDiff(old, current, "revision", "current")
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"diff": diff})
}
