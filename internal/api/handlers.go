package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/forms"
	"github.com/starford/raido/internal/metadata"
	"github.com/starford/raido/internal/metrics"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/registry"
	"github.com/starford/raido/internal/tou"
)

// Publisher broadcasts entity events to connected clients.
type Publisher interface {
	PublishEntityEvent(kind string, entityID int64, name string)
}

// Handler holds API route handlers.
type Handler struct {
	reg     *registry.DB
	store   metadata.Provider
	deps    forms.Deps
	fetcher *forms.Fetcher
	metrics *metrics.Metrics
	broker  Publisher
	terms   *tou.Loader
}

// NewHandler creates a new Handler. broker may be nil.
func NewHandler(reg *registry.DB, store metadata.Provider, deps forms.Deps, fetcher *forms.Fetcher, m *metrics.Metrics, broker Publisher, terms *tou.Loader) *Handler {
	return &Handler{
		reg:     reg,
		store:   store,
		deps:    deps,
		fetcher: fetcher,
		metrics: m,
		broker:  broker,
		terms:   terms,
	}
}

func (h *Handler) publish(kind string, entityID int64, name string) {
	if h.broker != nil {
		h.broker.PublishEntityEvent(kind, entityID, name)
	}
}

// entityID extracts the {id} route parameter.
func entityID(r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	return id, err == nil && id > 0
}

// loadEntity fetches the entity from the route or writes an error.
func (h *Handler) loadEntity(w http.ResponseWriter, r *http.Request) *models.Entity {
	id, ok := entityID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid entity id"))
		return nil
	}
	entity, err := h.reg.GetEntity(id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get entity failed", slog.Int64("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return nil
	}
	return entity
}

// canEdit reports whether user may modify the entity, meaning they own
// or share the team of its domain. A false return has already written
// the response.
func (h *Handler) canEdit(w http.ResponseWriter, user *models.User, entity *models.Entity) bool {
	domain, err := h.reg.GetDomain(entity.DomainID)
	if err != nil {
		slog.Error("get domain failed", slog.Int64("id", entity.DomainID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return false
	}
	if !domain.Usable(user.Username) {
		writeJSON(w, http.StatusForbidden, errorBody("you cannot modify entities of this domain"))
		return false
	}
	return true
}

// ListEntities handles GET /entities with an optional domain filter.
func (h *Handler) ListEntities(w http.ResponseWriter, r *http.Request) {
	var domainID int64
	if raw := r.URL.Query().Get("domain"); raw != "" {
		domainID, _ = strconv.ParseInt(raw, 10, 64)
	}
	entities, err := h.reg.ListEntities(domainID)
	if err != nil {
		slog.Error("list entities failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if entities == nil {
		entities = []models.Entity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entities": entities,
		"total":    len(entities),
	})
}

// CreateEntity handles POST /entities.
func (h *Handler) CreateEntity(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	var req CreateEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	form := forms.NewEntityForm(h.reg, user)
	form.Name = req.Name
	form.DomainID = req.DomainID

	errs, err := form.Validate(r.Context())
	if err != nil {
		slog.Error("entity form failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if errs.Any() {
		writeFormErrors(w, errs)
		return
	}

	entity, err := form.Save(r.Context())
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			// Lost a race with a concurrent create.
			writeJSON(w, http.StatusConflict, errorBody("entity already exists"))
			return
		}
		slog.Error("create entity failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	h.publish("created", entity.ID, entity.Name)
	writeJSON(w, http.StatusCreated, entity)
}

// GetEntity handles GET /entities/{id}.
func (h *Handler) GetEntity(w http.ResponseWriter, r *http.Request) {
	entity := h.loadEntity(w, r)
	if entity == nil {
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

// UpdateEntity handles PUT /entities/{id} (rename).
func (h *Handler) UpdateEntity(w http.ResponseWriter, r *http.Request) {
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
	var req UpdateEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	form := forms.NewEditEntityForm(h.reg, entity)
	form.Name = req.Name

	errs, err := form.Validate(r.Context())
	if err != nil {
		slog.Error("edit form failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if errs.Any() {
		writeFormErrors(w, errs)
		return
	}
	if err := form.Save(r.Context()); err != nil {
		slog.Error("rename entity failed", slog.Int64("id", entity.ID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	entity.Name = form.Name
	h.publish("renamed", entity.ID, entity.Name)
	writeJSON(w, http.StatusOK, entity)
}

// DeleteEntity handles DELETE /entities/{id}.
func (h *Handler) DeleteEntity(w http.ResponseWriter, r *http.Request) {
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
	if err := h.reg.DeleteEntity(entity.ID); err != nil {
		slog.Error("delete entity failed", slog.Int64("id", entity.ID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	h.publish("deleted", entity.ID, entity.Name)
	w.WriteHeader(http.StatusNoContent)
}

// SetMetarefresh handles PUT /entities/{id}/metarefresh.
func (h *Handler) SetMetarefresh(w http.ResponseWriter, r *http.Request) {
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
	var req MetarefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	freq := models.MetarefreshFrequency(req.Frequency)
	switch freq {
	case models.FreqNever, models.FreqDaily, models.FreqWeekly, models.FreqMonthly:
	default:
		errs := forms.Errors{}
		errs.Add("metarefresh_frequency", "Frequency must be one of never, daily, weekly, monthly")
		writeFormErrors(w, errs)
		return
	}
	if err := h.reg.SetMetarefresh(entity.ID, freq); err != nil {
		slog.Error("set metarefresh failed", slog.Int64("id", entity.ID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	entity.Metarefresh = freq
	writeJSON(w, http.StatusOK, entity)
}

// ListDomains handles GET /domains: the domains the caller may use.
func (h *Handler) ListDomains(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	domains, err := h.reg.ListUserDomains(user.Username)
	if err != nil {
		slog.Error("list domains failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if domains == nil {
		domains = []models.Domain{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"domains": domains})
}

// ListGroups handles GET /groups.
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.reg.ListGroups()
	if err != nil {
		slog.Error("list groups failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if groups == nil {
		groups = []models.EntityGroup{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

// CreateGroup handles POST /groups.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	if requireUser(w, r) == nil {
		return
	}
	var req GroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	form := forms.NewEntityGroupForm(h.reg)
	form.Name = req.Name
	form.Query = req.Query

	errs, err := form.Validate(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if errs.Any() {
		writeFormErrors(w, errs)
		return
	}
	group, err := form.Save(r.Context())
	if err != nil {
		slog.Error("create group failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

// loadGroup fetches the group from the route or writes an error.
func (h *Handler) loadGroup(w http.ResponseWriter, r *http.Request) *models.EntityGroup {
	id, ok := entityID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid group id"))
		return nil
	}
	group, err := h.reg.GetGroup(id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get group failed", slog.Int64("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return nil
	}
	return group
}

// GetGroup handles GET /groups/{id}.
func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	group := h.loadGroup(w, r)
	if group == nil {
		return
	}
	writeJSON(w, http.StatusOK, group)
}

// UpdateGroup handles PUT /groups/{id}.
func (h *Handler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	if requireUser(w, r) == nil {
		return
	}
	group := h.loadGroup(w, r)
	if group == nil {
		return
	}
	var req GroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	form := forms.NewEditEntityGroupForm(h.reg, group)
	form.Name = req.Name
	form.Query = req.Query

	errs, err := form.Validate(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if errs.Any() {
		writeFormErrors(w, errs)
		return
	}
	updated, err := form.Save(r.Context())
	if err != nil {
		slog.Error("update group failed", slog.Int64("id", group.ID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteGroup handles DELETE /groups/{id}.
func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	if requireUser(w, r) == nil {
		return
	}
	group := h.loadGroup(w, r)
	if group == nil {
		return
	}
	if err := h.reg.DeleteGroup(group.ID); err != nil {
		slog.Error("delete group failed", slog.Int64("id", group.ID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GroupEntities handles GET /groups/{id}/entities: the entities matched
// by the group's stored query.
func (h *Handler) GroupEntities(w http.ResponseWriter, r *http.Request) {
	group := h.loadGroup(w, r)
	if group == nil {
		return
	}
	entities, err := h.reg.MatchGroup(group.Query)
	if err != nil {
		slog.Error("match group failed", slog.Int64("id", group.ID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if entities == nil {
		entities = []models.Entity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": entities})
}

// Terms handles GET /terms/{name}.
func (h *Handler) Terms(w http.ResponseWriter, r *http.Request) {
	text, err := h.terms.Load(chi.URLParam(r, "name"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("unknown terms document"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}
