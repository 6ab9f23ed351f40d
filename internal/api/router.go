package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/starford/raido/internal/forms"
	"github.com/starford/raido/internal/metadata"
	"github.com/starford/raido/internal/metrics"
	"github.com/starford/raido/internal/registry"
	"github.com/starford/raido/internal/tou"
)

// RouterConfig bundles everything NewRouter needs.
type RouterConfig struct {
	Registry *registry.DB
	Store    metadata.Provider
	Fetcher  *forms.Fetcher
	Metrics  *metrics.Metrics
	Broker   Publisher // may be nil
	Terms    *tou.Loader
	Validate forms.ValidateFunc

	AuthEnabled bool
	AuthToken   string
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(cfg RouterConfig) chi.Router {
	deps := forms.Deps{
		Store:    cfg.Store,
		Registry: cfg.Registry,
		Validate: cfg.Validate,
	}
	h := NewHandler(cfg.Registry, cfg.Store, deps, cfg.Fetcher, cfg.Metrics, cfg.Broker, cfg.Terms)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(cfg.AuthEnabled, cfg.AuthToken))
	r.Use(IdentityMiddleware(cfg.Registry))

	// Entities.
	r.Get("/entities", h.ListEntities)
	r.Post("/entities", h.CreateEntity)
	r.Route("/entities/{id}", func(r chi.Router) {
		r.Get("/", h.GetEntity)
		r.Put("/", h.UpdateEntity)
		r.Delete("/", h.DeleteEntity)
		r.Put("/metarefresh", h.SetMetarefresh)

		// Metadata revisions.
		r.Get("/metadata", h.GetMetadata)
		r.Put("/metadata", h.EditMetadataText)
		r.Post("/metadata/file", h.EditMetadataFile)
		r.Post("/metadata/remote", h.EditMetadataRemote)
		r.Get("/metadata/revisions", h.ListRevisions)
		r.Get("/metadata/diff", h.DiffRevision)
	})

	// Domains usable by the caller.
	r.Get("/domains", h.ListDomains)

	// Entity groups.
	r.Get("/groups", h.ListGroups)
	r.Post("/groups", h.CreateGroup)
	r.Route("/groups/{id}", func(r chi.Router) {
		r.Get("/", h.GetGroup)
		r.Put("/", h.UpdateGroup)
		r.Delete("/", h.DeleteGroup)
		r.Get("/entities", h.GroupEntities)
	})

	// Terms of use documents.
	r.Get("/terms/{name}", h.Terms)

	return r
}
