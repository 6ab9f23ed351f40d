package refresh

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starford/raido/internal/forms"
	"github.com/starford/raido/internal/metadata"
	"github.com/starford/raido/internal/metrics"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/registry"
	"github.com/starford/raido/internal/saml"
	"github.com/starford/raido/internal/testutil"
)

const validMetadata = `<EntityDescriptor entityID="https://idp.example.org/saml">
	<IDPSSODescriptor/>
</EntityDescriptor>`

type refreshEnv struct {
	refresher *Refresher
	db        *registry.DB
	store     *metadata.FS
	entity    *models.Entity
	notes     []string // "kind:id" per notification
}

func newRefreshEnv(t *testing.T, body *string) *refreshEnv {
	t.Helper()
	db := testutil.TestRegistry(t)
	_, store := testutil.TestStore(t)

	domainID := testutil.SeedDomain(t, db, "example.org", "alice")
	entity, err := db.CreateEntity("idp", domainID)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(*body))
	}))
	t.Cleanup(srv.Close)

	require.NoError(t, db.TouchEntity(entity.ID, srv.URL))
	require.NoError(t, db.SetMetarefresh(entity.ID, models.FreqDaily))

	env := &refreshEnv{db: db, store: store, entity: entity}
	deps := forms.Deps{Store: store, Registry: db, Validate: saml.Validate}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.refresher = New(db, deps, forms.NewFetcher(0), metrics.New(), logger, time.Minute,
		func(kind string, entityID int64, name string) {
			env.notes = append(env.notes, kind)
		})
	return env
}

func TestRunOnceRefreshesDueEntity(t *testing.T) {
	body := validMetadata
	env := newRefreshEnv(t, &body)
	env.refresher.now = func() time.Time { return time.Now().Add(25 * time.Hour) }

	env.refresher.RunOnce(context.Background())

	content, err := env.store.GetRevision(env.entity.MetadataName())
	require.NoError(t, err)
	require.Equal(t, validMetadata, content)

	require.Equal(t, []string{"metadata"}, env.notes)

	revs, err := env.store.Revisions(env.entity.MetadataName())
	require.NoError(t, err)
	require.Len(t, revs, 1)
	require.Equal(t, "Metadata refresh", revs[0].Author)
	require.Equal(t, refreshCommitMsg, revs[0].Message)

	got, err := env.db.GetEntity(env.entity.ID)
	require.NoError(t, err)
	require.True(t, got.UpdatedAt.After(env.entity.UpdatedAt))
}

func TestRunOnceSkipsNotDue(t *testing.T) {
	body := validMetadata
	env := newRefreshEnv(t, &body)
	// The entity was just created, so its daily period has not elapsed.

	env.refresher.RunOnce(context.Background())

	_, err := env.store.GetRevision(env.entity.MetadataName())
	require.Error(t, err)
	require.Empty(t, env.notes)
}

func TestRunOnceUnchangedContent(t *testing.T) {
	body := validMetadata
	env := newRefreshEnv(t, &body)
	env.refresher.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	env.refresher.RunOnce(context.Background())
	require.Len(t, env.notes, 1)

	// Same remote content again: no new revision, no notification.
	env.refresher.RunOnce(context.Background())
	require.Len(t, env.notes, 1)

	revs, err := env.store.Revisions(env.entity.MetadataName())
	require.NoError(t, err)
	require.Len(t, revs, 1)
}

func TestRunOnceRejectsInvalidMetadata(t *testing.T) {
	body := "<EntityDescriptor/>" // missing entityID and roles
	env := newRefreshEnv(t, &body)
	env.refresher.now = func() time.Time { return time.Now().Add(25 * time.Hour) }

	env.refresher.RunOnce(context.Background())

	_, err := env.store.GetRevision(env.entity.MetadataName())
	require.Error(t, err)
	require.Empty(t, env.notes)
}
