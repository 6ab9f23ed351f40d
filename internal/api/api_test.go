package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/starford/raido/internal/forms"
	"github.com/starford/raido/internal/metrics"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/registry"
	"github.com/starford/raido/internal/saml"
	"github.com/starford/raido/internal/testutil"
	"github.com/starford/raido/internal/tou"
)

const validMetadata = `<EntityDescriptor xmlns="urn:oasis:names:tc:SAML:2.0:metadata"
	entityID="https://idp.example.org/saml">
	<IDPSSODescriptor protocolSupportEnumeration="urn:oasis:names:tc:SAML:2.0:protocol"/>
</EntityDescriptor>`

// testEnv sets up a registry, store, and router. alice owns example.org
// and bob is a registered user without any domain.
func testEnv(t *testing.T) (*registry.DB, http.Handler, int64) {
	t.Helper()
	return testEnvAuth(t, false, "")
}

func testEnvAuth(t *testing.T, authEnabled bool, authToken string) (*registry.DB, http.Handler, int64) {
	t.Helper()
	db := testutil.TestRegistry(t)
	_, store := testutil.TestStore(t)

	testutil.SeedUser(t, db, models.User{Username: "alice", FullName: "Alice Example"})
	testutil.SeedUser(t, db, models.User{Username: "bob"})
	domainID := testutil.SeedDomain(t, db, "example.org", "alice")

	router := NewRouter(RouterConfig{
		Registry:    db,
		Store:       store,
		Fetcher:     forms.NewFetcher(0),
		Metrics:     metrics.New(),
		Terms:       tou.NewLoader(""),
		Validate:    saml.Validate,
		AuthEnabled: authEnabled,
		AuthToken:   authToken,
	})
	return db, router, domainID
}

func doJSON(t *testing.T, router http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if user != "" {
		req.Header.Set(RemoteUserHeader, user)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func formErrors(t *testing.T, w *httptest.ResponseRecorder) map[string][]string {
	t.Helper()
	var resp struct {
		Errors map[string][]string `json:"errors"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse error body %q: %v", w.Body.String(), err)
	}
	return resp.Errors
}

func createEntity(t *testing.T, router http.Handler, name string, domainID int64) models.Entity {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/entities", "alice",
		CreateEntityRequest{Name: name, DomainID: domainID})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var e models.Entity
	_ = json.Unmarshal(w.Body.Bytes(), &e)
	return e
}

func TestCreateAndGetEntity(t *testing.T) {
	_, router, domainID := testEnv(t)
	e := createEntity(t, router, "idp", domainID)

	w := doJSON(t, router, http.MethodGet, fmt.Sprintf("/entities/%d", e.ID), "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var got models.Entity
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Name != "idp" || got.DomainID != domainID {
		t.Errorf("entity = %+v", got)
	}
}

func TestCreateEntityRequiresUser(t *testing.T) {
	_, router, domainID := testEnv(t)
	w := doJSON(t, router, http.MethodPost, "/entities", "",
		CreateEntityRequest{Name: "idp", DomainID: domainID})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestCreateEntityUnknownUser(t *testing.T) {
	_, router, domainID := testEnv(t)
	w := doJSON(t, router, http.MethodPost, "/entities", "mallory",
		CreateEntityRequest{Name: "idp", DomainID: domainID})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestCreateEntityReservedChars(t *testing.T) {
	_, router, domainID := testEnv(t)
	w := doJSON(t, router, http.MethodPost, "/entities", "alice",
		CreateEntityRequest{Name: "bad|name", DomainID: domainID})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if errs := formErrors(t, w); len(errs["name"]) == 0 {
		t.Errorf("errors = %v, want name error", errs)
	}
}

func TestCreateEntityDuplicate(t *testing.T) {
	_, router, domainID := testEnv(t)
	createEntity(t, router, "idp", domainID)

	w := doJSON(t, router, http.MethodPost, "/entities", "alice",
		CreateEntityRequest{Name: "idp", DomainID: domainID})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if errs := formErrors(t, w); len(errs[forms.NonField]) == 0 {
		t.Errorf("errors = %v, want a non-field error", errs)
	}
}

func TestCreateEntityForeignDomain(t *testing.T) {
	db, router, _ := testEnv(t)
	foreign, err := db.AddDomain("other.org", "bob", true)
	if err != nil {
		t.Fatal(err)
	}
	w := doJSON(t, router, http.MethodPost, "/entities", "alice",
		CreateEntityRequest{Name: "idp", DomainID: foreign.ID})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", w.Code)
	}
	if errs := formErrors(t, w); len(errs["domain"]) == 0 {
		t.Errorf("errors = %v, want domain error", errs)
	}
}

func TestRenameEntity(t *testing.T) {
	_, router, domainID := testEnv(t)
	e := createEntity(t, router, "idp", domainID)

	w := doJSON(t, router, http.MethodPut, fmt.Sprintf("/entities/%d", e.ID), "alice",
		UpdateEntityRequest{Name: "renamed"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var got models.Entity
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Name != "renamed" {
		t.Errorf("name = %q", got.Name)
	}
}

func TestEditForbiddenForStranger(t *testing.T) {
	_, router, domainID := testEnv(t)
	e := createEntity(t, router, "idp", domainID)

	w := doJSON(t, router, http.MethodPut, fmt.Sprintf("/entities/%d", e.ID), "bob",
		UpdateEntityRequest{Name: "stolen"})
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestDeleteEntity(t *testing.T) {
	_, router, domainID := testEnv(t)
	e := createEntity(t, router, "idp", domainID)

	w := doJSON(t, router, http.MethodDelete, fmt.Sprintf("/entities/%d", e.ID), "alice", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	w = doJSON(t, router, http.MethodGet, fmt.Sprintf("/entities/%d", e.ID), "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d", w.Code)
	}
}

func TestSetMetarefresh(t *testing.T) {
	_, router, domainID := testEnv(t)
	e := createEntity(t, router, "idp", domainID)

	w := doJSON(t, router, http.MethodPut, fmt.Sprintf("/entities/%d/metarefresh", e.ID), "alice",
		MetarefreshRequest{Frequency: "daily"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var got models.Entity
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Metarefresh != models.FreqDaily {
		t.Errorf("metarefresh = %q", got.Metarefresh)
	}

	w = doJSON(t, router, http.MethodPut, fmt.Sprintf("/entities/%d/metarefresh", e.ID), "alice",
		MetarefreshRequest{Frequency: "hourly"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid frequency status = %d", w.Code)
	}
}

func TestListDomains(t *testing.T) {
	_, router, domainID := testEnv(t)
	w := doJSON(t, router, http.MethodGet, "/domains", "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Domains []models.Domain `json:"domains"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Domains) != 1 || resp.Domains[0].ID != domainID {
		t.Errorf("domains = %+v", resp.Domains)
	}

	// bob has no usable domains.
	w = doJSON(t, router, http.MethodGet, "/domains", "bob", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Domains) != 0 {
		t.Errorf("bob's domains = %+v", resp.Domains)
	}
}

func TestSubmitMetadataText(t *testing.T) {
	_, router, domainID := testEnv(t)
	e := createEntity(t, router, "idp", domainID)

	w := doJSON(t, router, http.MethodPut, fmt.Sprintf("/entities/%d/metadata", e.ID), "alice",
		MetadataTextRequest{MetadataText: validMetadata, CommitMessage: "initial import"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp MetadataSaveResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Revision.Seq != 1 || resp.Revision.Author != "Alice Example" {
		t.Errorf("revision = %+v", resp.Revision)
	}

	// The saved content is served back as XML.
	w = doJSON(t, router, http.MethodGet, fmt.Sprintf("/entities/%d/metadata", e.ID), "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get metadata status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "samlmetadata") {
		t.Errorf("content type = %q", ct)
	}
	if w.Body.String() != validMetadata {
		t.Errorf("metadata = %q", w.Body.String())
	}
}

func TestSubmitMetadataNoChanges(t *testing.T) {
	_, router, domainID := testEnv(t)
	e := createEntity(t, router, "idp", domainID)

	submit := func() *httptest.ResponseRecorder {
		return doJSON(t, router, http.MethodPut, fmt.Sprintf("/entities/%d/metadata", e.ID), "alice",
			MetadataTextRequest{MetadataText: validMetadata, CommitMessage: "import"})
	}
	if w := submit(); w.Code != http.StatusOK {
		t.Fatalf("first submit = %d", w.Code)
	}
	w := submit()
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("second submit = %d, want 422", w.Code)
	}
	errs := formErrors(t, w)
	if len(errs[forms.FieldText]) == 0 || errs[forms.FieldText][0] != forms.MsgNoChanges {
		t.Errorf("errors = %v", errs)
	}
}

func TestSubmitMetadataInvalid(t *testing.T) {
	_, router, domainID := testEnv(t)
	e := createEntity(t, router, "idp", domainID)

	w := doJSON(t, router, http.MethodPut, fmt.Sprintf("/entities/%d/metadata", e.ID), "alice",
		MetadataTextRequest{MetadataText: "<EntityDescriptor/>", CommitMessage: "import"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if errs := formErrors(t, w); len(errs[forms.FieldText]) == 0 {
		t.Errorf("errors = %v, want validator messages on the text field", errs)
	}
}

func TestSubmitMetadataFile(t *testing.T) {
	_, router, domainID := testEnv(t)
	e := createEntity(t, router, "idp", domainID)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(forms.FieldFile, "metadata.xml")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte(validMetadata))
	_ = mw.WriteField(forms.FieldCommitMsg, "file import")
	_ = mw.WriteField(forms.FieldAcceptToU, "true")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/entities/%d/metadata/file", e.ID), &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(RemoteUserHeader, "alice")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestSubmitMetadataFileWithoutToU(t *testing.T) {
	_, router, domainID := testEnv(t)
	e := createEntity(t, router, "idp", domainID)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile(forms.FieldFile, "metadata.xml")
	_, _ = fw.Write([]byte(validMetadata))
	_ = mw.WriteField(forms.FieldCommitMsg, "file import")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/entities/%d/metadata/file", e.ID), &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(RemoteUserHeader, "alice")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if errs := formErrors(t, w); len(errs[forms.FieldAcceptToU]) == 0 {
		t.Errorf("errors = %v", errs)
	}
}

func TestSubmitMetadataRemote(t *testing.T) {
	db, router, domainID := testEnv(t)
	e := createEntity(t, router, "idp", domainID)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(validMetadata))
	}))
	defer srv.Close()

	w := doJSON(t, router, http.MethodPost, fmt.Sprintf("/entities/%d/metadata/remote", e.ID), "alice",
		MetadataRemoteRequest{MetadataURL: srv.URL, CommitMessage: "remote import", AcceptToU: true})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	got, err := db.GetEntity(e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.MetadataURL != srv.URL {
		t.Errorf("metadata url = %q, want %q", got.MetadataURL, srv.URL)
	}
}

func TestRevisionsAndDiff(t *testing.T) {
	_, router, domainID := testEnv(t)
	e := createEntity(t, router, "idp", domainID)

	second := strings.Replace(validMetadata, "idp.example.org", "idp2.example.org", 1)
	for i, md := range []string{validMetadata, second} {
		w := doJSON(t, router, http.MethodPut, fmt.Sprintf("/entities/%d/metadata", e.ID), "alice",
			MetadataTextRequest{MetadataText: md, CommitMessage: fmt.Sprintf("rev %d", i+1)})
		if w.Code != http.StatusOK {
			t.Fatalf("submit %d = %d, body = %s", i, w.Code, w.Body.String())
		}
	}

	w := doJSON(t, router, http.MethodGet, fmt.Sprintf("/entities/%d/metadata/revisions", e.ID), "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("revisions status = %d", w.Code)
	}
	var resp struct {
		Revisions []struct {
			ID  string `json:"id"`
			Seq int    `json:"seq"`
		} `json:"revisions"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Revisions) != 2 || resp.Revisions[0].Seq != 2 {
		t.Fatalf("revisions = %+v", resp.Revisions)
	}

	oldest := resp.Revisions[1]
	w = doJSON(t, router, http.MethodGet,
		fmt.Sprintf("/entities/%d/metadata/diff?rev=%s", e.ID, oldest.ID), "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("diff status = %d, body = %s", w.Code, w.Body.String())
	}
	var diffResp map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &diffResp)
	if !strings.Contains(diffResp["diff"], "idp2.example.org") {
		t.Errorf("diff = %q", diffResp["diff"])
	}
}

func TestGroups(t *testing.T) {
	_, router, domainID := testEnv(t)
	createEntity(t, router, "prod-idp", domainID)
	createEntity(t, router, "staging-idp", domainID)

	w := doJSON(t, router, http.MethodPost, "/groups", "alice",
		GroupRequest{Name: "production", Query: "prod"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create group = %d, body = %s", w.Code, w.Body.String())
	}
	var g models.EntityGroup
	_ = json.Unmarshal(w.Body.Bytes(), &g)

	w = doJSON(t, router, http.MethodGet, fmt.Sprintf("/groups/%d/entities", g.ID), "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("group entities = %d", w.Code)
	}
	var resp struct {
		Entities []models.Entity `json:"entities"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Entities) != 1 || resp.Entities[0].Name != "prod-idp" {
		t.Errorf("entities = %+v", resp.Entities)
	}
}

func TestGroupFormErrors(t *testing.T) {
	_, router, _ := testEnv(t)
	w := doJSON(t, router, http.MethodPost, "/groups", "alice", GroupRequest{})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", w.Code)
	}
	errs := formErrors(t, w)
	if len(errs["name"]) == 0 || len(errs["query"]) == 0 {
		t.Errorf("errors = %v", errs)
	}
}

func TestTerms(t *testing.T) {
	_, router, _ := testEnv(t)
	w := doJSON(t, router, http.MethodGet, "/terms/"+tou.MetadataImport, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["text"] != tou.Fallback {
		t.Errorf("text = %q", resp["text"])
	}
}

func TestTokenAuth(t *testing.T) {
	_, router, _ := testEnvAuth(t, true, "secret")

	req := httptest.NewRequest(http.MethodGet, "/entities", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/entities", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/entities", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token status = %d", w.Code)
	}
}
