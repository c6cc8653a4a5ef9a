package companies

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/extrabeam/backend/internal/middleware"
	"github.com/extrabeam/backend/internal/models"
	"github.com/extrabeam/backend/pkg/apperr"
	"github.com/extrabeam/backend/pkg/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeStore struct {
	bySlug  map[string]*models.Company
	created []*models.Company
	updates []ProfileUpdate
}

func newFakeStore(cos ...*models.Company) *fakeStore {
	s := &fakeStore{bySlug: map[string]*models.Company{}}
	for _, co := range cos {
		s.bySlug[co.Slug] = co
	}
	return s
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Company, error) {
	for _, co := range s.bySlug {
		if co.ID == id {
			return co, nil
		}
	}
	return nil, apperr.NotFound("company not found")
}

func (s *fakeStore) GetBySlug(_ context.Context, slug string) (*models.Company, error) {
	if co, ok := s.bySlug[slug]; ok {
		return co, nil
	}
	return nil, apperr.NotFound("company not found")
}

func (s *fakeStore) Create(_ context.Context, co *models.Company) error {
	if _, ok := s.bySlug[co.Slug]; ok {
		return apperr.Conflict("a company with this slug already exists, or you already own one")
	}
	co.ID = uuid.New()
	s.bySlug[co.Slug] = co
	s.created = append(s.created, co)
	return nil
}

func (s *fakeStore) ListActive(context.Context, DirectoryFilter) ([]*models.Company, error) {
	return nil, nil
}

func (s *fakeStore) UpdateProfile(_ context.Context, id uuid.UUID, u ProfileUpdate) (*models.Company, error) {
	s.updates = append(s.updates, u)
	co, err := s.GetByID(context.Background(), id)
	if err != nil {
		return nil, err
	}
	if u.AvatarKey != nil {
		co.AvatarKey = *u.AvatarKey
	}
	if u.CVKey != nil {
		co.CVKey = *u.CVKey
	}
	return co, nil
}

type fakeDocs struct {
	objects map[string]string // key -> content type
	deleted []string
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{objects: map[string]string{}}
}

// PresignUpload records the key as uploaded, standing in for the browser PUT.
func (f *fakeDocs) PresignUpload(_ context.Context, key, contentType string) (string, error) {
	f.objects[key] = contentType
	return "https://upload.test/" + key, nil
}

func (f *fakeDocs) PresignDownload(_ context.Context, key string) (string, error) {
	return "https://download.test/" + key, nil
}

func (f *fakeDocs) Upload(_ context.Context, key, contentType string, body io.Reader) error {
	if _, err := io.ReadAll(body); err != nil {
		return err
	}
	f.objects[key] = contentType
	return nil
}

func (f *fakeDocs) Exists(_ context.Context, key string) (bool, error) {
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeDocs) DeleteObject(_ context.Context, key string) error {
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func withUser(id uuid.UUID, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserID, id)
		c.Set(middleware.ContextUserRole, role)
		c.Next()
	}
}

func TestCanManage(t *testing.T) {
	owner := uuid.New()
	co := &models.Company{ID: uuid.New(), OwnerID: owner}
	cases := []struct {
		name string
		user uuid.UUID
		role string
		want bool
	}{
		{"owner", owner, "entreprise", true},
		{"admin", uuid.New(), "admin", true},
		{"stranger", uuid.New(), "entreprise", false},
		{"client", uuid.New(), "client", false},
		{"anonymous", uuid.Nil, "", false},
	}
	for _, tc := range cases {
		if got := CanManage(co, tc.user, tc.role); got != tc.want {
			t.Fatalf("%s: CanManage = %v, want %v", tc.name, got, tc.want)
		}
	}
	if CanManage(nil, owner, "admin") {
		t.Fatalf("nil company must not be manageable")
	}
}

func TestResolveByIDOrSlug(t *testing.T) {
	co := &models.Company{ID: uuid.New(), Slug: "atelier-dupont"}
	store := newFakeStore(co)

	got, err := Resolve(context.Background(), store, co.ID.String())
	if err != nil || got != co {
		t.Fatalf("resolve by id: %v, %v", got, err)
	}
	got, err = Resolve(context.Background(), store, "atelier-dupont")
	if err != nil || got != co {
		t.Fatalf("resolve by slug: %v, %v", got, err)
	}
	if _, err := Resolve(context.Background(), store, "  "); err == nil {
		t.Fatalf("empty key should fail")
	}
}

func TestRequireManager(t *testing.T) {
	owner := uuid.New()
	co := &models.Company{ID: uuid.New(), OwnerID: owner, Slug: "atelier"}
	store := newFakeStore(co)

	cases := []struct {
		name string
		user uuid.UUID
		role string
		slug string
		want int
	}{
		{"owner", owner, "entreprise", "atelier", http.StatusOK},
		{"admin", uuid.New(), "admin", "atelier", http.StatusOK},
		{"other", uuid.New(), "entreprise", "atelier", http.StatusForbidden},
		{"missing", owner, "entreprise", "unknown", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/companies/:slug", withUser(tc.user, tc.role), RequireManager(store), func(c *gin.Context) {
				if FromContext(c) != co {
					c.Status(http.StatusTeapot)
					return
				}
				c.Status(http.StatusOK)
			})
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/companies/"+tc.slug, nil))
			if resp.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, resp.Code)
			}
		})
	}
}

func TestCreateDerivesSlug(t *testing.T) {
	store := newFakeStore()
	h := NewHandler(store, nil, nil)
	owner := uuid.New()
	r := gin.New()
	r.POST("/companies", withUser(owner, "entreprise"), h.Create)

	body := `{"name":"Élodie Martin Services","skills":["Serveur"," serveur ","Barman"]}`
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/companies", strings.NewReader(body)))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if len(store.created) != 1 {
		t.Fatalf("expected one company created")
	}
	co := store.created[0]
	if co.Slug != "elodie-martin-services" {
		t.Fatalf("slug = %q", co.Slug)
	}
	if co.OwnerID != owner {
		t.Fatalf("owner not set from caller")
	}
	if len(co.Skills) != 2 || co.Skills[0] != "serveur" || co.Skills[1] != "barman" {
		t.Fatalf("skills = %v", co.Skills)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/companies", strings.NewReader(body)))
	if resp.Code != http.StatusConflict {
		t.Fatalf("duplicate slug: expected 409, got %d", resp.Code)
	}
}

func TestCreateRejectsBadSlug(t *testing.T) {
	h := NewHandler(newFakeStore(), nil, nil)
	r := gin.New()
	r.POST("/companies", withUser(uuid.New(), "entreprise"), h.Create)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/companies", strings.NewReader(`{"name":"X","slug":"Bad Slug!"}`)))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestRequestUploadAndKeyCheck(t *testing.T) {
	owner := uuid.New()
	co := &models.Company{ID: uuid.New(), OwnerID: owner, Slug: "atelier"}
	store := newFakeStore(co)
	h := NewHandler(store, newFakeDocs(), nil)
	r := gin.New()
	g := r.Group("/companies/:slug", withUser(owner, "entreprise"), RequireManager(store))
	g.POST("/uploads", h.RequestUpload)
	g.PATCH("", h.Update)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/companies/atelier/uploads",
		strings.NewReader(`{"kind":"cv","content_type":"application/pdf","size":1024}`)))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var out struct {
		Data UploadResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(out.Data.UploadURL, "https://upload.test/companies/"+co.ID.String()+"/cv/") {
		t.Fatalf("upload url = %q", out.Data.UploadURL)
	}

	patch, _ := json.Marshal(map[string]string{"cv_key": out.Data.Key})
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPatch, "/companies/atelier", bytes.NewReader(patch)))
	if resp.Code != http.StatusOK {
		t.Fatalf("patch with issued key: expected 200, got %d", resp.Code)
	}

	foreign, _ := json.Marshal(map[string]string{"cv_key": "companies/" + uuid.NewString() + "/cv/x.pdf"})
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPatch, "/companies/atelier", bytes.NewReader(foreign)))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("patch with foreign key: expected 400, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/companies/atelier/uploads",
		strings.NewReader(`{"kind":"avatar","content_type":"application/pdf"}`)))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("pdf avatar: expected 400, got %d", resp.Code)
	}
}

func TestPatchRequiresUploadedDocument(t *testing.T) {
	owner := uuid.New()
	co := &models.Company{ID: uuid.New(), OwnerID: owner, Slug: "atelier"}
	store := newFakeStore(co)
	h := NewHandler(store, newFakeDocs(), nil)
	r := gin.New()
	g := r.Group("/companies/:slug", withUser(owner, "entreprise"), RequireManager(store))
	g.PATCH("", h.Update)

	never, _ := json.Marshal(map[string]string{"cv_key": "companies/" + co.ID.String() + "/cv/never.pdf"})
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPatch, "/companies/atelier", bytes.NewReader(never)))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a key never uploaded, got %d", resp.Code)
	}
	if len(store.updates) != 0 {
		t.Fatalf("profile must not be updated")
	}
}

func TestUploadDocumentReplacesPrevious(t *testing.T) {
	owner := uuid.New()
	co := &models.Company{ID: uuid.New(), OwnerID: owner, Slug: "atelier"}
	store := newFakeStore(co)
	docs := newFakeDocs()
	h := NewHandler(store, docs, nil)
	r := gin.New()
	g := r.Group("/companies/:slug", withUser(owner, "entreprise"), RequireManager(store))
	g.PUT("/documents/:kind", h.UploadDocument)

	put := func(kind, contentType, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, "/companies/atelier/documents/"+kind, strings.NewReader(body))
		req.Header.Set("Content-Type", contentType)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		return resp
	}

	if resp := put("cv", "application/pdf", "%PDF-1"); resp.Code != http.StatusOK {
		t.Fatalf("first upload: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	first := co.CVKey
	if !strings.HasPrefix(first, "companies/"+co.ID.String()+"/cv/") {
		t.Fatalf("cv key = %q", first)
	}
	if resp := put("cv", "application/pdf", "%PDF-2"); resp.Code != http.StatusOK {
		t.Fatalf("second upload: expected 200, got %d", resp.Code)
	}
	if co.CVKey == first {
		t.Fatalf("second upload should get a fresh key")
	}
	if len(docs.deleted) != 1 || docs.deleted[0] != first {
		t.Fatalf("deleted = %v, want [%s]", docs.deleted, first)
	}

	if resp := put("avatar", "application/pdf", "x"); resp.Code != http.StatusBadRequest {
		t.Fatalf("pdf avatar: expected 400, got %d", resp.Code)
	}
	big := strings.Repeat("a", int(storage.MaxDocumentSize[storage.DocumentAvatar])+1)
	if resp := put("avatar", "image/png", big); resp.Code != http.StatusBadRequest {
		t.Fatalf("oversized avatar: expected 400, got %d", resp.Code)
	}
	if co.AvatarKey != "" {
		t.Fatalf("avatar must stay unset, got %q", co.AvatarKey)
	}
}
