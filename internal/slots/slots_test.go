package slots

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/extrabeam/backend/internal/companies"
	"github.com/extrabeam/backend/internal/models"
	"github.com/extrabeam/backend/pkg/apperr"
)

func TestValidateRange(t *testing.T) {
	start := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		name    string
		end     time.Time
		wantErr bool
	}{
		{"ok", start.Add(2 * time.Hour), false},
		{"equal", start, true},
		{"inverted", start.Add(-time.Minute), true},
		{"too long", start.Add(25 * time.Hour), true},
		{"zero", time.Time{}, true},
	}
	for _, tc := range cases {
		if err := ValidateRange(start, tc.end); (err != nil) != tc.wantErr {
			t.Fatalf("%s: err = %v, wantErr %v", tc.name, err, tc.wantErr)
		}
	}
}

func TestParseWindow(t *testing.T) {
	now := time.Date(2026, 7, 10, 15, 30, 0, 0, time.UTC)
	w, err := ParseWindow("", "", now)
	if err != nil {
		t.Fatal(err)
	}
	if !w.From.Equal(time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC)) || w.To.Sub(w.From) != DefaultWindow {
		t.Fatalf("default window = %+v", w)
	}
	w, err = ParseWindow("2026-07-01", "2026-07-08T12:00:00+02:00", now)
	if err != nil {
		t.Fatal(err)
	}
	if !w.To.Equal(time.Date(2026, 7, 8, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("to = %v", w.To)
	}
	for _, bad := range [][2]string{{"yesterday", ""}, {"2026-07-08", "2026-07-01"}, {"2026-01-01", "2027-06-01"}} {
		if _, err := ParseWindow(bad[0], bad[1], now); err == nil {
			t.Fatalf("ParseWindow(%q, %q) should fail", bad[0], bad[1])
		}
	}
	if !w.Overlaps(w.From.Add(-time.Hour), w.From.Add(time.Minute)) || w.Overlaps(w.To, w.To.Add(time.Hour)) {
		t.Fatalf("overlap must be half-open")
	}
}

type memSlots map[uuid.UUID]*models.Slot

func (m memSlots) ListRange(_ context.Context, companyID uuid.UUID, w Window) ([]models.Slot, error) {
	out := []models.Slot{}
	for _, s := range m {
		if s.CompanyID == companyID && w.Overlaps(s.StartsAt, s.EndsAt) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m memSlots) Get(_ context.Context, companyID, id uuid.UUID) (*models.Slot, error) {
	s, ok := m[id]
	if !ok || s.CompanyID != companyID {
		return nil, apperr.NotFound("slot not found")
	}
	cp := *s
	return &cp, nil
}

func (m memSlots) Create(_ context.Context, s *models.Slot) error {
	s.ID = uuid.New()
	cp := *s
	m[s.ID] = &cp
	return nil
}

func (m memSlots) Update(_ context.Context, s *models.Slot) error {
	cp := *s
	m[s.ID] = &cp
	return nil
}

func (m memSlots) Delete(_ context.Context, companyID, id uuid.UUID) error {
	if _, err := m.Get(context.Background(), companyID, id); err != nil {
		return err
	}
	delete(m, id)
	return nil
}

type memMissions map[uuid.UUID]*models.Mission

func (m memMissions) GetByID(_ context.Context, id uuid.UUID) (*models.Mission, error) {
	if mi, ok := m[id]; ok {
		return mi, nil
	}
	return nil, apperr.NotFound("mission not found")
}

type oneCompany struct{ co *models.Company }

func (f oneCompany) GetByID(_ context.Context, id uuid.UUID) (*models.Company, error) {
	if id == f.co.ID {
		return f.co, nil
	}
	return nil, apperr.NotFound("company not found")
}

func (f oneCompany) GetBySlug(_ context.Context, slug string) (*models.Company, error) {
	if slug == f.co.Slug {
		return f.co, nil
	}
	return nil, apperr.NotFound("company not found")
}

func TestSlotMissionMustBelongToCompany(t *testing.T) {
	gin.SetMode(gin.TestMode)
	co := &models.Company{ID: uuid.New(), Slug: "atelier"}
	own := &models.Mission{ID: uuid.New(), CompanyID: co.ID}
	foreign := &models.Mission{ID: uuid.New(), CompanyID: uuid.New()}
	store := memSlots{}
	h := NewHandler(store, memMissions{own.ID: own, foreign.ID: foreign}, oneCompany{co}, nil)

	r := gin.New()
	g := r.Group("/companies/:slug/slots", func(c *gin.Context) { c.Set(companies.ContextCompany, co) })
	g.POST("", h.Create)
	g.PATCH("/:id", h.Update)
	r.GET("/public/:slug/slots", h.List)

	post := func(body string) int {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/companies/atelier/slots", strings.NewReader(body)))
		return resp.Code
	}
	base := `"starts_at":"2026-07-01T09:00:00Z","ends_at":"2026-07-01T12:00:00Z"`

	if code := post(`{` + base + `,"mission_id":"` + own.ID.String() + `"}`); code != http.StatusCreated {
		t.Fatalf("own mission: expected 201, got %d", code)
	}
	if code := post(`{` + base + `,"mission_id":"` + foreign.ID.String() + `"}`); code != http.StatusBadRequest {
		t.Fatalf("foreign mission: expected 400, got %d", code)
	}
	if code := post(`{` + base + `,"mission_id":"` + uuid.NewString() + `"}`); code != http.StatusBadRequest {
		t.Fatalf("missing mission: expected 400, got %d", code)
	}
	if code := post(`{"starts_at":"2026-07-01T12:00:00Z","ends_at":"2026-07-01T09:00:00Z"}`); code != http.StatusBadRequest {
		t.Fatalf("inverted: expected 400, got %d", code)
	}
	if len(store) != 1 {
		t.Fatalf("stored slots = %d, want 1", len(store))
	}

	var id uuid.UUID
	for k := range store {
		id = k
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPatch, "/companies/atelier/slots/"+id.String(), strings.NewReader(`{"mission_id":"","ends_at":"2026-07-01T13:00:00Z"}`)))
	if resp.Code != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if store[id].MissionID != nil || store[id].Duration() != 4*time.Hour {
		t.Fatalf("patched slot = %+v", store[id])
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/public/atelier/slots?from=2026-07-01&to=2026-07-02", nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), id.String()) {
		t.Fatalf("list: %d %s", resp.Code, resp.Body.String())
	}
}
