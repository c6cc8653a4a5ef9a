package companies

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/extrabeam/backend/internal/middleware"
	"github.com/extrabeam/backend/internal/models"
	"github.com/extrabeam/backend/pkg/apperr"
	"github.com/extrabeam/backend/pkg/response"
	"github.com/extrabeam/backend/pkg/storage"
	"github.com/extrabeam/backend/pkg/utils"
)

// Store is the persistence the handler needs.
type Store interface {
	Finder
	Create(ctx context.Context, co *models.Company) error
	ListActive(ctx context.Context, f DirectoryFilter) ([]*models.Company, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, u ProfileUpdate) (*models.Company, error)
}

// DocumentStore keeps profile documents.
type DocumentStore interface {
	PresignUpload(ctx context.Context, key, contentType string) (string, error)
	PresignDownload(ctx context.Context, key string) (string, error)
	Upload(ctx context.Context, key, contentType string, body io.Reader) error
	Exists(ctx context.Context, key string) (bool, error)
	DeleteObject(ctx context.Context, key string) error
}

// Handler handles company HTTP endpoints.
type Handler struct {
	store  Store
	docs   DocumentStore // nil when S3 is not configured
	logger *zap.Logger
}

// NewHandler creates a companies handler.
func NewHandler(store Store, docs DocumentStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, docs: docs, logger: logger}
}

// CreateCompanyRequest is the body for POST /api/companies.
type CreateCompanyRequest struct {
	Name            string   `json:"name" binding:"required,max=255"`
	Slug            string   `json:"slug"`
	Headline        string   `json:"headline" binding:"max=255"`
	Bio             string   `json:"bio"`
	Skills          []string `json:"skills"`
	HourlyRateCents int64    `json:"hourly_rate_cents" binding:"min=0"`
	City            string   `json:"city"`
	Phone           string   `json:"phone"`
	Siret           string   `json:"siret"`
}

// UpdateCompanyRequest is the body for PATCH /api/companies/:slug.
type UpdateCompanyRequest struct {
	Name            *string  `json:"name" binding:"omitempty,min=1,max=255"`
	Headline        *string  `json:"headline" binding:"omitempty,max=255"`
	Bio             *string  `json:"bio"`
	Skills          []string `json:"skills"`
	HourlyRateCents *int64   `json:"hourly_rate_cents" binding:"omitempty,min=0"`
	City            *string  `json:"city"`
	Phone           *string  `json:"phone"`
	Siret           *string  `json:"siret"`
	AvatarKey       *string  `json:"avatar_key"`
	CVKey           *string  `json:"cv_key"`
}

// UploadRequest is the body for POST /api/companies/:slug/uploads.
type UploadRequest struct {
	Kind        string `json:"kind" binding:"required,oneof=avatar cv"`
	ContentType string `json:"content_type" binding:"required"`
	Size        int64  `json:"size" binding:"min=0"`
}

// UploadResponse tells the browser where to PUT the file and which key to save on the profile.
type UploadResponse struct {
	UploadURL string `json:"upload_url"`
	Key       string `json:"key"`
}

// Create handles POST /api/companies. The caller becomes the owner.
func (h *Handler) Create(c *gin.Context) {
	userID, _ := middleware.CurrentUser(c)
	var req CreateCompanyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	slug := strings.ToLower(strings.TrimSpace(req.Slug))
	if slug == "" {
		slug = utils.Slugify(req.Name)
	}
	if req.Name == "" || !utils.ValidSlug(slug) {
		response.BadRequest(c, "slug must be 2-64 chars, lowercase letters, numbers, hyphens only")
		return
	}
	co := &models.Company{
		OwnerID:         userID,
		Slug:            slug,
		Name:            req.Name,
		Headline:        req.Headline,
		Bio:             req.Bio,
		Skills:          cleanSkills(req.Skills),
		HourlyRateCents: req.HourlyRateCents,
		City:            strings.TrimSpace(req.City),
		Phone:           req.Phone,
		Siret:           req.Siret,
	}
	if err := h.store.Create(c.Request.Context(), co); err != nil {
		if !errors.Is(err, apperr.ErrConflict) {
			h.logger.Error("create company failed", zap.Error(err))
		}
		response.Error(c, err, "failed to create company")
		return
	}
	response.Created(c, co)
}

// List handles GET /api/companies. Public directory of subscribed companies.
func (h *Handler) List(c *gin.Context) {
	list, err := h.store.ListActive(c.Request.Context(), DirectoryFilter{
		City:  strings.TrimSpace(c.Query("city")),
		Skill: strings.ToLower(strings.TrimSpace(c.Query("skill"))),
	})
	if err != nil {
		h.logger.Error("list companies failed", zap.Error(err))
		response.Internal(c, "failed to load companies")
		return
	}
	if list == nil {
		list = []*models.Company{}
	}
	for _, co := range list {
		h.attachURLs(c.Request.Context(), co)
	}
	response.OK(c, list)
}

// Get handles GET /api/companies/:slug. Public profile.
func (h *Handler) Get(c *gin.Context) {
	co, err := Resolve(c.Request.Context(), h.store, c.Param("slug"))
	if err != nil {
		response.Error(c, err, "failed to load company")
		return
	}
	h.attachURLs(c.Request.Context(), co)
	response.OK(c, co)
}

// Update handles PATCH /api/companies/:slug. Requires RequireManager.
func (h *Handler) Update(c *gin.Context) {
	co := FromContext(c)
	var req UpdateCompanyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.AvatarKey != nil && *req.AvatarKey != "" && !storage.KeyBelongsTo(*req.AvatarKey, co.ID, storage.DocumentAvatar) {
		response.BadRequest(c, "avatar_key was not issued for this company")
		return
	}
	if req.CVKey != nil && *req.CVKey != "" && !storage.KeyBelongsTo(*req.CVKey, co.ID, storage.DocumentCV) {
		response.BadRequest(c, "cv_key was not issued for this company")
		return
	}
	ctx := c.Request.Context()
	if h.docs != nil {
		for _, key := range []*string{req.AvatarKey, req.CVKey} {
			if key == nil || *key == "" {
				continue
			}
			ok, err := h.docs.Exists(ctx, *key)
			if err != nil {
				h.logger.Error("check document failed", zap.String("key", *key), zap.Error(err))
				response.Internal(c, "failed to check document")
				return
			}
			if !ok {
				response.BadRequest(c, "document has not been uploaded")
				return
			}
		}
	}
	before := keysOf(co)
	update := ProfileUpdate{
		Name:            trimmed(req.Name),
		Headline:        req.Headline,
		Bio:             req.Bio,
		HourlyRateCents: req.HourlyRateCents,
		City:            trimmed(req.City),
		Phone:           req.Phone,
		Siret:           req.Siret,
		AvatarKey:       req.AvatarKey,
		CVKey:           req.CVKey,
	}
	if req.Skills != nil {
		update.Skills = cleanSkills(req.Skills)
	}
	updated, err := h.store.UpdateProfile(ctx, co.ID, update)
	if err != nil {
		h.logger.Error("update company failed", zap.String("company_id", co.ID.String()), zap.Error(err))
		response.Error(c, err, "failed to update company")
		return
	}
	h.dropReplaced(ctx, before, updated)
	h.attachURLs(ctx, updated)
	response.OK(c, updated)
}

// UploadDocument handles PUT /api/companies/:slug/documents/:kind with the raw file as body.
// The file goes through the server and its key is saved on the profile. Requires RequireManager.
func (h *Handler) UploadDocument(c *gin.Context) {
	if h.docs == nil {
		response.ServiceUnavailable(c, "document storage not configured")
		return
	}
	co := FromContext(c)
	kind := storage.DocumentKind(c.Param("kind"))
	contentType := c.ContentType()
	ext, err := storage.ValidateDocument(kind, contentType)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	limit := storage.MaxDocumentSize[kind]
	if c.Request.ContentLength > limit {
		response.BadRequest(c, "file too large")
		return
	}

	ctx := c.Request.Context()
	key := storage.DocumentKey(co.ID, kind, ext)
	body := http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	if err := h.docs.Upload(ctx, key, contentType, body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.BadRequest(c, "file too large")
			return
		}
		h.logger.Error("document upload failed", zap.String("key", key), zap.Error(err))
		response.Internal(c, "failed to store document")
		return
	}

	before := keysOf(co)
	var update ProfileUpdate
	if kind == storage.DocumentAvatar {
		update.AvatarKey = &key
	} else {
		update.CVKey = &key
	}
	updated, err := h.store.UpdateProfile(ctx, co.ID, update)
	if err != nil {
		h.logger.Error("save document key failed", zap.String("company_id", co.ID.String()), zap.Error(err))
		response.Error(c, err, "failed to update company")
		return
	}
	h.dropReplaced(ctx, before, updated)
	h.attachURLs(ctx, updated)
	response.OK(c, updated)
}

// RequestUpload handles POST /api/companies/:slug/uploads. Requires RequireManager.
func (h *Handler) RequestUpload(c *gin.Context) {
	if h.docs == nil {
		response.ServiceUnavailable(c, "document storage not configured")
		return
	}
	co := FromContext(c)
	var req UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	kind := storage.DocumentKind(req.Kind)
	ext, err := storage.ValidateDocument(kind, req.ContentType)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.Size > storage.MaxDocumentSize[kind] {
		response.BadRequest(c, "file too large")
		return
	}
	key := storage.DocumentKey(co.ID, kind, ext)
	url, err := h.docs.PresignUpload(c.Request.Context(), key, req.ContentType)
	if err != nil {
		h.logger.Error("presign upload failed", zap.String("key", key), zap.Error(err))
		response.Internal(c, "failed to prepare upload")
		return
	}
	response.OK(c, UploadResponse{UploadURL: url, Key: key})
}

type documentKeys struct {
	avatar string
	cv     string
}

func keysOf(co *models.Company) documentKeys {
	return documentKeys{avatar: co.AvatarKey, cv: co.CVKey}
}

// dropReplaced deletes documents the profile no longer points at.
func (h *Handler) dropReplaced(ctx context.Context, before documentKeys, co *models.Company) {
	if h.docs == nil || co == nil {
		return
	}
	for _, pair := range [][2]string{{before.avatar, co.AvatarKey}, {before.cv, co.CVKey}} {
		if pair[0] == "" || pair[0] == pair[1] {
			continue
		}
		if err := h.docs.DeleteObject(ctx, pair[0]); err != nil {
			h.logger.Warn("delete replaced document failed", zap.String("key", pair[0]), zap.Error(err))
		}
	}
}

func (h *Handler) attachURLs(ctx context.Context, co *models.Company) {
	if h.docs == nil || co == nil {
		return
	}
	if co.AvatarKey != "" {
		if u, err := h.docs.PresignDownload(ctx, co.AvatarKey); err == nil {
			co.AvatarURL = u
		} else {
			h.logger.Warn("presign avatar failed", zap.String("company_id", co.ID.String()), zap.Error(err))
		}
	}
	if co.CVKey != "" {
		if u, err := h.docs.PresignDownload(ctx, co.CVKey); err == nil {
			co.CVURL = u
		} else {
			h.logger.Warn("presign cv failed", zap.String("company_id", co.ID.String()), zap.Error(err))
		}
	}
}

func cleanSkills(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
