package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"servicehub/internal/reconcile"
	"servicehub/pkg/database"
	"servicehub/pkg/models"
)

// Store is what the handler needs from the canonical service store.
type Store interface {
	List(ctx context.Context, q ListQuery) ([]models.CanonicalService, error)
	FindByCanonicalRef(ctx context.Context, ref string) (*models.CanonicalService, error)
	Create(ctx context.Context, s models.CanonicalService) (*models.CanonicalService, error)
	Update(ctx context.Context, s models.CanonicalService) (*models.CanonicalService, error)
	SetActive(ctx context.Context, ref string, active bool) (*models.CanonicalService, error)
	Delete(ctx context.Context, ref string) (bool, error)
}

// Triggers receives every committed change; *reconcile.Reconciler
// implements it.
type Triggers interface {
	OnServiceCreated(ctx context.Context, svc models.CanonicalService) (reconcile.Result, error)
	OnServiceUpdated(ctx context.Context, svc models.CanonicalService) (reconcile.Result, error)
	OnServiceDeleted(ctx context.Context, svc models.CanonicalService) (reconcile.Result, error)
	OnServiceStatusChanged(ctx context.Context, svc models.CanonicalService) (reconcile.Result, error)
}

type Handler struct {
	Store    Store
	Triggers Triggers
	Logger   *slog.Logger
}

func NewHandler(store Store, triggers Triggers, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Store: store, Triggers: triggers, Logger: logger.With("component", "services")}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.list)                    // GET /services
	rg.GET("/:ref", h.get)                // GET /services/:ref
	rg.POST("", h.create)                 // POST /services
	rg.PUT("/:ref", h.update)             // PUT /services/:ref
	rg.PATCH("/:ref/status", h.setStatus) // PATCH /services/:ref/status
	rg.DELETE("/:ref", h.remove)          // DELETE /services/:ref
}

type serviceReq struct {
	LegacyID    int                `json:"legacy_id"`
	Language    string             `json:"language"`
	DisplayName string             `json:"display_name"`
	IconURL     string             `json:"icon_url"`
	PricingPlan models.PricingPlan `json:"pricing_plan"`
	Active      *bool              `json:"active"`
}

func (r serviceReq) validate() string {
	switch {
	case strings.TrimSpace(r.Language) == "":
		return "language is required"
	case strings.TrimSpace(r.DisplayName) == "":
		return "display_name is required"
	case r.LegacyID < 0:
		return "legacy_id must not be negative"
	}
	for _, o := range r.PricingPlan.Options {
		if !models.IsDecimalPrice(strings.TrimSpace(o.Price)) {
			return "pricing_plan prices must be plain decimals"
		}
	}
	return ""
}

func (r serviceReq) toModel(ref string) models.CanonicalService {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return models.CanonicalService{
		CanonicalRef: ref,
		LegacyID:     r.LegacyID,
		Language:     strings.TrimSpace(r.Language),
		DisplayName:  strings.TrimSpace(r.DisplayName),
		IconURL:      strings.TrimSpace(r.IconURL),
		PricingPlan:  r.PricingPlan,
		Active:       active,
	}
}

func (h *Handler) list(c *gin.Context) {
	q := ListQuery{
		Language: c.Query("language"),
		Limit:    parseInt(c.Query("limit"), 20),
		Offset:   parseInt(c.Query("offset"), 0),
	}
	items, err := h.Store.List(c.Request.Context(), q)
	if err != nil {
		c.JSON(storeStatus(err), gin.H{"error": "list failed"})
		return
	}
	if items == nil {
		items = []models.CanonicalService{}
	}
	c.JSON(http.StatusOK, gin.H{"limit": q.Limit, "offset": q.Offset, "items": items})
}

func (h *Handler) get(c *gin.Context) {
	s, err := h.Store.FindByCanonicalRef(c.Request.Context(), c.Param("ref"))
	if err != nil {
		c.JSON(storeStatus(err), gin.H{"error": "get failed"})
		return
	}
	if s == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) create(c *gin.Context) {
	var req serviceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if msg := req.validate(); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	s, err := h.Store.Create(c.Request.Context(), req.toModel(""))
	if err != nil {
		h.writeStoreError(c, err, "create failed")
		return
	}
	h.respondSynced(c, http.StatusCreated, *s, h.Triggers.OnServiceCreated)
}

func (h *Handler) update(c *gin.Context) {
	var req serviceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if msg := req.validate(); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	if req.LegacyID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "legacy_id is required"})
		return
	}

	s, err := h.Store.Update(c.Request.Context(), req.toModel(c.Param("ref")))
	if err != nil {
		h.writeStoreError(c, err, "update failed")
		return
	}
	if s == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	h.respondSynced(c, http.StatusOK, *s, h.Triggers.OnServiceUpdated)
}

type statusReq struct {
	Active *bool `json:"active"`
}

func (h *Handler) setStatus(c *gin.Context) {
	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Active == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "active is required"})
		return
	}

	s, err := h.Store.SetActive(c.Request.Context(), c.Param("ref"), *req.Active)
	if err != nil {
		h.writeStoreError(c, err, "status change failed")
		return
	}
	if s == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	h.respondSynced(c, http.StatusOK, *s, h.Triggers.OnServiceStatusChanged)
}

func (h *Handler) remove(c *gin.Context) {
	ctx := c.Request.Context()
	ref := c.Param("ref")

	// snapshot first; the row is gone afterwards
	s, err := h.Store.FindByCanonicalRef(ctx, ref)
	if err != nil {
		h.writeStoreError(c, err, "delete failed")
		return
	}
	if s == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	ok, err := h.Store.Delete(ctx, ref)
	if err != nil {
		h.writeStoreError(c, err, "delete failed")
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	h.respondSynced(c, http.StatusOK, *s, h.Triggers.OnServiceDeleted)
}

type trigger func(ctx context.Context, svc models.CanonicalService) (reconcile.Result, error)

// respondSynced runs the trigger for a committed change. A failed sync
// does not undo the change; the response says so with 503.
func (h *Handler) respondSynced(c *gin.Context, code int, s models.CanonicalService, fire trigger) {
	res, err := fire(c.Request.Context(), s)
	if err != nil {
		h.Logger.Error("sync after change failed", "canonical_ref", s.CanonicalRef, "err", err)
		c.JSON(storeStatus(err), gin.H{"error": "sync failed", "service": s})
		return
	}
	c.JSON(code, gin.H{"service": s, "sync": res})
}

func (h *Handler) writeStoreError(c *gin.Context, err error, msg string) {
	if errors.Is(err, ErrConflict) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(storeStatus(err), gin.H{"error": msg})
}

func storeStatus(err error) int {
	if errors.Is(err, database.ErrStoreUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func parseInt(s string, def int) int {
	if strings.TrimSpace(s) == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
