// Package admin serves the operator endpoints: migrate, audit, ledger
// lookups and manual sync.
package admin

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"servicehub/internal/audit"
	"servicehub/internal/auth"
	"servicehub/internal/catalog"
	"servicehub/internal/migrate"
	"servicehub/internal/reconcile"
	"servicehub/pkg/database"
	"servicehub/pkg/models"
)

type Migrator interface {
	MigrateLanguage(ctx context.Context, language string, dryRun bool) (*migrate.Run, error)
	MigrateAll(ctx context.Context, dryRun bool) ([]migrate.Run, error)
}

type Auditor interface {
	AuditLanguage(ctx context.Context, language string) (audit.Report, error)
	AuditAll(ctx context.Context) ([]audit.Report, audit.Summary, error)
}

type Ledger interface {
	GetRun(ctx context.Context, id string) (*migrate.Run, error)
	ListRuns(ctx context.Context, language string, limit int) ([]migrate.Run, error)
}

type ServiceFinder interface {
	FindByCanonicalRef(ctx context.Context, ref string) (*models.CanonicalService, error)
}

type Syncer interface {
	SyncService(ctx context.Context, svc models.CanonicalService, change reconcile.ChangeKind) (reconcile.Result, error)
}

type Handler struct {
	Migrator Migrator
	Auditor  Auditor
	Ledger   Ledger
	Services ServiceFinder
	Syncer   Syncer
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/catalogs/migrate", h.migrateAll)    // POST /admin/catalogs/migrate
	rg.POST("/catalogs/:lang/migrate", h.migrate) // POST /admin/catalogs/:lang/migrate
	rg.GET("/catalogs/audit", h.auditAll)         // GET /admin/catalogs/audit
	rg.GET("/catalogs/:lang/audit", h.audit)      // GET /admin/catalogs/:lang/audit
	rg.GET("/catalogs/:lang/migrations", h.runs)  // GET /admin/catalogs/:lang/migrations?limit=
	rg.GET("/migrations/:id", h.run)              // GET /admin/migrations/:id
	rg.POST("/services/:ref/sync", h.sync)        // POST /admin/services/:ref/sync
}

// operatorContext attributes migration runs to the authenticated operator.
func operatorContext(c *gin.Context) context.Context {
	ctx := c.Request.Context()
	if claims, ok := auth.ClaimsFrom(c); ok {
		ctx = migrate.WithOperator(ctx, claims.Operator)
	}
	return ctx
}

func dryRun(c *gin.Context) bool {
	v, err := strconv.ParseBool(c.DefaultQuery("dry_run", "false"))
	return err == nil && v
}

func (h *Handler) migrate(c *gin.Context) {
	run, err := h.Migrator.MigrateLanguage(operatorContext(c), c.Param("lang"), dryRun(c))
	if err != nil && run == nil {
		writeError(c, err, "migration failed")
		return
	}
	if err != nil {
		// catalog written, ledger not recorded
		c.JSON(http.StatusOK, gin.H{"run": run, "warning": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (h *Handler) migrateAll(c *gin.Context) {
	runs, err := h.Migrator.MigrateAll(operatorContext(c), dryRun(c))
	if err != nil {
		writeError(c, err, "migration failed")
		return
	}
	if runs == nil {
		runs = []migrate.Run{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (h *Handler) audit(c *gin.Context) {
	rep, err := h.Auditor.AuditLanguage(c.Request.Context(), c.Param("lang"))
	if err != nil {
		writeError(c, err, "audit failed")
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *Handler) auditAll(c *gin.Context) {
	reports, sum, err := h.Auditor.AuditAll(c.Request.Context())
	if err != nil {
		writeError(c, err, "audit failed")
		return
	}
	if reports == nil {
		reports = []audit.Report{}
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports, "summary": sum})
}

func (h *Handler) run(c *gin.Context) {
	run, err := h.Ledger.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, "get failed")
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *Handler) runs(c *gin.Context) {
	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = n
	}

	runs, err := h.Ledger.ListRuns(c.Request.Context(), c.Param("lang"), limit)
	if err != nil {
		writeError(c, err, "list failed")
		return
	}
	if runs == nil {
		runs = []migrate.Run{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

type syncReq struct {
	Change string `json:"change"`
}

// sync re-pushes the stored service into every catalog. The change kind
// defaults to "updated".
func (h *Handler) sync(c *gin.Context) {
	var req syncReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	change := reconcile.Updated
	if req.Change != "" {
		k, err := reconcile.ParseChangeKind(req.Change)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		change = k
	}

	svc, err := h.Services.FindByCanonicalRef(c.Request.Context(), c.Param("ref"))
	if err != nil {
		writeError(c, err, "get failed")
		return
	}
	if svc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	res, err := h.Syncer.SyncService(c.Request.Context(), *svc, change)
	if err != nil {
		writeError(c, err, "sync failed")
		return
	}
	c.JSON(http.StatusOK, res)
}

func writeError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, database.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": msg})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}
