package catalog

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"servicehub/pkg/database"
)

type Handler struct {
	Repo *Repo
}

func NewHandler(repo *Repo) *Handler {
	return &Handler{Repo: repo}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.languages)       // GET /catalogs
	rg.GET("/:lang", h.getByLang) // GET /catalogs/:lang
}

func (h *Handler) languages(c *gin.Context) {
	langs, err := h.Repo.Languages(c.Request.Context())
	if err != nil {
		c.JSON(storeStatus(err), gin.H{"error": "list failed"})
		return
	}
	if langs == nil {
		langs = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"languages": langs})
}

func (h *Handler) getByLang(c *gin.Context) {
	doc, err := h.Repo.GetByLanguage(c.Request.Context(), c.Param("lang"))
	if err != nil {
		c.JSON(storeStatus(err), gin.H{"error": "get failed"})
		return
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, doc)
}

func storeStatus(err error) int {
	if errors.Is(err, database.ErrStoreUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
