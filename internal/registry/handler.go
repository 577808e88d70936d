package registry

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fretefacil/mdfe-backend/internal/httpx"
)

// CrudHandler mounts the standard list/get/create/update/delete surface for
// one registry entity.
type CrudHandler[T any, PT Ptr[T]] struct {
	Repo *Repository[T, PT]
}

func NewCrudHandler[T any, PT Ptr[T]](repo *Repository[T, PT]) *CrudHandler[T, PT] {
	return &CrudHandler[T, PT]{Repo: repo}
}

// Mount registers the five CRUD routes on the given group.
func (h *CrudHandler[T, PT]) Mount(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.POST("", h.Create)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
}

func (h *CrudHandler[T, PT]) List(c *gin.Context) {
	page, err := h.Repo.List(PageFromQuery(c))
	if err != nil {
		httpx.AppError(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, page)
}

func (h *CrudHandler[T, PT]) Get(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	e, err := h.Repo.Get(id)
	if err != nil {
		httpx.AppError(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, e)
}

func (h *CrudHandler[T, PT]) Create(c *gin.Context) {
	var e T
	if err := c.ShouldBindJSON(&e); err != nil {
		httpx.BindError(c, err)
		return
	}
	pe := PT(&e)
	if err := h.Repo.Create(pe); err != nil {
		httpx.AppError(c, err)
		return
	}
	httpx.JSON(c, http.StatusCreated, pe)
}

func (h *CrudHandler[T, PT]) Update(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	existing, err := h.Repo.Get(id)
	if err != nil {
		httpx.AppError(c, err)
		return
	}
	// Bind over the loaded row so omitted fields keep their stored values.
	if err := c.ShouldBindJSON(existing); err != nil {
		httpx.BindError(c, err)
		return
	}
	if existing.GetID() != id {
		httpx.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "id do corpo diverge do id da rota", nil)
		return
	}
	if err := h.Repo.Update(existing); err != nil {
		httpx.AppError(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, existing)
}

func (h *CrudHandler[T, PT]) Delete(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.Repo.Delete(id); err != nil {
		httpx.AppError(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, gin.H{"id": id, "ativo": false})
}

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		httpx.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "id inválido", nil)
		return 0, false
	}
	return uint(id), true
}
