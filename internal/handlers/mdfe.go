package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fretefacil/mdfe-backend/internal/apperr"
	"github.com/fretefacil/mdfe-backend/internal/httpx"
	"github.com/fretefacil/mdfe-backend/internal/middleware"
	"github.com/fretefacil/mdfe-backend/internal/sefaz"
	"github.com/fretefacil/mdfe-backend/internal/services"
)

// MDFeHandler exposes the manifest lifecycle over HTTP. All gating decisions
// live in the services; handlers only bind, delegate and write envelopes.
type MDFeHandler struct {
	mdfes      *services.MDFeService
	documentos *services.DocumentoService
	pagamentos *services.PagamentoService
	renderer   sefaz.Renderer
}

func NewMDFeHandler(m *services.MDFeService, d *services.DocumentoService, p *services.PagamentoService, r sefaz.Renderer) *MDFeHandler {
	return &MDFeHandler{mdfes: m, documentos: d, pagamentos: p, renderer: r}
}

// Mount registers the manifest routes on the given group.
func (h *MDFeHandler) Mount(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/proximo-numero", h.ProximoNumero)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
	rg.POST("/:id/gerar", h.Gerar)
	rg.POST("/:id/transmitir", h.Transmitir)
	rg.POST("/:id/cancelar", h.Cancelar)
	rg.POST("/:id/encerrar", h.Encerrar)
	rg.GET("/:id/consultar", h.Consultar)
	rg.GET("/:id/damdfe", h.DAMDFE)
	rg.GET("/:id/documentos-fiscais", h.GetDocumentos)
	rg.POST("/:id/documentos-fiscais", h.SetDocumentos)
	rg.PUT("/:id/pagamentos", h.SetPagamentos)
	rg.PUT("/:id/seguro", h.SetSeguro)
}

func (h *MDFeHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	result, err := h.mdfes.List(services.ListParams{
		Page:   page,
		Limit:  limit,
		Status: c.Query("status"),
		Search: c.Query("search"),
	})
	if err != nil {
		httpx.AppError(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, result)
}

func (h *MDFeHandler) Create(c *gin.Context) {
	var req services.CriarMDFeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.BindError(c, err)
		return
	}
	m, err := h.mdfes.Criar(c.Request.Context(), req, middleware.LoginOf(c))
	if err != nil {
		httpx.AppError(c, err)
		return
	}
	httpx.JSON(c, http.StatusCreated, m)
}

func (h *MDFeHandler) Get(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	m, err := h.mdfes.Get(id)
	if err != nil {
		httpx.AppError(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, m)
}

func (h *MDFeHandler) Update(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req services.AtualizarMDFeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.BindError(c, err)
		return
	}
	m, err := h.mdfes.Atualizar(c.Request.Context(), id, req, middleware.LoginOf(c))
	if err != nil {
		httpx.AppError(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, m)
}

func (h *MDFeHandler) Delete(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.mdfes.Excluir(c.Request.Context(), id); err != nil {
		httpx.AppError(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, gin.H{"id": id})
}

func (h *MDFeHandler) ProximoNumero(c *gin.Context) {
	cnpj := c.Query("emitenteCnpj")
	if cnpj == "" {
		httpx.AppError(c, apperr.Validation("parâmetro emitenteCnpj é obrigatório"))
		return
	}
	serie, _ := strconv.Atoi(c.DefaultQuery("serie", "0"))
	numero, err := h.mdfes.ProximoNumero(cnpj, serie)
	if err != nil {
		httpx.AppError(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, gin.H{"proximoNumero": numero})
}

func (h *MDFeHandler) Gerar(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	m, err := h.mdfes.Gerar(c.Request.Context(), id)
	if err != nil {
		httpx.AppError(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, m)
}

func (h *MDFeHandler) Transmitir(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req struct {
		Sincrono *bool `json:"sincrono"`
	}
	_ = c.ShouldBindJSON(&req)
	sincrono := true
	if req.Sincrono != nil {
		sincrono = *req.Sincrono
	}
	m, err := h.mdfes.Transmitir(c.Request.Context(), id, sincrono)
	if err != nil {
		httpx.AppError(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, m)
}

func (h *MDFeHandler) Cancelar(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req struct {
		Justificativa string `json:"justificativa" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.BindError(c, err)
		return
	}
	m, err := h.mdfes.Cancelar(c.Request.Context(), id, req.Justificativa)
	if err != nil {
		httpx.AppError(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, m)
}

func (h *MDFeHandler) Encerrar(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req struct {
		CodigoMunicipio  string     `json:"codigoMunicipio" binding:"required"`
		DataEncerramento *time.Time `json:"dataEncerramento"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.BindError(c, err)
		return
	}
	data := time.Now()
	if req.DataEncerramento != nil {
		data = *req.DataEncerramento
	}
	m, err := h.mdfes.Encerrar(c.Request.Context(), id, req.CodigoMunicipio, data)
	if err != nil {
		httpx.AppError(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, m)
}

func (h *MDFeHandler) Consultar(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	ret, err := h.mdfes.Consultar(c.Request.Context(), id)
	if err != nil {
		httpx.AppError(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, ret)
}

// DAMDFE streams the printable PDF of an authorized manifest. Without a
// configured renderer the endpoint answers 501.
func (h *MDFeHandler) DAMDFE(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if h.renderer == nil {
		httpx.Error(c, http.StatusNotImplemented, apperr.CodeEngine, "renderização de DAMDFE não configurada", nil)
		return
	}
	m, err := h.mdfes.Get(id)
	if err != nil {
		httpx.AppError(c, err)
		return
	}
	if m.XMLAssinado == "" {
		httpx.AppError(c, apperr.Conflict("manifesto sem documento gerado"))
		return
	}
	pdf, err := h.renderer.Render(c.Request.Context(), sefaz.SignedDocument{XML: m.XMLAssinado})
	if err != nil {
		httpx.AppError(c, apperr.Engine(err.Error()))
		return
	}
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func (h *MDFeHandler) GetDocumentos(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	snap, err := h.documentos.Snapshot(id)
	if err != nil {
		httpx.AppError(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, snap)
}

func (h *MDFeHandler) SetDocumentos(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req services.DocumentosRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.BindError(c, err)
		return
	}
	snap, err := h.documentos.Substituir(c.Request.Context(), id, req)
	if err != nil {
		httpx.AppError(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, snap)
}

func (h *MDFeHandler) SetPagamentos(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req services.PagamentosRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.BindError(c, err)
		return
	}
	m, err := h.pagamentos.DefinirPagamentos(c.Request.Context(), id, req)
	if err != nil {
		httpx.AppError(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, m)
}

func (h *MDFeHandler) SetSeguro(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req services.SeguroRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.BindError(c, err)
		return
	}
	m, err := h.pagamentos.DefinirSeguro(c.Request.Context(), id, req)
	if err != nil {
		httpx.AppError(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, m)
}

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		httpx.Error(c, http.StatusBadRequest, apperr.CodeValidation, "id inválido", nil)
		return 0, false
	}
	return uint(id), true
}
