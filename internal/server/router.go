package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fretefacil/mdfe-backend/internal/config"
	"github.com/fretefacil/mdfe-backend/internal/handlers"
	"github.com/fretefacil/mdfe-backend/internal/middleware"
	"github.com/fretefacil/mdfe-backend/internal/registry"
	"github.com/fretefacil/mdfe-backend/internal/sefaz"
	"github.com/fretefacil/mdfe-backend/internal/services"
)

// New assembles the full route table: health and metrics in the open, login,
// and the authenticated /api/v1 surface with the registry CRUD mounts and the
// manifest lifecycle.
func New(db *gorm.DB, cfg config.Config, engine sefaz.Engine, renderer sefaz.Renderer, log *zap.Logger) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logger(log), middleware.Metrics(), middleware.Recovery(log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/healthz", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.Ping() != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "up"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandler := handlers.NewAuthHandler(db, cfg.JWTSecret, log)
	r.POST("/api/v1/auth/login", authHandler.Login)

	api := r.Group("/api/v1")
	api.Use(middleware.Auth(cfg.JWTSecret))

	registry.NewCrudHandler(registry.NewEmitenteRepository(db)).Mount(api.Group("/emitentes"))
	registry.NewCrudHandler(registry.NewVeiculoRepository(db)).Mount(api.Group("/veiculos"))
	registry.NewCrudHandler(registry.NewCondutorRepository(db)).Mount(api.Group("/condutores"))
	registry.NewCrudHandler(registry.NewReboqueRepository(db)).Mount(api.Group("/reboques"))
	registry.NewCrudHandler(registry.NewContratanteRepository(db)).Mount(api.Group("/contratantes"))
	registry.NewCrudHandler(registry.NewSeguradoraRepository(db)).Mount(api.Group("/seguradoras"))
	registry.NewCrudHandler(registry.NewMunicipioRepository(db)).Mount(api.Group("/municipios"))

	mdfeService := services.NewMDFeService(db, engine, cfg, log)
	documentoService := services.NewDocumentoService(db, log)
	pagamentoService := services.NewPagamentoService(db, log)
	handlers.NewMDFeHandler(mdfeService, documentoService, pagamentoService, renderer).Mount(api.Group("/mdfe"))

	return r
}
