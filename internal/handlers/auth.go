package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/fretefacil/mdfe-backend/internal/apperr"
	"github.com/fretefacil/mdfe-backend/internal/httpx"
	"github.com/fretefacil/mdfe-backend/internal/middleware"
	"github.com/fretefacil/mdfe-backend/internal/models"
)

// AuthHandler issues access tokens.
type AuthHandler struct {
	db     *gorm.DB
	secret string
	log    *zap.Logger
}

func NewAuthHandler(db *gorm.DB, secret string, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{db: db, secret: secret, log: log}
}

type loginRequest struct {
	Login string `json:"login" binding:"required"`
	Senha string `json:"senha" binding:"required"`
}

// Login checks the credentials and returns a signed token. Bad login and bad
// password answer identically.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.BindError(c, err)
		return
	}
	var user models.Usuario
	err := h.db.Where("login = ? AND ativo = ?", req.Login, true).First(&user).Error
	if err != nil {
		httpx.AppError(c, apperr.Unauthorized("credenciais inválidas"))
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Senha)) != nil {
		h.log.Warn("login recusado", zap.String("login", req.Login))
		httpx.AppError(c, apperr.Unauthorized("credenciais inválidas"))
		return
	}
	token, err := middleware.IssueToken(h.secret, user.ID, user.Login, user.Perfil)
	if err != nil {
		httpx.AppError(c, apperr.Persistence(err))
		return
	}
	httpx.JSON(c, http.StatusOK, gin.H{
		"token":  token,
		"perfil": user.Perfil,
		"nome":   user.Nome,
	})
}
