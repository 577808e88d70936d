package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/fretefacil/mdfe-backend/internal/apperr"
	"github.com/fretefacil/mdfe-backend/internal/httpx"
)

// Claims carried by the access token.
type Claims struct {
	UserID uint   `json:"uid"`
	Login  string `json:"login"`
	Perfil string `json:"perfil"`
	jwt.RegisteredClaims
}

// TokenTTL is how long an issued access token stays valid.
const TokenTTL = 8 * time.Hour

// IssueToken signs an access token for the authenticated user.
func IssueToken(secret string, userID uint, login, perfil string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Login:  login,
		Perfil: perfil,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   login,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Auth validates the bearer token and stores the claims on the context.
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			httpx.AppError(c, apperr.Unauthorized("token de acesso ausente"))
			c.Abort()
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")
		claims := &Claims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			httpx.AppError(c, apperr.Unauthorized("token de acesso inválido ou expirado"))
			c.Abort()
			return
		}
		c.Set("userID", claims.UserID)
		c.Set("userLogin", claims.Login)
		c.Set("userPerfil", claims.Perfil)
		c.Next()
	}
}

// RequirePerfil gates a route group to the given profiles.
func RequirePerfil(perfis ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(perfis))
	for _, p := range perfis {
		allowed[p] = true
	}
	return func(c *gin.Context) {
		perfil := c.GetString("userPerfil")
		if !allowed[perfil] {
			httpx.AppError(c, apperr.Forbidden("perfil sem permissão para esta operação"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// LoginOf returns the authenticated login for audit columns.
func LoginOf(c *gin.Context) string {
	return c.GetString("userLogin")
}
