package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func protectedRouter(secret string, perfis ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	group := r.Group("/")
	group.Use(Auth(secret))
	if len(perfis) > 0 {
		group.Use(RequirePerfil(perfis...))
	}
	group.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"login": LoginOf(c)})
	})
	return r
}

func TestAuthAceitaTokenValido(t *testing.T) {
	secret := "segredo-de-teste"
	token, err := IssueToken(secret, 1, "admin", "admin")
	require.NoError(t, err)

	r := protectedRouter(secret)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "admin")
}

func TestAuthRejeitaSemToken(t *testing.T) {
	r := protectedRouter("segredo-de-teste")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "UNAUTHORIZED")
}

func TestAuthRejeitaAssinaturaErrada(t *testing.T) {
	token, err := IssueToken("outro-segredo", 1, "admin", "admin")
	require.NoError(t, err)

	r := protectedRouter("segredo-de-teste")
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequirePerfil(t *testing.T) {
	secret := "segredo-de-teste"
	r := protectedRouter(secret, "admin")

	operador, err := IssueToken(secret, 2, "maria", "operador")
	require.NoError(t, err)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+operador)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin, err := IssueToken(secret, 1, "admin", "admin")
	require.NoError(t, err)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
