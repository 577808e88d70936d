package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fretefacil/mdfe-backend/internal/config"
	dbpkg "github.com/fretefacil/mdfe-backend/internal/db"
	"github.com/fretefacil/mdfe-backend/internal/models"
	"github.com/fretefacil/mdfe-backend/internal/sefaz"
)

type stubEngine struct{}

func (stubEngine) Assinar(ctx context.Context, p sefaz.Payload) (sefaz.SignedDocument, error) {
	return sefaz.SignedDocument{XML: "<MDFe assinado/>"}, nil
}

func (stubEngine) Transmitir(ctx context.Context, doc sefaz.SignedDocument, sincrono bool) (*sefaz.Retorno, error) {
	return &sefaz.Retorno{
		CStat:       sefaz.CStatAutorizado,
		XMotivo:     "Autorizado o uso do MDF-e",
		Protocolo:   "935230000012345",
		ChaveAcesso: "35230812345678000190580010000006121000006124",
	}, nil
}

func (stubEngine) ConsultarPorChave(ctx context.Context, chave string) (*sefaz.Retorno, error) {
	return &sefaz.Retorno{CStat: sefaz.CStatAutorizado}, nil
}

func (stubEngine) ConsultarPorRecibo(ctx context.Context, recibo string) (*sefaz.Retorno, error) {
	return &sefaz.Retorno{CStat: sefaz.CStatAutorizado}, nil
}

func (stubEngine) Cancelar(ctx context.Context, chave, protocolo, justificativa string) (*sefaz.Retorno, error) {
	return &sefaz.Retorno{CStat: sefaz.CStatCancelado}, nil
}

func (stubEngine) Encerrar(ctx context.Context, chave, protocolo, codigoMunicipio string, data time.Time) (*sefaz.Retorno, error) {
	return &sefaz.Retorno{CStat: sefaz.CStatEncerrado}, nil
}

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorCode"`
}

func setupRouter(t *testing.T) http.Handler {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, dbpkg.AutoMigrateAll(db))

	hash, err := bcrypt.GenerateFromPassword([]byte("senha123"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.Usuario{Nome: "Admin", Login: "admin", PasswordHash: string(hash), Perfil: "admin", Ativo: true}).Error)

	cfg := config.Config{
		Env:           "test",
		JWTSecret:     "segredo-de-teste",
		SeriePadrao:   1,
		NumeroInicial: 612,
		EngineTimeout: time.Second,
		AmbienteSefaz: 2,
	}
	return New(db, cfg, stubEngine{}, nil, zap.NewNop())
}

func do(t *testing.T, r http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func login(t *testing.T, r http.Handler) string {
	t.Helper()
	w, env := do(t, r, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"login": "admin", "senha": "senha123"})
	require.Equal(t, http.StatusOK, w.Code)
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.Token)
	return data.Token
}

func TestRotasExigemAutenticacao(t *testing.T) {
	r := setupRouter(t)
	w, env := do(t, r, http.MethodGet, "/api/v1/veiculos", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "UNAUTHORIZED", env.ErrorCode)
}

func TestHealthAberto(t *testing.T) {
	r := setupRouter(t)
	w, _ := do(t, r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, r, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestFluxoCompletoDeAutorizacao(t *testing.T) {
	r := setupRouter(t)
	token := login(t, r)

	w, env := do(t, r, http.MethodPost, "/api/v1/emitentes", token, map[string]any{
		"cnpj": "12.345.678/0001-90", "razaoSocial": "Transportadora Aurora Ltda", "uf": "SP",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var emitente models.Emitente
	require.NoError(t, json.Unmarshal(env.Data, &emitente))

	w, env = do(t, r, http.MethodPost, "/api/v1/veiculos", token, map[string]any{
		"placa": "ABC1D23", "taraKg": 7000, "uf": "SP",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var veiculo models.Veiculo
	require.NoError(t, json.Unmarshal(env.Data, &veiculo))

	w, env = do(t, r, http.MethodPost, "/api/v1/condutores", token, map[string]any{
		"nome": "José da Silva", "cpf": "123.456.789-01",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var condutor models.Condutor
	require.NoError(t, json.Unmarshal(env.Data, &condutor))

	w, env = do(t, r, http.MethodPost, "/api/v1/mdfe", token, map[string]any{
		"emitenteId": emitente.ID, "veiculoId": veiculo.ID, "condutorId": condutor.ID,
		"ufIni": "SP", "ufFim": "RJ", "pesoBrutoTotal": 12000, "valorTotal": 85000,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var m models.MDFe
	require.NoError(t, json.Unmarshal(env.Data, &m))
	assert.Equal(t, 612, m.NumeroMdfe)
	assert.Equal(t, models.StatusDraft, m.Status)

	path := fmt.Sprintf("/api/v1/mdfe/%d/gerar", m.ID)
	w, env = do(t, r, http.MethodPost, path, token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &m))
	assert.Equal(t, models.StatusGenerated, m.Status)

	path = fmt.Sprintf("/api/v1/mdfe/%d/transmitir", m.ID)
	w, env = do(t, r, http.MethodPost, path, token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &m))
	assert.Equal(t, models.StatusAuthorized, m.Status)
	require.NotNil(t, m.ChaveAcesso)
	assert.Len(t, *m.ChaveAcesso, 44)

	// Authorized manifests reject edits with a conflict envelope.
	path = fmt.Sprintf("/api/v1/mdfe/%d", m.ID)
	w, env = do(t, r, http.MethodPut, path, token, map[string]any{"valorTotal": 1})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "CONFLICT", env.ErrorCode)

	// And deletion never succeeds.
	w, _ = do(t, r, http.MethodDelete, path, token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSuperficieDeComposicaoDoManifesto(t *testing.T) {
	r := setupRouter(t)
	token := login(t, r)

	w, env := do(t, r, http.MethodPost, "/api/v1/emitentes", token, map[string]any{
		"cnpj": "12.345.678/0001-90", "razaoSocial": "Transportadora Aurora Ltda", "uf": "SP",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var emitente models.Emitente
	require.NoError(t, json.Unmarshal(env.Data, &emitente))

	w, env = do(t, r, http.MethodPost, "/api/v1/veiculos", token, map[string]any{"placa": "ABC1D23", "taraKg": 7000, "uf": "SP"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var veiculo models.Veiculo
	require.NoError(t, json.Unmarshal(env.Data, &veiculo))

	w, env = do(t, r, http.MethodPost, "/api/v1/condutores", token, map[string]any{"nome": "José da Silva", "cpf": "123.456.789-01"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var condutor models.Condutor
	require.NoError(t, json.Unmarshal(env.Data, &condutor))

	w, _ = do(t, r, http.MethodPost, "/api/v1/municipios", token, map[string]any{"codigoIbge": "3304557", "nome": "Rio de Janeiro", "uf": "RJ"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, env = do(t, r, http.MethodPost, "/api/v1/seguradoras", token, map[string]any{"cnpj": "11.222.333/0001-44", "razaoSocial": "Seguradora Horizonte"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var seguradora models.Seguradora
	require.NoError(t, json.Unmarshal(env.Data, &seguradora))

	// The number preview is keyed by the emitter's CNPJ.
	w, env = do(t, r, http.MethodGet, "/api/v1/mdfe/proximo-numero?emitenteCnpj=12.345.678/0001-90&serie=1", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var preview struct {
		ProximoNumero int `json:"proximoNumero"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &preview))
	assert.Equal(t, 612, preview.ProximoNumero)

	w, env = do(t, r, http.MethodPost, "/api/v1/mdfe", token, map[string]any{
		"emitenteId": emitente.ID, "veiculoId": veiculo.ID, "condutorId": condutor.ID,
		"ufIni": "SP", "ufFim": "RJ", "pesoBrutoTotal": 12000, "valorTotal": 85000,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var m models.MDFe
	require.NoError(t, json.Unmarshal(env.Data, &m))

	chave := strings.Repeat("0", 43) + "1"
	path := fmt.Sprintf("/api/v1/mdfe/%d/documentos-fiscais", m.ID)
	w, _ = do(t, r, http.MethodPost, path, token, map[string]any{
		"grupos": []map[string]any{{
			"codigoMunicipio": "3304557",
			"documentos":      []map[string]any{{"tipo": "CTE", "chave": chave}},
		}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env = do(t, r, http.MethodGet, path, token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var snap struct {
		TotalDocumentosCte int `json:"totalDocumentosCte"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, 1, snap.TotalDocumentosCte)

	path = fmt.Sprintf("/api/v1/mdfe/%d/pagamentos", m.ID)
	w, env = do(t, r, http.MethodPut, path, token, map[string]any{
		"componentes": []map[string]any{{"tipo": "impostos", "valor": 1200.5}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &m))
	assert.Equal(t, 1200.5, m.ValorContrato)
	assert.True(t, m.SemValePedagio)

	path = fmt.Sprintf("/api/v1/mdfe/%d/seguro", m.ID)
	w, env = do(t, r, http.MethodPut, path, token, map[string]any{
		"responsavel": "emitente", "seguradoraId": seguradora.ID, "numeroApolice": "AP-2023-0001",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &m))
	assert.Equal(t, "AP-2023-0001", m.NumeroApolice)
	assert.Equal(t, "Seguradora Horizonte", m.SeguradoraRazaoSocial)
}

func TestEnvelopeDeErroDeValidacao(t *testing.T) {
	r := setupRouter(t)
	token := login(t, r)

	w, env := do(t, r, http.MethodPost, "/api/v1/emitentes", token, map[string]any{
		"cnpj": "123", "razaoSocial": "X",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "VALIDATION_ERROR", env.ErrorCode)
	assert.NotEmpty(t, env.Message)
}

func TestDamdfeSemRendererRetorna501(t *testing.T) {
	r := setupRouter(t)
	token := login(t, r)
	w, _ := do(t, r, http.MethodGet, "/api/v1/mdfe/1/damdfe", token, nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}
