package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/fretefacil/mdfe-backend/internal/apperr"
	"github.com/fretefacil/mdfe-backend/internal/models"
)

func chaveTeste(sufixo string) string {
	return strings.Repeat("0", 44-len(sufixo)) + sufixo
}

func newDocumentoFixture(t *testing.T) (*DocumentoService, *MDFeService, *testDeps, *models.MDFe) {
	t.Helper()
	db := openDB(t)
	engine := &fakeEngine{retTransmitir: autorizado()}
	mdfes := NewMDFeService(db, engine, testConfig(), nil)
	docs := NewDocumentoService(db, nil)
	deps := &testDeps{
		emitente: seedEmitente(t, db),
		veiculo:  seedVeiculo(t, db),
		condutor: seedCondutor(t, db),
	}
	seedMunicipio(t, db, "3304557", "Rio de Janeiro", "RJ")
	seedMunicipio(t, db, "3550308", "São Paulo", "SP")

	m, err := mdfes.Criar(context.Background(), criarRequest(deps.emitente, deps.veiculo, deps.condutor), "tester")
	require.NoError(t, err)
	return docs, mdfes, deps, m
}

func TestSubstituirDocumentos(t *testing.T) {
	docs, _, _, m := newDocumentoFixture(t)
	ctx := context.Background()

	snap, err := docs.Substituir(ctx, m.ID, DocumentosRequest{Grupos: []GrupoDescarga{
		{
			CodigoMunicipio: "3304557",
			Documentos: []DocumentoInput{
				{Tipo: "CTE", Chave: chaveTeste("1")},
				{Tipo: "NFE", Chave: chaveTeste("2")},
			},
		},
		{
			CodigoMunicipio: "3550308",
			Documentos: []DocumentoInput{
				{Tipo: "CTE", Chave: chaveTeste("3")},
			},
		},
	}})
	require.NoError(t, err)
	assert.Equal(t, 2, snap.TotalDocumentosCte)
	assert.Equal(t, 1, snap.TotalDocumentosNfe)
	assert.Zero(t, snap.TotalDocumentosMdfe)
	require.Len(t, snap.Grupos, 2)
	assert.Equal(t, "Rio de Janeiro", snap.Grupos[0].NomeMunicipio)
	assert.Len(t, snap.Grupos[0].Documentos, 2)

	// Submission order is preserved.
	assert.Equal(t, 1, snap.Grupos[0].Documentos[0].Ordem)
	assert.Equal(t, 2, snap.Grupos[0].Documentos[1].Ordem)
	assert.Equal(t, 3, snap.Grupos[1].Documentos[0].Ordem)
}

func TestSubstituirAtomico(t *testing.T) {
	docs, _, _, m := newDocumentoFixture(t)
	ctx := context.Background()

	_, err := docs.Substituir(ctx, m.ID, DocumentosRequest{Grupos: []GrupoDescarga{
		{CodigoMunicipio: "3304557", Documentos: []DocumentoInput{{Tipo: "CTE", Chave: chaveTeste("1")}}},
	}})
	require.NoError(t, err)

	// Second submission hits an unregistered municipality: nothing changes.
	_, err = docs.Substituir(ctx, m.ID, DocumentosRequest{Grupos: []GrupoDescarga{
		{CodigoMunicipio: "3304557", Documentos: []DocumentoInput{{Tipo: "CTE", Chave: chaveTeste("7")}}},
		{CodigoMunicipio: "9999999", Documentos: []DocumentoInput{{Tipo: "NFE", Chave: chaveTeste("8")}}},
	}})
	require.Error(t, err)
	appErr, _ := apperr.As(err)
	assert.Equal(t, apperr.CodeValidation, appErr.Code)

	snap, err := docs.Snapshot(m.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.TotalDocumentosCte)
	require.Len(t, snap.Grupos, 1)
	assert.Equal(t, chaveTeste("1"), snap.Grupos[0].Documentos[0].Chave)
}

func TestResubmissaoComMesmasChaves(t *testing.T) {
	docs, _, _, m := newDocumentoFixture(t)
	ctx := context.Background()

	req := DocumentosRequest{Grupos: []GrupoDescarga{
		{CodigoMunicipio: "3304557", Documentos: []DocumentoInput{{Tipo: "CTE", Chave: chaveTeste("1")}}},
	}}
	_, err := docs.Substituir(ctx, m.ID, req)
	require.NoError(t, err)

	// Re-sending the same keys to the same manifest is a replace, not a clash.
	snap, err := docs.Substituir(ctx, m.ID, req)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.TotalDocumentosCte)
}

func TestChaveVinculadaAOutroManifesto(t *testing.T) {
	docs, mdfes, deps, m := newDocumentoFixture(t)
	ctx := context.Background()

	_, err := docs.Substituir(ctx, m.ID, DocumentosRequest{Grupos: []GrupoDescarga{
		{CodigoMunicipio: "3304557", Documentos: []DocumentoInput{{Tipo: "CTE", Chave: chaveTeste("1")}}},
	}})
	require.NoError(t, err)

	outro, err := mdfes.Criar(ctx, criarRequest(deps.emitente, deps.veiculo, deps.condutor), "tester")
	require.NoError(t, err)

	_, err = docs.Substituir(ctx, outro.ID, DocumentosRequest{Grupos: []GrupoDescarga{
		{CodigoMunicipio: "3304557", Documentos: []DocumentoInput{{Tipo: "CTE", Chave: chaveTeste("1")}}},
	}})
	require.Error(t, err)
	appErr, _ := apperr.As(err)
	assert.Equal(t, apperr.CodeConflict, appErr.Code)
}

func TestChaveRepetidaNaSubmissao(t *testing.T) {
	docs, _, _, m := newDocumentoFixture(t)

	_, err := docs.Substituir(context.Background(), m.ID, DocumentosRequest{Grupos: []GrupoDescarga{
		{CodigoMunicipio: "3304557", Documentos: []DocumentoInput{
			{Tipo: "CTE", Chave: chaveTeste("1")},
			{Tipo: "NFE", Chave: chaveTeste("1")},
		}},
	}})
	require.Error(t, err)
	appErr, _ := apperr.As(err)
	assert.Equal(t, apperr.CodeValidation, appErr.Code)
}

func TestValidacoesDeDocumento(t *testing.T) {
	docs, _, _, m := newDocumentoFixture(t)
	ctx := context.Background()
	total := 10.0
	parcial := 12.0

	casos := []struct {
		nome string
		doc  DocumentoInput
	}{
		{"tipo inválido", DocumentoInput{Tipo: "NFCE", Chave: chaveTeste("1")}},
		{"chave curta", DocumentoInput{Tipo: "CTE", Chave: "123"}},
		{"parcial sem total", DocumentoInput{Tipo: "CTE", Chave: chaveTeste("1"), QuantidadeParcial: &parcial}},
		{"parcial maior que total", DocumentoInput{Tipo: "CTE", Chave: chaveTeste("1"), QuantidadeTotal: &total, QuantidadeParcial: &parcial}},
		{"perigoso incompleto", DocumentoInput{Tipo: "CTE", Chave: chaveTeste("1"), Perigosos: []PerigosoInput{{NumeroONU: "1203"}}}},
	}
	for _, caso := range casos {
		t.Run(caso.nome, func(t *testing.T) {
			_, err := docs.Substituir(ctx, m.ID, DocumentosRequest{Grupos: []GrupoDescarga{
				{CodigoMunicipio: "3304557", Documentos: []DocumentoInput{caso.doc}},
			}})
			require.Error(t, err)
			appErr, _ := apperr.As(err)
			assert.Equal(t, apperr.CodeValidation, appErr.Code)
		})
	}
}

func TestDocumentosComUnidadesEPerigosos(t *testing.T) {
	docs, _, _, m := newDocumentoFixture(t)

	snap, err := docs.Substituir(context.Background(), m.ID, DocumentosRequest{Grupos: []GrupoDescarga{
		{CodigoMunicipio: "3304557", Documentos: []DocumentoInput{{
			Tipo:  "CTE",
			Chave: chaveTeste("1"),
			Unidades: []UnidadeInput{{
				TipoUnidade:   "1",
				Identificacao: "RODOTREM01",
				Lacres:        []string{"L-001", "L-002"},
				Cargas: []UnidadeCargaInput{{
					TipoUnidade:   "2",
					Identificacao: "CNTR-55",
					Lacres:        []string{"L-003"},
				}},
			}},
			Perigosos: []PerigosoInput{{
				NumeroONU:       "1203",
				NomeApropriado:  "Gasolina",
				ClasseRisco:     "3",
				QuantidadeTotal: "5000 L",
			}},
		}}},
	}})
	require.NoError(t, err)
	require.Len(t, snap.Grupos, 1)
	doc := snap.Grupos[0].Documentos[0]
	require.Len(t, doc.Unidades, 1)
	assert.Len(t, doc.Unidades[0].Lacres, 2)
	require.Len(t, doc.Unidades[0].Unidades, 1)
	assert.Len(t, doc.Unidades[0].Unidades[0].Lacres, 1)
	require.Len(t, doc.Perigosos, 1)
	assert.Equal(t, "1203", doc.Perigosos[0].NumeroONU)
}

func TestSubstituirBloqueadoPorAutorizacaoConcorrente(t *testing.T) {
	docs, _, _, m := newDocumentoFixture(t)
	ctx := context.Background()

	_, err := docs.Substituir(ctx, m.ID, DocumentosRequest{Grupos: []GrupoDescarga{
		{CodigoMunicipio: "3304557", Documentos: []DocumentoInput{{Tipo: "CTE", Chave: chaveTeste("1")}}},
	}})
	require.NoError(t, err)

	// The manifest gets authorized while the replacement transaction is in
	// flight, right before the first document insert.
	autorizou := false
	err = docs.db.Callback().Create().Before("gorm:create").Register("teste:autoriza_no_meio", func(tx *gorm.DB) {
		if autorizou {
			return
		}
		if _, ok := tx.Statement.Dest.(*models.DocumentoFiscal); !ok {
			return
		}
		autorizou = true
		tx.Session(&gorm.Session{NewDB: true}).Model(&models.MDFe{}).
			Where("id = ?", m.ID).Update("status", models.StatusAuthorized)
	})
	require.NoError(t, err)

	_, err = docs.Substituir(ctx, m.ID, DocumentosRequest{Grupos: []GrupoDescarga{
		{CodigoMunicipio: "3304557", Documentos: []DocumentoInput{{Tipo: "NFE", Chave: chaveTeste("2")}}},
	}})
	require.Error(t, err)
	appErr, _ := apperr.As(err)
	assert.Equal(t, apperr.CodeConflict, appErr.Code)

	// The whole replacement rolled back: the earlier set survives.
	snap, err := docs.Snapshot(m.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.TotalDocumentosCte)
	assert.Zero(t, snap.TotalDocumentosNfe)
	require.Len(t, snap.Grupos, 1)
	assert.Equal(t, chaveTeste("1"), snap.Grupos[0].Documentos[0].Chave)
}

func TestDocumentosBloqueadosAposAutorizacao(t *testing.T) {
	docs, mdfes, deps, _ := newDocumentoFixture(t)
	ctx := context.Background()

	m := autorizarManifesto(t, mdfes, deps)
	_, err := docs.Substituir(ctx, m.ID, DocumentosRequest{Grupos: []GrupoDescarga{
		{CodigoMunicipio: "3304557", Documentos: []DocumentoInput{{Tipo: "CTE", Chave: chaveTeste("9")}}},
	}})
	require.Error(t, err)
	appErr, _ := apperr.As(err)
	assert.Equal(t, apperr.CodeConflict, appErr.Code)
}
