package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fretefacil/mdfe-backend/internal/config"
	dbpkg "github.com/fretefacil/mdfe-backend/internal/db"
	"github.com/fretefacil/mdfe-backend/internal/models"
	"github.com/fretefacil/mdfe-backend/internal/sefaz"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, dbpkg.AutoMigrateAll(db))
	return db
}

func testConfig() config.Config {
	return config.Config{
		SeriePadrao:   1,
		NumeroInicial: 612,
		EngineTimeout: time.Second,
		AmbienteSefaz: 2,
	}
}

func seedEmitente(t *testing.T, db *gorm.DB) *models.Emitente {
	t.Helper()
	e := &models.Emitente{
		CNPJ:            "12345678000190",
		RazaoSocial:     "Transportadora Aurora Ltda",
		IE:              "123456789",
		Logradouro:      "Rua das Acácias",
		Numero:          "100",
		Bairro:          "Centro",
		CodigoMunicipio: "3550308",
		NomeMunicipio:   "São Paulo",
		CEP:             "01001000",
		UF:              "SP",
		Ativo:           true,
	}
	require.NoError(t, db.Create(e).Error)
	return e
}

func seedVeiculo(t *testing.T, db *gorm.DB) *models.Veiculo {
	t.Helper()
	v := &models.Veiculo{
		Placa:          "ABC1D23",
		TaraKG:         7000,
		CapacidadeKG:   25000,
		TipoRodado:     "03",
		TipoCarroceria: "02",
		UF:             "SP",
		Ativo:          true,
	}
	require.NoError(t, db.Create(v).Error)
	return v
}

func seedCondutor(t *testing.T, db *gorm.DB) *models.Condutor {
	t.Helper()
	cd := &models.Condutor{Nome: "José da Silva", CPF: "12345678901", Ativo: true}
	require.NoError(t, db.Create(cd).Error)
	return cd
}

func seedMunicipio(t *testing.T, db *gorm.DB, codigo, nome, uf string) *models.Municipio {
	t.Helper()
	mu := &models.Municipio{CodigoIBGE: codigo, Nome: nome, UF: uf, Ativo: true}
	require.NoError(t, db.Create(mu).Error)
	return mu
}

func criarRequest(e *models.Emitente, v *models.Veiculo, cd *models.Condutor) CriarMDFeRequest {
	return CriarMDFeRequest{
		EmitenteID:     e.ID,
		VeiculoID:      v.ID,
		CondutorID:     cd.ID,
		UFIni:          "SP",
		UFFim:          "RJ",
		PesoBrutoTotal: 12000,
		ValorTotal:     85000,
	}
}

// fakeEngine counts calls and returns canned answers, so tests can assert the
// engine is never re-invoked after a protocol exists.
type fakeEngine struct {
	mu sync.Mutex

	assinarCalls    int
	transmitirCalls int
	cancelarCalls   int
	encerrarCalls   int
	consultarCalls  int

	assinarErr    error
	transmitirErr error

	retTransmitir sefaz.Retorno
	retCancelar   sefaz.Retorno
	retEncerrar   sefaz.Retorno
	retConsultar  sefaz.Retorno
}

func autorizado() sefaz.Retorno {
	return sefaz.Retorno{
		CStat:       sefaz.CStatAutorizado,
		XMotivo:     "Autorizado o uso do MDF-e",
		Protocolo:   "935230000012345",
		ChaveAcesso: "35230812345678000190580010000006121000006124",
	}
}

func (f *fakeEngine) Assinar(ctx context.Context, p sefaz.Payload) (sefaz.SignedDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assinarCalls++
	if f.assinarErr != nil {
		return sefaz.SignedDocument{}, f.assinarErr
	}
	return sefaz.SignedDocument{XML: "<MDFe assinado/>"}, nil
}

func (f *fakeEngine) Transmitir(ctx context.Context, doc sefaz.SignedDocument, sincrono bool) (*sefaz.Retorno, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transmitirCalls++
	if f.transmitirErr != nil {
		return nil, f.transmitirErr
	}
	ret := f.retTransmitir
	return &ret, nil
}

func (f *fakeEngine) ConsultarPorChave(ctx context.Context, chave string) (*sefaz.Retorno, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consultarCalls++
	ret := f.retConsultar
	return &ret, nil
}

func (f *fakeEngine) ConsultarPorRecibo(ctx context.Context, recibo string) (*sefaz.Retorno, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consultarCalls++
	ret := f.retConsultar
	return &ret, nil
}

func (f *fakeEngine) Cancelar(ctx context.Context, chave, protocolo, justificativa string) (*sefaz.Retorno, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelarCalls++
	ret := f.retCancelar
	return &ret, nil
}

func (f *fakeEngine) Encerrar(ctx context.Context, chave, protocolo, codigoMunicipio string, data time.Time) (*sefaz.Retorno, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.encerrarCalls++
	ret := f.retEncerrar
	return &ret, nil
}

var _ sefaz.Engine = (*fakeEngine)(nil)
