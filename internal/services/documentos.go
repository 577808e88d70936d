package services

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fretefacil/mdfe-backend/internal/apperr"
	"github.com/fretefacil/mdfe-backend/internal/models"
)

// DocumentoService manages the fiscal documents attached to a manifest. A
// submission always replaces the whole set atomically: the previous documents
// are deleted and the new ones inserted inside one transaction, so a failure
// anywhere leaves the prior set intact.
type DocumentoService struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewDocumentoService(db *gorm.DB, log *zap.Logger) *DocumentoService {
	if log == nil {
		log = zap.NewNop()
	}
	return &DocumentoService{db: db, log: log}
}

// DocumentosRequest is the full replacement set, grouped by discharge
// municipality. Group and document order are preserved.
type DocumentosRequest struct {
	Grupos []GrupoDescarga `json:"grupos" binding:"required"`
}

type GrupoDescarga struct {
	CodigoMunicipio string           `json:"codigoMunicipio" binding:"required"`
	Documentos      []DocumentoInput `json:"documentos" binding:"required"`
}

type DocumentoInput struct {
	Tipo              string          `json:"tipo" binding:"required"`
	Chave             string          `json:"chave" binding:"required"`
	QuantidadeTotal   *float64        `json:"quantidadeTotal"`
	QuantidadeParcial *float64        `json:"quantidadeParcial"`
	Unidades          []UnidadeInput  `json:"unidadesTransporte"`
	Perigosos         []PerigosoInput `json:"produtosPerigosos"`
}

type UnidadeInput struct {
	TipoUnidade       string              `json:"tipoUnidade" binding:"required"`
	Identificacao     string              `json:"identificacao" binding:"required"`
	QuantidadeRateada *float64            `json:"quantidadeRateada"`
	Lacres            []string            `json:"lacres"`
	Cargas            []UnidadeCargaInput `json:"unidadesCarga"`
}

type UnidadeCargaInput struct {
	TipoUnidade       string   `json:"tipoUnidade" binding:"required"`
	Identificacao     string   `json:"identificacao" binding:"required"`
	QuantidadeRateada *float64 `json:"quantidadeRateada"`
	Lacres            []string `json:"lacres"`
}

type PerigosoInput struct {
	NumeroONU       string `json:"numeroOnu"`
	NomeApropriado  string `json:"nomeApropriado"`
	ClasseRisco     string `json:"classeRisco"`
	GrupoEmbalagem  string `json:"grupoEmbalagem"`
	QuantidadeTotal string `json:"quantidadeTotal"`
	TipoVolume      string `json:"tipoVolume"`
}

// DocumentosSnapshot is the composition summary returned after reads and
// writes: totals per document type plus the grouped documents.
type DocumentosSnapshot struct {
	TotalDocumentosCte  int                     `json:"totalDocumentosCte"`
	TotalDocumentosNfe  int                     `json:"totalDocumentosNfe"`
	TotalDocumentosMdfe int                     `json:"totalDocumentosMdfe"`
	Grupos              []GrupoDescargaSnapshot `json:"grupos"`
}

type GrupoDescargaSnapshot struct {
	CodigoMunicipio string                   `json:"codigoMunicipio"`
	NomeMunicipio   string                   `json:"nomeMunicipio"`
	Documentos      []models.DocumentoFiscal `json:"documentos"`
}

// Substituir replaces the manifest's document set. Every municipality must
// resolve to an active registry row and every access key must be unique
// system-wide; any violation aborts the whole submission.
func (s *DocumentoService) Substituir(ctx context.Context, mdfeID uint, req DocumentosRequest) (*DocumentosSnapshot, error) {
	var m models.MDFe
	if err := s.db.First(&m, mdfeID).Error; err != nil {
		return nil, apperr.NotFoundID("manifesto", mdfeID)
	}
	if !m.Editable() {
		return nil, apperr.Conflict("manifesto " + m.Status + " não aceita alteração de documentos")
	}

	type resolved struct {
		doc   models.DocumentoFiscal
		input DocumentoInput
	}
	var flat []resolved
	var descarga []models.MunicipioRef
	chaves := map[string]bool{}
	ordem := 0
	for _, grupo := range req.Grupos {
		var mu models.Municipio
		err := s.db.Where("codigo_ibge = ? AND ativo = ?", grupo.CodigoMunicipio, true).First(&mu).Error
		if err != nil {
			return nil, apperr.Validation("município de descarga não cadastrado ou inativo").
				WithDetail("codigoMunicipio", grupo.CodigoMunicipio)
		}
		descarga = append(descarga, models.MunicipioRef{Codigo: mu.CodigoIBGE, Nome: mu.Nome})
		for _, input := range grupo.Documentos {
			if err := validarDocumento(input); err != nil {
				return nil, err
			}
			if chaves[input.Chave] {
				return nil, apperr.Validation("chave de acesso repetida na submissão").
					WithDetail("chave", input.Chave)
			}
			chaves[input.Chave] = true
			ordem++
			flat = append(flat, resolved{
				doc: models.DocumentoFiscal{
					MDFeID:                  m.ID,
					Tipo:                    strings.ToUpper(input.Tipo),
					Chave:                   input.Chave,
					MunicipioDescargaCodigo: mu.CodigoIBGE,
					MunicipioDescargaNome:   mu.Nome,
					Ordem:                   ordem,
					QuantidadeTotal:         input.QuantidadeTotal,
					QuantidadeParcial:       input.QuantidadeParcial,
				},
				input: input,
			})
		}
	}
	if len(flat) == 0 {
		return nil, apperr.Validation("ao menos um documento fiscal é necessário")
	}

	// Keys must be unique across the whole system; the set being replaced
	// does not count against itself.
	chaveList := make([]string, 0, len(chaves))
	for c := range chaves {
		chaveList = append(chaveList, c)
	}
	var emUso int64
	err := s.db.Model(&models.DocumentoFiscal{}).
		Where("chave IN ? AND mdfe_id <> ?", chaveList, m.ID).
		Count(&emUso).Error
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	if emUso > 0 {
		return nil, apperr.Conflict("chave de acesso já vinculada a outro manifesto")
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// Re-check the gate inside the transaction so a concurrent
		// authorization cannot slip a replacement through.
		var atual models.MDFe
		if txErr := tx.First(&atual, m.ID).Error; txErr != nil {
			return txErr
		}
		if !atual.Editable() {
			return apperr.Conflict("manifesto " + atual.Status + " não aceita alteração de documentos")
		}
		if delErr := deleteDocumentos(tx, m.ID); delErr != nil {
			return delErr
		}
		for _, r := range flat {
			doc := r.doc
			if createErr := tx.Create(&doc).Error; createErr != nil {
				return createErr
			}
			for ui, u := range r.input.Unidades {
				unidade := models.UnidadeTransporte{
					DocumentoFiscalID: &doc.ID,
					TipoUnidade:       u.TipoUnidade,
					Identificacao:     u.Identificacao,
					QuantidadeRateada: u.QuantidadeRateada,
					Ordem:             ui + 1,
				}
				if createErr := tx.Create(&unidade).Error; createErr != nil {
					return createErr
				}
				for li, numero := range u.Lacres {
					lacre := models.LacreUnidadeTransporte{UnidadeTransporteID: unidade.ID, Numero: numero, Ordem: li + 1}
					if createErr := tx.Create(&lacre).Error; createErr != nil {
						return createErr
					}
				}
				for ci, cg := range u.Cargas {
					carga := models.UnidadeCarga{
						UnidadeTransporteID: unidade.ID,
						TipoUnidade:         cg.TipoUnidade,
						Identificacao:       cg.Identificacao,
						QuantidadeRateada:   cg.QuantidadeRateada,
						Ordem:               ci + 1,
					}
					if createErr := tx.Create(&carga).Error; createErr != nil {
						return createErr
					}
					for li, numero := range cg.Lacres {
						lacre := models.LacreUnidadeCarga{UnidadeCargaID: carga.ID, Numero: numero, Ordem: li + 1}
						if createErr := tx.Create(&lacre).Error; createErr != nil {
							return createErr
						}
					}
				}
			}
			for _, p := range r.input.Perigosos {
				perigoso := models.ProdutoPerigoso{
					DocumentoFiscalID: doc.ID,
					NumeroONU:         p.NumeroONU,
					NomeApropriado:    p.NomeApropriado,
					ClasseRisco:       p.ClasseRisco,
					GrupoEmbalagem:    p.GrupoEmbalagem,
					QuantidadeTotal:   p.QuantidadeTotal,
					TipoVolume:        p.TipoVolume,
				}
				if createErr := tx.Create(&perigoso).Error; createErr != nil {
					return createErr
				}
			}
		}
		res := tx.Model(&models.MDFe{}).
			Where("id = ? AND status NOT IN ?", m.ID, []string{models.StatusAuthorized, models.StatusRejected}).
			Update("municipios_descarga", encodeRefs(descarga))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("manifesto não aceita mais alteração de documentos")
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.Conflict("chave de acesso já vinculada a outro manifesto")
		}
		return nil, apperr.From(err)
	}

	s.log.Info("documentos do mdfe substituídos",
		zap.Uint("mdfeId", m.ID),
		zap.Int("documentos", len(flat)),
		zap.String("operacao", "documentos"))
	return s.Snapshot(m.ID)
}

// Snapshot loads the current composition summary of a manifest.
func (s *DocumentoService) Snapshot(mdfeID uint) (*DocumentosSnapshot, error) {
	docs, err := loadDocumentos(s.db, mdfeID)
	if err != nil {
		return nil, err
	}
	snap := &DocumentosSnapshot{Grupos: []GrupoDescargaSnapshot{}}
	index := map[string]int{}
	for _, d := range docs {
		switch d.Tipo {
		case models.DocumentoCTe:
			snap.TotalDocumentosCte++
		case models.DocumentoNFe:
			snap.TotalDocumentosNfe++
		case models.DocumentoMDFe:
			snap.TotalDocumentosMdfe++
		}
		i, ok := index[d.MunicipioDescargaCodigo]
		if !ok {
			snap.Grupos = append(snap.Grupos, GrupoDescargaSnapshot{
				CodigoMunicipio: d.MunicipioDescargaCodigo,
				NomeMunicipio:   d.MunicipioDescargaNome,
			})
			i = len(snap.Grupos) - 1
			index[d.MunicipioDescargaCodigo] = i
		}
		snap.Grupos[i].Documentos = append(snap.Grupos[i].Documentos, d)
	}
	return snap, nil
}

func validarDocumento(input DocumentoInput) error {
	tipo := strings.ToUpper(input.Tipo)
	if tipo != models.DocumentoCTe && tipo != models.DocumentoNFe && tipo != models.DocumentoMDFe {
		return apperr.Validation("tipo de documento inválido").WithDetail("tipo", input.Tipo)
	}
	if len(input.Chave) != 44 || soDigitos(input.Chave) != input.Chave {
		return apperr.Validation("chave de acesso deve conter 44 dígitos").WithDetail("chave", input.Chave)
	}
	if input.QuantidadeParcial != nil {
		if input.QuantidadeTotal == nil {
			return apperr.Validation("quantidade parcial requer quantidade total").WithDetail("chave", input.Chave)
		}
		if *input.QuantidadeParcial > *input.QuantidadeTotal {
			return apperr.Validation("quantidade parcial maior que a total").WithDetail("chave", input.Chave)
		}
	}
	for _, p := range input.Perigosos {
		if p.NumeroONU == "" || p.ClasseRisco == "" || p.QuantidadeTotal == "" {
			return apperr.Validation("produto perigoso exige número ONU, classe de risco e quantidade").
				WithDetail("chave", input.Chave)
		}
	}
	return nil
}

// loadDocumentos returns the manifest's documents in submission order, fully
// preloaded for payload building.
func loadDocumentos(db *gorm.DB, mdfeID uint) ([]models.DocumentoFiscal, error) {
	var docs []models.DocumentoFiscal
	err := db.Where("mdfe_id = ?", mdfeID).
		Preload("Unidades", func(db *gorm.DB) *gorm.DB { return db.Order("ordem") }).
		Preload("Unidades.Lacres", func(db *gorm.DB) *gorm.DB { return db.Order("ordem") }).
		Preload("Unidades.Unidades", func(db *gorm.DB) *gorm.DB { return db.Order("ordem") }).
		Preload("Unidades.Unidades.Lacres", func(db *gorm.DB) *gorm.DB { return db.Order("ordem") }).
		Preload("Perigosos").
		Order("ordem").
		Find(&docs).Error
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return docs, nil
}

// deleteDocumentos removes a manifest's documents and their nested children
// inside the caller's transaction.
func deleteDocumentos(tx *gorm.DB, mdfeID uint) error {
	var docIDs []uint
	if err := tx.Model(&models.DocumentoFiscal{}).Where("mdfe_id = ?", mdfeID).Pluck("id", &docIDs).Error; err != nil {
		return err
	}
	if len(docIDs) == 0 {
		return nil
	}
	var unidadeIDs []uint
	if err := tx.Model(&models.UnidadeTransporte{}).Where("documento_fiscal_id IN ?", docIDs).Pluck("id", &unidadeIDs).Error; err != nil {
		return err
	}
	if len(unidadeIDs) > 0 {
		var cargaIDs []uint
		if err := tx.Model(&models.UnidadeCarga{}).Where("unidade_transporte_id IN ?", unidadeIDs).Pluck("id", &cargaIDs).Error; err != nil {
			return err
		}
		if len(cargaIDs) > 0 {
			if err := tx.Where("unidade_carga_id IN ?", cargaIDs).Delete(&models.LacreUnidadeCarga{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", cargaIDs).Delete(&models.UnidadeCarga{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("unidade_transporte_id IN ?", unidadeIDs).Delete(&models.LacreUnidadeTransporte{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id IN ?", unidadeIDs).Delete(&models.UnidadeTransporte{}).Error; err != nil {
			return err
		}
	}
	if err := tx.Where("documento_fiscal_id IN ?", docIDs).Delete(&models.ProdutoPerigoso{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", docIDs).Delete(&models.DocumentoFiscal{}).Error
}

func encodeRefs(refs []models.MunicipioRef) string {
	m := models.MDFe{}
	m.SetDescargaRefs(refs)
	return m.MunicipiosDescarga
}
