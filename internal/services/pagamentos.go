package services

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fretefacil/mdfe-backend/internal/apperr"
	"github.com/fretefacil/mdfe-backend/internal/models"
)

// Payment component types accepted on the manifest.
var tiposComponente = map[string]bool{
	"vale-pedagio": true,
	"impostos":     true,
	"despesas":     true,
	"outros":       true,
}

// PagamentoService manages the payment and insurance sub-records of a
// manifest.
type PagamentoService struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewPagamentoService(db *gorm.DB, log *zap.Logger) *PagamentoService {
	if log == nil {
		log = zap.NewNop()
	}
	return &PagamentoService{db: db, log: log}
}

// PagamentosRequest replaces the payment components and toll vouchers of a
// manifest. The contract value is always derived, never submitted.
type PagamentosRequest struct {
	Componentes []models.ComponentePagamento `json:"componentes"`
	Vales       []models.ValePedagio         `json:"valesPedagio"`
}

// SeguroRequest sets the insurance sub-record. The insurer's identification
// is copied onto the manifest and does not follow later registry edits.
type SeguroRequest struct {
	Responsavel  string   `json:"responsavel" binding:"required"` // emitente | contratante
	SeguradoraID uint     `json:"seguradoraId" binding:"required"`
	Apolice      string   `json:"numeroApolice" binding:"required"`
	Averbacoes   []string `json:"averbacoes"`
}

// DefinirPagamentos stores the components, recomputes the contract value as
// their sum and derives the no-toll-voucher flag from the voucher list.
func (s *PagamentoService) DefinirPagamentos(ctx context.Context, mdfeID uint, req PagamentosRequest) (*models.MDFe, error) {
	m, err := s.manifestoEditavel(mdfeID)
	if err != nil {
		return nil, err
	}

	total := 0.0
	for _, cp := range req.Componentes {
		if !tiposComponente[cp.Tipo] {
			return nil, apperr.Validation("tipo de componente de pagamento inválido").WithDetail("tipo", cp.Tipo)
		}
		if cp.Valor <= 0 {
			return nil, apperr.Validation("valor de componente deve ser positivo").WithDetail("tipo", cp.Tipo)
		}
		total += cp.Valor
	}
	for _, vp := range req.Vales {
		if len(soDigitos(vp.CNPJFornecedor)) != 14 {
			return nil, apperr.Validation("CNPJ do fornecedor do vale-pedágio inválido").
				WithDetail("cnpjFornecedor", vp.CNPJFornecedor)
		}
		if vp.NumeroCompra == "" {
			return nil, apperr.Validation("número de compra do vale-pedágio é obrigatório")
		}
	}

	m.SetComponentes(req.Componentes)
	m.SetVales(req.Vales)
	m.ValorContrato = total
	// The flag and the voucher list are mutually exclusive by construction.
	m.SemValePedagio = len(req.Vales) == 0

	err = s.db.Model(&models.MDFe{}).
		Where("id = ? AND status NOT IN ?", m.ID, []string{models.StatusAuthorized, models.StatusRejected}).
		Updates(map[string]any{
			"componentes_pagamento": m.ComponentesPagamento,
			"vales_pedagio":         m.ValesPedagio,
			"valor_contrato":        m.ValorContrato,
			"sem_vale_pedagio":      m.SemValePedagio,
		}).Error
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	s.log.Info("pagamentos do mdfe definidos",
		zap.Uint("mdfeId", m.ID),
		zap.Float64("valorContrato", total),
		zap.String("operacao", "pagamentos"))
	return s.reload(m.ID)
}

// DefinirSeguro snapshots the insurer onto the manifest.
func (s *PagamentoService) DefinirSeguro(ctx context.Context, mdfeID uint, req SeguroRequest) (*models.MDFe, error) {
	m, err := s.manifestoEditavel(mdfeID)
	if err != nil {
		return nil, err
	}
	if req.Responsavel != "emitente" && req.Responsavel != "contratante" {
		return nil, apperr.Validation("responsável pelo seguro deve ser emitente ou contratante")
	}
	var seguradora models.Seguradora
	if err := s.db.Where("ativo = ?", true).First(&seguradora, req.SeguradoraID).Error; err != nil {
		return nil, apperr.NotFoundID("seguradora", req.SeguradoraID)
	}

	m.ResponsavelSeguro = req.Responsavel
	m.SeguradoraID = &seguradora.ID
	m.SeguradoraCNPJ = seguradora.CNPJ
	m.SeguradoraRazaoSocial = seguradora.RazaoSocial
	m.NumeroApolice = req.Apolice
	m.SetAverbacoesList(req.Averbacoes)

	err = s.db.Model(&models.MDFe{}).
		Where("id = ? AND status NOT IN ?", m.ID, []string{models.StatusAuthorized, models.StatusRejected}).
		Updates(map[string]any{
			"responsavel_seguro":      m.ResponsavelSeguro,
			"seguradora_id":           m.SeguradoraID,
			"seguradora_cnpj":         m.SeguradoraCNPJ,
			"seguradora_razao_social": m.SeguradoraRazaoSocial,
			"numero_apolice":          m.NumeroApolice,
			"averbacoes":              m.Averbacoes,
		}).Error
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	s.log.Info("seguro do mdfe definido",
		zap.Uint("mdfeId", m.ID),
		zap.String("seguradoraCnpj", seguradora.CNPJ),
		zap.String("operacao", "seguro"))
	return s.reload(m.ID)
}

func (s *PagamentoService) manifestoEditavel(id uint) (*models.MDFe, error) {
	var m models.MDFe
	if err := s.db.First(&m, id).Error; err != nil {
		return nil, apperr.NotFoundID("manifesto", id)
	}
	if !m.Editable() {
		return nil, apperr.Conflict("manifesto " + m.Status + " não pode ser alterado")
	}
	return &m, nil
}

func (s *PagamentoService) reload(id uint) (*models.MDFe, error) {
	var m models.MDFe
	if err := s.db.First(&m, id).Error; err != nil {
		return nil, apperr.Persistence(err)
	}
	return &m, nil
}
