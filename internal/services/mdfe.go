package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fretefacil/mdfe-backend/internal/apperr"
	"github.com/fretefacil/mdfe-backend/internal/config"
	"github.com/fretefacil/mdfe-backend/internal/metrics"
	"github.com/fretefacil/mdfe-backend/internal/models"
	"github.com/fretefacil/mdfe-backend/internal/sefaz"
)

const criarRetries = 3

// MDFeService owns the manifest lifecycle: creation with registry snapshots,
// numbering, generation, transmission, cancellation, closing and deletion.
// Status gating lives here and only here; the sefaz package just translates.
type MDFeService struct {
	db     *gorm.DB
	engine sefaz.Engine
	cfg    config.Config
	log    *zap.Logger
}

func NewMDFeService(db *gorm.DB, engine sefaz.Engine, cfg config.Config, log *zap.Logger) *MDFeService {
	if log == nil {
		log = zap.NewNop()
	}
	return &MDFeService{db: db, engine: engine, cfg: cfg, log: log}
}

// CriarMDFeRequest is the creation payload. Only registry IDs come in; the
// fiscal data is snapshotted from the registry rows at this moment.
type CriarMDFeRequest struct {
	EmitenteID              uint       `json:"emitenteId" binding:"required"`
	VeiculoID               uint       `json:"veiculoId" binding:"required"`
	CondutorID              uint       `json:"condutorId" binding:"required"`
	DataEmissao             *time.Time `json:"dataEmissao"`
	UFIni                   string     `json:"ufIni" binding:"required"`
	UFFim                   string     `json:"ufFim" binding:"required"`
	MunicipioIni            string     `json:"municipioIni"`
	MunicipioFim            string     `json:"municipioFim"`
	PesoBrutoTotal          float64    `json:"pesoBrutoTotal"`
	ValorTotal              float64    `json:"valorTotal"`
	Serie                   *int       `json:"serie"`
	ReboquesIDs             []uint     `json:"reboquesIds"`
	CondutoresAdicionaisIDs []uint     `json:"condutoresAdicionaisIds"`
	Percurso                []string   `json:"percurso"`
	MunicipiosCarregamento  []string   `json:"municipiosCarregamento"`
	ContratanteID           *uint      `json:"contratanteId"`
}

// AtualizarMDFeRequest carries the editable scalar fields. A new vehicle or
// driver ID triggers a fresh snapshot; absent IDs keep the frozen copy.
type AtualizarMDFeRequest struct {
	VeiculoID      *uint      `json:"veiculoId"`
	CondutorID     *uint      `json:"condutorId"`
	DataEmissao    *time.Time `json:"dataEmissao"`
	UFIni          *string    `json:"ufIni"`
	UFFim          *string    `json:"ufFim"`
	MunicipioIni   *string    `json:"municipioIni"`
	MunicipioFim   *string    `json:"municipioFim"`
	PesoBrutoTotal *float64   `json:"pesoBrutoTotal"`
	ValorTotal     *float64   `json:"valorTotal"`
	Percurso       []string   `json:"percurso"`
}

// Criar validates the referenced registry entities, copies their fiscal data
// onto the new manifest and assigns the next number for the emitter. Nothing
// is persisted when any reference is missing or inactive.
func (s *MDFeService) Criar(ctx context.Context, req CriarMDFeRequest, ator string) (*models.MDFe, error) {
	emitente, err := s.emitenteAtivo(req.EmitenteID)
	if err != nil {
		return nil, err
	}
	veiculo, err := s.veiculoAtivo(req.VeiculoID)
	if err != nil {
		return nil, err
	}
	condutor, err := s.condutorAtivo(req.CondutorID)
	if err != nil {
		return nil, err
	}
	reboques := make([]models.Reboque, 0, len(req.ReboquesIDs))
	for _, id := range req.ReboquesIDs {
		var rb models.Reboque
		if err := s.db.Where("ativo = ?", true).First(&rb, id).Error; err != nil {
			return nil, apperr.NotFoundID("reboque", id)
		}
		reboques = append(reboques, rb)
	}
	extras := make([]models.Condutor, 0, len(req.CondutoresAdicionaisIDs))
	for _, id := range req.CondutoresAdicionaisIDs {
		var cd models.Condutor
		if err := s.db.Where("ativo = ?", true).First(&cd, id).Error; err != nil {
			return nil, apperr.NotFoundID("condutor", id)
		}
		extras = append(extras, cd)
	}
	var contratante *models.Contratante
	if req.ContratanteID != nil {
		var ct models.Contratante
		if err := s.db.Where("ativo = ?", true).First(&ct, *req.ContratanteID).Error; err != nil {
			return nil, apperr.NotFoundID("contratante", *req.ContratanteID)
		}
		contratante = &ct
	}

	serie := s.cfg.SeriePadrao
	if req.Serie != nil && *req.Serie > 0 {
		serie = *req.Serie
	}
	dataEmissao := time.Now()
	if req.DataEmissao != nil {
		dataEmissao = *req.DataEmissao
	}

	m := &models.MDFe{
		EmitenteID:   emitente.ID,
		Serie:        serie,
		Status:       models.StatusDraft,
		DataEmissao:  dataEmissao,
		UFIni:        strings.ToUpper(req.UFIni),
		UFFim:        strings.ToUpper(req.UFFim),
		MunicipioIni: req.MunicipioIni,
		MunicipioFim: req.MunicipioFim,
		PesoBruto:    req.PesoBrutoTotal,
		ValorTotal:   req.ValorTotal,
		CriadoPor:    ator,
	}
	snapshotEmitente(m, emitente)
	snapshotVeiculo(m, veiculo)
	snapshotCondutor(m, condutor)
	if contratante != nil {
		m.ContratanteID = &contratante.ID
		m.ContratanteDocumento = contratante.Documento
		m.ContratanteRazaoSocial = contratante.RazaoSocial
	}
	m.SetPercursoUFs(req.Percurso)
	if len(req.MunicipiosCarregamento) > 0 {
		refs := make([]models.MunicipioRef, 0, len(req.MunicipiosCarregamento))
		for _, codigo := range req.MunicipiosCarregamento {
			var mu models.Municipio
			if err := s.db.Where("codigo_ibge = ? AND ativo = ?", codigo, true).First(&mu).Error; err != nil {
				return nil, apperr.NotFound("município " + codigo)
			}
			refs = append(refs, models.MunicipioRef{Codigo: mu.CodigoIBGE, Nome: mu.Nome})
		}
		m.SetCarregamentoRefs(refs)
	}

	// max+1 numbering is inherently racy between concurrent creators; the
	// unique index on (emitente, serie, numero) is the backstop and we retry
	// on conflict with a freshly computed number.
	var lastErr error
	for attempt := 0; attempt < criarRetries; attempt++ {
		err := s.db.Transaction(func(tx *gorm.DB) error {
			numero, numErr := s.proximoNumero(tx, emitente.ID, serie)
			if numErr != nil {
				return numErr
			}
			m.ID = 0
			m.NumeroMdfe = numero
			if createErr := tx.Create(m).Error; createErr != nil {
				return createErr
			}
			for i, rb := range reboques {
				child := models.MDFeReboque{MDFeID: m.ID, ReboqueID: rb.ID, Placa: rb.Placa, TaraKG: rb.TaraKG, Ordem: i + 1}
				if childErr := tx.Create(&child).Error; childErr != nil {
					return childErr
				}
			}
			for i, cd := range extras {
				child := models.MDFeCondutor{MDFeID: m.ID, CondutorID: cd.ID, Nome: cd.Nome, CPF: cd.CPF, Ordem: i + 1}
				if childErr := tx.Create(&child).Error; childErr != nil {
					return childErr
				}
			}
			return nil
		})
		if err == nil {
			s.log.Info("mdfe criado", zap.Uint("mdfeId", m.ID), zap.Int("numero", m.NumeroMdfe), zap.String("operacao", "criar"))
			return s.Get(m.ID)
		}
		if !isUniqueViolation(err) {
			return nil, apperr.From(err)
		}
		lastErr = err
	}
	return nil, apperr.Conflict("não foi possível alocar número do manifesto").Wrap(lastErr)
}

// ProximoNumero previews the number the next manifest of the emitter would
// receive, without reserving it.
func (s *MDFeService) ProximoNumero(emitenteCNPJ string, serie int) (int, error) {
	cnpj := soDigitos(emitenteCNPJ)
	var emitente models.Emitente
	if err := s.db.Where("cnpj = ? AND ativo = ?", cnpj, true).First(&emitente).Error; err != nil {
		return 0, apperr.NotFound("emitente")
	}
	if serie <= 0 {
		serie = s.cfg.SeriePadrao
	}
	return s.proximoNumero(s.db, emitente.ID, serie)
}

func (s *MDFeService) proximoNumero(tx *gorm.DB, emitenteID uint, serie int) (int, error) {
	var max int
	err := tx.Model(&models.MDFe{}).
		Where("emitente_id = ? AND serie = ?", emitenteID, serie).
		Select("COALESCE(MAX(numero_mdfe), 0)").Scan(&max).Error
	if err != nil {
		return 0, apperr.Persistence(err)
	}
	if max == 0 {
		// First manifest for this emitter starts at the configured floor.
		return s.cfg.NumeroInicial, nil
	}
	return max + 1, nil
}

// Get loads a manifest with its ordered trailer and driver children.
func (s *MDFeService) Get(id uint) (*models.MDFe, error) {
	var m models.MDFe
	err := s.db.
		Preload("Reboques", func(db *gorm.DB) *gorm.DB { return db.Order("ordem") }).
		Preload("Condutores", func(db *gorm.DB) *gorm.DB { return db.Order("ordem") }).
		First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundID("manifesto", id)
	}
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return &m, nil
}

// ListParams filters the paged manifest list.
type ListParams struct {
	Page   int
	Limit  int
	Status string
	Search string
}

// PagedMDFes is the paged manifest list shape.
type PagedMDFes struct {
	Items []models.MDFe `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

func (s *MDFeService) List(p ListParams) (PagedMDFes, error) {
	if p.Limit <= 0 || p.Limit > 200 {
		p.Limit = 50
	}
	if p.Page <= 0 {
		p.Page = 1
	}
	q := s.db.Model(&models.MDFe{}).Where("status <> ?", models.StatusDeleted)
	if p.Status != "" {
		q = q.Where("status = ?", strings.ToUpper(p.Status))
	}
	if term := strings.TrimSpace(p.Search); term != "" {
		like := "%" + term + "%"
		q = q.Where("emit_razao_social LIKE ? OR veiculo_placa LIKE ? OR chave_acesso LIKE ?", like, strings.ToUpper(like), like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return PagedMDFes{}, apperr.Persistence(err)
	}
	var items []models.MDFe
	if err := q.Order("id desc").Limit(p.Limit).Offset((p.Page - 1) * p.Limit).Find(&items).Error; err != nil {
		return PagedMDFes{}, apperr.Persistence(err)
	}
	return PagedMDFes{Items: items, Total: total, Page: p.Page, Limit: p.Limit}, nil
}

// Atualizar edits a manifest still open for changes. Supplying a new vehicle
// or driver ID re-snapshots from the registry; everything else keeps the
// frozen copy.
func (s *MDFeService) Atualizar(ctx context.Context, id uint, req AtualizarMDFeRequest, ator string) (*models.MDFe, error) {
	m, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if !m.Editable() {
		return nil, apperr.Conflict("manifesto " + m.Status + " não pode ser alterado")
	}
	if req.VeiculoID != nil {
		veiculo, vErr := s.veiculoAtivo(*req.VeiculoID)
		if vErr != nil {
			return nil, vErr
		}
		snapshotVeiculo(m, veiculo)
	}
	if req.CondutorID != nil {
		condutor, cErr := s.condutorAtivo(*req.CondutorID)
		if cErr != nil {
			return nil, cErr
		}
		snapshotCondutor(m, condutor)
	}
	if req.DataEmissao != nil {
		m.DataEmissao = *req.DataEmissao
	}
	if req.UFIni != nil {
		m.UFIni = strings.ToUpper(*req.UFIni)
	}
	if req.UFFim != nil {
		m.UFFim = strings.ToUpper(*req.UFFim)
	}
	if req.MunicipioIni != nil {
		m.MunicipioIni = *req.MunicipioIni
	}
	if req.MunicipioFim != nil {
		m.MunicipioFim = *req.MunicipioFim
	}
	if req.PesoBrutoTotal != nil {
		m.PesoBruto = *req.PesoBrutoTotal
	}
	if req.ValorTotal != nil {
		m.ValorTotal = *req.ValorTotal
	}
	if req.Percurso != nil {
		m.SetPercursoUFs(req.Percurso)
	}
	m.AtualizadoPor = ator

	// Re-check the gate inside the transaction so a concurrent authorization
	// cannot slip an edit through.
	err = s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.MDFe{}).
			Where("id = ? AND status NOT IN ?", m.ID, []string{models.StatusAuthorized, models.StatusRejected}).
			Select("*").Omit("id", "created_at", "status", "numero_mdfe", "serie", "emitente_id", "chave_acesso").
			Updates(m)
		if res.Error != nil {
			return apperr.Persistence(res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("manifesto não pode mais ser alterado")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("mdfe atualizado", zap.Uint("mdfeId", m.ID), zap.String("operacao", "atualizar"))
	return s.Get(m.ID)
}

// Excluir removes a manifest. Authorized manifests can never be removed;
// a manifest already seen by the authority is only flagged DELETED, anything
// earlier is hard-removed with its children.
func (s *MDFeService) Excluir(ctx context.Context, id uint) error {
	m, err := s.Get(id)
	if err != nil {
		return err
	}
	if m.Status == models.StatusAuthorized {
		return apperr.Conflict("manifesto autorizado não pode ser excluído")
	}
	if m.Transmitted() {
		res := s.db.Model(&models.MDFe{}).
			Where("id = ? AND status <> ?", m.ID, models.StatusAuthorized).
			Update("status", models.StatusDeleted)
		if res.Error != nil {
			return apperr.Persistence(res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("manifesto autorizado não pode ser excluído")
		}
		s.log.Info("mdfe marcado como excluído", zap.Uint("mdfeId", m.ID), zap.String("operacao", "excluir"))
		return nil
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if delErr := deleteDocumentos(tx, m.ID); delErr != nil {
			return delErr
		}
		if delErr := tx.Where("mdfe_id = ?", m.ID).Delete(&models.MDFeReboque{}).Error; delErr != nil {
			return delErr
		}
		if delErr := tx.Where("mdfe_id = ?", m.ID).Delete(&models.MDFeCondutor{}).Error; delErr != nil {
			return delErr
		}
		res := tx.Where("id = ? AND status <> ?", m.ID, models.StatusAuthorized).Delete(&models.MDFe{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("manifesto autorizado não pode ser excluído")
		}
		return nil
	})
	if err != nil {
		return apperr.From(err)
	}
	s.log.Info("mdfe excluído", zap.Uint("mdfeId", m.ID), zap.String("operacao", "excluir"))
	return nil
}

// Gerar builds the structured payload and asks the engine to sign it. Only a
// DRAFT manifest can be generated; an engine failure leaves the status
// untouched and surfaces the engine's raw error text.
func (s *MDFeService) Gerar(ctx context.Context, id uint) (*models.MDFe, error) {
	m, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if m.Status != models.StatusDraft {
		return nil, apperr.Conflict("apenas manifestos em rascunho podem ser gerados (status atual: " + m.Status + ")")
	}
	docs, err := loadDocumentos(s.db, m.ID)
	if err != nil {
		return nil, err
	}
	payload := sefaz.BuildPayload(s.cfg.AmbienteSefaz, m, docs)

	// The engine call is a network round-trip: bounded by the configured
	// timeout and never issued while a database transaction is open.
	engineCtx, cancel := context.WithTimeout(ctx, s.cfg.EngineTimeout)
	defer cancel()
	doc, err := s.engine.Assinar(engineCtx, payload)
	if err != nil {
		metrics.RecordEngineCall("assinar", "erro")
		s.log.Error("falha ao assinar mdfe", zap.Uint("mdfeId", m.ID), zap.String("operacao", "gerar"), zap.Error(err))
		return nil, apperr.Engine(err.Error())
	}
	metrics.RecordEngineCall("assinar", "ok")

	err = s.transition(m.ID, []string{models.StatusDraft}, map[string]any{
		"status":       models.StatusGenerated,
		"xml_assinado": doc.XML,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("mdfe gerado", zap.Uint("mdfeId", m.ID), zap.String("operacao", "gerar"))
	return s.Get(m.ID)
}

// Transmitir sends the signed document to the authority. Once a protocol or
// receipt exists the engine is never re-invoked for this manifest; the
// repeated call fails locally.
func (s *MDFeService) Transmitir(ctx context.Context, id uint, sincrono bool) (*models.MDFe, error) {
	m, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if m.Transmitted() {
		return nil, apperr.Conflict("manifesto já transmitido")
	}
	if m.XMLAssinado == "" || m.Status != models.StatusGenerated {
		return nil, apperr.Conflict("manifesto ainda não gerado")
	}

	engineCtx, cancel := context.WithTimeout(ctx, s.cfg.EngineTimeout)
	defer cancel()
	ret, err := s.engine.Transmitir(engineCtx, sefaz.SignedDocument{XML: m.XMLAssinado}, sincrono)
	if err != nil {
		// Timeout or transport failure: unknown outcome, status unchanged.
		// The caller re-queries before retrying.
		metrics.RecordEngineCall("transmitir", "erro")
		s.log.Error("falha ao transmitir mdfe", zap.Uint("mdfeId", m.ID), zap.String("operacao", "transmitir"), zap.Error(err))
		return nil, apperr.Engine(err.Error())
	}
	metrics.RecordEngineCall("transmitir", "ok")

	updates := map[string]any{"codigo_status": ret.CStat}
	switch {
	case ret.Autorizado():
		chave := ret.ChaveAcesso
		if !sefaz.ChaveValida(chave) {
			s.log.Error("chave de acesso inválida retornada pelo motor",
				zap.Uint("mdfeId", m.ID),
				zap.String("chave", chave),
				zap.String("operacao", "transmitir"))
			return nil, apperr.Engine("chave de acesso retornada pelo motor é inválida")
		}
		updates["status"] = models.StatusAuthorized
		updates["chave_acesso"] = chave
		updates["protocolo"] = ret.Protocolo
		updates["data_autorizacao"] = time.Now()
		updates["digito_verificador"] = int(chave[43] - '0')
		if ret.Recibo != "" {
			updates["recibo"] = ret.Recibo
		}
	case ret.Recibo != "" && ret.Protocolo == "":
		// Async lot accepted: receipt issued, authorization pending.
		updates["status"] = models.StatusTransmitted
		updates["recibo"] = ret.Recibo
	default:
		updates["status"] = models.StatusRejected
		updates["motivo_rejeicao"] = ret.XMotivo
	}
	if err := s.transition(m.ID, []string{models.StatusGenerated}, updates); err != nil {
		return nil, err
	}
	s.log.Info("mdfe transmitido",
		zap.Uint("mdfeId", m.ID),
		zap.Int("cStat", ret.CStat),
		zap.String("operacao", "transmitir"))
	return s.Get(m.ID)
}

// Cancelar cancels an authorized manifest with a justification of at least
// 15 characters.
func (s *MDFeService) Cancelar(ctx context.Context, id uint, justificativa string) (*models.MDFe, error) {
	if len(strings.TrimSpace(justificativa)) < 15 {
		return nil, apperr.Validation("justificativa deve conter ao menos 15 caracteres")
	}
	m, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if m.Status != models.StatusAuthorized {
		return nil, apperr.Conflict("manifesto ainda não autorizado não pode ser cancelado")
	}

	engineCtx, cancel := context.WithTimeout(ctx, s.cfg.EngineTimeout)
	defer cancel()
	ret, err := s.engine.Cancelar(engineCtx, chaveOf(m), protocoloOf(m), justificativa)
	if err != nil {
		metrics.RecordEngineCall("cancelar", "erro")
		s.log.Error("falha ao cancelar mdfe", zap.Uint("mdfeId", m.ID), zap.String("operacao", "cancelar"), zap.Error(err))
		return nil, apperr.Engine(err.Error())
	}
	metrics.RecordEngineCall("cancelar", "ok")
	if ret.CStat != sefaz.CStatCancelado && ret.CStat != 135 {
		return nil, apperr.Engine(ret.XMotivo)
	}
	err = s.transition(m.ID, []string{models.StatusAuthorized}, map[string]any{
		"status":        models.StatusCancelled,
		"justificativa": justificativa,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("mdfe cancelado", zap.Uint("mdfeId", m.ID), zap.String("operacao", "cancelar"))
	return s.Get(m.ID)
}

// Encerrar closes an authorized manifest at the given discharge municipality.
func (s *MDFeService) Encerrar(ctx context.Context, id uint, codigoMunicipio string, data time.Time) (*models.MDFe, error) {
	if codigoMunicipio == "" || data.IsZero() {
		return nil, apperr.Validation("município de descarga e data de encerramento são obrigatórios")
	}
	m, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if m.Status != models.StatusAuthorized {
		return nil, apperr.Conflict("manifesto ainda não autorizado não pode ser encerrado")
	}

	engineCtx, cancel := context.WithTimeout(ctx, s.cfg.EngineTimeout)
	defer cancel()
	ret, err := s.engine.Encerrar(engineCtx, chaveOf(m), protocoloOf(m), codigoMunicipio, data)
	if err != nil {
		metrics.RecordEngineCall("encerrar", "erro")
		s.log.Error("falha ao encerrar mdfe", zap.Uint("mdfeId", m.ID), zap.String("operacao", "encerrar"), zap.Error(err))
		return nil, apperr.Engine(err.Error())
	}
	metrics.RecordEngineCall("encerrar", "ok")
	if ret.CStat != sefaz.CStatEncerrado {
		return nil, apperr.Engine(ret.XMotivo)
	}
	err = s.transition(m.ID, []string{models.StatusAuthorized}, map[string]any{
		"status":                 models.StatusClosed,
		"municipio_encerramento": codigoMunicipio,
		"data_encerramento":      data,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("mdfe encerrado", zap.Uint("mdfeId", m.ID), zap.String("operacao", "encerrar"))
	return s.Get(m.ID)
}

// Consultar queries the authority for the manifest's current situation and
// reconciles a pending async transmission when the lot was processed.
func (s *MDFeService) Consultar(ctx context.Context, id uint) (*sefaz.Retorno, error) {
	m, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	engineCtx, cancel := context.WithTimeout(ctx, s.cfg.EngineTimeout)
	defer cancel()

	var ret *sefaz.Retorno
	switch {
	case m.ChaveAcesso != nil && *m.ChaveAcesso != "":
		ret, err = s.engine.ConsultarPorChave(engineCtx, *m.ChaveAcesso)
	case m.Recibo != nil && *m.Recibo != "":
		ret, err = s.engine.ConsultarPorRecibo(engineCtx, *m.Recibo)
	default:
		return nil, apperr.Conflict("manifesto sem chave de acesso ou recibo para consulta")
	}
	if err != nil {
		metrics.RecordEngineCall("consultar", "erro")
		s.log.Error("falha ao consultar mdfe", zap.Uint("mdfeId", m.ID), zap.String("operacao", "consultar"), zap.Error(err))
		return nil, apperr.Engine(err.Error())
	}
	metrics.RecordEngineCall("consultar", "ok")

	if m.Status == models.StatusTransmitted && ret.Autorizado() {
		if !sefaz.ChaveValida(ret.ChaveAcesso) {
			s.log.Error("chave de acesso inválida retornada pelo motor",
				zap.Uint("mdfeId", m.ID),
				zap.String("chave", ret.ChaveAcesso),
				zap.String("operacao", "consultar"))
			return nil, apperr.Engine("chave de acesso retornada pelo motor é inválida")
		}
		updates := map[string]any{
			"status":             models.StatusAuthorized,
			"codigo_status":      ret.CStat,
			"protocolo":          ret.Protocolo,
			"data_autorizacao":   time.Now(),
			"chave_acesso":       ret.ChaveAcesso,
			"digito_verificador": int(ret.ChaveAcesso[43] - '0'),
		}
		if err := s.transition(m.ID, []string{models.StatusTransmitted}, updates); err != nil {
			return nil, err
		}
		s.log.Info("mdfe autorizado via consulta", zap.Uint("mdfeId", m.ID), zap.String("operacao", "consultar"))
	}
	return ret, nil
}

// transition applies a guarded status change: the row is updated only while
// its current status still matches, so concurrent operations cannot both win.
func (s *MDFeService) transition(id uint, from []string, updates map[string]any) error {
	res := s.db.Model(&models.MDFe{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return apperr.Persistence(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("status do manifesto mudou, operação não aplicada")
	}
	return nil
}

func (s *MDFeService) emitenteAtivo(id uint) (*models.Emitente, error) {
	var e models.Emitente
	if err := s.db.Where("ativo = ?", true).First(&e, id).Error; err != nil {
		return nil, apperr.NotFoundID("emitente", id)
	}
	return &e, nil
}

func (s *MDFeService) veiculoAtivo(id uint) (*models.Veiculo, error) {
	var v models.Veiculo
	if err := s.db.Where("ativo = ?", true).First(&v, id).Error; err != nil {
		return nil, apperr.NotFoundID("veículo", id)
	}
	return &v, nil
}

func (s *MDFeService) condutorAtivo(id uint) (*models.Condutor, error) {
	var cd models.Condutor
	if err := s.db.Where("ativo = ?", true).First(&cd, id).Error; err != nil {
		return nil, apperr.NotFoundID("condutor", id)
	}
	return &cd, nil
}

// Snapshot copies: value copies only, never references. After creation these
// columns are never refreshed from the registry.

func snapshotEmitente(m *models.MDFe, e *models.Emitente) {
	m.EmitCNPJ = e.CNPJ
	m.EmitIE = e.IE
	m.EmitRazaoSocial = e.RazaoSocial
	m.EmitNomeFantasia = e.NomeFantasia
	m.EmitLogradouro = e.Logradouro
	m.EmitNumero = e.Numero
	m.EmitBairro = e.Bairro
	m.EmitCodigoMunicipio = e.CodigoMunicipio
	m.EmitNomeMunicipio = e.NomeMunicipio
	m.EmitCEP = e.CEP
	m.EmitUF = e.UF
}

func snapshotVeiculo(m *models.MDFe, v *models.Veiculo) {
	m.VeiculoID = v.ID
	m.VeiculoPlaca = v.Placa
	m.VeiculoTaraKG = v.TaraKG
	m.VeiculoCapacidadeKG = v.CapacidadeKG
	m.VeiculoTipoRodado = v.TipoRodado
	m.VeiculoTipoCarroceria = v.TipoCarroceria
	m.VeiculoUF = v.UF
}

func snapshotCondutor(m *models.MDFe, cd *models.Condutor) {
	m.CondutorID = cd.ID
	m.CondutorNome = cd.Nome
	m.CondutorCPF = cd.CPF
}

func chaveOf(m *models.MDFe) string {
	if m.ChaveAcesso != nil {
		return *m.ChaveAcesso
	}
	return ""
}

func protocoloOf(m *models.MDFe) string {
	if m.Protocolo != nil {
		return *m.Protocolo
	}
	return ""
}

func soDigitos(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "23505")
}
