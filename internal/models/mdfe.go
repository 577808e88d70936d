package models

import (
	"encoding/json"
	"time"
)

// Manifest lifecycle statuses.
const (
	StatusDraft       = "DRAFT"
	StatusGenerated   = "GENERATED"
	StatusTransmitted = "TRANSMITTED"
	StatusAuthorized  = "AUTHORIZED"
	StatusRejected    = "REJECTED"
	StatusCancelled   = "CANCELLED"
	StatusClosed      = "CLOSED"
	StatusDeleted     = "DELETED"
)

// MDFe is the manifest aggregate. Emitter, driver and vehicle data are copied
// by value at creation time (snapshot columns); after creation those columns
// are the single source of truth for document generation and are never
// refreshed from the registry.
type MDFe struct {
	ID uint `gorm:"primaryKey" json:"id"`

	EmitenteID uint `gorm:"not null;uniqueIndex:idx_mdfe_emitente_serie_numero" json:"emitenteId"`
	Serie      int  `gorm:"not null;uniqueIndex:idx_mdfe_emitente_serie_numero" json:"serie"`
	NumeroMdfe int  `gorm:"not null;uniqueIndex:idx_mdfe_emitente_serie_numero" json:"numeroMdfe"`

	// Assigned only upon authorization; immutable afterwards.
	ChaveAcesso       *string `gorm:"size:44;uniqueIndex" json:"chaveAcesso,omitempty"`
	CodigoStatus      *int    `json:"codigoStatus,omitempty"`
	DigitoVerificador *int    `json:"digitoVerificador,omitempty"`

	Status      string    `gorm:"size:16;not null;default:'DRAFT';index" json:"status"`
	DataEmissao time.Time `gorm:"not null" json:"dataEmissao"`

	UFIni        string  `gorm:"size:2;not null" json:"ufIni"`
	UFFim        string  `gorm:"size:2;not null" json:"ufFim"`
	MunicipioIni string  `gorm:"size:7" json:"municipioIni"`
	MunicipioFim string  `gorm:"size:7" json:"municipioFim"`
	PesoBruto    float64 `gorm:"not null" json:"pesoBrutoTotal"`
	ValorTotal   float64 `gorm:"not null" json:"valorTotal"`

	// Emitter snapshot
	EmitCNPJ            string `gorm:"size:14;not null" json:"emitCnpj"`
	EmitIE              string `gorm:"size:20" json:"emitIe"`
	EmitRazaoSocial     string `gorm:"not null" json:"emitRazaoSocial"`
	EmitNomeFantasia    string `json:"emitNomeFantasia"`
	EmitLogradouro      string `json:"emitLogradouro"`
	EmitNumero          string `gorm:"size:20" json:"emitNumero"`
	EmitBairro          string `json:"emitBairro"`
	EmitCodigoMunicipio string `gorm:"size:7" json:"emitCodigoMunicipio"`
	EmitNomeMunicipio   string `json:"emitNomeMunicipio"`
	EmitCEP             string `gorm:"size:8" json:"emitCep"`
	EmitUF              string `gorm:"size:2" json:"emitUf"`

	// Driver snapshot
	CondutorID   uint   `gorm:"not null" json:"condutorId"`
	CondutorNome string `gorm:"not null" json:"condutorNome"`
	CondutorCPF  string `gorm:"size:11;not null" json:"condutorCpf"`

	// Vehicle snapshot
	VeiculoID             uint   `gorm:"not null" json:"veiculoId"`
	VeiculoPlaca          string `gorm:"size:7;not null" json:"veiculoPlaca"`
	VeiculoTaraKG         int    `json:"veiculoTaraKg"`
	VeiculoCapacidadeKG   int    `json:"veiculoCapacidadeKg"`
	VeiculoTipoRodado     string `gorm:"size:2" json:"veiculoTipoRodado"`
	VeiculoTipoCarroceria string `gorm:"size:2" json:"veiculoTipoCarroceria"`
	VeiculoUF             string `gorm:"size:2" json:"veiculoUf"`

	// Optional contractor snapshot
	ContratanteID          *uint  `json:"contratanteId,omitempty"`
	ContratanteDocumento   string `gorm:"size:14" json:"contratanteDocumento,omitempty"`
	ContratanteRazaoSocial string `json:"contratanteRazaoSocial,omitempty"`

	// Insurance sub-record (denormalized insurer snapshot, non-reactive)
	ResponsavelSeguro     string `gorm:"size:20" json:"responsavelSeguro,omitempty"` // emitente | contratante
	SeguradoraID          *uint  `json:"seguradoraId,omitempty"`
	SeguradoraCNPJ        string `gorm:"size:14" json:"seguradoraCnpj,omitempty"`
	SeguradoraRazaoSocial string `json:"seguradoraRazaoSocial,omitempty"`
	NumeroApolice         string `gorm:"size:30" json:"numeroApolice,omitempty"`
	Averbacoes            string `gorm:"type:text" json:"-"` // JSON []string

	// Ordered associations
	Reboques   []MDFeReboque  `gorm:"foreignKey:MDFeID;constraint:OnDelete:CASCADE" json:"reboques,omitempty"`
	Condutores []MDFeCondutor `gorm:"foreignKey:MDFeID;constraint:OnDelete:CASCADE" json:"condutoresAdicionais,omitempty"`

	// Route and loading/unloading lists, JSON blob columns exposed as typed
	// slices through the accessors below.
	Percurso             string  `gorm:"type:text" json:"-"` // JSON []string of UF codes
	MunicipiosCarga      string  `gorm:"type:text" json:"-"` // JSON []MunicipioRef
	MunicipiosDescarga   string  `gorm:"type:text" json:"-"` // JSON []MunicipioRef
	ComponentesPagamento string  `gorm:"type:text" json:"-"` // JSON []ComponentePagamento
	ValesPedagio         string  `gorm:"type:text" json:"-"` // JSON []ValePedagio
	SemValePedagio       bool    `gorm:"not null;default:false" json:"semValePedagio"`
	ValorContrato        float64 `json:"valorContrato"`

	// Transmission artifacts
	XMLAssinado     string     `gorm:"type:text" json:"-"`
	Protocolo       *string    `gorm:"size:20" json:"protocolo,omitempty"`
	Recibo          *string    `gorm:"size:20" json:"recibo,omitempty"`
	MotivoRejeicao  string     `json:"motivoRejeicao,omitempty"`
	DataAutorizacao *time.Time `json:"dataAutorizacao,omitempty"`

	// Cancellation / closing
	Justificativa         string     `json:"justificativa,omitempty"`
	MunicipioEncerramento string     `gorm:"size:7" json:"municipioEncerramento,omitempty"`
	DataEncerramento      *time.Time `json:"dataEncerramento,omitempty"`

	// Audit (informational)
	CriadoPor     string    `gorm:"size:100" json:"criadoPor,omitempty"`
	AtualizadoPor string    `gorm:"size:100" json:"atualizadoPor,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (MDFe) TableName() string { return "mdfes" }

// MDFeReboque is a trailer snapshot attached to a manifest, ordered.
type MDFeReboque struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	MDFeID    uint   `gorm:"column:mdfe_id;not null;index" json:"-"`
	ReboqueID uint   `gorm:"not null" json:"reboqueId"`
	Placa     string `gorm:"size:7;not null" json:"placa"`
	TaraKG    int    `json:"taraKg"`
	Ordem     int    `gorm:"not null" json:"ordem"`
}

func (MDFeReboque) TableName() string { return "mdfe_reboques" }

// MDFeCondutor is a secondary driver snapshot, ordered.
type MDFeCondutor struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	MDFeID     uint   `gorm:"column:mdfe_id;not null;index" json:"-"`
	CondutorID uint   `gorm:"not null" json:"condutorId"`
	Nome       string `gorm:"not null" json:"nome"`
	CPF        string `gorm:"size:11;not null" json:"cpf"`
	Ordem      int    `gorm:"not null" json:"ordem"`
}

func (MDFeCondutor) TableName() string { return "mdfe_condutores" }

// MunicipioRef is a code/name pair inside the loading/unloading JSON columns.
type MunicipioRef struct {
	Codigo string `json:"codigo"`
	Nome   string `json:"nome"`
}

// ComponentePagamento is one entry of the payment-component list. The
// manifest's contract value is always the sum of its component values.
type ComponentePagamento struct {
	Tipo  string  `json:"tipo"` // vale-pedágio, impostos, despesas, outros
	Valor float64 `json:"valor"`
}

// ValePedagio is one toll-voucher entry; mutually exclusive with the
// SemValePedagio flag.
type ValePedagio struct {
	CNPJFornecedor string  `json:"cnpjFornecedor"`
	CNPJPagador    string  `json:"cnpjPagador,omitempty"`
	NumeroCompra   string  `json:"numeroCompra"`
	Valor          float64 `json:"valor"`
}

// JSON column accessors. Decode-validate-use on read, validate-encode-store
// on write; invalid stored blobs decode to empty lists.

func decodeList[T any](raw string) []T {
	var out []T
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func encodeList(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func (m *MDFe) PercursoUFs() []string                 { return decodeList[string](m.Percurso) }
func (m *MDFe) SetPercursoUFs(ufs []string)           { m.Percurso = encodeList(ufs) }
func (m *MDFe) CarregamentoRefs() []MunicipioRef      { return decodeList[MunicipioRef](m.MunicipiosCarga) }
func (m *MDFe) SetCarregamentoRefs(ms []MunicipioRef) { m.MunicipiosCarga = encodeList(ms) }
func (m *MDFe) DescargaRefs() []MunicipioRef          { return decodeList[MunicipioRef](m.MunicipiosDescarga) }
func (m *MDFe) SetDescargaRefs(ms []MunicipioRef)     { m.MunicipiosDescarga = encodeList(ms) }

func (m *MDFe) Componentes() []ComponentePagamento {
	return decodeList[ComponentePagamento](m.ComponentesPagamento)
}
func (m *MDFe) SetComponentes(cs []ComponentePagamento) { m.ComponentesPagamento = encodeList(cs) }
func (m *MDFe) Vales() []ValePedagio                    { return decodeList[ValePedagio](m.ValesPedagio) }
func (m *MDFe) SetVales(vs []ValePedagio)               { m.ValesPedagio = encodeList(vs) }
func (m *MDFe) AverbacoesList() []string                { return decodeList[string](m.Averbacoes) }
func (m *MDFe) SetAverbacoesList(as []string)           { m.Averbacoes = encodeList(as) }

// Editable reports whether manifest fields and fiscal documents may still be
// changed. Editing stops once the fiscal authority has seen the document.
func (m *MDFe) Editable() bool {
	return m.Status != StatusAuthorized && m.Status != StatusRejected
}

// Transmitted reports whether a protocol or receipt was already issued, in
// which case the engine must not be invoked again for this manifest.
func (m *MDFe) Transmitted() bool {
	return (m.Protocolo != nil && *m.Protocolo != "") || (m.Recibo != nil && *m.Recibo != "")
}
