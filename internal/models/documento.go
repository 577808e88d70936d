package models

import "time"

// Fiscal sub-document types.
const (
	DocumentoCTe  = "CTE"
	DocumentoNFe  = "NFE"
	DocumentoMDFe = "MDFE"
)

// DocumentoFiscal references a CT-e, NF-e or another MDF-e carried by the
// manifest, grouped by discharge municipality. Access keys are unique across
// the whole system, not just per manifest.
type DocumentoFiscal struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	MDFeID uint   `gorm:"column:mdfe_id;not null;index" json:"-"`
	Tipo   string `gorm:"size:4;not null" json:"tipo"`
	Chave  string `gorm:"size:44;not null;uniqueIndex" json:"chave"`

	MunicipioDescargaCodigo string `gorm:"size:7;not null" json:"municipioDescargaCodigo"`
	MunicipioDescargaNome   string `gorm:"not null" json:"municipioDescargaNome"`
	Ordem                   int    `gorm:"not null" json:"ordem"`

	// Optional partial-delivery record: parcial <= total when both present.
	QuantidadeTotal   *float64 `json:"quantidadeTotal,omitempty"`
	QuantidadeParcial *float64 `json:"quantidadeParcial,omitempty"`

	Unidades  []UnidadeTransporte `gorm:"foreignKey:DocumentoFiscalID;constraint:OnDelete:CASCADE" json:"unidadesTransporte,omitempty"`
	Perigosos []ProdutoPerigoso   `gorm:"foreignKey:DocumentoFiscalID;constraint:OnDelete:CASCADE" json:"produtosPerigosos,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (DocumentoFiscal) TableName() string { return "documentos_fiscais" }

// UnidadeTransporte is a transport unit (vehicle body, container, trailer
// load space) under exactly one fiscal document or directly under a manifest.
type UnidadeTransporte struct {
	ID                uint  `gorm:"primaryKey" json:"id"`
	DocumentoFiscalID *uint `gorm:"index" json:"-"`
	MDFeID            *uint `gorm:"column:mdfe_id;index" json:"-"`

	TipoUnidade       string   `gorm:"size:2;not null" json:"tipoUnidade"` // 1 rodoviário tração, 2 reboque...
	Identificacao     string   `gorm:"size:20;not null" json:"identificacao"`
	CapacidadeKG      *float64 `json:"capacidadeKg,omitempty"`
	TaraKG            *float64 `json:"taraKg,omitempty"`
	QuantidadeRateada *float64 `json:"quantidadeRateada,omitempty"`
	Ordem             int      `gorm:"not null" json:"ordem"`

	Lacres   []LacreUnidadeTransporte `gorm:"foreignKey:UnidadeTransporteID;constraint:OnDelete:CASCADE" json:"lacres,omitempty"`
	Unidades []UnidadeCarga           `gorm:"foreignKey:UnidadeTransporteID;constraint:OnDelete:CASCADE" json:"unidadesCarga,omitempty"`
}

func (UnidadeTransporte) TableName() string { return "unidades_transporte" }

// UnidadeCarga nests under a transport unit (pallet, box, bulk container).
type UnidadeCarga struct {
	ID                  uint     `gorm:"primaryKey" json:"id"`
	UnidadeTransporteID uint     `gorm:"not null;index" json:"-"`
	TipoUnidade         string   `gorm:"size:2;not null" json:"tipoUnidade"`
	Identificacao       string   `gorm:"size:20;not null" json:"identificacao"`
	QuantidadeRateada   *float64 `json:"quantidadeRateada,omitempty"`
	Ordem               int      `gorm:"not null" json:"ordem"`

	Lacres []LacreUnidadeCarga `gorm:"foreignKey:UnidadeCargaID;constraint:OnDelete:CASCADE" json:"lacres,omitempty"`
}

func (UnidadeCarga) TableName() string { return "unidades_carga" }

// Seal numbers are free-text tokens, no checksum.

type LacreUnidadeTransporte struct {
	ID                  uint   `gorm:"primaryKey" json:"id"`
	UnidadeTransporteID uint   `gorm:"not null;index" json:"-"`
	Numero              string `gorm:"size:20;not null" json:"numero"`
	Ordem               int    `gorm:"not null" json:"ordem"`
}

func (LacreUnidadeTransporte) TableName() string { return "lacres_unidade_transporte" }

type LacreUnidadeCarga struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	UnidadeCargaID uint   `gorm:"not null;index" json:"-"`
	Numero         string `gorm:"size:20;not null" json:"numero"`
	Ordem          int    `gorm:"not null" json:"ordem"`
}

func (LacreUnidadeCarga) TableName() string { return "lacres_unidade_carga" }

// ProdutoPerigoso is a hazardous-goods declaration. ONU number, risk class
// and quantity are populated together or not at all.
type ProdutoPerigoso struct {
	ID                uint   `gorm:"primaryKey" json:"id"`
	DocumentoFiscalID uint   `gorm:"not null;index" json:"-"`
	NumeroONU         string `gorm:"size:4;not null" json:"numeroOnu"`
	NomeApropriado    string `json:"nomeApropriado,omitempty"`
	ClasseRisco       string `gorm:"size:40;not null" json:"classeRisco"`
	GrupoEmbalagem    string `gorm:"size:6" json:"grupoEmbalagem,omitempty"`
	QuantidadeTotal   string `gorm:"size:20;not null" json:"quantidadeTotal"`
	TipoVolume        string `gorm:"size:60" json:"tipoVolume,omitempty"`
}

func (ProdutoPerigoso) TableName() string { return "produtos_perigosos" }
