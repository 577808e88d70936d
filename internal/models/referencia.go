package models

import "time"

// Reference registry entities. Each carries a normalized natural key that is
// unique among active rows, an Ativo soft-delete flag and timestamps. The
// GetID/IsActive/SetActive trio satisfies registry.Entity so the generic
// repository can flip flags without reflection.

type Emitente struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	CNPJ            string    `gorm:"size:14;not null;index" json:"cnpj"` // digits only
	RazaoSocial     string    `gorm:"not null" json:"razaoSocial"`
	NomeFantasia    string    `json:"nomeFantasia"`
	IE              string    `gorm:"size:20" json:"ie"`
	Logradouro      string    `json:"logradouro"`
	Numero          string    `gorm:"size:20" json:"numero"`
	Bairro          string    `json:"bairro"`
	CodigoMunicipio string    `gorm:"size:7" json:"codigoMunicipio"`
	NomeMunicipio   string    `json:"nomeMunicipio"`
	CEP             string    `gorm:"size:8" json:"cep"`
	UF              string    `gorm:"size:2" json:"uf"`
	Ativo           bool      `gorm:"not null;default:true" json:"ativo"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (e *Emitente) GetID() uint          { return e.ID }
func (e *Emitente) IsActive() bool       { return e.Ativo }
func (e *Emitente) SetActive(ativo bool) { e.Ativo = ativo }

type Veiculo struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Placa          string    `gorm:"size:7;not null;index" json:"placa"`
	Renavam        string    `gorm:"size:11" json:"renavam"`
	TaraKG         int       `gorm:"not null" json:"taraKg"`
	CapacidadeKG   int       `json:"capacidadeKg"`
	CapacidadeM3   int       `json:"capacidadeM3"`
	TipoRodado     string    `gorm:"size:2" json:"tipoRodado"`     // 01 truck, 02 toco, 03 cavalo mecânico...
	TipoCarroceria string    `gorm:"size:2" json:"tipoCarroceria"` // 00 não aplicável, 01 aberta...
	UF             string    `gorm:"size:2" json:"uf"`
	Ativo          bool      `gorm:"not null;default:true" json:"ativo"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (v *Veiculo) GetID() uint          { return v.ID }
func (v *Veiculo) IsActive() bool       { return v.Ativo }
func (v *Veiculo) SetActive(ativo bool) { v.Ativo = ativo }

type Condutor struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Nome      string    `gorm:"not null" json:"nome"`
	CPF       string    `gorm:"size:11;not null;index" json:"cpf"` // digits only
	Ativo     bool      `gorm:"not null;default:true" json:"ativo"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (c *Condutor) GetID() uint          { return c.ID }
func (c *Condutor) IsActive() bool       { return c.Ativo }
func (c *Condutor) SetActive(ativo bool) { c.Ativo = ativo }

type Reboque struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Placa          string    `gorm:"size:7;not null;index" json:"placa"`
	TaraKG         int       `gorm:"not null" json:"taraKg"`
	CapacidadeKG   int       `json:"capacidadeKg"`
	TipoCarroceria string    `gorm:"size:2" json:"tipoCarroceria"`
	UF             string    `gorm:"size:2" json:"uf"`
	Ativo          bool      `gorm:"not null;default:true" json:"ativo"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (r *Reboque) GetID() uint          { return r.ID }
func (r *Reboque) IsActive() bool       { return r.Ativo }
func (r *Reboque) SetActive(ativo bool) { r.Ativo = ativo }

type Contratante struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Documento   string    `gorm:"size:14;not null;index" json:"documento"` // CPF or CNPJ, digits only
	RazaoSocial string    `gorm:"not null" json:"razaoSocial"`
	Ativo       bool      `gorm:"not null;default:true" json:"ativo"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (c *Contratante) GetID() uint          { return c.ID }
func (c *Contratante) IsActive() bool       { return c.Ativo }
func (c *Contratante) SetActive(ativo bool) { c.Ativo = ativo }

type Seguradora struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CNPJ        string    `gorm:"size:14;not null;index" json:"cnpj"`
	RazaoSocial string    `gorm:"not null" json:"razaoSocial"`
	CodigoSusep string    `gorm:"size:10" json:"codigoSusep"`
	Ativo       bool      `gorm:"not null;default:true" json:"ativo"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (s *Seguradora) GetID() uint          { return s.ID }
func (s *Seguradora) IsActive() bool       { return s.Ativo }
func (s *Seguradora) SetActive(ativo bool) { s.Ativo = ativo }

// Municipio mirrors the IBGE municipality table used to resolve loading and
// discharge locations.
type Municipio struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CodigoIBGE string    `gorm:"size:7;not null;index" json:"codigoIbge"`
	Nome       string    `gorm:"not null" json:"nome"`
	UF         string    `gorm:"size:2;not null" json:"uf"`
	Ativo      bool      `gorm:"not null;default:true" json:"ativo"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (m *Municipio) GetID() uint          { return m.ID }
func (m *Municipio) IsActive() bool       { return m.Ativo }
func (m *Municipio) SetActive(ativo bool) { m.Ativo = ativo }
