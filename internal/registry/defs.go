package registry

import (
	"gorm.io/gorm"

	"github.com/fretefacil/mdfe-backend/internal/apperr"
	"github.com/fretefacil/mdfe-backend/internal/models"
)

// Per-entity hook definitions. Delete guards keep a reference entity alive
// while any manifest points at it.

func guardCount(tx *gorm.DB, query string, args ...any) (int64, error) {
	var count int64
	err := tx.Model(&models.MDFe{}).Where(query, args...).Count(&count).Error
	return count, err
}

func NewEmitenteRepository(db *gorm.DB) *Repository[models.Emitente, *models.Emitente] {
	return NewRepository(db, Hooks[models.Emitente, *models.Emitente]{
		Resource: "emitente",
		Normalize: func(e *models.Emitente) {
			e.CNPJ = Digits(e.CNPJ)
			e.IE = Digits(e.IE)
			e.CEP = Digits(e.CEP)
			e.UF = UF(e.UF)
		},
		NaturalKey: func(e *models.Emitente) (string, string) { return "cnpj", e.CNPJ },
		Validate: func(e *models.Emitente) error {
			if len(e.CNPJ) != 14 {
				return apperr.Validation("cnpj deve conter 14 dígitos")
			}
			if e.RazaoSocial == "" {
				return apperr.Validation("razão social obrigatória")
			}
			return nil
		},
		SearchFilter: func(q *gorm.DB, term string) *gorm.DB {
			like := "%" + term + "%"
			return q.Where("cnpj LIKE ? OR LOWER(razao_social) LIKE LOWER(?)", like, like)
		},
		SortColumns: []string{"razao_social", "cnpj", "id"},
		DeleteGuard: func(tx *gorm.DB, e *models.Emitente) error {
			n, err := guardCount(tx, "emitente_id = ?", e.ID)
			if err != nil {
				return apperr.Persistence(err)
			}
			if n > 0 {
				return apperr.Conflict("emitente possui manifestos vinculados e não pode ser removido")
			}
			return nil
		},
	})
}

func NewVeiculoRepository(db *gorm.DB) *Repository[models.Veiculo, *models.Veiculo] {
	return NewRepository(db, Hooks[models.Veiculo, *models.Veiculo]{
		Resource: "veículo",
		Normalize: func(v *models.Veiculo) {
			v.Placa = Placa(v.Placa)
			v.Renavam = Digits(v.Renavam)
			v.UF = UF(v.UF)
		},
		NaturalKey: func(v *models.Veiculo) (string, string) { return "placa", v.Placa },
		Validate: func(v *models.Veiculo) error {
			if len(v.Placa) != 7 {
				return apperr.Validation("placa deve conter 7 caracteres")
			}
			if v.TaraKG <= 0 {
				return apperr.Validation("tara deve ser positiva")
			}
			return nil
		},
		SearchFilter: func(q *gorm.DB, term string) *gorm.DB {
			return q.Where("placa LIKE ?", "%"+Placa(term)+"%")
		},
		SortColumns: []string{"placa", "id"},
		DeleteGuard: func(tx *gorm.DB, v *models.Veiculo) error {
			n, err := guardCount(tx, "veiculo_id = ?", v.ID)
			if err != nil {
				return apperr.Persistence(err)
			}
			if n > 0 {
				return apperr.Conflict("veículo possui manifestos vinculados e não pode ser removido")
			}
			return nil
		},
	})
}

func NewCondutorRepository(db *gorm.DB) *Repository[models.Condutor, *models.Condutor] {
	return NewRepository(db, Hooks[models.Condutor, *models.Condutor]{
		Resource: "condutor",
		Normalize: func(cd *models.Condutor) {
			cd.CPF = Digits(cd.CPF)
		},
		NaturalKey: func(cd *models.Condutor) (string, string) { return "cpf", cd.CPF },
		Validate: func(cd *models.Condutor) error {
			if len(cd.CPF) != 11 {
				return apperr.Validation("cpf deve conter 11 dígitos")
			}
			if cd.Nome == "" {
				return apperr.Validation("nome obrigatório")
			}
			return nil
		},
		SearchFilter: func(q *gorm.DB, term string) *gorm.DB {
			like := "%" + term + "%"
			return q.Where("cpf LIKE ? OR LOWER(nome) LIKE LOWER(?)", like, like)
		},
		SortColumns: []string{"nome", "cpf", "id"},
		DeleteGuard: func(tx *gorm.DB, cd *models.Condutor) error {
			n, err := guardCount(tx, "condutor_id = ?", cd.ID)
			if err != nil {
				return apperr.Persistence(err)
			}
			if n == 0 {
				err = tx.Model(&models.MDFeCondutor{}).Where("condutor_id = ?", cd.ID).Count(&n).Error
				if err != nil {
					return apperr.Persistence(err)
				}
			}
			if n > 0 {
				return apperr.Conflict("condutor possui manifestos vinculados e não pode ser removido")
			}
			return nil
		},
	})
}

func NewReboqueRepository(db *gorm.DB) *Repository[models.Reboque, *models.Reboque] {
	return NewRepository(db, Hooks[models.Reboque, *models.Reboque]{
		Resource: "reboque",
		Normalize: func(rb *models.Reboque) {
			rb.Placa = Placa(rb.Placa)
			rb.UF = UF(rb.UF)
		},
		NaturalKey: func(rb *models.Reboque) (string, string) { return "placa", rb.Placa },
		Validate: func(rb *models.Reboque) error {
			if len(rb.Placa) != 7 {
				return apperr.Validation("placa deve conter 7 caracteres")
			}
			return nil
		},
		SearchFilter: func(q *gorm.DB, term string) *gorm.DB {
			return q.Where("placa LIKE ?", "%"+Placa(term)+"%")
		},
		SortColumns: []string{"placa", "id"},
		DeleteGuard: func(tx *gorm.DB, rb *models.Reboque) error {
			var n int64
			if err := tx.Model(&models.MDFeReboque{}).Where("reboque_id = ?", rb.ID).Count(&n).Error; err != nil {
				return apperr.Persistence(err)
			}
			if n > 0 {
				return apperr.Conflict("reboque possui manifestos vinculados e não pode ser removido")
			}
			return nil
		},
	})
}

func NewContratanteRepository(db *gorm.DB) *Repository[models.Contratante, *models.Contratante] {
	return NewRepository(db, Hooks[models.Contratante, *models.Contratante]{
		Resource: "contratante",
		Normalize: func(ct *models.Contratante) {
			ct.Documento = Digits(ct.Documento)
		},
		NaturalKey: func(ct *models.Contratante) (string, string) { return "documento", ct.Documento },
		Validate: func(ct *models.Contratante) error {
			if l := len(ct.Documento); l != 11 && l != 14 {
				return apperr.Validation("documento deve conter 11 (CPF) ou 14 (CNPJ) dígitos")
			}
			if ct.RazaoSocial == "" {
				return apperr.Validation("razão social obrigatória")
			}
			return nil
		},
		SearchFilter: func(q *gorm.DB, term string) *gorm.DB {
			like := "%" + term + "%"
			return q.Where("documento LIKE ? OR LOWER(razao_social) LIKE LOWER(?)", like, like)
		},
		SortColumns: []string{"razao_social", "id"},
		DeleteGuard: func(tx *gorm.DB, ct *models.Contratante) error {
			n, err := guardCount(tx, "contratante_id = ?", ct.ID)
			if err != nil {
				return apperr.Persistence(err)
			}
			if n > 0 {
				return apperr.Conflict("contratante possui manifestos vinculados e não pode ser removido")
			}
			return nil
		},
	})
}

func NewSeguradoraRepository(db *gorm.DB) *Repository[models.Seguradora, *models.Seguradora] {
	return NewRepository(db, Hooks[models.Seguradora, *models.Seguradora]{
		Resource: "seguradora",
		Normalize: func(sg *models.Seguradora) {
			sg.CNPJ = Digits(sg.CNPJ)
			sg.CodigoSusep = Digits(sg.CodigoSusep)
		},
		NaturalKey: func(sg *models.Seguradora) (string, string) { return "cnpj", sg.CNPJ },
		Validate: func(sg *models.Seguradora) error {
			if len(sg.CNPJ) != 14 {
				return apperr.Validation("cnpj deve conter 14 dígitos")
			}
			if sg.RazaoSocial == "" {
				return apperr.Validation("razão social obrigatória")
			}
			return nil
		},
		SearchFilter: func(q *gorm.DB, term string) *gorm.DB {
			like := "%" + term + "%"
			return q.Where("cnpj LIKE ? OR LOWER(razao_social) LIKE LOWER(?)", like, like)
		},
		SortColumns: []string{"razao_social", "id"},
		DeleteGuard: func(tx *gorm.DB, sg *models.Seguradora) error {
			n, err := guardCount(tx, "seguradora_id = ?", sg.ID)
			if err != nil {
				return apperr.Persistence(err)
			}
			if n > 0 {
				return apperr.Conflict("seguradora possui manifestos vinculados e não pode ser removida")
			}
			return nil
		},
	})
}

func NewMunicipioRepository(db *gorm.DB) *Repository[models.Municipio, *models.Municipio] {
	return NewRepository(db, Hooks[models.Municipio, *models.Municipio]{
		Resource: "município",
		Normalize: func(mu *models.Municipio) {
			mu.CodigoIBGE = Digits(mu.CodigoIBGE)
			mu.UF = UF(mu.UF)
		},
		NaturalKey: func(mu *models.Municipio) (string, string) { return "codigo_ibge", mu.CodigoIBGE },
		Validate: func(mu *models.Municipio) error {
			if len(mu.CodigoIBGE) != 7 {
				return apperr.Validation("código IBGE deve conter 7 dígitos")
			}
			if mu.Nome == "" || len(mu.UF) != 2 {
				return apperr.Validation("nome e UF obrigatórios")
			}
			return nil
		},
		SearchFilter: func(q *gorm.DB, term string) *gorm.DB {
			like := "%" + term + "%"
			return q.Where("codigo_ibge LIKE ? OR LOWER(nome) LIKE LOWER(?)", like, like)
		},
		SortColumns: []string{"nome", "codigo_ibge", "id"},
		DeleteGuard: func(tx *gorm.DB, mu *models.Municipio) error {
			var n int64
			if err := tx.Model(&models.DocumentoFiscal{}).Where("municipio_descarga_codigo = ?", mu.CodigoIBGE).Count(&n).Error; err != nil {
				return apperr.Persistence(err)
			}
			if n > 0 {
				return apperr.Conflict("município possui documentos fiscais vinculados e não pode ser removido")
			}
			return nil
		},
	})
}
