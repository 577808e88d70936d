package sefaz

import (
	"time"

	"github.com/fretefacil/mdfe-backend/internal/models"
)

// Payload is the structured manifest description handed to the engine. It is
// built exclusively from the manifest's snapshot columns, never from the live
// registry rows.
type Payload struct {
	Ambiente    int       `json:"ambiente"` // 1 produção, 2 homologação
	Serie       int       `json:"serie"`
	Numero      int       `json:"numero"`
	DataEmissao time.Time `json:"dataEmissao"`
	UFIni       string    `json:"ufIni"`
	UFFim       string    `json:"ufFim"`
	PesoBruto   float64   `json:"pesoBrutoTotal"`
	ValorTotal  float64   `json:"valorTotal"`

	Emitente   PayloadEmitente   `json:"emitente"`
	Veiculo    PayloadVeiculo    `json:"veiculoTracao"`
	Condutores []PayloadCondutor `json:"condutores"`
	Reboques   []PayloadReboque  `json:"reboques,omitempty"`

	Percurso             []string            `json:"percurso,omitempty"`
	MunicipiosCarga      []PayloadMunicipio  `json:"municipiosCarregamento,omitempty"`
	Documentos           []PayloadDocumento  `json:"documentos"`
	Contratantes         []string            `json:"contratantes,omitempty"`
	Seguro               *PayloadSeguro      `json:"seguro,omitempty"`
	ComponentesPagamento []PayloadComponente `json:"componentesPagamento,omitempty"`
	ValesPedagio         []PayloadVale       `json:"valesPedagio,omitempty"`
	SemValePedagio       bool                `json:"semValePedagio"`
	ValorContrato        float64             `json:"valorContrato,omitempty"`
}

type PayloadEmitente struct {
	CNPJ            string `json:"cnpj"`
	IE              string `json:"ie"`
	RazaoSocial     string `json:"razaoSocial"`
	NomeFantasia    string `json:"nomeFantasia,omitempty"`
	Logradouro      string `json:"logradouro"`
	Numero          string `json:"numero"`
	Bairro          string `json:"bairro"`
	CodigoMunicipio string `json:"codigoMunicipio"`
	NomeMunicipio   string `json:"nomeMunicipio"`
	CEP             string `json:"cep"`
	UF              string `json:"uf"`
}

type PayloadVeiculo struct {
	Placa          string `json:"placa"`
	TaraKG         int    `json:"taraKg"`
	CapacidadeKG   int    `json:"capacidadeKg,omitempty"`
	TipoRodado     string `json:"tipoRodado"`
	TipoCarroceria string `json:"tipoCarroceria"`
	UF             string `json:"uf"`
}

type PayloadCondutor struct {
	Nome string `json:"nome"`
	CPF  string `json:"cpf"`
}

type PayloadReboque struct {
	Placa  string `json:"placa"`
	TaraKG int    `json:"taraKg"`
}

type PayloadMunicipio struct {
	Codigo string `json:"codigo"`
	Nome   string `json:"nome"`
}

type PayloadDocumento struct {
	Tipo              string            `json:"tipo"`
	Chave             string            `json:"chave"`
	MunicipioDescarga PayloadMunicipio  `json:"municipioDescarga"`
	Unidades          []PayloadUnidade  `json:"unidadesTransporte,omitempty"`
	Perigosos         []PayloadPerigoso `json:"produtosPerigosos,omitempty"`
}

type PayloadUnidade struct {
	TipoUnidade   string         `json:"tipoUnidade"`
	Identificacao string         `json:"identificacao"`
	Lacres        []string       `json:"lacres,omitempty"`
	Cargas        []PayloadCarga `json:"unidadesCarga,omitempty"`
}

type PayloadCarga struct {
	TipoUnidade   string   `json:"tipoUnidade"`
	Identificacao string   `json:"identificacao"`
	Lacres        []string `json:"lacres,omitempty"`
}

type PayloadPerigoso struct {
	NumeroONU       string `json:"numeroOnu"`
	NomeApropriado  string `json:"nomeApropriado,omitempty"`
	ClasseRisco     string `json:"classeRisco"`
	GrupoEmbalagem  string `json:"grupoEmbalagem,omitempty"`
	QuantidadeTotal string `json:"quantidadeTotal"`
}

type PayloadSeguro struct {
	Responsavel string   `json:"responsavel"`
	CNPJ        string   `json:"cnpjSeguradora"`
	RazaoSocial string   `json:"razaoSocial"`
	Apolice     string   `json:"apolice"`
	Averbacoes  []string `json:"averbacoes,omitempty"`
}

type PayloadComponente struct {
	Tipo  string  `json:"tipo"`
	Valor float64 `json:"valor"`
}

type PayloadVale struct {
	CNPJFornecedor string  `json:"cnpjFornecedor"`
	CNPJPagador    string  `json:"cnpjPagador,omitempty"`
	NumeroCompra   string  `json:"numeroCompra"`
	Valor          float64 `json:"valor"`
}

// BuildPayload translates a manifest and its attached fiscal documents into
// the engine's structured request. Pure translation, no gating.
func BuildPayload(ambiente int, m *models.MDFe, docs []models.DocumentoFiscal) Payload {
	p := Payload{
		Ambiente:    ambiente,
		Serie:       m.Serie,
		Numero:      m.NumeroMdfe,
		DataEmissao: m.DataEmissao,
		UFIni:       m.UFIni,
		UFFim:       m.UFFim,
		PesoBruto:   m.PesoBruto,
		ValorTotal:  m.ValorTotal,
		Emitente: PayloadEmitente{
			CNPJ:            m.EmitCNPJ,
			IE:              m.EmitIE,
			RazaoSocial:     m.EmitRazaoSocial,
			NomeFantasia:    m.EmitNomeFantasia,
			Logradouro:      m.EmitLogradouro,
			Numero:          m.EmitNumero,
			Bairro:          m.EmitBairro,
			CodigoMunicipio: m.EmitCodigoMunicipio,
			NomeMunicipio:   m.EmitNomeMunicipio,
			CEP:             m.EmitCEP,
			UF:              m.EmitUF,
		},
		Veiculo: PayloadVeiculo{
			Placa:          m.VeiculoPlaca,
			TaraKG:         m.VeiculoTaraKG,
			CapacidadeKG:   m.VeiculoCapacidadeKG,
			TipoRodado:     m.VeiculoTipoRodado,
			TipoCarroceria: m.VeiculoTipoCarroceria,
			UF:             m.VeiculoUF,
		},
		Percurso:       m.PercursoUFs(),
		SemValePedagio: m.SemValePedagio,
		ValorContrato:  m.ValorContrato,
	}

	p.Condutores = append(p.Condutores, PayloadCondutor{Nome: m.CondutorNome, CPF: m.CondutorCPF})
	for _, cd := range m.Condutores {
		p.Condutores = append(p.Condutores, PayloadCondutor{Nome: cd.Nome, CPF: cd.CPF})
	}
	for _, rb := range m.Reboques {
		p.Reboques = append(p.Reboques, PayloadReboque{Placa: rb.Placa, TaraKG: rb.TaraKG})
	}
	for _, mu := range m.CarregamentoRefs() {
		p.MunicipiosCarga = append(p.MunicipiosCarga, PayloadMunicipio{Codigo: mu.Codigo, Nome: mu.Nome})
	}
	if m.ContratanteID != nil {
		p.Contratantes = append(p.Contratantes, m.ContratanteDocumento)
	}
	if m.SeguradoraCNPJ != "" {
		p.Seguro = &PayloadSeguro{
			Responsavel: m.ResponsavelSeguro,
			CNPJ:        m.SeguradoraCNPJ,
			RazaoSocial: m.SeguradoraRazaoSocial,
			Apolice:     m.NumeroApolice,
			Averbacoes:  m.AverbacoesList(),
		}
	}
	for _, cp := range m.Componentes() {
		p.ComponentesPagamento = append(p.ComponentesPagamento, PayloadComponente{Tipo: cp.Tipo, Valor: cp.Valor})
	}
	for _, vp := range m.Vales() {
		p.ValesPedagio = append(p.ValesPedagio, PayloadVale{
			CNPJFornecedor: vp.CNPJFornecedor,
			CNPJPagador:    vp.CNPJPagador,
			NumeroCompra:   vp.NumeroCompra,
			Valor:          vp.Valor,
		})
	}
	for _, d := range docs {
		pd := PayloadDocumento{
			Tipo:  d.Tipo,
			Chave: d.Chave,
			MunicipioDescarga: PayloadMunicipio{
				Codigo: d.MunicipioDescargaCodigo,
				Nome:   d.MunicipioDescargaNome,
			},
		}
		for _, u := range d.Unidades {
			pu := PayloadUnidade{TipoUnidade: u.TipoUnidade, Identificacao: u.Identificacao}
			for _, l := range u.Lacres {
				pu.Lacres = append(pu.Lacres, l.Numero)
			}
			for _, uc := range u.Unidades {
				pc := PayloadCarga{TipoUnidade: uc.TipoUnidade, Identificacao: uc.Identificacao}
				for _, l := range uc.Lacres {
					pc.Lacres = append(pc.Lacres, l.Numero)
				}
				pu.Cargas = append(pu.Cargas, pc)
			}
			pd.Unidades = append(pd.Unidades, pu)
		}
		for _, pp := range d.Perigosos {
			pd.Perigosos = append(pd.Perigosos, PayloadPerigoso{
				NumeroONU:       pp.NumeroONU,
				NomeApropriado:  pp.NomeApropriado,
				ClasseRisco:     pp.ClasseRisco,
				GrupoEmbalagem:  pp.GrupoEmbalagem,
				QuantidadeTotal: pp.QuantidadeTotal,
			})
		}
		p.Documentos = append(p.Documentos, pd)
	}
	return p
}
