// Package sefaz talks to the external signing/transmission engine. It only
// translates between the manifest's internal shape and the engine's
// structured format; whether a manifest is allowed to be signed, transmitted,
// cancelled or closed is decided by the lifecycle service, never here.
package sefaz

import (
	"context"
	"time"
)

// Status codes returned by the fiscal authority.
const (
	CStatAutorizado = 100
	CStatCancelado  = 101
	CStatEncerrado  = 132
)

// SignedDocument is the signed XML produced by the engine.
type SignedDocument struct {
	XML string `json:"xml"`
}

// Retorno is the engine's answer to a transmission, query, cancel or close
// call. XMotivo carries the authority's raw reason text and is surfaced to
// callers untouched.
type Retorno struct {
	CStat       int    `json:"cStat"`
	XMotivo     string `json:"xMotivo"`
	Protocolo   string `json:"protocolo,omitempty"`
	Recibo      string `json:"recibo,omitempty"`
	ChaveAcesso string `json:"chaveAcesso,omitempty"`
}

// Autorizado reports whether the authority accepted the document.
func (r *Retorno) Autorizado() bool { return r.CStat == CStatAutorizado }

// Engine is the narrow contract the lifecycle service depends on. Every call
// is a blocking network round-trip and must run outside any open database
// transaction.
type Engine interface {
	Assinar(ctx context.Context, p Payload) (SignedDocument, error)
	Transmitir(ctx context.Context, doc SignedDocument, sincrono bool) (*Retorno, error)
	ConsultarPorChave(ctx context.Context, chave string) (*Retorno, error)
	ConsultarPorRecibo(ctx context.Context, recibo string) (*Retorno, error)
	Cancelar(ctx context.Context, chave, protocolo, justificativa string) (*Retorno, error)
	Encerrar(ctx context.Context, chave, protocolo, codigoMunicipio string, data time.Time) (*Retorno, error)
}

// Renderer produces the printable DAMDFE for an authorized manifest.
// Rendering is an external concern; a nil renderer disables the endpoint.
type Renderer interface {
	Render(ctx context.Context, doc SignedDocument) ([]byte, error)
}
