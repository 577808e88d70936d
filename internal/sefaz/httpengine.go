package sefaz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// HTTPEngine calls the signing/transmission service over HTTP. Calls share a
// circuit breaker so a flapping engine fails fast instead of piling up
// timed-out requests.
type HTTPEngine struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewHTTPEngine(baseURL string, timeout time.Duration) *HTTPEngine {
	settings := gobreaker.Settings{
		Name:    "sefaz-engine",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &HTTPEngine{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (e *HTTPEngine) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	_, err = e.breaker.Execute(func() (any, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(payload))
		if reqErr != nil {
			return nil, reqErr
		}
		req.Header.Set("Content-Type", "application/json")
		resp, doErr := e.client.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		defer resp.Body.Close()
		raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if readErr != nil {
			return nil, readErr
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("engine HTTP %d: %s", resp.StatusCode, string(raw))
		}
		if out != nil {
			if decErr := json.Unmarshal(raw, out); decErr != nil {
				return nil, fmt.Errorf("decode engine response: %w", decErr)
			}
		}
		return nil, nil
	})
	return err
}

func (e *HTTPEngine) Assinar(ctx context.Context, p Payload) (SignedDocument, error) {
	var doc SignedDocument
	if err := e.post(ctx, "/mdfe/assinar", p, &doc); err != nil {
		return SignedDocument{}, err
	}
	return doc, nil
}

func (e *HTTPEngine) Transmitir(ctx context.Context, doc SignedDocument, sincrono bool) (*Retorno, error) {
	var ret Retorno
	req := struct {
		SignedDocument
		Sincrono bool `json:"sincrono"`
	}{doc, sincrono}
	if err := e.post(ctx, "/mdfe/transmitir", req, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

func (e *HTTPEngine) ConsultarPorChave(ctx context.Context, chave string) (*Retorno, error) {
	var ret Retorno
	if err := e.post(ctx, "/mdfe/consultar", map[string]string{"chaveAcesso": chave}, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

func (e *HTTPEngine) ConsultarPorRecibo(ctx context.Context, recibo string) (*Retorno, error) {
	var ret Retorno
	if err := e.post(ctx, "/mdfe/consultar", map[string]string{"recibo": recibo}, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

func (e *HTTPEngine) Cancelar(ctx context.Context, chave, protocolo, justificativa string) (*Retorno, error) {
	var ret Retorno
	req := map[string]string{"chaveAcesso": chave, "protocolo": protocolo, "justificativa": justificativa}
	if err := e.post(ctx, "/mdfe/cancelar", req, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

func (e *HTTPEngine) Encerrar(ctx context.Context, chave, protocolo, codigoMunicipio string, data time.Time) (*Retorno, error) {
	var ret Retorno
	req := map[string]string{
		"chaveAcesso":      chave,
		"protocolo":        protocolo,
		"codigoMunicipio":  codigoMunicipio,
		"dataEncerramento": data.Format(time.RFC3339),
	}
	if err := e.post(ctx, "/mdfe/encerrar", req, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

var _ Engine = (*HTTPEngine)(nil)
