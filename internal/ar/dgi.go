package ar

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"
)

// DGIConfig carries the electronic-invoicing endpoint credentials. When the
// endpoint is empty the client runs in simulated mode and mints local CAEs.
type DGIConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// DGIResponse is the approval returned by the tax authority.
type DGIResponse struct {
	CAE         string  `json:"cae"`
	Vencimiento *string `json:"vencimiento,omitempty"`
	Estado      string  `json:"estado"`
	Mensaje     string  `json:"mensaje,omitempty"`
	Simulado    bool    `json:"simulado"`
}

// DGIClient submits invoices for electronic authorization.
type DGIClient struct {
	cfg    DGIConfig
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

func NewDGIClient(cfg DGIConfig, logger *slog.Logger) *DGIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &DGIClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
		now:    time.Now,
	}
}

type dgiRequest struct {
	Numero   string  `json:"numero"`
	RUT      string  `json:"rut,omitempty"`
	Fecha    string  `json:"fecha"`
	Moneda   string  `json:"moneda"`
	Subtotal float64 `json:"subtotal"`
	IVA      float64 `json:"iva"`
	Total    float64 `json:"total"`
}

// Submit sends the invoice to DGI. Without configured credentials it falls
// back to a simulated approval so the flow stays usable in dev environments.
func (c *DGIClient) Submit(ctx context.Context, inv SalesInvoice) (DGIResponse, error) {
	if c.cfg.Endpoint == "" || c.cfg.APIKey == "" {
		c.logger.Warn("dgi endpoint not configured, issuing simulated cae",
			slog.String("invoice", inv.Number))
		return c.simulate(inv), nil
	}

	body, err := json.Marshal(dgiRequest{
		Numero:   inv.Number,
		Fecha:    inv.Date.Format("2006-01-02"),
		Moneda:   inv.Currency,
		Subtotal: inv.Subtotal,
		IVA:      inv.IVA,
		Total:    inv.Total,
	})
	if err != nil {
		return DGIResponse{}, fmt.Errorf("ar: dgi marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+"/comprobantes", bytes.NewReader(body))
	if err != nil {
		return DGIResponse{}, fmt.Errorf("ar: dgi request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return DGIResponse{}, fmt.Errorf("ar: dgi submit %s: %w", inv.Number, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return DGIResponse{}, fmt.Errorf("ar: dgi submit %s: status %d", inv.Number, resp.StatusCode)
	}
	var out DGIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return DGIResponse{}, fmt.Errorf("ar: dgi decode: %w", err)
	}
	if out.CAE == "" {
		return DGIResponse{}, fmt.Errorf("ar: dgi rejected %s: %s", inv.Number, out.Mensaje)
	}
	return out, nil
}

func (c *DGIClient) simulate(inv SalesInvoice) DGIResponse {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000_000))
	var suffix int64
	if err == nil {
		suffix = n.Int64()
	}
	vto := c.now().AddDate(0, 0, 60).Format("2006-01-02")
	return DGIResponse{
		CAE:         fmt.Sprintf("SIM-%s-%09d", inv.Number, suffix),
		Vencimiento: &vto,
		Estado:      "aprobado",
		Mensaje:     "comprobante simulado",
		Simulado:    true,
	}
}
