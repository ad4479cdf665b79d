package partners

import (
	"errors"
	"time"
)

// BillingFrequency controls how often a partner is settled.
type BillingFrequency string

const (
	FrequencySemanal   BillingFrequency = "semanal"
	FrequencyQuincenal BillingFrequency = "quincenal"
	FrequencyMensual   BillingFrequency = "mensual"
	FrequencyBimensual BillingFrequency = "bimensual"
)

// CommissionState tracks whether a commission has been billed to the partner.
type CommissionState string

const (
	ComisionPendiente CommissionState = "pendiente"
	ComisionFacturada CommissionState = "facturada"
)

// PaymentState tracks whether the billed commission has been paid out.
type PaymentState string

const (
	PagoPendiente PaymentState = "pendiente"
	PagoPagado    PaymentState = "pagada"
)

// Partner is a marketplace counterpart settled on a billing schedule.
// Matched by documento (tax id) within the empresa.
type Partner struct {
	ID                 int64
	EmpresaID          int64
	Documento          string
	RazonSocial        string
	Email              string
	ComisionPct        float64
	Frecuencia         BillingFrequency
	DiaFacturacion     int
	ProximaFacturacion time.Time
	Activo             bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Commission links one sales-invoice line to a partner.
type Commission struct {
	ID              int64
	EmpresaID       int64
	PartnerID       int64
	FacturaID       int64
	FacturaLineaID  int64
	Porcentaje      float64
	BaseAmount      float64
	Amount          float64
	EstadoComision  CommissionState
	EstadoPago      PaymentState
	FacturaCompraID *int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RunResult reports one settlement run. Failing partners are recorded and do
// not abort the rest of the batch.
type RunResult struct {
	EmpresaID int64           `json:"empresa_id"`
	RanAt     time.Time       `json:"ejecutado_en"`
	Settled   []PartnerResult `json:"liquidados"`
	Skipped   []PartnerResult `json:"omitidos"`
	Failed    []PartnerResult `json:"fallidos"`
}

// PartnerResult is the per-partner outcome within a run.
type PartnerResult struct {
	PartnerID   int64   `json:"partner_id"`
	RazonSocial string  `json:"razon_social"`
	Invoice     string  `json:"factura,omitempty"`
	Total       float64 `json:"total,omitempty"`
	Commissions int     `json:"comisiones,omitempty"`
	Reason      string  `json:"motivo,omitempty"`
}

var (
	// ErrPartnerNotFound indicates a missing partner.
	ErrPartnerNotFound = errors.New("partners: partner not found")
	// ErrNothingToSettle indicates no pendiente commissions for the partner.
	ErrNothingToSettle = errors.New("partners: nothing to settle")
	// ErrNotDue indicates the partner's next billing date is in the future.
	ErrNotDue = errors.New("partners: settlement not due")
	// ErrNoUnpostedInvoice indicates every settlement invoice for the partner
	// already carries its journal entry.
	ErrNoUnpostedInvoice = errors.New("partners: no unposted settlement invoice")
)
