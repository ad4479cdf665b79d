package ap

import (
	"errors"
	"time"
)

// InvoiceStatus enumerates purchase invoice lifecycle values.
type InvoiceStatus string

const (
	StatusBorrador  InvoiceStatus = "borrador"
	StatusPendiente InvoiceStatus = "pendiente"
	StatusPagada    InvoiceStatus = "pagada"
	StatusAnulada   InvoiceStatus = "anulada"
)

// PayableStatus tracks the outstanding balance state.
type PayableStatus string

const (
	PayablePendiente PayableStatus = "pendiente"
	PayableParcial   PayableStatus = "parcial"
	PayableCancelado PayableStatus = "cancelado"
)

// PurchaseInvoice models a factura de compra header. Settlement runs create
// these for partners; manual entry covers other suppliers.
type PurchaseInvoice struct {
	ID                 int64
	EmpresaID          int64
	Number             string
	ProveedorNombre    string
	ProveedorDocumento string
	PartnerID          *int64
	Date               time.Time
	DueDate            time.Time
	Currency           string
	Subtotal           float64
	IVA                float64
	Total              float64
	Status             InvoiceStatus
	JournalEntryID     *int64
	CreatedBy          int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Lines              []PurchaseInvoiceLine
}

// PurchaseInvoiceLine is one item of a factura de compra.
type PurchaseInvoiceLine struct {
	ID          int64
	InvoiceID   int64
	LineNo      int
	Description string
	Subtotal    float64
	IVA         float64
	Total       float64
}

// Payable is the open balance carried in cuentas_por_pagar for one invoice.
type Payable struct {
	ID          int64
	EmpresaID   int64
	InvoiceID   int64
	Saldo       float64
	Estado      PayableStatus
	Vencimiento time.Time
	UpdatedAt   time.Time
}

// Payment is one registered disbursement against a payable.
type Payment struct {
	ID             int64
	EmpresaID      int64
	Number         string
	InvoiceID      int64
	Monto          float64
	FechaPago      time.Time
	TipoPago       string
	CuentaBancID   *int64
	Referencia     string
	Observaciones  string
	JournalEntryID *int64
	CreatedBy      int64
	CreatedAt      time.Time
}

var (
	// ErrInvoiceNotFound indicates a missing purchase invoice.
	ErrInvoiceNotFound = errors.New("ap: invoice not found")
	// ErrPayableNotFound indicates a missing payable row.
	ErrPayableNotFound = errors.New("ap: payable not found")
	// ErrPaymentNotFound indicates a missing payment row.
	ErrPaymentNotFound = errors.New("ap: payment not found")
	// ErrInvalidStatus indicates the operation does not apply in the current state.
	ErrInvalidStatus = errors.New("ap: invalid status for operation")
	// ErrOverpayment indicates a payment exceeding the outstanding balance.
	ErrOverpayment = errors.New("ap: payment exceeds outstanding balance")
	// ErrInvalidAmount indicates a non-positive payment amount.
	ErrInvalidAmount = errors.New("ap: amount must be positive")
)
