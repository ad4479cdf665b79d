package ar

import (
	"errors"
	"time"
)

// InvoiceStatus enumerates sales invoice lifecycle values.
type InvoiceStatus string

const (
	StatusBorrador  InvoiceStatus = "borrador"
	StatusPendiente InvoiceStatus = "pendiente"
	StatusPagada    InvoiceStatus = "pagada"
	StatusAnulada   InvoiceStatus = "anulada"
)

// Cliente is the customer counterpart, matched by RUT within an empresa.
type Cliente struct {
	ID          int64
	EmpresaID   int64
	RUT         string
	RazonSocial string
	Email       string
	Direccion   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SalesInvoice models a factura de venta header.
type SalesInvoice struct {
	ID             int64
	EmpresaID      int64
	Number         string
	ClienteID      int64
	Date           time.Time
	DueDate        time.Time
	Currency       string
	Subtotal       float64
	IVA            float64
	Total          float64
	Status         InvoiceStatus
	CAE            *string
	CAEVencimiento *time.Time
	JournalEntryID *int64
	NotaCreditoID  *int64
	CreatedBy      int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Lines          []SalesInvoiceLine
}

// SalesInvoiceLine is one item of a factura de venta.
type SalesInvoiceLine struct {
	ID          int64
	InvoiceID   int64
	LineNo      int
	Description string
	Quantity    float64
	UnitPrice   float64
	IVAPct      float64
	Subtotal    float64
	IVA         float64
	Total       float64
	CreatedAt   time.Time
}

// CreditNote reverses exactly one sales invoice in full. Totals are the
// exact negation of the referenced invoice.
type CreditNote struct {
	ID             int64
	EmpresaID      int64
	Number         string
	InvoiceID      int64
	Date           time.Time
	Subtotal       float64
	IVA            float64
	Total          float64
	JournalEntryID *int64
	CreatedBy      int64
	CreatedAt      time.Time
}

var (
	// ErrInvoiceNotFound indicates a missing invoice.
	ErrInvoiceNotFound = errors.New("ar: invoice not found")
	// ErrClienteNotFound indicates a missing customer.
	ErrClienteNotFound = errors.New("ar: cliente not found")
	// ErrInvalidStatus indicates the operation does not apply in the current state.
	ErrInvalidStatus = errors.New("ar: invalid status for operation")
	// ErrAlreadyCredited indicates the invoice was already reversed.
	ErrAlreadyCredited = errors.New("ar: invoice already has a credit note")
	// ErrNoLines indicates an invoice without items.
	ErrNoLines = errors.New("ar: at least one line is required")
)
