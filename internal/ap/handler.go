package ap

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ledgersur/ledgersur/internal/accounting/journals"
	"github.com/ledgersur/ledgersur/internal/platform/httpx"
	internalShared "github.com/ledgersur/ledgersur/internal/shared"
)

// Handler wires AP endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers HTTP routes for accounts payable.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/facturas-compra", h.listInvoices)
	r.Get("/facturas-compra/{id}", h.getInvoice)
	r.Post("/facturas-compra", h.createInvoice)
	r.Post("/facturas-compra/{id}/confirmar", h.confirmInvoice)
	r.Post("/payables/{id}/pay", h.payPayable)
	r.Post("/pagos/{id}/repost", h.repostPayment)
	r.Get("/payables", h.listOpenPayables)
}

type createInvoiceRequest struct {
	EmpresaID          int64   `json:"empresa_id" validate:"required"`
	ProveedorNombre    string  `json:"proveedor_nombre" validate:"required"`
	ProveedorDocumento string  `json:"proveedor_documento"`
	PartnerID          *int64  `json:"partner_id"`
	Date               string  `json:"fecha"`
	DueDate            string  `json:"vencimiento"`
	Currency           string  `json:"moneda"`
	Subtotal           float64 `json:"subtotal" validate:"gte=0"`
	IVA                float64 `json:"iva" validate:"gte=0"`
	Lines              []struct {
		Description string  `json:"descripcion" validate:"required"`
		Subtotal    float64 `json:"subtotal" validate:"gte=0"`
		IVA         float64 `json:"iva" validate:"gte=0"`
	} `json:"lineas" validate:"omitempty,dive"`
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	input := CreateInvoiceInput{
		EmpresaID:          req.EmpresaID,
		ProveedorNombre:    req.ProveedorNombre,
		ProveedorDocumento: req.ProveedorDocumento,
		PartnerID:          req.PartnerID,
		Currency:           req.Currency,
		Subtotal:           req.Subtotal,
		IVA:                req.IVA,
		ActorID:            actor.ID,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, CreateInvoiceLineInput{
			Description: line.Description,
			Subtotal:    line.Subtotal,
			IVA:         line.IVA,
		})
	}
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "fecha must be YYYY-MM-DD")
			return
		}
		input.Date = parsed
	}
	if req.DueDate != "" {
		parsed, err := time.Parse("2006-01-02", req.DueDate)
		if err != nil {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "vencimiento must be YYYY-MM-DD")
			return
		}
		input.DueDate = parsed
	}
	invoice, err := h.service.CreateInvoice(r.Context(), input)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, invoice)
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	empresaID, _ := strconv.ParseInt(r.URL.Query().Get("empresa_id"), 10, 64)
	status := InvoiceStatus(r.URL.Query().Get("estado"))
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page <= 0 {
		page = 1
	}
	perPage := 50
	invoices, err := h.service.ListInvoices(r.Context(), empresaID, status, perPage, (page-1)*perPage)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"facturas": invoices, "page": page})
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	invoice, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) confirmInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	invoice, err := h.service.ConfirmInvoice(r.Context(), id, actor.ID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

type payRequest struct {
	Monto         float64 `json:"monto" validate:"required,gt=0"`
	FechaPago     string  `json:"fecha_pago"`
	TipoPago      string  `json:"tipo_pago" validate:"required,oneof=efectivo transferencia tarjeta"`
	CuentaBancID  *int64  `json:"cuenta_bancaria_id"`
	Referencia    string  `json:"referencia"`
	Observaciones string  `json:"observaciones"`
}

func (h *Handler) payPayable(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	var req payRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	input := PayInput{
		PayableID:     id,
		Monto:         req.Monto,
		TipoPago:      journals.PaymentMethod(req.TipoPago),
		CuentaBancID:  req.CuentaBancID,
		Referencia:    req.Referencia,
		Observaciones: req.Observaciones,
		ActorID:       actor.ID,
	}
	if req.FechaPago != "" {
		parsed, perr := time.Parse("2006-01-02", req.FechaPago)
		if perr != nil {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "fecha_pago must be YYYY-MM-DD")
			return
		}
		input.FechaPago = parsed
	}
	payment, err := h.service.PayPayable(r.Context(), input)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) repostPayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	payment, err := h.service.RepostPayment(r.Context(), id, actor.ID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) listOpenPayables(w http.ResponseWriter, r *http.Request) {
	empresaID, _ := strconv.ParseInt(r.URL.Query().Get("empresa_id"), 10, 64)
	payables, err := h.service.ListOpenPayables(r.Context(), empresaID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"cuentas_por_pagar": payables})
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvoiceNotFound), errors.Is(err, ErrPayableNotFound), errors.Is(err, ErrPaymentNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, internalShared.ErrEmpresaRequired):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrOverpayment):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("ap handler", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
