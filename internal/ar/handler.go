package ar

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

// Handler wires AR endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers HTTP routes for accounts receivable.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/clientes", h.upsertCliente)
	r.Get("/facturas-venta", h.listInvoices)
	r.Get("/facturas-venta/{id}", h.getInvoice)
	r.Post("/facturas-venta", h.createInvoice)
	r.Post("/facturas-venta/{id}/confirmar", h.confirmInvoice)
	r.Post("/facturas-venta/{id}/pagos", h.registerPayment)
	r.Post("/facturas-venta/{id}/nota-credito", h.issueCreditNote)
	r.Post("/facturas-venta/{id}/dgi", h.submitDGI)
}

type upsertClienteRequest struct {
	EmpresaID   int64  `json:"empresa_id" validate:"required"`
	RUT         string `json:"rut" validate:"required"`
	RazonSocial string `json:"razon_social" validate:"required"`
	Email       string `json:"email" validate:"omitempty,email"`
	Direccion   string `json:"direccion"`
}

func (h *Handler) upsertCliente(w http.ResponseWriter, r *http.Request) {
	var req upsertClienteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	cliente, err := h.service.UpsertCliente(r.Context(), Cliente{
		EmpresaID:   req.EmpresaID,
		RUT:         req.RUT,
		RazonSocial: req.RazonSocial,
		Email:       req.Email,
		Direccion:   req.Direccion,
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cliente)
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

type createInvoiceRequest struct {
	EmpresaID int64  `json:"empresa_id" validate:"required"`
	ClienteID int64  `json:"cliente_id" validate:"required"`
	Date      string `json:"fecha"`
	DueDate   string `json:"vencimiento"`
	Currency  string `json:"moneda"`
	Lines     []struct {
		Description string  `json:"descripcion" validate:"required"`
		Quantity    float64 `json:"cantidad" validate:"required,gt=0"`
		UnitPrice   float64 `json:"precio_unitario" validate:"gte=0"`
		IVAPct      float64 `json:"iva_pct" validate:"gte=0"`
	} `json:"lineas" validate:"required,min=1,dive"`
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
		EmpresaID: req.EmpresaID,
		ClienteID: req.ClienteID,
		Currency:  req.Currency,
		ActorID:   actor.ID,
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
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, CreateInvoiceLineInput{
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			IVAPct:      line.IVAPct,
		})
	}
	invoice, err := h.service.CreateInvoice(r.Context(), input)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, invoice)
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

type paymentRequest struct {
	Amount float64 `json:"monto" validate:"required,gt=0"`
	Method string  `json:"tipo_pago" validate:"required,oneof=efectivo transferencia tarjeta"`
	Date   string  `json:"fecha_pago"`
}

func (h *Handler) registerPayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	var req paymentRequest
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
	input := PaymentInput{
		InvoiceID: id,
		Amount:    req.Amount,
		Method:    journals.PaymentMethod(req.Method),
		ActorID:   actor.ID,
	}
	if req.Date != "" {
		if parsed, perr := time.Parse("2006-01-02", req.Date); perr == nil {
			input.Date = parsed
		}
	}
	invoice, err := h.service.RegisterPayment(r.Context(), input)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) issueCreditNote(w http.ResponseWriter, r *http.Request) {
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
	note, err := h.service.IssueCreditNote(r.Context(), id, actor.ID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, note)
}

func (h *Handler) submitDGI(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	resp, err := h.service.SubmitDGI(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvoiceNotFound), errors.Is(err, ErrClienteNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNoLines), errors.Is(err, internalShared.ErrEmpresaRequired):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrAlreadyCredited):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("ar handler", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
