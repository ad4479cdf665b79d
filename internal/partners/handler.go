package partners

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ledgersur/ledgersur/internal/platform/httpx"
	internalShared "github.com/ledgersur/ledgersur/internal/shared"
)

// Handler wires partner endpoints. The settlements route is mounted behind
// the service-token middleware by the router.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers partner CRUD routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/partners", h.upsertPartner)
	r.Get("/partners/{id}", h.getPartner)
	r.Get("/comisiones", h.listCommissions)
}

// MountSettlementRoutes registers the batch trigger.
func (h *Handler) MountSettlementRoutes(r chi.Router) {
	r.Post("/partners/settlements", h.runSettlements)
}

type upsertPartnerRequest struct {
	EmpresaID      int64   `json:"empresa_id" validate:"required"`
	Documento      string  `json:"documento" validate:"required"`
	RazonSocial    string  `json:"razon_social" validate:"required"`
	Email          string  `json:"email" validate:"omitempty,email"`
	ComisionPct    float64 `json:"comision_pct" validate:"gte=0,lte=100"`
	Frecuencia     string  `json:"frecuencia" validate:"omitempty,oneof=semanal quincenal mensual bimensual"`
	DiaFacturacion int     `json:"dia_facturacion" validate:"gte=0,lte=28"`
}

func (h *Handler) upsertPartner(w http.ResponseWriter, r *http.Request) {
	var req upsertPartnerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	partner, err := h.service.UpsertPartner(r.Context(), Partner{
		EmpresaID:      req.EmpresaID,
		Documento:      req.Documento,
		RazonSocial:    req.RazonSocial,
		Email:          req.Email,
		ComisionPct:    req.ComisionPct,
		Frecuencia:     BillingFrequency(req.Frecuencia),
		DiaFacturacion: req.DiaFacturacion,
		Activo:         true,
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, partner)
}

func (h *Handler) getPartner(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	partner, err := h.service.GetPartner(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, partner)
}

func (h *Handler) listCommissions(w http.ResponseWriter, r *http.Request) {
	empresaID, _ := strconv.ParseInt(r.URL.Query().Get("empresa_id"), 10, 64)
	partnerID, _ := strconv.ParseInt(r.URL.Query().Get("partner_id"), 10, 64)
	estado := CommissionState(r.URL.Query().Get("estado"))
	commissions, err := h.service.ListCommissions(r.Context(), empresaID, partnerID, estado)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"comisiones": commissions})
}

type runRequest struct {
	EmpresaID int64  `json:"empresaId" validate:"required"`
	PartnerID *int64 `json:"partnerId"`
	Forzar    bool   `json:"forzar"`
}

func (h *Handler) runSettlements(w http.ResponseWriter, r *http.Request) {
	var req runRequest
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
	result, err := h.service.Run(r.Context(), RunInput{
		EmpresaID: req.EmpresaID,
		PartnerID: req.PartnerID,
		Force:     req.Forzar,
		ActorID:   actor.ID,
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrPartnerNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, internalShared.ErrEmpresaRequired):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	default:
		h.logger.Error("partners handler", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
