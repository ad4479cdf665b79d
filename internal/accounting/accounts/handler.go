package accounts

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ledgersur/ledgersur/internal/platform/httpx"
)

// Handler wires chart-of-accounts endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers chart-of-accounts routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts", h.list)
	r.Post("/accounts", h.create)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	empresaID, _ := strconv.ParseInt(r.URL.Query().Get("empresa_id"), 10, 64)
	list, err := h.service.List(r.Context(), empresaID)
	if err != nil {
		h.logger.Error("list accounts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"cuentas": list})
}

type createAccountRequest struct {
	EmpresaID  int64   `json:"empresa_id" validate:"required"`
	Code       string  `json:"codigo" validate:"required"`
	Name       string  `json:"nombre" validate:"required"`
	Type       string  `json:"tipo" validate:"required,oneof=ACTIVO PASIVO PATRIMONIO INGRESO GASTO"`
	ParentCode *string `json:"codigo_padre"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.Create(r.Context(), Account{
		EmpresaID:  req.EmpresaID,
		Code:       req.Code,
		Name:       req.Name,
		Type:       AccountType(req.Type),
		ParentCode: req.ParentCode,
		IsActive:   true,
	})
	if err != nil {
		h.logger.Error("create account", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}
