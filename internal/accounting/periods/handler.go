package periods

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

// Handler wires fiscal year and period lifecycle endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers period lifecycle routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ejercicios", h.listFiscalYears)
	r.Post("/ejercicios", h.createFiscalYear)
	r.Get("/ejercicios/{id}/periodos", h.listPeriods)
	r.Post("/ejercicios/{id}/cerrar", h.closeFiscalYear)
	r.Post("/periodos/{id}/cerrar", h.closePeriod)
	r.Post("/periodos/{id}/reabrir", h.reopenPeriod)
	r.Get("/cierres", h.listClosureAudit)
}

type createFiscalYearRequest struct {
	EmpresaID int64 `json:"empresa_id" validate:"required"`
	Year      int   `json:"anio" validate:"required"`
}

func (h *Handler) createFiscalYear(w http.ResponseWriter, r *http.Request) {
	var req createFiscalYearRequest
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
	year, months, err := h.service.CreateFiscalYear(r.Context(), CreateFiscalYearInput{
		EmpresaID: req.EmpresaID,
		Year:      req.Year,
		ActorID:   actor.ID,
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"ejercicio": year, "periodos": months})
}

func (h *Handler) listFiscalYears(w http.ResponseWriter, r *http.Request) {
	empresaID, _ := strconv.ParseInt(r.URL.Query().Get("empresa_id"), 10, 64)
	years, err := h.service.ListFiscalYears(r.Context(), empresaID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ejercicios": years})
}

func (h *Handler) listPeriods(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	months, err := h.service.ListPeriods(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"periodos": months})
}

type closeRequest struct {
	Observations string `json:"observaciones"`
}

func (h *Handler) closePeriod(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	// Body is optional.
	var req closeRequest
	_ = httpx.DecodeJSON(r, &req)
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	period, err := h.service.ClosePeriod(r.Context(), CloseInput{
		PeriodID:     id,
		ActorID:      actor.ID,
		Observations: req.Observations,
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, period)
}

type reopenRequest struct {
	Reason       string `json:"motivo" validate:"required"`
	Observations string `json:"observaciones"`
}

func (h *Handler) reopenPeriod(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	var req reopenRequest
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
	period, err := h.service.ReopenPeriod(r.Context(), ReopenInput{
		PeriodID:     id,
		ActorID:      actor.ID,
		Reason:       req.Reason,
		Observations: req.Observations,
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, period)
}

func (h *Handler) closeFiscalYear(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	var req closeRequest
	_ = httpx.DecodeJSON(r, &req)
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	year, err := h.service.CloseFiscalYear(r.Context(), CloseFiscalYearInput{
		FiscalYearID: id,
		ActorID:      actor.ID,
		Observations: req.Observations,
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, year)
}

func (h *Handler) listClosureAudit(w http.ResponseWriter, r *http.Request) {
	empresaID, _ := strconv.ParseInt(r.URL.Query().Get("empresa_id"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := h.service.ListClosureAudit(r.Context(), empresaID, limit)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"cierres": rows})
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	var unconfirmed ErrUnconfirmedEntries
	switch {
	case errors.Is(err, ErrPeriodNotFound), errors.Is(err, ErrFiscalYearNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, internalShared.ErrEmpresaRequired),
		errors.Is(err, internalShared.ErrActorRequired),
		errors.Is(err, ErrReasonRequired):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	case errors.As(err, &unconfirmed),
		errors.Is(err, ErrNotOpen),
		errors.Is(err, ErrAlreadyOpen),
		errors.Is(err, ErrDefinitivelyClosed),
		errors.Is(err, ErrYearAlreadyExists),
		errors.Is(err, ErrPeriodsStillOpen):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("periods handler", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
