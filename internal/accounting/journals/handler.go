package journals

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ledgersur/ledgersur/internal/accounting/shared"
	"github.com/ledgersur/ledgersur/internal/platform/httpx"
	internalShared "github.com/ledgersur/ledgersur/internal/shared"
)

// Handler wires ledger endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers HTTP routes for the ledger module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/journals", h.listJournals)
	r.Get("/journals/{id}", h.getJournal)
	r.Post("/journals", h.postJournal)
	r.Post("/journals/{id}/reverse", h.reverseJournal)
}

type postJournalRequest struct {
	EmpresaID int64  `json:"empresa_id" validate:"required"`
	Date      string `json:"fecha" validate:"required"`
	Memo      string `json:"descripcion" validate:"required"`
	Reference string `json:"referencia"`
	// Optional client idempotency key. Retries with the same origen_id
	// conflict instead of posting twice.
	OrigenID string `json:"origen_id" validate:"omitempty,uuid"`
	Lines    []struct {
		AccountCode string  `json:"cuenta" validate:"required"`
		Description string  `json:"detalle"`
		Debit       float64 `json:"debe"`
		Credit      float64 `json:"haber"`
	} `json:"movimientos" validate:"required,min=2,dive"`
}

func (h *Handler) listJournals(w http.ResponseWriter, r *http.Request) {
	empresaID, _ := strconv.ParseInt(r.URL.Query().Get("empresa_id"), 10, 64)
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page <= 0 {
		page = 1
	}
	perPage := 50
	entries, err := h.service.List(r.Context(), empresaID, perPage, (page-1)*perPage)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"asientos": entries, "page": page})
}

func (h *Handler) getJournal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) postJournal(w http.ResponseWriter, r *http.Request) {
	var req postJournalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "fecha must be YYYY-MM-DD")
		return
	}
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	sourceID := uuid.New()
	if req.OrigenID != "" {
		parsed, perr := uuid.Parse(req.OrigenID)
		if perr != nil {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "origen_id must be a UUID")
			return
		}
		sourceID = parsed
	}
	input := PostingInput{
		EmpresaID:    req.EmpresaID,
		Date:         date,
		Memo:         req.Memo,
		Reference:    req.Reference,
		SourceModule: "MANUAL",
		SourceID:     sourceID,
		ActorID:      actor.ID,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, PostingLineInput{
			AccountCode: line.AccountCode,
			Description: line.Description,
			Debit:       line.Debit,
			Credit:      line.Credit,
		})
	}
	entry, err := h.service.Post(r.Context(), input)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

type reverseRequest struct {
	Memo string `json:"descripcion"`
	Date string `json:"fecha"`
}

func (h *Handler) reverseJournal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	// Body is optional for reversals.
	var req reverseRequest
	_ = httpx.DecodeJSON(r, &req)
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	input := ReverseInput{EntryID: id, ActorID: actor.ID, Memo: req.Memo}
	if req.Date != "" {
		if parsed, perr := time.Parse("2006-01-02", req.Date); perr == nil {
			input.Date = parsed
		}
	}
	reversal, err := h.service.Reverse(r.Context(), input)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reversal)
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, shared.ErrJournalNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrUnbalanced),
		errors.Is(err, shared.ErrTooFewLines),
		errors.Is(err, shared.ErrMixedLine),
		errors.Is(err, shared.ErrNegativeAmount),
		errors.Is(err, shared.ErrAccountNotFound),
		errors.Is(err, shared.ErrAccountInactive),
		errors.Is(err, internalShared.ErrEmpresaRequired):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrInvalidPeriod),
		errors.Is(err, shared.ErrPeriodClosed),
		errors.Is(err, shared.ErrPeriodLocked),
		errors.Is(err, shared.ErrSourceAlreadyLinked),
		errors.Is(err, shared.ErrSourceConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("journals handler", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
