package reports

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ledgersur/ledgersur/internal/platform/httpx"
)

// Handler serves trial balance reports. Concurrent identical requests
// collapse into one computation via singleflight.
type Handler struct {
	logger  *slog.Logger
	service *Service
	group   singleflight.Group
	printer *message.Printer
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
		printer: message.NewPrinter(language.Spanish),
	}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/reports/trial-balance", h.trialBalance)
}

type tbRowPayload struct {
	Codigo   string  `json:"codigo"`
	Nombre   string  `json:"nombre"`
	Tipo     string  `json:"tipo"`
	Nivel    int     `json:"nivel"`
	Inicial  float64 `json:"saldo_inicial"`
	Debe     float64 `json:"debe"`
	Haber    float64 `json:"haber"`
	Final    float64 `json:"saldo_final"`
	FinalFmt string  `json:"saldo_final_fmt"`
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	empresaID, _ := strconv.ParseInt(r.URL.Query().Get("empresa_id"), 10, 64)
	level, _ := strconv.Atoi(r.URL.Query().Get("nivel"))
	req := Request{EmpresaID: empresaID, Level: level}
	if v := r.URL.Query().Get("desde"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "desde must be YYYY-MM-DD")
			return
		}
		req.From = parsed
	}
	if v := r.URL.Query().Get("hasta"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "hasta must be YYYY-MM-DD")
			return
		}
		req.To = parsed
	}

	key := fmt.Sprintf("tb:%d:%s:%s:%d", req.EmpresaID, req.From.Format("2006-01-02"), req.To.Format("2006-01-02"), req.Level)
	// The computation is shared across coalesced requests, so it must not die
	// with the initiating request's context.
	sfCtx := context.WithoutCancel(r.Context())
	result, err, _ := h.group.Do(key, func() (any, error) {
		return h.service.TrialBalance(sfCtx, req)
	})
	if err != nil {
		h.logger.Error("trial balance", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	tb := result.(TrialBalance)

	rows := make([]tbRowPayload, 0, len(tb.Rows))
	for _, row := range tb.Rows {
		rows = append(rows, tbRowPayload{
			Codigo:   row.Code,
			Nombre:   row.Name,
			Tipo:     string(row.Type),
			Nivel:    row.Level,
			Inicial:  row.Opening,
			Debe:     row.Debit,
			Haber:    row.Credit,
			Final:    row.Closing,
			FinalFmt: h.printer.Sprintf("%.2f", row.Closing),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items": rows,
		"totales": map[string]any{
			"saldo_inicial":     tb.TotalOpening,
			"debe":              tb.TotalDebit,
			"haber":             tb.TotalCredit,
			"saldo_final":       tb.TotalClosing,
			"saldo_final_debe":  tb.TotalClosingDebit,
			"saldo_final_haber": tb.TotalClosingCredit,
		},
	})
}
