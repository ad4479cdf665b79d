package webhooks

import (
	"crypto/subtle"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ledgersur/ledgersur/internal/platform/httpx"
)

const maxPayloadBytes = 1 << 20

// Handler receives external order events. Authentication is a shared secret
// header compared in constant time.
type Handler struct {
	logger  *slog.Logger
	service *Service
	secret  string
}

func NewHandler(logger *slog.Logger, service *Service, secret string) *Handler {
	return &Handler{logger: logger, service: service, secret: secret}
}

// MountRoutes registers the webhook endpoint.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/orders", h.ingestOrder)
}

func (h *Handler) ingestOrder(w http.ResponseWriter, r *http.Request) {
	provided := r.Header.Get("X-Webhook-Secret")
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(h.secret)) != 1 {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid webhook secret")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "unreadable body")
		return
	}

	result, err := h.service.Ingest(r.Context(), body)
	if err != nil {
		if errors.Is(err, ErrInvalidPayload) {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
			return
		}
		h.logger.Error("webhook ingest", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "event stored, processing failed; re-POST to retry")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"duplicated": result.Duplicated,
		"data": map[string]any{
			"factura_id":             result.FacturaID,
			"numero_factura":         result.NumeroFactura,
			"cliente_id":             result.ClienteID,
			"comisiones_registradas": result.ComisionesRegistradas,
		},
	})
}
