package handler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bank-cards/internal/export"
	"github.com/Dan9191/bank-cards/internal/middleware"
	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/repository"
	"github.com/Dan9191/bank-cards/internal/scheduler"
	"github.com/Dan9191/bank-cards/internal/service"
)

// ExpiryRunner is the part of the expiry scheduler exposed over HTTP
type ExpiryRunner interface {
	RunNow(ctx context.Context) int
	Status() scheduler.Status
}

type Handler struct {
	svc    *service.Service
	expiry ExpiryRunner
	log    *logrus.Logger
}

func NewHandler(svc *service.Service, expiry ExpiryRunner, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, expiry: expiry, log: log}
}

// NewRouter wires all routes behind request logging and JWT authentication
func NewRouter(h *Handler, jwtSecret string) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware(h.log))

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/").Subrouter()
	api.Use(middleware.AuthMiddleware(jwtSecret))
	api.HandleFunc("/transfers", h.CreateTransfer).Methods(http.MethodPost)
	api.HandleFunc("/transfers", h.ListTransfers).Methods(http.MethodGet)
	api.HandleFunc("/transfers/stats", h.Stats).Methods(http.MethodGet)
	api.HandleFunc("/transfers/export", h.ExportTransfers).Methods(http.MethodGet)
	api.HandleFunc("/transfers/{id:[0-9]+}", h.GetTransfer).Methods(http.MethodGet)
	api.HandleFunc("/cards", h.ListUsableCards).Methods(http.MethodGet)
	api.HandleFunc("/cards/{id:[0-9]+}", h.GetCard).Methods(http.MethodGet)
	api.HandleFunc("/cards/{id:[0-9]+}/block-request", h.RequestBlock).Methods(http.MethodPost)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequireAdmin)
	admin.HandleFunc("/cards", h.AdminListCards).Methods(http.MethodGet)
	admin.HandleFunc("/cards", h.AdminIssueCard).Methods(http.MethodPost)
	admin.HandleFunc("/cards/{id:[0-9]+}/block", h.AdminBlockCard).Methods(http.MethodPost)
	admin.HandleFunc("/cards/{id:[0-9]+}/unblock", h.AdminUnblockCard).Methods(http.MethodPost)
	admin.HandleFunc("/cards/{id:[0-9]+}/topup", h.AdminTopUpCard).Methods(http.MethodPost)
	admin.HandleFunc("/scheduler/check-expired-cards", h.AdminRunExpiryCheck).Methods(http.MethodPost)
	admin.HandleFunc("/scheduler/status", h.AdminSchedulerStatus).Methods(http.MethodGet)

	return r
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

type transferRequest struct {
	FromCardID  int64           `json:"from_card_id"`
	ToCardID    int64           `json:"to_card_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// CreateTransfer handles POST /transfers
func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		h.jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FromCardID <= 0 || req.ToCardID <= 0 {
		h.jsonError(w, http.StatusBadRequest, "from_card_id and to_card_id are required")
		return
	}

	claims := middleware.GetClaims(r.Context())
	transfer, err := h.svc.Transfer(r.Context(), service.TransferRequest{
		FromCardID:  req.FromCardID,
		ToCardID:    req.ToCardID,
		Amount:      req.Amount,
		Description: req.Description,
		RequesterID: claims.UserID,
	})
	if err != nil {
		var extra map[string]any
		if transfer != nil {
			extra = map[string]any{"transfer_id": transfer.ID}
		}
		h.serviceError(w, err, extra)
		return
	}
	h.jsonResponse(w, http.StatusCreated, transfer)
}

// ListTransfers handles GET /transfers
func (h *Handler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		h.jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := repository.TransferFilter{
		Status: models.TransferStatus(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	}
	if filter.CardID, err = queryInt64(r, "card_id"); err != nil {
		h.jsonError(w, http.StatusBadRequest, "invalid card_id")
		return
	}
	if filter.From, err = parseTimeParam(r, "from"); err != nil {
		h.jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.To, err = parseTimeParam(r, "to"); err != nil {
		h.jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	claims := middleware.GetClaims(r.Context())
	transfers, err := h.svc.ListTransfers(r.Context(), claims.UserID, filter)
	if err != nil {
		h.serviceError(w, err, nil)
		return
	}
	h.jsonResponse(w, http.StatusOK, transfers)
}

// parseTimeParam accepts RFC 3339 timestamps or plain dates
func parseTimeParam(r *http.Request, key string) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%s must be a date or RFC 3339 timestamp", key)
}

// GetTransfer handles GET /transfers/{id}
func (h *Handler) GetTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.jsonError(w, http.StatusBadRequest, "invalid transfer id")
		return
	}
	claims := middleware.GetClaims(r.Context())
	transfer, err := h.svc.GetTransfer(r.Context(), claims.UserID, id)
	if err != nil {
		h.serviceError(w, err, nil)
		return
	}
	h.jsonResponse(w, http.StatusOK, transfer)
}

// Stats handles GET /transfers/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	stats, err := h.svc.GetStats(r.Context(), claims.UserID)
	if err != nil {
		h.serviceError(w, err, nil)
		return
	}
	h.jsonResponse(w, http.StatusOK, stats)
}

// ExportTransfers handles GET /transfers/export?format=xml|csv
func (h *Handler) ExportTransfers(w http.ResponseWriter, r *http.Request) {
	format := export.Format(r.URL.Query().Get("format"))
	if format == "" {
		format = export.FormatCSV
	}
	if !format.Valid() {
		h.jsonError(w, http.StatusBadRequest, "format must be xml or csv")
		return
	}

	claims := middleware.GetClaims(r.Context())
	var buf bytes.Buffer
	if err := h.svc.ExportTransfers(r.Context(), claims.UserID, format, &buf); err != nil {
		h.serviceError(w, err, nil)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="transfers.%s"`, format))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.log.Errorf("Failed to write export for user %d: %v", claims.UserID, err)
	}
}

// ListUsableCards handles GET /cards
func (h *Handler) ListUsableCards(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	cards, err := h.svc.ListUsableCards(r.Context(), claims.UserID)
	if err != nil {
		h.serviceError(w, err, nil)
		return
	}
	h.jsonResponse(w, http.StatusOK, cards)
}

// GetCard handles GET /cards/{id}
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.jsonError(w, http.StatusBadRequest, "invalid card id")
		return
	}
	claims := middleware.GetClaims(r.Context())
	card, err := h.svc.GetCard(r.Context(), claims.UserID, id)
	if err != nil {
		h.serviceError(w, err, nil)
		return
	}
	h.jsonResponse(w, http.StatusOK, card)
}

// RequestBlock handles POST /cards/{id}/block-request
func (h *Handler) RequestBlock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.jsonError(w, http.StatusBadRequest, "invalid card id")
		return
	}
	claims := middleware.GetClaims(r.Context())
	card, err := h.svc.RequestBlock(r.Context(), claims.UserID, id)
	if err != nil {
		h.serviceError(w, err, nil)
		return
	}
	h.jsonResponse(w, http.StatusAccepted, card)
}
