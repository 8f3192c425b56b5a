package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/Dan9191/bank-cards/internal/middleware"
	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/repository"
	"github.com/Dan9191/bank-cards/internal/service"
)

// AdminListCards handles GET /admin/cards
func (h *Handler) AdminListCards(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		h.jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := repository.CardFilter{
		Status: models.CardStatus(r.URL.Query().Get("status")),
		Search: r.URL.Query().Get("search"),
		Limit:  limit,
		Offset: offset,
	}
	if filter.OwnerID, err = queryInt64(r, "owner_id"); err != nil {
		h.jsonError(w, http.StatusBadRequest, "invalid owner_id")
		return
	}

	cards, err := h.svc.ListCards(r.Context(), filter)
	if err != nil {
		h.serviceError(w, err, nil)
		return
	}
	h.jsonResponse(w, http.StatusOK, cards)
}

type issueCardRequest struct {
	OwnerID        int64           `json:"owner_id"`
	ExpiryMonth    int             `json:"expiry_month"`
	ExpiryYear     int             `json:"expiry_year"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

// AdminIssueCard handles POST /admin/cards
func (h *Handler) AdminIssueCard(w http.ResponseWriter, r *http.Request) {
	var req issueCardRequest
	if err := decodeJSON(r, &req); err != nil {
		h.jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OwnerID <= 0 {
		h.jsonError(w, http.StatusBadRequest, "owner_id is required")
		return
	}

	claims := middleware.GetClaims(r.Context())
	card, err := h.svc.IssueCard(r.Context(), claims.UserID, service.IssueCardRequest{
		OwnerID:        req.OwnerID,
		ExpiryMonth:    req.ExpiryMonth,
		ExpiryYear:     req.ExpiryYear,
		InitialBalance: req.InitialBalance,
	})
	if err != nil {
		h.serviceError(w, err, nil)
		return
	}
	h.jsonResponse(w, http.StatusCreated, card)
}

type blockCardRequest struct {
	Reason string `json:"reason"`
}

// AdminBlockCard handles POST /admin/cards/{id}/block
func (h *Handler) AdminBlockCard(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.jsonError(w, http.StatusBadRequest, "invalid card id")
		return
	}
	var req blockCardRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			h.jsonError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	claims := middleware.GetClaims(r.Context())
	card, err := h.svc.BlockCard(r.Context(), claims.UserID, id, req.Reason)
	if err != nil {
		h.serviceError(w, err, nil)
		return
	}
	h.jsonResponse(w, http.StatusOK, card)
}

// AdminUnblockCard handles POST /admin/cards/{id}/unblock
func (h *Handler) AdminUnblockCard(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.jsonError(w, http.StatusBadRequest, "invalid card id")
		return
	}
	claims := middleware.GetClaims(r.Context())
	card, err := h.svc.UnblockCard(r.Context(), claims.UserID, id)
	if err != nil {
		h.serviceError(w, err, nil)
		return
	}
	h.jsonResponse(w, http.StatusOK, card)
}

type topUpRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// AdminTopUpCard handles POST /admin/cards/{id}/topup
func (h *Handler) AdminTopUpCard(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.jsonError(w, http.StatusBadRequest, "invalid card id")
		return
	}
	var req topUpRequest
	if err := decodeJSON(r, &req); err != nil {
		h.jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := middleware.GetClaims(r.Context())
	card, err := h.svc.TopUpCard(r.Context(), claims.UserID, id, req.Amount)
	if err != nil {
		h.serviceError(w, err, nil)
		return
	}
	h.jsonResponse(w, http.StatusOK, card)
}

// AdminRunExpiryCheck handles POST /admin/scheduler/check-expired-cards
func (h *Handler) AdminRunExpiryCheck(w http.ResponseWriter, r *http.Request) {
	expired := h.expiry.RunNow(r.Context())
	h.jsonResponse(w, http.StatusOK, map[string]any{
		"expired": expired,
		"status":  h.expiry.Status(),
	})
}

// AdminSchedulerStatus handles GET /admin/scheduler/status
func (h *Handler) AdminSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, h.expiry.Status())
}
