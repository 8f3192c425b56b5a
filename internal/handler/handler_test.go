package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bank-cards/internal/db"
	"github.com/Dan9191/bank-cards/internal/lock"
	"github.com/Dan9191/bank-cards/internal/middleware"
	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/repository"
	"github.com/Dan9191/bank-cards/internal/scheduler"
	"github.com/Dan9191/bank-cards/internal/service"
	"github.com/Dan9191/bank-cards/internal/utils"
)

const testJWTSecret = "test-secret"

var testNow = time.Date(2024, time.June, 15, 10, 0, 0, 0, time.UTC)

type fakeExpiry struct {
	runs int
}

func (f *fakeExpiry) RunNow(context.Context) int {
	f.runs++
	return 3
}

func (f *fakeExpiry) Status() scheduler.Status {
	return scheduler.Status{Running: true, LastExpired: 3}
}

type testServer struct {
	router *mux.Router
	repo   *repository.Repository
	expiry *fakeExpiry
	seq    int
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cipher, err := utils.NewCardCipher("handler-test-secret-0123456789")
	if err != nil {
		t.Fatalf("NewCardCipher: %v", err)
	}
	repo := repository.NewRepository(db.NewTestDB(t), db.SQLite)
	svc := service.NewService(repo, lock.NewLocker(), cipher, logger, service.Options{
		Now: func() time.Time { return testNow },
	})
	expiry := &fakeExpiry{}

	return &testServer{
		router: NewRouter(NewHandler(svc, expiry, logger), testJWTSecret),
		repo:   repo,
		expiry: expiry,
	}
}

func (s *testServer) user(t *testing.T, name, role string) (*models.User, string) {
	t.Helper()
	u := &models.User{Username: name, Email: name + "@example.com", Role: role, CreatedAt: testNow}
	if err := s.repo.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		UserID:   u.ID,
		Username: u.Username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return u, token
}

func (s *testServer) card(t *testing.T, ownerID int64, balance string, status models.CardStatus) *models.Card {
	t.Helper()
	s.seq++
	c := &models.Card{
		OwnerID:         ownerID,
		MaskedNumber:    fmt.Sprintf("**** **** **** %04d", s.seq),
		EncryptedNumber: "ciphertext",
		NumberHMAC:      fmt.Sprintf("hmac-%d", s.seq),
		ExpiryDate:      testNow.AddDate(2, 0, 0),
		Status:          status,
		Balance:         decimal.RequireFromString(balance),
		CreatedAt:       testNow,
		UpdatedAt:       testNow,
	}
	if err := s.repo.CreateCard(context.Background(), c); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	return c
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), target); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

func TestHealthNeedsNoToken(t *testing.T) {
	s := setupTestServer(t)
	if rec := s.do(t, http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/cards", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}
}

func TestCreateTransferEndpoint(t *testing.T) {
	s := setupTestServer(t)
	alice, token := s.user(t, "alice", models.RoleUser)
	a := s.card(t, alice.ID, "100", models.CardStatusActive)
	b := s.card(t, alice.ID, "50", models.CardStatusActive)

	rec := s.do(t, http.MethodPost, "/transfers", token, map[string]any{
		"from_card_id": a.ID,
		"to_card_id":   b.ID,
		"amount":       "30.00",
		"description":  "savings",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var tr models.Transfer
	decodeBody(t, rec, &tr)
	if tr.Status != models.TransferStatusCompleted || !tr.Amount.Equal(decimal.NewFromInt(30)) {
		t.Errorf("unexpected transfer %+v", tr)
	}

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/transfers/%d", tr.ID), token, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("GET transfer: expected 200, got %d", rec.Code)
	}
}

func TestTransferErrorMapping(t *testing.T) {
	s := setupTestServer(t)
	alice, token := s.user(t, "alice", models.RoleUser)
	bob, _ := s.user(t, "bob", models.RoleUser)
	a := s.card(t, alice.ID, "10", models.CardStatusActive)
	b := s.card(t, alice.ID, "0", models.CardStatusActive)
	blocked := s.card(t, alice.ID, "0", models.CardStatusBlocked)
	foreign := s.card(t, bob.ID, "0", models.CardStatusActive)

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"insufficient funds", map[string]any{"from_card_id": a.ID, "to_card_id": b.ID, "amount": "30.00"}, http.StatusUnprocessableEntity},
		{"blocked card", map[string]any{"from_card_id": a.ID, "to_card_id": blocked.ID, "amount": "1"}, http.StatusUnprocessableEntity},
		{"foreign card", map[string]any{"from_card_id": a.ID, "to_card_id": foreign.ID, "amount": "1"}, http.StatusForbidden},
		{"unknown card", map[string]any{"from_card_id": a.ID, "to_card_id": 999, "amount": "1"}, http.StatusNotFound},
		{"same card", map[string]any{"from_card_id": a.ID, "to_card_id": a.ID, "amount": "1"}, http.StatusBadRequest},
		{"bad amount", map[string]any{"from_card_id": a.ID, "to_card_id": b.ID, "amount": "0.005"}, http.StatusBadRequest},
		{"missing ids", map[string]any{"amount": "1"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/transfers", token, tt.body)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}

	rec := s.do(t, http.MethodPost, "/transfers", token, map[string]any{"from_card_id": a.ID, "to_card_id": b.ID, "amount": "30.00"})
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["available"] != "10.00" || body["requested"] != "30.00" {
		t.Errorf("expected funds detail in body, got %v", body)
	}
	if _, ok := body["transfer_id"]; !ok {
		t.Errorf("expected the failed transfer id in body, got %v", body)
	}
}

func TestStatsAndHistoryEndpoints(t *testing.T) {
	s := setupTestServer(t)
	alice, token := s.user(t, "alice", models.RoleUser)
	a := s.card(t, alice.ID, "100", models.CardStatusActive)
	b := s.card(t, alice.ID, "0", models.CardStatusActive)

	for _, amt := range []string{"10", "20"} {
		s.do(t, http.MethodPost, "/transfers", token, map[string]any{"from_card_id": a.ID, "to_card_id": b.ID, "amount": amt})
	}

	rec := s.do(t, http.MethodGet, "/transfers/stats", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var stats models.TransferStats
	decodeBody(t, rec, &stats)
	if stats.TotalTransfers != 2 || !stats.TotalAmount.Equal(decimal.NewFromInt(30)) || !stats.AverageAmount.Equal(decimal.NewFromInt(15)) {
		t.Errorf("unexpected stats %+v", stats)
	}

	rec = s.do(t, http.MethodGet, "/transfers?limit=1", token, nil)
	var page []models.Transfer
	decodeBody(t, rec, &page)
	if len(page) != 1 {
		t.Errorf("expected 1 transfer on page, got %d", len(page))
	}

	if rec := s.do(t, http.MethodGet, "/transfers?limit=-1", token, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/transfers?from=yesterday", token, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad from, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/transfers/export?format=xml", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export: expected 200, got %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "application/xml") {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "<TransferHistory") {
		t.Errorf("unexpected export body %s", rec.Body.String())
	}
	if rec := s.do(t, http.MethodGet, "/transfers/export?format=pdf", token, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for pdf, got %d", rec.Code)
	}
}

func TestCardEndpoints(t *testing.T) {
	s := setupTestServer(t)
	alice, token := s.user(t, "alice", models.RoleUser)
	_, bobToken := s.user(t, "bob", models.RoleUser)
	a := s.card(t, alice.ID, "100", models.CardStatusActive)
	s.card(t, alice.ID, "100", models.CardStatusBlocked)

	rec := s.do(t, http.MethodGet, "/cards", token, nil)
	var cards []models.Card
	decodeBody(t, rec, &cards)
	if len(cards) != 1 || cards[0].ID != a.ID {
		t.Errorf("unexpected usable cards %+v", cards)
	}
	if strings.Contains(rec.Body.String(), "ciphertext") {
		t.Error("encrypted number must not be serialized")
	}

	if rec := s.do(t, http.MethodGet, fmt.Sprintf("/cards/%d", a.ID), bobToken, nil); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for foreign card, got %d", rec.Code)
	}

	path := fmt.Sprintf("/cards/%d/block-request", a.ID)
	if rec := s.do(t, http.MethodPost, path, token, nil); rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, path, token, nil); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for repeated request, got %d", rec.Code)
	}
}

func TestAdminEndpoints(t *testing.T) {
	s := setupTestServer(t)
	alice, userToken := s.user(t, "alice", models.RoleUser)
	_, adminToken := s.user(t, "admin", models.RoleAdmin)

	if rec := s.do(t, http.MethodGet, "/admin/cards", userToken, nil); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for non-admin, got %d", rec.Code)
	}

	rec := s.do(t, http.MethodPost, "/admin/cards", adminToken, map[string]any{
		"owner_id":        alice.ID,
		"expiry_month":    12,
		"expiry_year":     2027,
		"initial_balance": "25.00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("issue card: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var card models.Card
	decodeBody(t, rec, &card)

	rec = s.do(t, http.MethodPost, fmt.Sprintf("/admin/cards/%d/topup", card.ID), adminToken, map[string]any{"amount": "5"})
	if rec.Code != http.StatusOK {
		t.Fatalf("topup: expected 200, got %d", rec.Code)
	}
	decodeBody(t, rec, &card)
	if !card.Balance.Equal(decimal.NewFromInt(30)) {
		t.Errorf("balance after top-up = %s", card.Balance)
	}

	blockPath := fmt.Sprintf("/admin/cards/%d/block", card.ID)
	if rec := s.do(t, http.MethodPost, blockPath, adminToken, map[string]string{"reason": "fraud"}); rec.Code != http.StatusOK {
		t.Errorf("block: expected 200, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, blockPath, adminToken, nil); rec.Code != http.StatusConflict {
		t.Errorf("second block: expected 409, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/admin/cards?status=BLOCKED", adminToken, nil)
	var blocked []models.Card
	decodeBody(t, rec, &blocked)
	if len(blocked) != 1 {
		t.Errorf("expected 1 blocked card, got %d", len(blocked))
	}

	if rec := s.do(t, http.MethodPost, fmt.Sprintf("/admin/cards/%d/unblock", card.ID), adminToken, nil); rec.Code != http.StatusOK {
		t.Errorf("unblock: expected 200, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/admin/cards/999/block", adminToken, nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown card, got %d", rec.Code)
	}
}

func TestAdminSchedulerEndpoints(t *testing.T) {
	s := setupTestServer(t)
	_, adminToken := s.user(t, "admin", models.RoleAdmin)

	rec := s.do(t, http.MethodPost, "/admin/scheduler/check-expired-cards", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Expired int `json:"expired"`
	}
	decodeBody(t, rec, &body)
	if body.Expired != 3 || s.expiry.runs != 1 {
		t.Errorf("unexpected result %+v after %d runs", body, s.expiry.runs)
	}

	if rec := s.do(t, http.MethodGet, "/admin/scheduler/status", adminToken, nil); rec.Code != http.StatusOK {
		t.Errorf("status: expected 200, got %d", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrNotFound, http.StatusNotFound},
		{service.ErrAccessDenied, http.StatusForbidden},
		{service.ErrInvalidAmount, http.StatusBadRequest},
		{service.ErrInvalidTransfer, http.StatusBadRequest},
		{&service.CardNotUsableError{}, http.StatusUnprocessableEntity},
		{&service.InsufficientFundsError{}, http.StatusUnprocessableEntity},
		{service.ErrInvalidStateTransition, http.StatusConflict},
		{fmt.Errorf("lock: %w", service.ErrTransient), http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
