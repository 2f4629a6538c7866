package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/fableworks/coinledger/internal/security"
)

const (
	defaultTxLimit = 20
	maxTxLimit     = 100
)

// accountParam reads the account id from ?account=, accepting ?openid= as an
// alias used by older clients.
func accountParam(r *http.Request) string {
	if v := r.URL.Query().Get("account"); v != "" {
		return v
	}
	return r.URL.Query().Get("openid")
}

// accountRef is embedded in request bodies that name an account.
type accountRef struct {
	Account string `json:"account"`
	OpenID  string `json:"openid"`
}

func (a accountRef) id() string {
	if a.Account != "" {
		return a.Account
	}
	return a.OpenID
}

// handleBalance returns the balance.
// GET /api/coins/balance?account=
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	account := accountParam(r)
	if account == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ACCOUNT", "account is required")
		return
	}
	if !s.authorize(w, r, account) {
		return
	}

	balance, first, err := s.ledger.Balance(r.Context(), account)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"balance":                balance,
		"first_charge_available": first,
	})
}

type consumeRequest struct {
	accountRef
	Amount      *int64 `json:"amount"`
	Description string `json:"description"`
}

// handleConsume spends coins.
// POST /api/coins/consume
func (s *Server) handleConsume(w http.ResponseWriter, r *http.Request) {
	var req consumeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	account := req.id()
	if account == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ACCOUNT", "account is required")
		return
	}
	if !s.authorize(w, r, account) {
		return
	}

	amount := int64(1)
	if req.Amount != nil {
		amount = *req.Amount
	}
	desc := security.SanitizeDescription(req.Description)
	if desc == "" {
		desc = "Coin spend"
	}

	balance, err := s.ledger.Consume(r.Context(), account, amount, desc)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"consumed": amount,
		"balance":  balance,
		"message":  fmt.Sprintf("Spent %d coin(s), %d left", amount, balance),
	})
}

// handleTransactions lists ledger rows, newest first.
// GET /api/coins/transactions?account=&limit=20
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	account := accountParam(r)
	if account == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ACCOUNT", "account is required")
		return
	}
	if !s.authorize(w, r, account) {
		return
	}

	limit := defaultTxLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
			return
		}
		limit = min(n, maxTxLimit)
	}

	txs, err := s.ledger.Transactions(r.Context(), account, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	type txResponse struct {
		ID           int64  `json:"id"`
		Type         string `json:"type"`
		TypeName     string `json:"type_name"`
		Amount       int64  `json:"amount"`
		BalanceAfter int64  `json:"balance_after"`
		Description  string `json:"description"`
		OrderRef     string `json:"order_ref,omitempty"`
		CreatedAt    string `json:"created_at"`
	}
	out := make([]txResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, txResponse{
			ID:           tx.ID,
			Type:         string(tx.Type),
			TypeName:     tx.Type.DisplayName(),
			Amount:       tx.Amount,
			BalanceAfter: tx.BalanceAfter,
			Description:  tx.Description,
			OrderRef:     tx.OrderRef,
			CreatedAt:    tx.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": out,
		"count":        len(out),
	})
}

// handlePlans lists the recharge catalog.
// GET /api/coins/plans
func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"plans": s.orders.Catalog().Plans(),
	})
}
