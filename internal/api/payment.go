package api

import (
	"io"
	"net/http"

	"go.uber.org/zap"
)

type createOrderRequest struct {
	accountRef
	ProductID string `json:"product_id"`
}

// handleCreateOrder creates a pending order and signs it for the platform.
// Without a signing key the request fails unless mock payments are allowed.
// POST /api/payment/create
func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	account := req.id()
	if account == "" || req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "account and product_id are required")
		return
	}
	if !s.authorize(w, r, account) {
		return
	}

	if !s.signer.Ready() {
		if !s.allowMock {
			s.log.Warn("order refused: no signing key")
			writeError(w, http.StatusServiceUnavailable, "SIGNING_UNAVAILABLE", "payment signing is not configured")
			return
		}
		order, _, err := s.orders.Place(r.Context(), account, req.ProductID, true)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"order_no":    order.OrderNo,
			"coins":       order.Coins,
			"bonus_coins": order.BonusCoins,
			"amount":      order.Amount,
			"mock":        true,
		})
		return
	}

	order, plan, err := s.orders.Place(r.Context(), account, req.ProductID, false)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	signed, err := s.signer.SignOrder(order, plan)
	if err != nil {
		// The unsigned order stays pending and is expired by the sweeper.
		s.log.Error("order signing failed", zap.String("order_no", order.OrderNo), zap.Error(err))
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"order_no":           order.OrderNo,
		"data":               signed.Body,
		"byte_authorization": signed.Authorization,
		"coins":              order.Coins,
		"bonus_coins":        order.BonusCoins,
		"amount":             order.Amount,
	})
}

// handlePaymentCallback always answers 200 with {err_no, err_tips}; the
// platform decides whether to retry from err_no.
// POST /api/payment/callback
func (s *Server) handlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		body = nil
	}
	writeJSON(w, http.StatusOK, s.reconciler.HandleCallback(r.Context(), body))
}

// handleOrderStatus returns an order snapshot.
// GET /api/payment/status?order_no=
func (s *Server) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderNo := r.URL.Query().Get("order_no")
	if orderNo == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ORDER_NO", "order_no is required")
		return
	}
	order, err := s.orders.FindByOrderNo(r.Context(), orderNo)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if !s.authorize(w, r, order.AccountID) {
		return
	}
	writeJSON(w, http.StatusOK, order)
}

type mockSuccessRequest struct {
	OrderNo string `json:"order_no"`
}

// handleMockSuccess settles an order without the platform. Only mounted
// when mock payments are allowed.
// POST /api/payment/mock-success
func (s *Server) handleMockSuccess(w http.ResponseWriter, r *http.Request) {
	var req mockSuccessRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OrderNo == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ORDER_NO", "order_no is required")
		return
	}

	order, err := s.orders.FindByOrderNo(r.Context(), req.OrderNo)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if !s.authorize(w, r, order.AccountID) {
		return
	}

	settled, err := s.reconciler.MockSettle(r.Context(), req.OrderNo)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"order_no": settled.OrderNo,
		"coins":    settled.Coins,
		"bonus":    settled.Bonus,
		"balance":  settled.Balance,
		"message":  "recharge complete",
	})
}
