package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/fableworks/coinledger/internal/domain"
	"github.com/fableworks/coinledger/internal/security"
	"github.com/fableworks/coinledger/pkg/logger"
)

// errNoPlatform is logged when login is used without a platform client.
var errNoPlatform = errors.New("platform client not configured")

type loginRequest struct {
	Code     string `json:"code"`
	Inviter  string `json:"inviter"`
	Nickname string `json:"nickname"`
}

// handleLogin exchanges a login code, registers the account on first
// contact and returns its snapshot.
// POST /api/user/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.platform == nil {
		s.log.Warn("login refused", zap.Error(errNoPlatform))
		writeError(w, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "login is not configured")
		return
	}
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "MISSING_CODE", "code is required")
		return
	}

	sess, err := s.platform.Code2Session(r.Context(), req.Code)
	if err != nil {
		if errors.Is(err, domain.ErrUpstreamUnavailable) {
			s.writeDomainError(w, err)
			return
		}
		s.log.Info("login code rejected", zap.Error(err))
		writeError(w, http.StatusBadRequest, "LOGIN_FAILED", "login failed, please retry")
		return
	}

	reg, err := s.ledger.Register(r.Context(), sess.OpenID, req.Inviter, security.SanitizeNickname(req.Nickname))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	resp := map[string]any{
		"account_id":             reg.Account.AccountID,
		"nickname":               reg.Account.Nickname,
		"balance":                reg.Account.Balance,
		"first_charge_available": reg.Account.FirstCharge,
		"is_new_user":            reg.Created,
		"invite_reward":          reg.InviteReward,
	}
	if s.sessions != nil {
		token, err := s.sessions.Issue(reg.Account.AccountID)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		resp["token"] = token
	}

	s.log.Info("login", zap.String("account", logger.Redact(sess.OpenID)), zap.Bool("new", reg.Created))
	writeJSON(w, http.StatusOK, resp)
}

type checkTextRequest struct {
	Text string `json:"text"`
}

// handleCheckText runs platform moderation on user text.
// POST /api/content-security/text
func (s *Server) handleCheckText(w http.ResponseWriter, r *http.Request) {
	if s.platform == nil {
		writeError(w, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "moderation is not configured")
		return
	}
	var req checkTextRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	safe, err := s.platform.CheckText(r.Context(), req.Text)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	msg := "passed"
	if !safe {
		msg = "content may contain sensitive information, please revise"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"safe":    safe,
		"message": msg,
	})
}
