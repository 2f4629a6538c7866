// Package platform is the HTTP client for the mini-app platform's server
// APIs: login-code exchange, access tokens and text moderation.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fableworks/coinledger/internal/domain"
	"github.com/fableworks/coinledger/internal/infra/observability"
	"github.com/fableworks/coinledger/pkg/logger"
)

const (
	pathCode2Session = "/api/apps/v2/jscode2session"
	pathToken        = "/api/apps/v2/token"
	pathTextCheck    = "/api/v2/tags/text/antidirt"
)

// Config configures the client.
type Config struct {
	AppID     string
	AppSecret string
	BaseURL   string
	Timeout   time.Duration
}

// Client implements domain.Platform.
type Client struct {
	cfg    Config
	http   *http.Client
	tokens *TokenCache
	log    *zap.Logger
}

var _ domain.Platform = (*Client)(nil)

// New creates a Client with its own access-token cache.
func New(cfg Config, log *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log.Named("platform"),
	}
	c.tokens = NewTokenCache(c.FetchAccessToken, DefaultRefreshSkew)
	return c
}

// Tokens exposes the access-token cache.
func (c *Client) Tokens() *TokenCache { return c.tokens }

// envelope is the platform's standard response wrapper.
type envelope struct {
	ErrNo   int             `json:"err_no"`
	ErrTips string          `json:"err_tips"`
	Data    json.RawMessage `json:"data"`
}

// Code2Session exchanges a login code for the user's openid.
func (c *Client) Code2Session(ctx context.Context, code string) (domain.Session, error) {
	var env envelope
	if err := c.post(ctx, "code2session", pathCode2Session, nil, map[string]string{
		"appid":  c.cfg.AppID,
		"secret": c.cfg.AppSecret,
		"code":   code,
	}, &env); err != nil {
		return domain.Session{}, err
	}
	if env.ErrNo != 0 {
		return domain.Session{}, fmt.Errorf("code2session: %s (err_no %d)", env.ErrTips, env.ErrNo)
	}

	var sess domain.Session
	if err := json.Unmarshal(env.Data, &sess); err != nil || sess.OpenID == "" {
		return domain.Session{}, fmt.Errorf("%w: code2session returned no openid", domain.ErrUpstreamUnavailable)
	}
	c.log.Debug("session exchanged", zap.String("openid", logger.Redact(sess.OpenID)))
	return sess, nil
}

// FetchAccessToken requests a new client-credential access token.
func (c *Client) FetchAccessToken(ctx context.Context) (Token, error) {
	var env envelope
	if err := c.post(ctx, "token", pathToken, nil, map[string]string{
		"appid":      c.cfg.AppID,
		"secret":     c.cfg.AppSecret,
		"grant_type": "client_credential",
	}, &env); err != nil {
		return Token{}, err
	}

	var data struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if env.ErrNo != 0 || json.Unmarshal(env.Data, &data) != nil || data.AccessToken == "" {
		return Token{}, fmt.Errorf("%w: token: %s (err_no %d)", domain.ErrUpstreamUnavailable, env.ErrTips, env.ErrNo)
	}
	c.log.Info("access token refreshed", zap.Int64("expires_in", data.ExpiresIn))
	return Token{
		Value:     data.AccessToken,
		ExpiresAt: time.Now().Add(time.Duration(data.ExpiresIn) * time.Second),
	}, nil
}

// CheckText runs text moderation. Empty text is always safe.
func (c *Client) CheckText(ctx context.Context, text string) (bool, error) {
	if strings.TrimSpace(text) == "" {
		return true, nil
	}
	token, err := c.tokens.Get(ctx)
	if err != nil {
		return false, err
	}

	var resp struct {
		Data []struct {
			Code     int    `json:"code"`
			TaskID   string `json:"task_id"`
			Predicts []struct {
				ModelName string `json:"model_name"`
				Hit       bool   `json:"hit"`
			} `json:"predicts"`
		} `json:"data"`
	}
	if err := c.post(ctx, "text_check", pathTextCheck, map[string]string{"X-Token": token},
		map[string]any{"tasks": []map[string]string{{"content": text}}}, &resp); err != nil {
		return false, err
	}
	if len(resp.Data) == 0 {
		return true, nil
	}

	result := resp.Data[0]
	if result.Code != 0 {
		c.tokens.Invalidate()
		return false, fmt.Errorf("%w: text check code %d", domain.ErrUpstreamUnavailable, result.Code)
	}
	for _, p := range result.Predicts {
		if p.Hit {
			c.log.Info("text flagged", zap.String("model", p.ModelName), zap.String("task", result.TaskID))
			return false, nil
		}
	}
	return true, nil
}

func (c *Client) post(ctx context.Context, endpoint, path string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		observability.PlatformRequests.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("%w: %s: %v", domain.ErrUpstreamUnavailable, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		observability.PlatformRequests.WithLabelValues(endpoint, "error").Inc()
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: %s: HTTP %d", domain.ErrUpstreamUnavailable, endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		observability.PlatformRequests.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("%w: %s: decode: %v", domain.ErrUpstreamUnavailable, endpoint, err)
	}
	observability.PlatformRequests.WithLabelValues(endpoint, "ok").Inc()
	return nil
}
