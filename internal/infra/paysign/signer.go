// Package paysign signs order-creation requests for the platform's trade
// system and verifies its payment callbacks.
//
// Order signing string (five lines, each terminated by \n):
//
//	POST
//	/requestOrder
//	<unix seconds>
//	<nonce>
//	<order body JSON>
//
// signed with RSA PKCS#1 v1.5 over SHA-256, base64 encoded, and presented as
//
//	SHA256-RSA2048 appid=..,nonce_str=..,timestamp=..,key_version=..,signature=..
package paysign

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fableworks/coinledger/internal/domain"
	"github.com/fableworks/coinledger/internal/infra/observability"
)

const (
	// Scheme is the authorization scheme prefix.
	Scheme = "SHA256-RSA2048"

	// RequestMethod and RequestPath are fixed by the platform for order creation.
	RequestMethod = "POST"
	RequestPath   = "/requestOrder"

	// skuTypeVirtual marks a virtual-currency SKU.
	skuTypeVirtual = 701
)

// Config describes the merchant identity embedded in every signed order.
type Config struct {
	AppID            string
	KeyVersion       string
	NotifyURL        string
	PayExpireSeconds int
	EntryPath        string // client page the platform returns to
	ImageURL         string
}

// Signer implements domain.OrderSigner. A Signer without a key is valid but
// not Ready; SignOrder then fails with domain.ErrSigningKeyUnavailable.
type Signer struct {
	cfg   Config
	key   *rsa.PrivateKey
	now   func() time.Time
	nonce func() string
}

var _ domain.OrderSigner = (*Signer)(nil)

// New creates a Signer. key may be nil.
func New(cfg Config, key *rsa.PrivateKey) *Signer {
	if cfg.EntryPath == "" {
		cfg.EntryPath = "pages/index/index"
	}
	if cfg.PayExpireSeconds <= 0 {
		cfg.PayExpireSeconds = 3600
	}
	return &Signer{
		cfg:   cfg,
		key:   key,
		now:   time.Now,
		nonce: NewNonce,
	}
}

// Ready reports whether a signing key is loaded.
func (s *Signer) Ready() bool { return s.key != nil }

// PublicKey returns the verification key, or nil when not Ready.
func (s *Signer) PublicKey() *rsa.PublicKey {
	if s.key == nil {
		return nil
	}
	return &s.key.PublicKey
}

// ─── Order Body ─────────────────────────────────────────────────────────────

type sku struct {
	SkuID      string   `json:"skuId"`
	Price      int64    `json:"price"`
	Quantity   int      `json:"quantity"`
	Title      string   `json:"title"`
	ImageList  []string `json:"imageList"`
	Type       int      `json:"type"`
	TagGroupID string   `json:"tagGroupId"`
}

type entrySchema struct {
	Path   string `json:"path"`
	Params string `json:"params"`
}

type orderBody struct {
	SkuList          []sku       `json:"skuList"`
	OutOrderNo       string      `json:"outOrderNo"`
	TotalAmount      int64       `json:"totalAmount"`
	PayExpireSeconds int         `json:"payExpireSeconds"`
	PayNotifyURL     string      `json:"payNotifyUrl"`
	OrderEntrySchema entrySchema `json:"orderEntrySchema"`
}

// OrderBody renders the order payload exactly as it will be signed.
func (s *Signer) OrderBody(order domain.Order, plan domain.Plan) (string, error) {
	params, err := marshal(map[string]string{"order_no": order.OrderNo})
	if err != nil {
		return "", err
	}
	skuID := plan.SkuID
	if skuID == "" {
		skuID = plan.ProductID
	}
	images := []string{}
	if s.cfg.ImageURL != "" {
		images = append(images, s.cfg.ImageURL)
	}

	return marshal(orderBody{
		SkuList: []sku{{
			SkuID:     skuID,
			Price:     order.Amount,
			Quantity:  1,
			Title:     plan.Name,
			ImageList: images,
			Type:      skuTypeVirtual,
		}},
		OutOrderNo:       order.OrderNo,
		TotalAmount:      order.Amount,
		PayExpireSeconds: s.cfg.PayExpireSeconds,
		PayNotifyURL:     s.cfg.NotifyURL,
		OrderEntrySchema: entrySchema{Path: s.cfg.EntryPath, Params: params},
	})
}

// marshal encodes v without HTML escaping so the body matches what a client
// would produce for the same order.
func marshal(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encode order body: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// ─── Signing ────────────────────────────────────────────────────────────────

// SignOrder builds and signs the order body. The returned Body is the exact
// string that was signed and must be passed through unchanged.
func (s *Signer) SignOrder(order domain.Order, plan domain.Plan) (domain.SignedOrder, error) {
	if s.key == nil {
		return domain.SignedOrder{}, domain.ErrSigningKeyUnavailable
	}
	body, err := s.OrderBody(order, plan)
	if err != nil {
		return domain.SignedOrder{}, err
	}

	ts := s.now().Unix()
	nonce := s.nonce()
	auth, err := s.Authorize(ts, nonce, body)
	if err != nil {
		observability.SigningFailures.Inc()
		return domain.SignedOrder{}, err
	}
	return domain.SignedOrder{
		Body:          body,
		Authorization: auth,
		Nonce:         nonce,
		Timestamp:     ts,
	}, nil
}

// Authorize signs body and returns the full authorization token.
func (s *Signer) Authorize(ts int64, nonce, body string) (string, error) {
	if s.key == nil {
		return "", domain.ErrSigningKeyUnavailable
	}
	timestamp := strconv.FormatInt(ts, 10)
	digest := sha256.Sum256([]byte(CanonicalString(RequestMethod, RequestPath, timestamp, nonce, body)))
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("sign order: %w", err)
	}
	return fmt.Sprintf("%s appid=%s,nonce_str=%s,timestamp=%s,key_version=%s,signature=%s",
		Scheme, s.cfg.AppID, nonce, timestamp, s.cfg.KeyVersion,
		base64.StdEncoding.EncodeToString(sig)), nil
}

// CanonicalString returns the string-to-sign.
func CanonicalString(method, path, timestamp, nonce, body string) string {
	return method + "\n" + path + "\n" + timestamp + "\n" + nonce + "\n" + body + "\n"
}

// NewNonce returns a 32-character hex nonce.
func NewNonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ParseAuthorization splits a token into its key=value fields.
func ParseAuthorization(token string) (map[string]string, error) {
	rest, ok := strings.CutPrefix(token, Scheme+" ")
	if !ok {
		return nil, fmt.Errorf("%w: unexpected scheme", domain.ErrInvalidSignature)
	}
	fields := make(map[string]string, 5)
	for _, part := range strings.Split(rest, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("%w: malformed field %q", domain.ErrInvalidSignature, part)
		}
		fields[k] = v
	}
	return fields, nil
}

// Verify checks an authorization token against body with pub.
func Verify(pub *rsa.PublicKey, token, body string) error {
	fields, err := ParseAuthorization(token)
	if err != nil {
		return err
	}
	sig, err := base64.StdEncoding.DecodeString(fields["signature"])
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}
	digest := sha256.Sum256([]byte(CanonicalString(RequestMethod, RequestPath,
		fields["timestamp"], fields["nonce_str"], body)))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}
	return nil
}
