package paysign

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fableworks/coinledger/internal/domain"
)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func signingKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		k, err := GenerateKey()
		if err != nil {
			t.Fatalf("GenerateKey: %v", err)
		}
		testKey = k
	})
	return testKey
}

func testSigner(t *testing.T) *Signer {
	s := New(Config{
		AppID:      "tt0000000000",
		KeyVersion: "1",
		NotifyURL:  "https://example.com/api/payment/callback",
		ImageURL:   "https://example.com/coin.png",
	}, signingKey(t))
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	s.nonce = func() string { return "0123456789abcdef0123456789abcdef" }
	return s
}

var (
	testOrder = domain.Order{OrderNo: "CL20240101120000123456", Amount: 500, Coins: 10}
	testPlan  = domain.Plan{ProductID: "coins_10", Name: "10 coins", Coins: 10, Price: 500}
)

func TestCanonicalString(t *testing.T) {
	got := CanonicalString("POST", "/requestOrder", "1700000000", "abc", `{"a":1}`)
	want := "POST\n/requestOrder\n1700000000\nabc\n{\"a\":1}\n"
	if got != want {
		t.Errorf("CanonicalString = %q, want %q", got, want)
	}
}

func TestSignOrderVerifies(t *testing.T) {
	s := testSigner(t)

	signed, err := s.SignOrder(testOrder, testPlan)
	if err != nil {
		t.Fatalf("SignOrder: %v", err)
	}
	if !strings.HasPrefix(signed.Authorization, "SHA256-RSA2048 appid=tt0000000000,nonce_str=0123456789abcdef0123456789abcdef,timestamp=1700000000,key_version=1,signature=") {
		t.Errorf("Authorization = %q", signed.Authorization)
	}
	if err := Verify(s.PublicKey(), signed.Authorization, signed.Body); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestVerifyDetectsTamper(t *testing.T) {
	s := testSigner(t)
	signed, err := s.SignOrder(testOrder, testPlan)
	if err != nil {
		t.Fatal(err)
	}

	tampered := strings.Replace(signed.Body, `"totalAmount":500`, `"totalAmount":1`, 1)
	if tampered == signed.Body {
		t.Fatal("body did not contain totalAmount")
	}
	if err := Verify(s.PublicKey(), signed.Authorization, tampered); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Errorf("Verify(tampered) = %v, want ErrInvalidSignature", err)
	}

	other, _ := GenerateKey()
	if err := Verify(&other.PublicKey, signed.Authorization, signed.Body); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Errorf("Verify(other key) = %v, want ErrInvalidSignature", err)
	}
}

func TestOrderBody(t *testing.T) {
	s := testSigner(t)
	body, err := s.OrderBody(testOrder, testPlan)
	if err != nil {
		t.Fatal(err)
	}

	var got struct {
		SkuList []struct {
			SkuID string `json:"skuId"`
			Price int64  `json:"price"`
			Type  int    `json:"type"`
		} `json:"skuList"`
		OutOrderNo       string `json:"outOrderNo"`
		TotalAmount      int64  `json:"totalAmount"`
		PayExpireSeconds int    `json:"payExpireSeconds"`
		PayNotifyURL     string `json:"payNotifyUrl"`
		OrderEntrySchema struct {
			Path   string `json:"path"`
			Params string `json:"params"`
		} `json:"orderEntrySchema"`
	}
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if got.OutOrderNo != testOrder.OrderNo || got.TotalAmount != 500 {
		t.Errorf("order fields = %+v", got)
	}
	if len(got.SkuList) != 1 || got.SkuList[0].SkuID != "coins_10" || got.SkuList[0].Type != 701 {
		t.Errorf("skuList = %+v", got.SkuList)
	}
	if got.PayExpireSeconds != 3600 {
		t.Errorf("payExpireSeconds = %d, want 3600", got.PayExpireSeconds)
	}
	if got.OrderEntrySchema.Params != `{"order_no":"CL20240101120000123456"}` {
		t.Errorf("params = %q", got.OrderEntrySchema.Params)
	}
	if strings.Contains(body, `&`) || strings.HasSuffix(body, "\n") {
		t.Errorf("body should be compact and unescaped: %q", body)
	}
}

func TestSignOrderWithoutKey(t *testing.T) {
	s := New(Config{AppID: "tt"}, nil)
	if s.Ready() {
		t.Error("Ready() = true without key")
	}
	if _, err := s.SignOrder(testOrder, testPlan); !errors.Is(err, domain.ErrSigningKeyUnavailable) {
		t.Errorf("SignOrder = %v, want ErrSigningKeyUnavailable", err)
	}
}

func TestKeyRoundTrip(t *testing.T) {
	key := signingKey(t)
	dir := t.TempDir()

	pemBytes, err := EncodePrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "private_key.pem")
	if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadPrivateKey(path)
	if err != nil {
		t.Fatalf("LoadPrivateKey: %v", err)
	}
	if !loaded.Equal(key) {
		t.Error("loaded key differs")
	}

	missing, err := LoadPrivateKey(filepath.Join(dir, "absent.pem"))
	if err != nil || missing != nil {
		t.Errorf("LoadPrivateKey(missing) = %v, %v; want nil, nil", missing, err)
	}

	if _, err := ParsePrivateKey([]byte("not a key")); err == nil {
		t.Error("ParsePrivateKey(garbage) should fail")
	}
	pub, err := EncodePublicKey(&key.PublicKey)
	if err != nil || !strings.Contains(string(pub), "BEGIN PUBLIC KEY") {
		t.Errorf("EncodePublicKey = %q, %v", pub, err)
	}
}

func TestCallbackVerifier(t *testing.T) {
	now := time.Unix(1700000000, 0)
	msg := `{"cp_orderno":"CL1","status":"SUCCESS"}`
	good := CallbackSignature("secret", "1700000000", "n1", msg)

	tests := []struct {
		name      string
		token     string
		timestamp string
		signature string
		wantErr   bool
	}{
		{"valid", "secret", "1700000000", good, false},
		{"uppercase hex", "secret", "1700000000", strings.ToUpper(good), false},
		{"wrong signature", "secret", "1700000000", strings.Repeat("0", 40), true},
		{"missing signature", "secret", "1700000000", "", true},
		{"stale timestamp", "secret", "1699990000", CallbackSignature("secret", "1699990000", "n1", msg), true},
		{"bad timestamp", "secret", "yesterday", CallbackSignature("secret", "yesterday", "n1", msg), true},
		{"no token configured", "", "1700000000", CallbackSignature("", "1700000000", "n1", msg), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewCallbackVerifier(tt.token, 10*time.Minute)
			v.SetClock(func() time.Time { return now })
			err := v.Verify(tt.timestamp, "n1", msg, tt.signature)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrInvalidSignature) {
					t.Errorf("Verify = %v, want ErrInvalidSignature", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Verify = %v, want nil", err)
			}
		})
	}
}

func TestCallbackSignatureShape(t *testing.T) {
	a := CallbackSignature("t", "1", "n", "m")
	if len(a) != 40 {
		t.Fatalf("len = %d, want 40", len(a))
	}
	if a == CallbackSignature("t", "1", "n", "m2") {
		t.Error("different msg produced same signature")
	}
}
