package paysign

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fableworks/coinledger/internal/domain"
)

// CallbackVerifier authenticates payment callbacks:
//
//	msg_signature == hex(sha1(join(sort([token, timestamp, nonce, msg]))))
//
// and rejects timestamps outside the replay window.
type CallbackVerifier struct {
	token  string
	window time.Duration
	now    func() time.Time
}

// NewCallbackVerifier creates a verifier. A zero window disables the
// timestamp check. An empty token rejects every callback.
func NewCallbackVerifier(token string, window time.Duration) *CallbackVerifier {
	return &CallbackVerifier{token: token, window: window, now: time.Now}
}

// SetClock overrides the time source.
func (v *CallbackVerifier) SetClock(now func() time.Time) { v.now = now }

// Verify returns domain.ErrInvalidSignature (wrapped) on any mismatch.
func (v *CallbackVerifier) Verify(timestamp, nonce, msg, signature string) error {
	if v.token == "" {
		return fmt.Errorf("%w: callback token not configured", domain.ErrInvalidSignature)
	}
	if signature == "" {
		return fmt.Errorf("%w: missing msg_signature", domain.ErrInvalidSignature)
	}

	if v.window > 0 {
		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: bad timestamp %q", domain.ErrInvalidSignature, timestamp)
		}
		skew := v.now().Sub(time.Unix(ts, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > v.window {
			return fmt.Errorf("%w: timestamp outside replay window", domain.ErrInvalidSignature)
		}
	}

	want := CallbackSignature(v.token, timestamp, nonce, msg)
	if subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToLower(signature))) != 1 {
		return fmt.Errorf("%w: signature mismatch", domain.ErrInvalidSignature)
	}
	return nil
}

// CallbackSignature computes the expected msg_signature.
func CallbackSignature(token, timestamp, nonce, msg string) string {
	parts := []string{token, timestamp, nonce, msg}
	sort.Strings(parts)
	sum := sha1.Sum([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:])
}
