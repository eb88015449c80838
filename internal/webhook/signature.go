package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// signaturePrefix is the scheme prefix GitHub puts on the
// X-Hub-Signature-256 header value.
const signaturePrefix = "sha256="

// SignPayload computes the hex HMAC-SHA256 signature of a payload,
// including the scheme prefix. Used by tests and by any tooling that
// replays deliveries.
func SignPayload(payload, secret []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write(payload)
	return signaturePrefix + hex.EncodeToString(h.Sum(nil))
}

// ValidateSignature verifies a delivery's X-Hub-Signature-256 header
// against the raw payload.
func ValidateSignature(payload []byte, header string, secret []byte) error {
	if header == "" {
		return fmt.Errorf("missing signature header")
	}
	if !strings.HasPrefix(header, signaturePrefix) {
		return fmt.Errorf("invalid signature scheme")
	}

	got, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}

	h := hmac.New(sha256.New, secret)
	h.Write(payload)
	want := h.Sum(nil)

	if !hmac.Equal(got, want) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}
