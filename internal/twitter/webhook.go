package twitter

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
)

// SignatureHeader carries the payload signature on webhook event posts.
const SignatureHeader = "X-Twitter-Webhooks-Signature"

// signaturePrefix marks the digest algorithm in both the CRC response
// and the payload signature header.
const signaturePrefix = "sha256="

// ErrBadSignature marks webhook payloads that fail authentication.
var ErrBadSignature = errors.NewStd("webhook signature mismatch")

// CRCResponse is the challenge handshake reply body.
type CRCResponse struct {
	ResponseToken string `json:"response_token"`
}

// CRCResponseToken answers a challenge handshake: base64 HMAC-SHA256 of
// the token under the consumer secret, prefixed with the algorithm tag.
// The result is deterministic for a given token and secret.
func CRCResponseToken(crcToken, consumerSecret string) string {
	return signaturePrefix + base64.StdEncoding.EncodeToString(computeHMAC([]byte(crcToken), consumerSecret))
}

// ValidateSignature verifies a webhook payload against its signature
// header. The digest comparison is constant time. Any failure must be
// treated as a validation rejection before the payload is parsed.
func ValidateSignature(header string, payload []byte, consumerSecret string) error {
	if consumerSecret == "" {
		return errors.Newf("webhook consumer secret is not configured").
			Category(errors.CategoryConfiguration).
			Component("twitter").
			Context("operation", "validate_signature").
			Build()
	}

	badSignature := func(reason string) error {
		logger.Warn("webhook payload rejected", "reason", reason)
		return errors.Newf("%w: %s", ErrBadSignature, reason).
			Category(errors.CategoryValidation).
			Component("twitter").
			Context("operation", "validate_signature").
			Context("reason", reason).
			Build()
	}

	if header == "" {
		return badSignature("missing signature header")
	}
	if !strings.HasPrefix(header, signaturePrefix) {
		return badSignature("unexpected digest algorithm")
	}

	provided, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return badSignature("signature is not valid base64")
	}

	expected := computeHMAC(payload, consumerSecret)
	if !hmac.Equal(provided, expected) {
		return badSignature("digest mismatch")
	}
	return nil
}

func computeHMAC(message []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return mac.Sum(nil)
}
