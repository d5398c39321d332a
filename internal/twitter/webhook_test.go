package twitter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
)

func TestCRCResponseToken_KnownVectors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		token  string
		secret string
		want   string
	}{
		{
			name:   "rfc 4231 case 2",
			token:  "what do ya want for nothing?",
			secret: "Jefe",
			want:   "sha256=W9zBRr9gdU5qBCQmCJV1x1oAPwidJzmDnexYuWTsOEM=",
		},
		{
			name:   "challenge token",
			token:  "challenge-token-123",
			secret: "test-consumer-secret",
			want:   "sha256=DbSl8B/sSHhYmTZiVlZmGNbcZtNb2Ov2Lz+fh9GCrzo=",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := CRCResponseToken(tt.token, tt.secret)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCRCResponseToken_Deterministic(t *testing.T) {
	t.Parallel()

	first := CRCResponseToken("some-challenge", "secret")
	second := CRCResponseToken("some-challenge", "secret")
	assert.Equal(t, first, second)

	other := CRCResponseToken("another-challenge", "secret")
	assert.NotEqual(t, first, other, "distinct challenges must produce distinct tokens")
}

func TestCRCResponse_WireFormat(t *testing.T) {
	t.Parallel()

	body, err := json.Marshal(CRCResponse{ResponseToken: "sha256=abc"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"response_token":"sha256=abc"}`, string(body))
}

func TestValidateSignature_Accept(t *testing.T) {
	t.Parallel()

	secret := "test-consumer-secret"
	payload := []byte(`{"tweet_create_events":[{"id_str":"1"}]}`)

	// The payload signature uses the same HMAC construction as the CRC
	// handshake, so a valid header can be produced the same way.
	header := CRCResponseToken(string(payload), secret)

	require.NoError(t, ValidateSignature(header, payload, secret))
}

func TestValidateSignature_Reject(t *testing.T) {
	t.Parallel()

	secret := "test-consumer-secret"
	payload := []byte(`{"tweet_create_events":[{"id_str":"1"}]}`)
	validHeader := CRCResponseToken(string(payload), secret)

	tests := []struct {
		name    string
		header  string
		payload []byte
	}{
		{
			name:    "tampered payload",
			header:  validHeader,
			payload: []byte(`{"tweet_create_events":[{"id_str":"2"}]}`),
		},
		{
			name:    "wrong digest algorithm",
			header:  "md5=" + validHeader[len("sha256="):],
			payload: payload,
		},
		{
			name:    "missing header",
			header:  "",
			payload: payload,
		},
		{
			name:    "signature not base64",
			header:  "sha256=!!!not-base64!!!",
			payload: payload,
		},
		{
			name:    "signature for different secret",
			header:  CRCResponseToken(string(payload), "some-other-secret"),
			payload: payload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateSignature(tt.header, tt.payload, secret)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrBadSignature)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation),
				"signature failures must carry the validation category")
		})
	}
}

func TestValidateSignature_MissingSecret(t *testing.T) {
	t.Parallel()

	payload := []byte(`{}`)
	err := ValidateSignature("sha256=abc", payload, "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBadSignature,
		"a missing secret is an operator problem, not a forged request")
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}
