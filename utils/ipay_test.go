package utils

import (
	"net/url"
	"strings"
	"testing"

	"lms/config"
	"lms/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setTestConfig(vendorID, secret string) {
	config.AppConfig = &config.Config{
		IPayVendorID:  vendorID,
		IPaySecretKey: secret,
		FrontendURL:   "https://frontend.test",
		BackendURL:    "https://backend.test",
		JWTKey:        "test-jwt-key",
	}
}

func TestVerifyCallbackSignature(t *testing.T) {
	setTestConfig("VENDOR1", "topsecret")

	fields := map[string]string{
		"live": "1", "oid": "42", "inv": "42", "ttl": "5000",
		"tel": "254700000000", "eml": "student@example.com", "vid": "VENDOR1",
		"curr": "KES", "p1": "42", "p2": "7", "p3": "", "p4": "",
		"cbk": "https://backend.test/enrollment/callback", "cst": "1", "crl": "2",
	}
	fields["hsh"] = hmacSHA1Hex("topsecret", ipayDatastring(fields))

	assert.True(t, VerifyCallbackSignature(fields))

	t.Run("tampered field", func(t *testing.T) {
		tampered := map[string]string{}
		for k, v := range fields {
			tampered[k] = v
		}
		tampered["ttl"] = "1"
		assert.False(t, VerifyCallbackSignature(tampered))
	})

	t.Run("missing hash", func(t *testing.T) {
		noHash := map[string]string{"live": "1", "oid": "42"}
		assert.False(t, VerifyCallbackSignature(noHash))
	})

	t.Run("uppercase hash accepted", func(t *testing.T) {
		upper := map[string]string{}
		for k, v := range fields {
			upper[k] = v
		}
		upper["hsh"] = strings.ToUpper(fields["hsh"])
		assert.True(t, VerifyCallbackSignature(upper))
	})
}

func TestVerifyCallbackSignatureDemoMode(t *testing.T) {
	setTestConfig("demo", "")

	assert.True(t, VerifyCallbackSignature(map[string]string{"status": "success"}))
	assert.False(t, VerifyCallbackSignature(map[string]string{"oid": "42"}))
}

func TestGeneratePaymentURL(t *testing.T) {
	setTestConfig("demo", "")

	payment := &models.Payment{Amount: 5000, Currency: "KES"}
	payment.ID = 42
	user := &models.User{Email: "student@example.com", Mobile: "0712345678"}
	user.ID = 7

	raw := GeneratePaymentURL(payment, user)
	parsed, err := url.Parse(raw)
	require.NoError(t, err)

	q := parsed.Query()
	assert.Equal(t, "0", q.Get("live"), "demo mode must not be live")
	assert.Equal(t, "demo", q.Get("vid"))
	assert.Equal(t, "42", q.Get("oid"))
	assert.Equal(t, "42", q.Get("p1"))
	assert.Equal(t, "7", q.Get("p2"))
	assert.Equal(t, "254712345678", q.Get("tel"))
	assert.Equal(t, "https://backend.test/enrollment/callback", q.Get("cbk"))
	assert.NotEmpty(t, q.Get("hsh"))
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"0712345678", "254712345678"},
		{"254712345678", "254712345678"},
		{"+254 712 345 678", "254712345678"},
		{"712345678", "254712345678"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizePhone(tt.input), "input %q", tt.input)
	}
}

func TestVerifyFormBuilderSignature(t *testing.T) {
	payload := []byte(`{"form_id":"F1","submission_id":"S1"}`)
	secret := "webhook-secret"

	// Known-good signature computed with the same primitive the provider uses
	valid := hmacSHA256Hex(secret, payload)

	assert.True(t, VerifyFormBuilderSignature(payload, valid, secret))
	assert.True(t, VerifyFormBuilderSignature(payload, strings.ToUpper(valid), secret))
	assert.False(t, VerifyFormBuilderSignature(payload, valid, "wrong-secret"))
	assert.False(t, VerifyFormBuilderSignature([]byte("tampered"), valid, secret))
	assert.False(t, VerifyFormBuilderSignature(payload, "", secret))
	assert.False(t, VerifyFormBuilderSignature(payload, valid, ""))
}
