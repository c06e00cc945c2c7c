package payment

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "gateway-api-key"

func referenceSign(json string, apiKey string) string {
	sum := md5.Sum([]byte(base64.StdEncoding.EncodeToString([]byte(json)) + apiKey))
	return hex.EncodeToString(sum[:])
}

func TestSign_MatchesReferenceScheme(t *testing.T) {
	req := CreatePaymentRequest{
		Amount:      "15",
		Currency:    "USD",
		OrderID:     "1-monthly-1700000000000-42",
		URLCallback: "https://deploy.example.com/api/payment/webhook",
	}

	got, err := Sign(req, testAPIKey, false)
	require.NoError(t, err)

	want := referenceSign(
		`{"amount":"15","currency":"USD","order_id":"1-monthly-1700000000000-42",`+
			`"url_callback":"https://deploy.example.com/api/payment/webhook","is_payment_multiple":false}`,
		testAPIKey,
	)
	assert.Equal(t, want, got)
}

func TestSign_Deterministic(t *testing.T) {
	payload := map[string]any{"b": 1, "a": "x/y", "html": "<tag>&"}

	first, err := Sign(payload, testAPIKey, true)
	require.NoError(t, err)
	for range 50 {
		again, err := Sign(payload, testAPIKey, true)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Len(t, first, 32)
}

func TestSign_DoesNotEscapeHTML(t *testing.T) {
	got, err := Sign(map[string]string{"d": "a<b>&c"}, testAPIKey, false)
	require.NoError(t, err)
	assert.Equal(t, referenceSign(`{"d":"a<b>&c"}`, testAPIKey), got)
}

func signedBody(unsigned string, sign string) []byte {
	return []byte(fmt.Sprintf(`%s,"sign":"%s"}`, unsigned[:len(unsigned)-1], sign))
}

func TestVerify(t *testing.T) {
	unsigned := `{"type":"payment","uuid":"62f88b36-a9d5-4fa6-aa26-e040c3dbf26d","order_id":"3-per_use-1700000000000-7",` +
		`"amount":"5.00","payment_amount":"5.00","is_final":true,"status":"paid",` +
		`"url":"https://pay.example.com/x","convert":{"to_currency":"USDT","rate":"1.0"},"txid":null,"network":["tron","eth"],` +
		`"additional_data":"{\"project_id\":3,\"order_type\":\"per_use\",\"quantity\":5,\"secret\":\"ABCDE-12345\"}"}`

	t.Run("valid signature", func(t *testing.T) {
		body := signedBody(unsigned, referenceSign(unsigned, testAPIKey))
		assert.NoError(t, Verify(body, testAPIKey))
	})

	t.Run("gateway escaped slashes in body", func(t *testing.T) {
		escaped := `{"url":"https:\/\/pay.example.com\/x","status":"paid"}`
		plain := `{"url":"https://pay.example.com/x","status":"paid"}`
		body := signedBody(escaped, referenceSign(plain, testAPIKey))
		assert.NoError(t, Verify(body, testAPIKey))
	})

	t.Run("signer escaped slashes", func(t *testing.T) {
		plain := `{"url":"https://pay.example.com/x","status":"paid"}`
		escaped := `{"url":"https:\/\/pay.example.com\/x","status":"paid"}`
		body := signedBody(plain, referenceSign(escaped, testAPIKey))
		assert.NoError(t, Verify(body, testAPIKey))
	})

	t.Run("sign field position does not matter", func(t *testing.T) {
		inner := `{"status":"paid","amount":"1"}`
		body := []byte(`{"sign":"` + referenceSign(inner, testAPIKey) + `","status":"paid","amount":"1"}`)
		assert.NoError(t, Verify(body, testAPIKey))
	})

	t.Run("whitespace in body is ignored", func(t *testing.T) {
		inner := `{"status":"paid","amount":"1"}`
		body := []byte("{\n  \"status\": \"paid\",\n  \"amount\": \"1\",\n  \"sign\": \"" + referenceSign(inner, testAPIKey) + "\"\n}")
		assert.NoError(t, Verify(body, testAPIKey))
	})

	t.Run("wrong api key", func(t *testing.T) {
		body := signedBody(unsigned, referenceSign(unsigned, testAPIKey))
		assert.True(t, errors.Is(Verify(body, "other-key"), ErrSignatureMismatch))
	})

	t.Run("missing sign", func(t *testing.T) {
		assert.True(t, errors.Is(Verify([]byte(unsigned), testAPIKey), ErrSignatureMissing))
	})

	t.Run("empty sign", func(t *testing.T) {
		assert.True(t, errors.Is(Verify(signedBody(unsigned, ""), testAPIKey), ErrSignatureMissing))
	})

	t.Run("not an object", func(t *testing.T) {
		err := Verify([]byte(`["sign"]`), testAPIKey)
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrSignatureMismatch))
	})

	t.Run("malformed json", func(t *testing.T) {
		assert.Error(t, Verify([]byte(`{"status":`), testAPIKey))
	})
}

// Changing any single byte of the signed content must invalidate the signature.
func TestVerify_TamperedBody(t *testing.T) {
	unsigned := `{"status":"paid","order_id":"3-per_use-1700000000000-7","amount":"5.00",` +
		`"additional_data":"{\"project_id\":3,\"quantity\":5}","is_final":true,"convert":{"rate":"1.0"}}`
	sign := referenceSign(unsigned, testAPIKey)
	original := signedBody(unsigned, sign)
	require.NoError(t, Verify(original, testAPIKey))

	// positions inside the unsigned part whose mutation keeps the JSON valid and changes content
	mutations := []struct {
		name string
		from string
		to   string
	}{
		{name: "status value", from: `"paid"`, to: `"paId"`},
		{name: "amount digit", from: `"5.00"`, to: `"6.00"`},
		{name: "nested quantity", from: `\"quantity\":5`, to: `\"quantity\":9`},
		{name: "project in additional data", from: `\"project_id\":3`, to: `\"project_id\":4`},
		{name: "boolean", from: `true`, to: `fals`},
		{name: "key name", from: `"amount"`, to: `"amounT"`},
		{name: "nested object", from: `"1.0"`, to: `"1.1"`},
	}

	for _, m := range mutations {
		t.Run(m.name, func(t *testing.T) {
			tampered := []byte(replaceOnce(string(original), m.from, m.to))
			require.NotEqual(t, string(original), string(tampered))
			assert.Error(t, Verify(tampered, testAPIKey))
		})
	}

	// exhaustive single-byte flips within string values: either invalid JSON or a mismatch
	for i := 0; i < len(unsigned)-1; i++ {
		tampered := append([]byte{}, original...)
		tampered[i] ^= 0x01
		assert.Error(t, Verify(tampered, testAPIKey), "byte %d", i)
	}
}

func replaceOnce(s, from, to string) string {
	for i := 0; i+len(from) <= len(s); i++ {
		if s[i:i+len(from)] == from {
			return s[:i] + to + s[i+len(from):]
		}
	}
	return s
}
