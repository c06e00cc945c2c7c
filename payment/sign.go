// Package payment talks to the Cryptomus payment gateway: request signing,
// webhook verification and the payment create/info calls.
package payment

import (
	"bytes"
	"crypto/md5"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrSignatureMismatch is returned when a webhook signature does not match its body
	ErrSignatureMismatch = errors.New("signature mismatch")
	// ErrSignatureMissing is returned when a webhook carries no signature at all
	ErrSignatureMissing = errors.New("signature missing")
)

// signField is the body field the gateway stores its signature in
const signField = "sign"

// Sign serializes payload as JSON and signs it.
// With unescape set, escaped forward slashes are written as plain slashes.
func Sign(payload any, apiKey string, unescape bool) (string, error) {
	data, err := encodeJSON(payload)
	if err != nil {
		return "", err
	}
	if unescape {
		data = unescapeSlashes(data)
	}
	return SignBytes(data, apiKey), nil
}

// SignBytes returns md5_hex(base64(data) + apiKey), the gateway's signing scheme
func SignBytes(data []byte, apiKey string) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	sum := md5.Sum([]byte(encoded + apiKey))
	return hex.EncodeToString(sum[:])
}

// Verify checks the sign field of a raw webhook body against the rest of the body.
// The body is canonicalized with key order preserved, so any change to a value or key
// changes the signature. Both slash encodings are accepted because the gateway
// signs with slashes escaped while JSON.stringify style signers do not.
func Verify(body []byte, apiKey string) error {
	claimed, canonical, err := splitSignature(body)
	if err != nil {
		return err
	}
	if claimed == "" {
		return ErrSignatureMissing
	}

	candidates := [][]byte{unescapeSlashes(canonical), escapeSlashes(canonical)}
	for _, candidate := range candidates {
		expected := SignBytes(candidate, apiKey)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(claimed)) == 1 {
			return nil
		}
	}
	return ErrSignatureMismatch
}

// splitSignature extracts the top-level sign field and returns the canonical JSON of the remaining body
func splitSignature(body []byte) (string, []byte, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return "", nil, fmt.Errorf("invalid webhook body: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return "", nil, errors.New("invalid webhook body: expected a JSON object")
	}

	var (
		buf    bytes.Buffer
		claim  string
		fields int
	)
	buf.WriteByte('{')
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return "", nil, fmt.Errorf("invalid webhook body: %w", err)
		}
		key := keyTok.(string)

		if key == signField {
			var value any
			if err := dec.Decode(&value); err != nil {
				return "", nil, fmt.Errorf("invalid webhook body: %w", err)
			}
			if s, ok := value.(string); ok {
				claim = s
			}
			continue
		}

		if fields > 0 {
			buf.WriteByte(',')
		}
		fields++
		if err := writeString(&buf, key); err != nil {
			return "", nil, err
		}
		buf.WriteByte(':')
		if err := writeCanonical(&buf, dec); err != nil {
			return "", nil, fmt.Errorf("invalid webhook body: %w", err)
		}
	}
	if _, err := dec.Token(); err != nil {
		return "", nil, fmt.Errorf("invalid webhook body: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return "", nil, errors.New("invalid webhook body: trailing data")
	}
	buf.WriteByte('}')

	return claim, buf.Bytes(), nil
}

// writeCanonical copies the next JSON value from dec into buf in compact form,
// keeping object key order and re-encoding strings without HTML escaping.
func writeCanonical(buf *bytes.Buffer, dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}

	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			buf.WriteByte('{')
			for i := 0; dec.More(); i++ {
				if i > 0 {
					buf.WriteByte(',')
				}
				keyTok, err := dec.Token()
				if err != nil {
					return err
				}
				if err := writeString(buf, keyTok.(string)); err != nil {
					return err
				}
				buf.WriteByte(':')
				if err := writeCanonical(buf, dec); err != nil {
					return err
				}
			}
			if _, err := dec.Token(); err != nil {
				return err
			}
			buf.WriteByte('}')
		case '[':
			buf.WriteByte('[')
			for i := 0; dec.More(); i++ {
				if i > 0 {
					buf.WriteByte(',')
				}
				if err := writeCanonical(buf, dec); err != nil {
					return err
				}
			}
			if _, err := dec.Token(); err != nil {
				return err
			}
			buf.WriteByte(']')
		default:
			return fmt.Errorf("unexpected delimiter %q", v)
		}
	case string:
		return writeString(buf, v)
	case json.Number:
		buf.WriteString(v.String())
	case bool:
		if v {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case nil:
		buf.WriteString("null")
	default:
		return fmt.Errorf("unexpected token %v", tok)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	data, err := encodeJSON(s)
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}

// encodeJSON marshals v without HTML escaping and without the encoder's trailing newline
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func unescapeSlashes(data []byte) []byte {
	return bytes.ReplaceAll(data, []byte(`\/`), []byte(`/`))
}

func escapeSlashes(data []byte) []byte {
	return bytes.ReplaceAll(unescapeSlashes(data), []byte(`/`), []byte(`\/`))
}
