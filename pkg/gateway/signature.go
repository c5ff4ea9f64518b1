package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the callback signature.
const SignatureHeader = "X-Sign"

// Sign returns the hex HMAC-SHA256 of body keyed with secret.
func Sign(body []byte, secret string) string {
	return hex.EncodeToString(digest(body, secret))
}

// Verify reports whether signature is the HMAC-SHA256 of the exact raw body
// bytes under secret. The signature may be hex or standard base64.
// It fails closed: an empty secret, body or signature never verifies.
func Verify(rawBody []byte, signature, secret string) bool {
	signature = strings.TrimSpace(signature)
	if secret == "" || len(rawBody) == 0 || signature == "" {
		return false
	}
	provided, ok := decodeSignature(signature)
	if !ok {
		return false
	}
	return hmac.Equal(digest(rawBody, secret), provided)
}

func digest(body []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

func decodeSignature(sig string) ([]byte, bool) {
	if len(sig) == hex.EncodedLen(sha256.Size) {
		if b, err := hex.DecodeString(sig); err == nil {
			return b, true
		}
	}
	if b, err := base64.StdEncoding.DecodeString(sig); err == nil && len(b) == sha256.Size {
		return b, true
	}
	return nil, false
}
