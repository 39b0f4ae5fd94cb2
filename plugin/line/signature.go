package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"

	"github.com/pkg/errors"
)

// SignatureHeader carries base64(HMAC-SHA256(channel secret, raw body)).
const SignatureHeader = "X-Line-Signature"

// ErrInvalidSignature is returned for a missing, malformed or mismatched signature.
var ErrInvalidSignature = errors.New("invalid signature")

// ValidateSignature checks signature against the raw request body.
// The comparison runs in constant time.
func ValidateSignature(secret string, body []byte, signature string) error {
	if signature == "" {
		return ErrInvalidSignature
	}
	decoded, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return ErrInvalidSignature
	}
	if !hmac.Equal(decoded, computeMAC(secret, body)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the signature the platform would send for body.
func Sign(secret string, body []byte) string {
	return base64.StdEncoding.EncodeToString(computeMAC(secret, body))
}

func computeMAC(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
