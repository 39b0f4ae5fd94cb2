package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSignature(t *testing.T) {
	secret := "channel-secret"
	body := []byte(`{"destination":"U0","events":[]}`)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	valid := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	assert.Equal(t, valid, Sign(secret, body))

	flippedBody := append([]byte{}, body...)
	flippedBody[5] ^= 0x01

	tests := []struct {
		name      string
		secret    string
		body      []byte
		signature string
		wantErr   bool
	}{
		{"valid", secret, body, valid, false},
		{"empty signature", secret, body, "", true},
		{"not base64", secret, body, "%%%", true},
		{"wrong secret", "other", body, valid, true},
		{"flipped body byte", secret, flippedBody, valid, true},
		{"truncated signature", secret, body, valid[:len(valid)-4], true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSignature(tt.secret, tt.body, tt.signature)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSignature)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateSignatureEveryFlippedSignatureByte(t *testing.T) {
	secret := "s3cr3t"
	body := []byte("payload")
	raw := hmac.New(sha256.New, []byte(secret))
	raw.Write(body)
	sum := raw.Sum(nil)

	for i := range sum {
		flipped := append([]byte{}, sum...)
		flipped[i] ^= 0x80
		assert.ErrorIs(t, ValidateSignature(secret, body, base64.StdEncoding.EncodeToString(flipped)), ErrInvalidSignature)
	}
}
