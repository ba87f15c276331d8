package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Sign возвращает hex(HMAC-SHA256(secret, parts joined by "|")).
func Sign(secret string, parts ...string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature сравнивает подпись за постоянное время.
func VerifySignature(secret, signature string, parts ...string) error {
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) != sha256.Size {
		return domain.ErrCallbackMalformed
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(parts, "|")))
	if !hmac.Equal(got, mac.Sum(nil)) {
		return domain.ErrSignatureMismatch
	}
	return nil
}
