package provider

import (
	"crypto/hmac"
	"encoding/hex"
	"hash"
	"strings"
)

// EqualHMAC computes an HMAC of message with secret and compares its hex
// form to provided in constant time. Empty secrets and malformed hex never
// match.
func EqualHMAC(newHash func() hash.Hash, secret string, message []byte, provided string) bool {
	if secret == "" || provided == "" {
		return false
	}

	want, err := hex.DecodeString(strings.TrimSpace(provided))
	if err != nil {
		return false
	}

	mac := hmac.New(newHash, []byte(secret))
	mac.Write(message)
	return hmac.Equal(mac.Sum(nil), want)
}

// SignHMAC returns the lowercase hex HMAC of message.
func SignHMAC(newHash func() hash.Hash, secret string, message []byte) string {
	mac := hmac.New(newHash, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}
