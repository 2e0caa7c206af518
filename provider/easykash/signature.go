package easykash

import (
	"bytes"
	"crypto/sha512"
	"encoding/json"
	"strings"

	"github.com/mstgnz/academypay/provider"
)

// signedFields is the order EasyKash concatenates callback fields in
// before signing.
var signedFields = []string{
	"ProductCode",
	"Amount",
	"ProductType",
	"PaymentMethod",
	"status",
	"easykashRef",
	"customerReference",
}

// VerifySignature checks an EasyKash callback body against signature, the
// hex HMAC-SHA512 of the signed fields keyed with the tenant secret key.
func VerifySignature(rawPayload []byte, signature, secret string) bool {
	message, ok := canonical(rawPayload)
	if !ok {
		return false
	}
	return provider.EqualHMAC(sha512.New, secret, message, signature)
}

// Sign computes the signature EasyKash would attach to rawPayload.
func Sign(rawPayload []byte, secret string) string {
	message, _ := canonical(rawPayload)
	return provider.SignHMAC(sha512.New, secret, message)
}

func canonical(rawPayload []byte) ([]byte, bool) {
	fields, err := decodeFields(rawPayload)
	if err != nil {
		return nil, false
	}

	var b strings.Builder
	for _, key := range signedFields {
		b.WriteString(fields[key])
	}
	return []byte(b.String()), true
}

// decodeFields flattens the top level of a callback into strings. Numbers
// keep their literal text so the signed message matches what was sent.
func decodeFields(rawPayload []byte) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(rawPayload))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			fields[k] = val
		case json.Number:
			fields[k] = val.String()
		case bool:
			if val {
				fields[k] = "1"
			}
		case nil:
		default:
			// nested values are not part of the signed message
		}
	}
	return fields, nil
}
