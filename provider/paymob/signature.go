package paymob

import (
	"bytes"
	"crypto/sha512"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/mstgnz/academypay/provider"
)

// hmacFields is Paymob's ordered field list for transaction callbacks.
var hmacFields = []string{
	"amount_cents",
	"created_at",
	"currency",
	"error_occured",
	"has_parent_transaction",
	"id",
	"integration_id",
	"is_3d_secure",
	"is_auth",
	"is_capture",
	"is_refunded",
	"is_standalone_payment",
	"is_voided",
	"order.id",
	"owner",
	"pending",
	"source_data.pan",
	"source_data.sub_type",
	"source_data.type",
	"success",
}

// VerifySignature checks a Paymob transaction callback body against the
// hmac query parameter, an HMAC-SHA512 over the ordered obj fields.
func VerifySignature(rawPayload []byte, signature, secret string) bool {
	obj, err := decodeObject(rawPayload)
	if err != nil {
		return false
	}
	return provider.EqualHMAC(sha512.New, secret, canonical(obj), signature)
}

// Sign computes the hmac Paymob would send for rawPayload.
func Sign(rawPayload []byte, secret string) string {
	obj, _ := decodeObject(rawPayload)
	return provider.SignHMAC(sha512.New, secret, canonical(obj))
}

func canonical(obj map[string]any) []byte {
	var b strings.Builder
	for _, path := range hmacFields {
		b.WriteString(stringify(lookup(obj, path)))
	}
	return []byte(b.String())
}

// decodeObject returns the transaction object of a callback envelope.
func decodeObject(rawPayload []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(rawPayload))
	dec.UseNumber()

	var envelope struct {
		Type string         `json:"type"`
		Obj  map[string]any `json:"obj"`
	}
	if err := dec.Decode(&envelope); err != nil {
		return nil, err
	}
	if envelope.Obj == nil {
		return nil, errors.New("paymob: callback has no obj")
	}
	return envelope.Obj, nil
}

func lookup(obj map[string]any, path string) any {
	var cur any = obj
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
