package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateConfigFields(t *testing.T) {
	fields := []ConfigField{
		{Key: "apiKey", Required: true, Type: "string", MinLength: 8},
		{Key: "secretKey", Required: true, Type: "string", Pattern: `^sk_`},
		{Key: "expiry", Required: false, Type: "number"},
		{Key: "baseUrl", Required: false, Type: "url"},
		{Key: "sandbox", Required: false, Type: "boolean"},
		{Key: "label", Required: false, Type: "string", MaxLength: 5},
	}

	tests := []struct {
		name      string
		config    map[string]string
		expectErr string
	}{
		{"valid minimal", map[string]string{"apiKey": "12345678", "secretKey": "sk_1"}, ""},
		{"valid full", map[string]string{"apiKey": "12345678", "secretKey": "sk_1", "expiry": "72", "baseUrl": "https://x.io", "sandbox": "true", "label": "abc"}, ""},
		{"missing required", map[string]string{"secretKey": "sk_1"}, "required field 'apiKey' is missing"},
		{"blank required", map[string]string{"apiKey": "   ", "secretKey": "sk_1"}, "cannot be empty"},
		{"too short", map[string]string{"apiKey": "123", "secretKey": "sk_1"}, "apiKey"},
		{"pattern mismatch", map[string]string{"apiKey": "12345678", "secretKey": "pk_1"}, "does not match"},
		{"bad number", map[string]string{"apiKey": "12345678", "secretKey": "sk_1", "expiry": "soon"}, "must be a number"},
		{"bad url", map[string]string{"apiKey": "12345678", "secretKey": "sk_1", "baseUrl": "x.io"}, "absolute URL"},
		{"bad boolean", map[string]string{"apiKey": "12345678", "secretKey": "sk_1", "sandbox": "yes"}, "'true' or 'false'"},
		{"too long", map[string]string{"apiKey": "12345678", "secretKey": "sk_1", "label": "abcdef"}, "label"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfigFields("test", tt.config, fields)
			if tt.expectErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.expectErr)
		})
	}
}
