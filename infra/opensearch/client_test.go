package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/mstgnz/academypay/infra/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCluster struct {
	mu      sync.Mutex
	indices map[string]bool
	docs    map[string][]string
}

func newFakeCluster(t *testing.T) (*fakeCluster, *httptest.Server) {
	t.Helper()
	fc := &fakeCluster{indices: map[string]bool{}, docs: map[string][]string{}}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fc.mu.Lock()
		defer fc.mu.Unlock()

		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		index := parts[0]
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodHead:
			if !fc.indices[index] {
				w.WriteHeader(http.StatusNotFound)
			}
		case r.Method == http.MethodPut && len(parts) == 1:
			fc.indices[index] = true
			w.Write([]byte(`{"acknowledged":true}`))
		case len(parts) >= 2 && parts[1] == "_doc":
			body, _ := io.ReadAll(r.Body)
			fc.docs[index] = append(fc.docs[index], string(body))
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"result":"created"}`))
		case len(parts) == 2 && parts[1] == "_search":
			var hits []map[string]json.RawMessage
			for _, doc := range fc.docs[index] {
				hits = append(hits, map[string]json.RawMessage{"_source": json.RawMessage(doc)})
			}
			resp, _ := json.Marshal(map[string]any{"hits": map[string]any{"hits": hits}})
			w.Write(resp)
		default:
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"unsupported"}`))
		}
	}))
	t.Cleanup(server.Close)
	return fc, server
}

func TestNewClient_CreatesIndices(t *testing.T) {
	fc, server := newFakeCluster(t)

	client, err := NewClient(&config.AppConfig{OpenSearchURL: server.URL, EnableLogging: true})
	require.NoError(t, err)
	require.NotNil(t, client.GetClient())
	assert.True(t, client.IsEnabled())

	fc.mu.Lock()
	defer fc.mu.Unlock()
	assert.True(t, fc.indices[AuditIndex])
	assert.True(t, fc.indices[SystemLogIndex])
}

func TestNewClient_Disabled(t *testing.T) {
	fc, server := newFakeCluster(t)

	client, err := NewClient(&config.AppConfig{OpenSearchURL: server.URL, EnableLogging: false})
	require.NoError(t, err)
	assert.False(t, client.IsEnabled())

	fc.mu.Lock()
	defer fc.mu.Unlock()
	assert.Empty(t, fc.indices)
}

func TestLogger_IndexAndSearch(t *testing.T) {
	fc, server := newFakeCluster(t)

	client, err := NewClient(&config.AppConfig{OpenSearchURL: server.URL, EnableLogging: true})
	require.NoError(t, err)
	logger := NewLogger(client)
	require.True(t, logger.Enabled())

	ctx := context.Background()
	require.NoError(t, logger.IndexDocument(ctx, AuditIndex, "doc-1", map[string]string{"payment_id": "p-1"}))
	require.NoError(t, logger.LogSystemEvent(ctx, map[string]string{"message": "started"}))

	fc.mu.Lock()
	assert.Len(t, fc.docs[AuditIndex], 1)
	assert.Len(t, fc.docs[SystemLogIndex], 1)
	fc.mu.Unlock()

	docs, err := logger.Search(ctx, AuditIndex, map[string]any{"match_all": map[string]any{}}, 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.JSONEq(t, `{"payment_id":"p-1"}`, string(docs[0]))
}

func TestLogger_Disabled(t *testing.T) {
	var nilLogger *Logger
	assert.False(t, nilLogger.Enabled())
	assert.NoError(t, nilLogger.IndexDocument(context.Background(), AuditIndex, "", map[string]string{}))

	_, server := newFakeCluster(t)
	client, err := NewClient(&config.AppConfig{OpenSearchURL: server.URL})
	require.NoError(t, err)
	_, err = NewLogger(client).Search(context.Background(), AuditIndex, nil, 10)
	assert.Error(t, err)
}

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains string
		hidden   string
	}{
		{"json api key", `{"apiKey":"abc123","amount":50}`, `"apiKey":"***REDACTED***"`, "abc123"},
		{"json signature", `{"signatureHash": "deadbeef"}`, `"signatureHash": "***REDACTED***"`, "deadbeef"},
		{"query hmac", `obj=1&hmac=cafe01&x=2`, `hmac=***REDACTED***&x=2`, "cafe01"},
		{"untouched", `{"amount":"50.00"}`, `"amount":"50.00"`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := SanitizeForLog(tt.input)
			assert.Contains(t, out, tt.contains)
			if tt.hidden != "" {
				assert.NotContains(t, out, tt.hidden)
			}
		})
	}
}
