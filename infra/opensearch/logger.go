package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// Logger writes documents to OpenSearch indices
type Logger struct {
	client *Client
}

// NewLogger creates a new OpenSearch logger
func NewLogger(client *Client) *Logger {
	return &Logger{
		client: client,
	}
}

// Enabled reports whether documents are shipped at all
func (l *Logger) Enabled() bool {
	return l != nil && l.client != nil && l.client.IsEnabled()
}

// IndexDocument stores doc in index. An empty id lets OpenSearch assign one.
func (l *Logger) IndexDocument(ctx context.Context, index, id string, doc any) error {
	if !l.Enabled() {
		return nil
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index:      index,
		DocumentID: id,
		Body:       bytes.NewReader(body),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch error: %s", res.String())
	}

	return nil
}

// LogSystemEvent ships one application log entry
func (l *Logger) LogSystemEvent(ctx context.Context, entry any) error {
	return l.IndexDocument(ctx, SystemLogIndex, "", entry)
}

// Search runs query against index and returns the raw _source documents,
// newest first
func (l *Logger) Search(ctx context.Context, index string, query map[string]any, size int) ([]json.RawMessage, error) {
	if !l.Enabled() {
		return nil, fmt.Errorf("logging is disabled")
	}
	if size <= 0 {
		size = 100
	}

	searchQuery := map[string]any{
		"query": query,
		"sort": []map[string]any{
			{"timestamp": map[string]string{"order": "desc"}},
		},
		"size": size,
	}

	queryJSON, err := json.Marshal(searchQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	req := opensearchapi.SearchRequest{
		Index: []string{index},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("opensearch search error: %s", res.String())
	}

	var searchResult struct {
		Hits struct {
			Hits []struct {
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&searchResult); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}

	docs := make([]json.RawMessage, len(searchResult.Hits.Hits))
	for i, hit := range searchResult.Hits.Hits {
		docs[i] = hit.Source
	}
	return docs, nil
}

var sensitivePatterns = func() []*regexp.Regexp {
	fields := []string{
		"apiKey", "api_key", "secretKey", "secret_key", "hmacSecret", "webhookSecret",
		"password", "token", "client_secret", "authorization", "signatureHash", "hmac",
		"card_number", "cvv",
	}
	var out []*regexp.Regexp
	for _, field := range fields {
		out = append(out,
			regexp.MustCompile(fmt.Sprintf(`("%s"\s*:\s*)"[^"]*"`, regexp.QuoteMeta(field))),
			regexp.MustCompile(fmt.Sprintf(`(\b%s=)[^&\s"]+`, regexp.QuoteMeta(field))),
		)
	}
	return out
}()

// SanitizeForLog redacts credentials and signatures before data is stored
func SanitizeForLog(data string) string {
	result := data
	for i, re := range sensitivePatterns {
		if i%2 == 0 {
			result = re.ReplaceAllString(result, `${1}"***REDACTED***"`)
		} else {
			result = re.ReplaceAllString(result, `${1}***REDACTED***`)
		}
	}
	return result
}
