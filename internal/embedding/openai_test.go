package embedding

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func openaiOKResponse(dims int) openaiEmbedResponse {
	var resp openaiEmbedResponse
	resp.Data = append(resp.Data, struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	}{Embedding: filled(dims)})
	return resp
}

func TestNewOpenAIProvider_RequiresKeyForOpenAI(t *testing.T) {
	if _, err := newOpenAIProvider(ProviderConfig{Provider: "openai"}); err == nil {
		t.Error("expected error when no API key is set for api.openai.com")
	}
}

func TestNewOpenAIProvider_DefaultsForOpenAI(t *testing.T) {
	p, err := newOpenAIProvider(ProviderConfig{Provider: "openai", APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.model != "text-embedding-3-small" || p.dims != 1536 || p.name != "openai" {
		t.Errorf("unexpected defaults: model=%q dims=%d name=%q", p.model, p.dims, p.name)
	}
}

func TestNewOpenAIProvider_CompatibleNeedsNoKeyButNeedsModel(t *testing.T) {
	if _, err := newOpenAIProvider(ProviderConfig{
		Provider: "openai-compatible",
		BaseURL:  "http://localhost:8080",
	}); err == nil {
		t.Error("expected error when openai-compatible has no model configured")
	}

	p, err := newOpenAIProvider(ProviderConfig{
		Provider: "openai-compatible",
		BaseURL:  "http://localhost:8080",
		Model:    "local-embed",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.name != "openai-compatible" {
		t.Errorf("expected openai-compatible name, got %q", p.name)
	}
	if p.dims != 0 {
		t.Errorf("expected dims 0 (accept server width) for a local server, got %d", p.dims)
	}
}

func TestOpenAIGetEmbedding_OmitsAuthHeaderWithoutKey(t *testing.T) {
	var gotAuth string
	server := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(openaiOKResponse(8))
	})

	p, err := newOpenAIProvider(ProviderConfig{
		Provider: "openai-compatible", BaseURL: server.URL, Model: "local-embed",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.GetEmbedding("text", "query"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "" {
		t.Errorf("expected no Authorization header, got %q", gotAuth)
	}
}

func TestOpenAIGetEmbedding_SendsAuthHeaderWithKey(t *testing.T) {
	var gotAuth string
	server := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(openaiOKResponse(8))
	})

	p, err := newOpenAIProvider(ProviderConfig{
		Provider: "openai-compatible", BaseURL: server.URL, Model: "local-embed", APIKey: "sk-local",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.GetEmbedding("text", "query"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer sk-local" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
}

func TestOpenAIGetEmbedding_RetriesRateLimitThenSucceeds(t *testing.T) {
	fastRetries(t)
	attempts := 0
	server := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(openaiOKResponse(8))
	})

	p, err := newOpenAIProvider(ProviderConfig{
		Provider: "openai-compatible", BaseURL: server.URL, Model: "local-embed",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vec, err := p.GetEmbedding("text", "query")
	if err != nil {
		t.Fatalf("expected retry to recover from 429, got %v", err)
	}
	if len(vec) != 8 || attempts != 2 {
		t.Errorf("unexpected outcome: dims=%d attempts=%d", len(vec), attempts)
	}
}

func TestOpenAIGetEmbedding_ClientErrorRedactsKey(t *testing.T) {
	fastRetries(t)
	server := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "bad key sk-secret-key"}}`))
	})

	p, err := newOpenAIProvider(ProviderConfig{
		Provider: "openai-compatible", BaseURL: server.URL, Model: "local-embed", APIKey: "sk-secret-key",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = p.GetEmbedding("text", "query")
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if strings.Contains(err.Error(), "sk-secret-key") {
		t.Errorf("API key leaked into error text: %v", err)
	}
	if !strings.Contains(err.Error(), "[REDACTED]") {
		t.Errorf("expected redaction marker in error text: %v", err)
	}
}

func TestOpenAIGetEmbedding_RequestsVariableDims(t *testing.T) {
	var gotReq openaiEmbedRequest
	server := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(openaiOKResponse(256))
	})

	p, err := newOpenAIProvider(ProviderConfig{
		Provider: "openai", APIKey: "sk-test", BaseURL: server.URL,
		Model: "text-embedding-3-small", Dimensions: 256,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.GetEmbedding("text", "query"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotReq.Dimensions != 256 {
		t.Errorf("expected dimensions 256 in request, got %d", gotReq.Dimensions)
	}
}

func TestNewProvider_Dispatch(t *testing.T) {
	if _, err := NewProvider(ProviderConfig{Provider: "none"}); err == nil {
		t.Error("expected none provider to report keyword-only mode")
	}
	if _, err := NewProvider(ProviderConfig{Provider: "martian"}); err == nil {
		t.Error("expected unknown provider to error")
	}
	p, err := NewProvider(ProviderConfig{Provider: "openai-compatible", BaseURL: "http://localhost:9999", Model: "m"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "openai-compatible" {
		t.Errorf("unexpected provider name %q", p.Name())
	}
}
