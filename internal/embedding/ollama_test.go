package embedding

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fastRetries zeroes the backoff so retry-path tests run instantly.
func fastRetries(t *testing.T) {
	t.Helper()
	prev := retryBaseDelay
	retryBaseDelay = 0
	t.Cleanup(func() { retryBaseDelay = prev })
}

func embedServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestValidateLocalhostOnly(t *testing.T) {
	cases := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"localhost", "http://localhost:11434", false},
		{"loopback ip", "http://127.0.0.1:11434", false},
		{"ipv6 loopback", "http://[::1]:11434", false},
		{"remote host", "http://example.com:11434", true},
		{"lan ip", "http://192.168.1.100:11434", true},
		{"garbage", "://bad", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := validateLocalhostOnly(c.url)
			if (err != nil) != c.wantErr {
				t.Errorf("validateLocalhostOnly(%q) error = %v, wantErr %v", c.url, err, c.wantErr)
			}
		})
	}
}

func TestNewOllamaProvider_Defaults(t *testing.T) {
	p, err := newOllamaProvider(ProviderConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.model != "nomic-embed-text" || p.dims != 768 {
		t.Errorf("unexpected defaults: model=%q dims=%d", p.model, p.dims)
	}
}

func TestNewOllamaProvider_KnownModelDims(t *testing.T) {
	p, err := newOllamaProvider(ProviderConfig{Model: "mxbai-embed-large"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.dims != 1024 {
		t.Errorf("expected 1024 dims for mxbai-embed-large, got %d", p.dims)
	}
}

func TestNewOllamaProvider_RejectsRemoteURL(t *testing.T) {
	if _, err := newOllamaProvider(ProviderConfig{BaseURL: "http://remote.example.com:11434"}); err == nil {
		t.Error("expected error for a remote base URL")
	}
}

func TestOllamaGetEmbedding_PrefixesByPurpose(t *testing.T) {
	var gotPrompt string
	server := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotPrompt = req.Prompt
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: filled(768)})
	})

	p, err := newOllamaProvider(ProviderConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := p.GetQueryEmbedding("find me"); err != nil {
		t.Fatalf("query embed: %v", err)
	}
	if !strings.HasPrefix(gotPrompt, "search_query: ") {
		t.Errorf("expected search_query prefix, got %q", gotPrompt)
	}

	if _, err := p.GetDocumentEmbedding("store me"); err != nil {
		t.Fatalf("document embed: %v", err)
	}
	if !strings.HasPrefix(gotPrompt, "search_document: ") {
		t.Errorf("expected search_document prefix, got %q", gotPrompt)
	}
}

func TestOllamaGetEmbedding_ClientErrorDoesNotRetry(t *testing.T) {
	fastRetries(t)
	attempts := 0
	server := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad request"))
	})

	p, err := newOllamaProvider(ProviderConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.GetEmbedding("x", "query"); err == nil {
		t.Fatal("expected error for 400 response")
	}
	if attempts != 1 {
		t.Errorf("expected a single attempt for a 4xx, got %d", attempts)
	}
}

func TestOllamaGetEmbedding_ServerErrorRetriesThenSucceeds(t *testing.T) {
	fastRetries(t)
	attempts := 0
	server := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: filled(768)})
	})

	p, err := newOllamaProvider(ProviderConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vec, err := p.GetEmbedding("short", "query")
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if len(vec) != 768 || attempts != 3 {
		t.Errorf("unexpected outcome: dims=%d attempts=%d", len(vec), attempts)
	}
}

func TestOllamaGetEmbedding_LongInput500HalvesAndRetries(t *testing.T) {
	fastRetries(t)
	var promptLens []int
	server := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		json.NewDecoder(r.Body).Decode(&req)
		promptLens = append(promptLens, len(req.Prompt))
		if len(req.Prompt) > 3000 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: filled(768)})
	})

	p, err := newOllamaProvider(ProviderConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	long := strings.Repeat("palabra ", 800) // ~6400 bytes
	if _, err := p.GetEmbedding(long, "document"); err != nil {
		t.Fatalf("expected truncation to recover, got %v", err)
	}
	if len(promptLens) < 2 {
		t.Fatalf("expected at least one halved retry, got prompt lengths %v", promptLens)
	}
	last := promptLens[len(promptLens)-1]
	if last >= promptLens[0] {
		t.Errorf("expected final prompt shorter than first, got %v", promptLens)
	}
}

func TestOllamaGetEmbedding_RejectsEmptyAndZeroVectors(t *testing.T) {
	fastRetries(t)
	responses := [][]float32{{}, make([]float32, 768)}
	i := 0
	server := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: responses[i%len(responses)]})
	})

	p, err := newOllamaProvider(ProviderConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.GetEmbedding("x", "query"); err == nil {
		t.Error("expected error for empty embedding")
	}
	i = 1
	if _, err := p.GetEmbedding("x", "query"); err == nil {
		t.Error("expected error for all-zero embedding")
	}
}

func TestOllamaError_Retryable(t *testing.T) {
	cases := []struct {
		err  ollamaError
		want bool
	}{
		{ollamaError{status: 0, reason: "connection_refused"}, true},
		{ollamaError{status: 0, reason: "permission_denied"}, false},
		{ollamaError{status: 500}, true},
		{ollamaError{status: 503}, true},
		{ollamaError{status: 400}, false},
		{ollamaError{status: 404}, false},
	}
	for _, c := range cases {
		if got := c.err.retryable(); got != c.want {
			t.Errorf("retryable(%+v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestOllamaDefaultDims(t *testing.T) {
	cases := map[string]int{
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		"bge-m3":            1024,
		"something-else":    768,
	}
	for model, want := range cases {
		if got := ollamaDefaultDims(model); got != want {
			t.Errorf("ollamaDefaultDims(%q) = %d, want %d", model, got, want)
		}
	}
}

// filled returns a vector of n non-zero values so checkVector passes.
func filled(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i+1) * 0.001
	}
	return out
}
