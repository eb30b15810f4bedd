package embedding

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
)

// OllamaProvider embeds through a local Ollama instance. The base URL is
// restricted to localhost: vault text never leaves the machine through
// this backend.
type OllamaProvider struct {
	httpClient *http.Client
	baseURL    string
	model      string
	dims       int
}

func newOllamaProvider(cfg ProviderConfig) (*OllamaProvider, error) {
	model := cfg.Model
	if model == "" {
		model = "nomic-embed-text"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if err := validateLocalhostOnly(baseURL); err != nil {
		return nil, err
	}
	dims := cfg.Dimensions
	if dims == 0 {
		dims = ollamaDefaultDims(model)
	}
	return &OllamaProvider{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    baseURL,
		model:      model,
		dims:       dims,
	}, nil
}

func (p *OllamaProvider) Name() string    { return "ollama" }
func (p *OllamaProvider) Model() string   { return p.model }
func (p *OllamaProvider) Dimensions() int { return p.dims }

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// ollamaError carries the HTTP status (0 for a transport failure) plus a
// classified reason so retry decisions and log lines stay readable.
type ollamaError struct {
	status int
	body   string
	reason string // connection_refused, permission_denied, timeout, dns_failure, network_error
}

func (e *ollamaError) Error() string {
	if e.status == 0 && e.reason != "" {
		return fmt.Sprintf("ollama: %s (%s)", e.reason, e.body)
	}
	return fmt.Sprintf("ollama returned %d: %s", e.status, e.body)
}

func (e *ollamaError) retryable() bool {
	if e.reason == "permission_denied" {
		return false
	}
	return e.status == 0 || e.status >= 500
}

// GetEmbedding embeds text with the nomic-style search_document /
// search_query prefix for the given purpose. Transport and 5xx failures
// retry with backoff; a 500 on a long input is instead retried with the
// text halved, since Ollama's embed endpoint chokes on oversized prompts
// rather than truncating them itself.
func (p *OllamaProvider) GetEmbedding(text string, purpose string) ([]float32, error) {
	prefix := "search_document"
	if purpose == "query" {
		prefix = "search_query"
	}
	prompt := prefix + ": " + text

	vec, err := retryLoop("ollama", func() ([]float32, error) {
		return p.embedOnce(prompt)
	}, func(err error) bool {
		var oe *ollamaError
		if errors.As(err, &oe) {
			if oe.status == http.StatusInternalServerError && len(text) > 3000 {
				return false // handled below by halving the input
			}
			return oe.retryable()
		}
		return false
	})
	if err != nil {
		var oe *ollamaError
		if errors.As(err, &oe) && oe.status == http.StatusInternalServerError && len(text) > 3000 {
			return p.GetEmbedding(text[:len(text)/2], purpose)
		}
		return nil, err
	}
	return vec, nil
}

func (p *OllamaProvider) GetDocumentEmbedding(text string) ([]float32, error) {
	return p.GetEmbedding(text, "document")
}

func (p *OllamaProvider) GetQueryEmbedding(text string) ([]float32, error) {
	return p.GetEmbedding(text, "query")
}

func (p *OllamaProvider) embedOnce(prompt string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: p.model, Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := p.httpClient.Post(p.baseURL+"/api/embeddings", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, &ollamaError{status: 0, body: err.Error(), reason: netErrorReason(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &ollamaError{status: resp.StatusCode, body: string(respBody)}
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	if err := checkVector(result.Embedding, p.dims); err != nil {
		return nil, err
	}
	return result.Embedding, nil
}

// netErrorReason classifies a transport error into a short tag for logs
// and for the permission_denied no-retry rule.
func netErrorReason(err error) string {
	if err == nil {
		return "unknown"
	}

	var sysErr syscall.Errno
	if errors.As(err, &sysErr) {
		switch sysErr {
		case syscall.ECONNREFUSED:
			return "connection_refused"
		case syscall.EACCES, syscall.EPERM:
			return "permission_denied"
		case syscall.ETIMEDOUT:
			return "timeout"
		}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Timeout() {
		return "timeout"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns_failure"
	}

	// Wrapped errors lose their type; fall back to the message.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"):
		return "connection_refused"
	case strings.Contains(msg, "permission denied"):
		return "permission_denied"
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return "timeout"
	case strings.Contains(msg, "no such host"):
		return "dns_failure"
	}
	return "network_error"
}

// validateLocalhostOnly rejects any Ollama URL not pointing at this
// machine.
func validateLocalhostOnly(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid Ollama URL: %w", err)
	}
	host := u.Hostname()
	if host != "localhost" && host != "127.0.0.1" && host != "::1" {
		return fmt.Errorf("Ollama URL must point to localhost for security, got: %s", host)
	}
	return nil
}

// ollamaDefaultDims maps known Ollama embedding models to their native
// vector width.
func ollamaDefaultDims(model string) int {
	switch model {
	case "nomic-embed-text", "snowflake-arctic-embed2", "embeddinggemma", "nomic-embed-text-v2-moe":
		return 768
	case "mxbai-embed-large", "snowflake-arctic-embed", "qwen3-embedding", "bge-m3":
		return 1024
	case "all-minilm":
		return 384
	default:
		return 768
	}
}
