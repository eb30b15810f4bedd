package embedding

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// OpenAIProvider embeds through the OpenAI API or any endpoint speaking
// the same /v1/embeddings contract (llama.cpp, vLLM, LM Studio).
type OpenAIProvider struct {
	httpClient *http.Client
	baseURL    string
	model      string
	apiKey     string
	dims       int
	name       string // "openai" or "openai-compatible"
}

func newOpenAIProvider(cfg ProviderConfig) (*OpenAIProvider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}

	// Only the real OpenAI API strictly needs a key; local and custom
	// servers usually run open.
	isOpenAI := baseURL == "https://api.openai.com"
	if isOpenAI && cfg.APIKey == "" {
		return nil, fmt.Errorf("openai embedding provider requires an API key (set OBSIDIANRAG_EMBED_API_KEY or embedding.api_key in config)")
	}

	model := cfg.Model
	if model == "" {
		if !isOpenAI {
			return nil, fmt.Errorf("openai-compatible provider requires a model name (set OBSIDIANRAG_EMBED_MODEL or embedding.model in config)")
		}
		model = "text-embedding-3-small"
	}

	dims := cfg.Dimensions
	if dims == 0 && isOpenAI {
		dims = openaiDefaultDims(model)
	}
	// For local servers dims stays 0: accept whatever width the server
	// returns and let the store record it.

	name := "openai"
	if !isOpenAI {
		name = "openai-compatible"
		if u, err := url.Parse(baseURL); err == nil {
			host := u.Hostname()
			if host != "localhost" && host != "127.0.0.1" && host != "::1" {
				fmt.Fprintf(os.Stderr, "obsidianrag: warning: embedding requests will be sent to remote server (%s)\n", u.Host)
			}
		}
	}

	return &OpenAIProvider{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		model:      model,
		apiKey:     cfg.APIKey,
		dims:       dims,
		name:       name,
	}, nil
}

func (p *OpenAIProvider) Name() string    { return p.name }
func (p *OpenAIProvider) Model() string   { return p.model }
func (p *OpenAIProvider) Dimensions() int { return p.dims }

type openaiEmbedRequest struct {
	Input      string `json:"input"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// openaiError distinguishes retryable failures (transport, 429, 5xx) from
// ones another attempt cannot fix.
type openaiError struct {
	status  int
	message string // already sanitized, never contains the API key
}

func (e *openaiError) Error() string {
	return fmt.Sprintf("openai returned %d: %s", e.status, e.message)
}

func (e *openaiError) retryable() bool {
	return e.status == 0 || e.status == http.StatusTooManyRequests || e.status >= 500
}

// GetEmbedding embeds text. The purpose argument is ignored: OpenAI-style
// models handle documents and queries symmetrically. Rate limits and
// server errors retry with backoff.
func (p *OpenAIProvider) GetEmbedding(text string, _ string) ([]float32, error) {
	// Most OpenAI embedding models cap input around 8k tokens; cut well
	// above that rather than erroring on a pathological note.
	if len(text) > 30000 {
		text = text[:30000]
	}

	reqBody := openaiEmbedRequest{Input: text, Model: p.model}
	if p.dims > 0 && isVariableDimModel(p.model) {
		reqBody.Dimensions = p.dims
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	return retryLoop(p.name, func() ([]float32, error) {
		return p.embedOnce(body)
	}, func(err error) bool {
		var oe *openaiError
		return errors.As(err, &oe) && oe.retryable()
	})
}

func (p *OpenAIProvider) GetDocumentEmbedding(text string) ([]float32, error) {
	return p.GetEmbedding(text, "document")
}

func (p *OpenAIProvider) GetQueryEmbedding(text string) ([]float32, error) {
	return p.GetEmbedding(text, "query")
}

func (p *OpenAIProvider) embedOnce(body []byte) ([]float32, error) {
	req, err := http.NewRequest("POST", p.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	// App attribution for OpenRouter and compatible services.
	req.Header.Set("X-Title", "obsidianrag")
	req.Header.Set("HTTP-Referer", "https://github.com/sgx-labs/obsidianrag")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &openaiError{status: 0, message: redactKey(err.Error(), p.apiKey)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &openaiError{status: resp.StatusCode, message: redactKey(string(respBody), p.apiKey)}
	}

	var result openaiEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("openai error: %s", redactKey(result.Error.Message, p.apiKey))
	}
	if len(result.Data) == 0 || len(result.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	if err := checkVector(result.Data[0].Embedding, p.dims); err != nil {
		return nil, err
	}
	return result.Data[0].Embedding, nil
}

// redactKey strips the API key from any text that might reach a log or a
// tool response.
func redactKey(msg, apiKey string) string {
	if apiKey == "" {
		return msg
	}
	return strings.ReplaceAll(msg, apiKey, "[REDACTED]")
}

func openaiDefaultDims(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	case "text-embedding-3-small", "text-embedding-ada-002":
		return 1536
	default:
		return 1536
	}
}

// isVariableDimModel reports whether the model accepts a requested output
// width (the text-embedding-3 family does).
func isVariableDimModel(model string) bool {
	return model == "text-embedding-3-small" || model == "text-embedding-3-large"
}
