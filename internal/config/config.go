// Package config resolves vault-scoped settings layered defaults < YAML
// file < environment: <vault>/.agent(s)/vault.yaml.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Embedding model defaults.
const (
	DefaultEmbeddingModel    = "nomic-embed-text"
	DefaultEmbeddingProvider = "ollama"
)

// Indexing settings.
const (
	ChunkTokenThreshold = 6000
	MaxEmbedChars       = 7500
	MaxSnippetLength    = 500
)

// Search/cache bounds.
const (
	MinSearchTimeoutSeconds = 30
	MaxSearchTimeoutSeconds = 600
	DefaultSearchTimeout    = 180

	MinResults     = 5
	MaxResults     = 100
	DefaultResults = 20

	MinCacheTTLSeconds = 60
	MaxCacheTTLSeconds = 3600
	DefaultCacheTTL    = 300
)

// DefaultExcludedFolders and DefaultExcludedPatterns are the default
// exclusions used by retrieval and analysis. A vault's vault.yaml may
// extend, not replace, these.
var DefaultExcludedFolders = []string{
	"00_Sistema", "ZZ_Plantillas", "04_Recursos/Obsidian",
	".agent", ".agents", ".trash", ".git", ".obsidian", ".obsidianrag",
}

var DefaultExcludedPatterns = []string{
	`.*MOC\.md`, `.*Home\.md`, `.*Inbox\.md`, `.*Panel.*\.md`,
	`.*\.agent\.md`, `copilot-instructions\.md`,
}

// EmbeddingConfig selects and parameterizes the embedding backend
// (internal/embedding.Provider).
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
	Dimensions int    `yaml:"dimensions,omitempty"`
}

// RetrieverConfig tunes the hybrid retriever's fusion weights and leg
// fan-out.
type RetrieverConfig struct {
	BM25Weight   float64 `yaml:"bm25_weight"`
	VectorWeight float64 `yaml:"vector_weight"`
	BM25K        int     `yaml:"bm25_k"`
	VectorK      int     `yaml:"vector_k"`
	RerankEnabled bool   `yaml:"rerank_enabled"`
}

// VaultFile is the on-disk shape of <vault>/.agent(s)/vault.yaml:
// `{version, templates_folder?, private_paths[], excluded_folders[],
// excluded_patterns[]}`.
type VaultFile struct {
	Version          int      `yaml:"version"`
	TemplatesFolder  string   `yaml:"templates_folder,omitempty"`
	PrivatePaths     []string `yaml:"private_paths,omitempty"`
	ExcludedFolders  []string `yaml:"excluded_folders,omitempty"`
	ExcludedPatterns []string `yaml:"excluded_patterns,omitempty"`
}

// Config holds fully resolved, ready-to-use settings: defaults overridden
// by the parsed VaultFile overridden by environment variables.
type Config struct {
	VaultPath string

	AgentDir        string // ".agent" or ".agents", auto-detected
	TemplatesFolder string // auto-detected if unset in vault.yaml

	PrivatePaths     []string
	ExcludedFolders  []string
	ExcludedPatterns []string

	Embedding EmbeddingConfig
	Retriever RetrieverConfig

	SearchTimeoutSeconds int
	MaxResults           int
	CacheTTLSeconds      int

	LogLevel string
}

// DefaultConfig returns the zero-vault-path baseline every layer builds on.
func DefaultConfig() *Config {
	return &Config{
		ExcludedFolders:  append([]string(nil), DefaultExcludedFolders...),
		ExcludedPatterns: append([]string(nil), DefaultExcludedPatterns...),
		Embedding: EmbeddingConfig{
			Provider: DefaultEmbeddingProvider,
			Model:    DefaultEmbeddingModel,
		},
		Retriever: RetrieverConfig{
			BM25Weight:   0.4,
			VectorWeight: 0.6,
			BM25K:        10,
			VectorK:      12,
		},
		SearchTimeoutSeconds: DefaultSearchTimeout,
		MaxResults:           DefaultResults,
		CacheTTLSeconds:      DefaultCacheTTL,
		LogLevel:             "INFO",
	}
}

// Load resolves a full Config for vaultPath: defaults, then
// <vault>/.agent(s)/vault.yaml if present, then environment variables.
func Load(vaultPath string) (*Config, error) {
	resolved, err := validateVaultPath(vaultPath)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	cfg.VaultPath = resolved
	cfg.AgentDir = detectAgentDir(resolved)
	cfg.TemplatesFolder = detectTemplatesFolder(resolved)

	vaultYAMLPath := filepath.Join(resolved, cfg.AgentDir, "vault.yaml")
	if data, readErr := os.ReadFile(vaultYAMLPath); readErr == nil {
		var vf VaultFile
		if err := yaml.Unmarshal(data, &vf); err != nil {
			return nil, fmt.Errorf("parse %s: %w", vaultYAMLPath, err)
		}
		applyVaultFile(cfg, vf)
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyVaultFile(cfg *Config, vf VaultFile) {
	if vf.TemplatesFolder != "" {
		cfg.TemplatesFolder = vf.TemplatesFolder
	}
	if len(vf.PrivatePaths) > 0 {
		cfg.PrivatePaths = vf.PrivatePaths
	}
	if len(vf.ExcludedFolders) > 0 {
		cfg.ExcludedFolders = append(cfg.ExcludedFolders, vf.ExcludedFolders...)
	}
	if len(vf.ExcludedPatterns) > 0 {
		cfg.ExcludedPatterns = append(cfg.ExcludedPatterns, vf.ExcludedPatterns...)
	}
}

// applyEnv overrides cfg in place from environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("OBSIDIAN_VAULT_PATH"); v != "" {
		if resolved, err := validateVaultPath(v); err == nil {
			cfg.VaultPath = resolved
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToUpper(v)
	}
	if v := os.Getenv("OBSIDIANRAG_EMBED_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("OBSIDIANRAG_EMBED_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("OBSIDIANRAG_EMBED_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("OBSIDIANRAG_EMBED_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if cfg.Embedding.APIKey == "" && (cfg.Embedding.Provider == "openai" || cfg.Embedding.Provider == "openai-compatible") {
		if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			cfg.Embedding.APIKey = v
		}
	}
	if v := os.Getenv("OBSIDIANRAG_SEARCH_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SearchTimeoutSeconds = clampInt(n, MinSearchTimeoutSeconds, MaxSearchTimeoutSeconds)
		}
	}
	if v := os.Getenv("OBSIDIANRAG_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxResults = clampInt(n, MinResults, MaxResults)
		}
	}
	if v := os.Getenv("OBSIDIANRAG_CACHE_TTL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CacheTTLSeconds = clampInt(n, MinCacheTTLSeconds, MaxCacheTTLSeconds)
		}
	}
}

func clampInt(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// detectAgentDir auto-detects whether the vault's agent directory is
// named ".agent" or ".agents" by probing both, preferring whichever
// exists, and defaulting to ".agent" when neither does (a fresh vault).
func detectAgentDir(vaultRoot string) string {
	for _, candidate := range []string{".agent", ".agents"} {
		if info, err := os.Stat(filepath.Join(vaultRoot, candidate)); err == nil && info.IsDir() {
			return candidate
		}
	}
	return ".agent"
}

// detectTemplatesFolder auto-detects the templates folder name: when
// vault.yaml does not name one, scan the vault root for a directory whose
// lowercased name contains "plantilla" or "template".
func detectTemplatesFolder(vaultRoot string) string {
	entries, err := os.ReadDir(vaultRoot)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		lower := strings.ToLower(e.Name())
		if strings.Contains(lower, "plantilla") || strings.Contains(lower, "template") {
			return e.Name()
		}
	}
	return ""
}

// validateVaultPath rejects vault roots that are too broad (e.g. "/",
// "/home") and resolves symlinks to prevent symlink-based escapes.
func validateVaultPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("OBSIDIAN_VAULT_PATH is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve vault path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("vault path is not a directory: %s", redactPath(abs))
	}

	dangerous := []string{"/", "/home", "/Users", "/tmp", "/var", "/etc", "/opt"}
	if runtime.GOOS == "windows" && len(abs) >= 3 {
		for _, letter := range "ABCDEFGHIJKLMNOPQRSTUVWXYZ" {
			dangerous = append(dangerous, string(letter)+":\\")
		}
	}
	for _, d := range dangerous {
		if abs == d {
			return "", fmt.Errorf("vault path is too broad, refusing to use it as a vault root")
		}
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return abs, nil
	}
	for _, d := range dangerous {
		if resolved == d {
			return "", fmt.Errorf("vault path resolves to a path too broad to use as a vault root")
		}
	}
	return resolved, nil
}

// redactPath returns only the base name of a path, so validation errors
// never echo a full filesystem layout back to a caller.
func redactPath(p string) string {
	return filepath.Base(p)
}

// DataDir returns <vault>/.obsidianrag, the directory holding the vector
// store and tracker state.
func (c *Config) DataDir() string {
	return filepath.Join(c.VaultPath, ".obsidianrag")
}

// DBPath returns the SQLite database file path under DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir(), "db", "vault.db")
}

// TrackerPath returns the tracker metadata JSON file path under DataDir.
func (c *Config) TrackerPath() string {
	return filepath.Join(c.DataDir(), "metadata.json")
}

// ForbiddenPathsFile returns <vault>/.forbidden_paths.
func (c *Config) ForbiddenPathsFile() string {
	return filepath.Join(c.VaultPath, ".forbidden_paths")
}

// SkillsDir returns <vault>/.agent(s)/skills.
func (c *Config) SkillsDir() string {
	return filepath.Join(c.VaultPath, c.AgentDir, "skills")
}

// GlobalRulesPath returns <vault>/.agent(s)/REGLAS_GLOBALES.md.
func (c *Config) GlobalRulesPath() string {
	return filepath.Join(c.VaultPath, c.AgentDir, "REGLAS_GLOBALES.md")
}

// VaultYAMLPath returns <vault>/.agent(s)/vault.yaml.
func (c *Config) VaultYAMLPath() string {
	return filepath.Join(c.VaultPath, c.AgentDir, "vault.yaml")
}

// WriteDefault writes a fresh vault.yaml with the built-in defaults,
// used by `obsidianrag init`.
func WriteDefault(vaultPath string) error {
	resolved, err := validateVaultPath(vaultPath)
	if err != nil {
		return err
	}
	agentDir := detectAgentDir(resolved)
	dir := filepath.Join(resolved, agentDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	vf := VaultFile{Version: 1}
	data, err := yaml.Marshal(vf)
	if err != nil {
		return err
	}
	header := "# obsidianrag vault configuration\n# https://github.com/sgx-labs/obsidianrag\n"
	return os.WriteFile(filepath.Join(dir, "vault.yaml"), append([]byte(header), data...), 0o644)
}

// OllamaURLFromEnv resolves and validates the Ollama base URL, requiring
// localhost.
func OllamaURLFromEnv(configured string) (string, error) {
	raw := os.Getenv("OBSIDIANRAG_OLLAMA_URL")
	if raw == "" {
		raw = configured
	}
	if raw == "" {
		raw = "http://localhost:11434"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid Ollama URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("Ollama URL must use http or https")
	}
	host := u.Hostname()
	if host != "localhost" && host != "127.0.0.1" && host != "::1" {
		return "", fmt.Errorf("Ollama URL must point to localhost for security")
	}
	return raw, nil
}
