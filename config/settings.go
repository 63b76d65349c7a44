// Package config provides application settings.
//
// Settings are created via Load() which handles:
// - Default value application
// - An optional YAML file overlay
// - Environment variable parsing with validation
// - Provider-specific configuration lookup

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSystemPrompt frames the assistant as a relationship counsellor.
const DefaultSystemPrompt = "Act as an expert in relationship psychology. Open by introducing yourself and " +
	"invite the user to share their relationship troubles. Ask questions according to three situations: " +
	"when single, ask about widening their social circle and pursuing someone they like; when dating, " +
	"ask about conflicts from communication and differing habits; when married, ask about family " +
	"responsibilities and relations with relatives. Guide the user to describe what happened, how the " +
	"other person reacted and what they think themselves, so you can give tailored advice."

// Settings holds all application configuration.
type Settings struct {
	LLM       LLMConfig       `yaml:"llm"`
	Store     StoreConfig     `yaml:"store"`
	Chat      ChatConfig      `yaml:"chat"`
	Tools     ToolsConfig     `yaml:"tools"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Log       LogConfig       `yaml:"log"`
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	MaxTokens   uint32  `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	BaseURL     string  `yaml:"base_url"`
}

// StoreConfig selects the conversation snapshot backend.
type StoreConfig struct {
	Backend       string `yaml:"backend"` // file, sqlite or memory
	Dir           string `yaml:"dir"`
	DBPath        string `yaml:"db_path"`
	CodecPoolSize int    `yaml:"codec_pool_size"`
}

// ChatConfig holds turn assembly configuration.
type ChatConfig struct {
	SystemPrompt  string `yaml:"system_prompt"`
	RetrieveSize  int    `yaml:"retrieve_size"`
	TokenBudget   int    `yaml:"token_budget"`
	MaxToolRounds int    `yaml:"max_tool_rounds"`
	ReReading     bool   `yaml:"rereading"`
}

// ToolsConfig holds tool policy.
type ToolsConfig struct {
	Enabled            bool          `yaml:"enabled"`
	SandboxDir         string        `yaml:"sandbox_dir"`
	AllowedCommands    []string      `yaml:"allowed_commands"`
	CommandTimeout     time.Duration `yaml:"command_timeout"`
	DownloadLimitBytes int64         `yaml:"download_limit_bytes"`
	FetchMaxChars      int           `yaml:"fetch_max_chars"`
	AllowedDomains     []string      `yaml:"allowed_domains"`
}

// KnowledgeConfig points at the markdown knowledge base.
type KnowledgeConfig struct {
	Dir  string `yaml:"dir"` // empty disables retrieval
	TopK int    `yaml:"top_k"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
	Console    bool   `yaml:"console"`
}

// providerInfo holds configuration for a specific LLM provider.
type providerInfo struct {
	modelEnv     string
	defaultModel string
	apiKeyEnv    string
}

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"openai":    {"OPENAI_MODEL", "gpt-4o-mini", "OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_MODEL", "claude-sonnet-4-20250514", "ANTHROPIC_API_KEY"},
	"deepseek":  {"DEEPSEEK_MODEL", "deepseek-chat", "DEEPSEEK_API_KEY"},
	"gemini":    {"GEMINI_MODEL", "gemini-2.5-flash", "GEMINI_API_KEY"},
	"ollama":    {"OLLAMA_MODEL", "qwen2.5", ""},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude": "anthropic",
	"google": "gemini",
	"gpt":    "openai",
	"local":  "ollama",
}

// Defaults returns settings with every default applied.
func Defaults() Settings {
	return Settings{
		LLM: LLMConfig{
			Provider:    "openai",
			MaxTokens:   4096,
			Temperature: 0.7,
		},
		Store: StoreConfig{
			Backend:       "file",
			Dir:           "data/conversations",
			DBPath:        "data/counsel.db",
			CodecPoolSize: 4,
		},
		Chat: ChatConfig{
			SystemPrompt:  DefaultSystemPrompt,
			RetrieveSize:  10,
			MaxToolRounds: 5,
			ReReading:     true,
		},
		Tools: ToolsConfig{
			Enabled:            true,
			SandboxDir:         "tmp",
			AllowedCommands:    []string{"git status", "git log", "go version", "ls", "dir", "echo"},
			CommandTimeout:     5 * time.Second,
			DownloadLimitBytes: 50 * 1024 * 1024,
			FetchMaxChars:      4000,
		},
		Knowledge: KnowledgeConfig{TopK: 3},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxAgeDays: 7,
		},
	}
}

// New creates settings for the specified provider from defaults and
// environment variables.
func New(provider string) (Settings, error) {
	return Load("", provider)
}

// Load builds settings from defaults, then the YAML file at path (if any),
// then environment variables. A non-empty provider overrides all three.
func Load(path, provider string) (Settings, error) {
	s := Defaults()

	if path != "" {
		if err := s.mergeFile(path); err != nil {
			return Settings{}, err
		}
	}
	if err := s.mergeEnv(); err != nil {
		return Settings{}, err
	}
	if provider != "" {
		if s.LLM.Provider != normalizeProvider(provider) {
			s.LLM.Model = ""
		}
		s.LLM.Provider = provider
	}

	s.LLM.Provider = normalizeProvider(s.LLM.Provider)
	info, err := getProviderInfo(s.LLM.Provider)
	if err != nil {
		return Settings{}, err
	}
	if val := os.Getenv(info.modelEnv); val != "" {
		s.LLM.Model = val
	}
	if s.LLM.Model == "" {
		s.LLM.Model = info.defaultModel
	}
	return s, s.validate()
}

// MustNew creates settings for the specified provider.
// Panics if the provider is unknown or environment variables are invalid.
// Use this only when configuration errors should be fatal.
func MustNew(provider string) Settings {
	settings, err := New(provider)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

func (s *Settings) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (s *Settings) mergeEnv() error {
	var err error
	s.LLM.Provider = getEnv("LLM_PROVIDER", s.LLM.Provider)
	s.LLM.BaseURL = getEnv("LLM_BASE_URL", s.LLM.BaseURL)
	if s.LLM.MaxTokens, err = getEnvUint32("LLM_MAX_TOKENS", s.LLM.MaxTokens); err != nil {
		return err
	}
	if s.LLM.Temperature, err = getEnvFloat64("LLM_TEMPERATURE", s.LLM.Temperature); err != nil {
		return err
	}

	s.Store.Backend = getEnv("COUNSEL_STORE_BACKEND", s.Store.Backend)
	s.Store.Dir = getEnv("COUNSEL_STORE_DIR", s.Store.Dir)
	s.Store.DBPath = getEnv("COUNSEL_DB_PATH", s.Store.DBPath)
	if s.Store.CodecPoolSize, err = getEnvInt("COUNSEL_CODEC_POOL_SIZE", s.Store.CodecPoolSize); err != nil {
		return err
	}

	s.Chat.SystemPrompt = getEnv("COUNSEL_SYSTEM_PROMPT", s.Chat.SystemPrompt)
	if s.Chat.RetrieveSize, err = getEnvInt("COUNSEL_RETRIEVE_SIZE", s.Chat.RetrieveSize); err != nil {
		return err
	}
	if s.Chat.TokenBudget, err = getEnvInt("COUNSEL_TOKEN_BUDGET", s.Chat.TokenBudget); err != nil {
		return err
	}
	if s.Chat.MaxToolRounds, err = getEnvInt("COUNSEL_MAX_TOOL_ROUNDS", s.Chat.MaxToolRounds); err != nil {
		return err
	}
	if s.Chat.ReReading, err = getEnvBool("COUNSEL_REREADING", s.Chat.ReReading); err != nil {
		return err
	}

	if s.Tools.Enabled, err = getEnvBool("COUNSEL_TOOLS_ENABLED", s.Tools.Enabled); err != nil {
		return err
	}
	s.Tools.SandboxDir = getEnv("COUNSEL_SANDBOX_DIR", s.Tools.SandboxDir)
	s.Tools.AllowedCommands = getEnvList("COUNSEL_ALLOWED_COMMANDS", s.Tools.AllowedCommands)
	s.Tools.AllowedDomains = getEnvList("COUNSEL_ALLOWED_DOMAINS", s.Tools.AllowedDomains)
	if s.Tools.CommandTimeout, err = getEnvDuration("COUNSEL_COMMAND_TIMEOUT", s.Tools.CommandTimeout); err != nil {
		return err
	}
	if s.Tools.DownloadLimitBytes, err = getEnvInt64("COUNSEL_DOWNLOAD_LIMIT_BYTES", s.Tools.DownloadLimitBytes); err != nil {
		return err
	}
	if s.Tools.FetchMaxChars, err = getEnvInt("COUNSEL_FETCH_MAX_CHARS", s.Tools.FetchMaxChars); err != nil {
		return err
	}

	s.Knowledge.Dir = getEnv("COUNSEL_KNOWLEDGE_DIR", s.Knowledge.Dir)
	if s.Knowledge.TopK, err = getEnvInt("COUNSEL_KNOWLEDGE_TOP_K", s.Knowledge.TopK); err != nil {
		return err
	}

	s.Log.Level = getEnv("LOG_LEVEL", s.Log.Level)
	s.Log.Format = getEnv("LOG_FORMAT", s.Log.Format)
	s.Log.File = getEnv("LOG_FILE", s.Log.File)
	return nil
}

func (s *Settings) validate() error {
	var errs []error
	switch s.Store.Backend {
	case "file", "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown store backend: %q", s.Store.Backend))
	}
	if s.Store.CodecPoolSize < 1 {
		errs = append(errs, fmt.Errorf("codec pool size must be at least 1, got %d", s.Store.CodecPoolSize))
	}
	if s.Chat.RetrieveSize < 0 {
		errs = append(errs, fmt.Errorf("retrieve size must not be negative, got %d", s.Chat.RetrieveSize))
	}
	if s.Chat.TokenBudget < 0 {
		errs = append(errs, fmt.Errorf("token budget must not be negative, got %d", s.Chat.TokenBudget))
	}
	return errors.Join(errs...)
}

// normalizeProvider converts provider aliases to canonical names.
func normalizeProvider(provider string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// getProviderInfo returns configuration for a provider.
func getProviderInfo(provider string) (providerInfo, error) {
	info, ok := providers[provider]
	if !ok {
		return providerInfo{}, fmt.Errorf("unknown provider: %q", provider)
	}
	return info, nil
}

// APIKeyFor returns the API key for a provider from environment variables.
// Providers that need no key return "".
func APIKeyFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}
	if info.apiKeyEnv == "" {
		return "", nil
	}

	key := os.Getenv(info.apiKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", info.apiKeyEnv)
	}
	return key, nil
}

// ModelFor returns the model for a provider, checking environment first.
func ModelFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	if val := os.Getenv(info.modelEnv); val != "" {
		return val, nil
	}
	return info.defaultModel, nil
}

// SupportedProviders returns the list of supported provider names.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	return result
}

// Environment variable helpers with proper error handling

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return d, nil
}
