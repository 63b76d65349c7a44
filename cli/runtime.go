// Runtime wiring for CLI commands.
//
// Information Hiding:
// - Backend selection and codec pool sizing hidden
// - Advisor chain composition hidden
// - Provider, tool and knowledge setup hidden

package cli

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/richinex/counsel/advisor"
	"github.com/richinex/counsel/config"
	"github.com/richinex/counsel/internal/codec"
	"github.com/richinex/counsel/knowledge"
	"github.com/richinex/counsel/llm"
	"github.com/richinex/counsel/logging"
	"github.com/richinex/counsel/orchestration"
	"github.com/richinex/counsel/storage"
	"github.com/richinex/counsel/tools"
)

// Options holds CLI execution options.
type Options struct {
	ConfigPath string
	Provider   string
	Verbose    bool
}

// Runtime is the assembled application: one store, one chain, one model.
type Runtime struct {
	Settings     config.Settings
	Logger       *zap.Logger
	Store        *storage.Store
	Chain        *advisor.Chain
	Provider     llm.Provider
	Tools        *tools.Registry
	Knowledge    *knowledge.Index
	Orchestrator *orchestration.Orchestrator

	closers []func() error
}

// RuntimeOption adjusts runtime assembly.
type RuntimeOption func(*runtimeConfig)

type runtimeConfig struct {
	provider llm.Provider
	logger   *zap.Logger
	counter  advisor.Counter
}

// WithProvider uses p instead of building one from settings.
func WithProvider(p llm.Provider) RuntimeOption {
	return func(c *runtimeConfig) { c.provider = p }
}

// WithTokenCounter uses counter for the token budget instead of tiktoken.
func WithTokenCounter(counter advisor.Counter) RuntimeOption {
	return func(c *runtimeConfig) { c.counter = counter }
}

// WithRuntimeLogger uses logger instead of building one from settings.
func WithRuntimeLogger(logger *zap.Logger) RuntimeOption {
	return func(c *runtimeConfig) { c.logger = logger }
}

// Open loads settings from opts and assembles a runtime.
func Open(opts Options) (*Runtime, error) {
	settings, err := config.Load(opts.ConfigPath, opts.Provider)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		settings.Log.Level = "debug"
	}
	return NewRuntime(settings)
}

// NewRuntime assembles a runtime from settings. Close releases it.
func NewRuntime(s config.Settings, opts ...RuntimeOption) (_ *Runtime, err error) {
	var rc runtimeConfig
	for _, opt := range opts {
		opt(&rc)
	}

	rt := &Runtime{Settings: s}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	rt.Logger = rc.logger
	if rt.Logger == nil {
		rt.Logger, err = logging.New(logging.Options{
			Level:      s.Log.Level,
			Format:     s.Log.Format,
			File:       s.Log.File,
			MaxSizeMB:  s.Log.MaxSizeMB,
			MaxBackups: s.Log.MaxBackups,
			MaxAgeDays: s.Log.MaxAgeDays,
			Compress:   s.Log.Compress,
			Console:    s.Log.Console,
			ShowCaller: s.Log.Level == "debug",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		rt.closers = append(rt.closers, func() error {
			_ = rt.Logger.Sync()
			return nil
		})
	}

	backend, err := rt.openBackend()
	if err != nil {
		return nil, err
	}
	rt.Store = storage.NewStore(backend, codec.NewPool(s.Store.CodecPoolSize), rt.Logger)

	rt.Chain = buildChain(s.Chat, rc.counter, rt.Logger)

	rt.Provider = rc.provider
	if rt.Provider == nil {
		if rt.Provider, err = buildProvider(s.LLM); err != nil {
			return nil, err
		}
	}

	if s.Knowledge.Dir != "" {
		rt.Knowledge, err = knowledge.Load(s.Knowledge.Dir, s.Knowledge.TopK, rt.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to load knowledge: %w", err)
		}
	}

	invokerOpts := []llm.InvokerOption{llm.WithLogger(rt.Logger)}
	if s.Tools.Enabled {
		if rt.Tools, err = buildTools(s.Tools, rt.Logger); err != nil {
			return nil, err
		}
		if rt.Knowledge != nil {
			if err = tools.RegisterKnowledge(rt.Tools, rt.Knowledge); err != nil {
				return nil, err
			}
		}
		invokerOpts = append(invokerOpts, llm.WithTools(rt.Tools, s.Chat.MaxToolRounds))
	}
	invoker := llm.NewInvoker(rt.Provider, invokerOpts...)

	orchOpts := []orchestration.Option{
		orchestration.WithSystemPrompt(s.Chat.SystemPrompt),
		orchestration.WithRetrieveSize(s.Chat.RetrieveSize),
		orchestration.WithLogger(rt.Logger),
	}
	if rt.Knowledge != nil {
		orchOpts = append(orchOpts, orchestration.WithRetriever(rt.Knowledge))
	}
	rt.Orchestrator = orchestration.New(rt.Store, rt.Chain, invoker, orchOpts...)

	rt.Logger.Debug("runtime ready",
		zap.String("provider", rt.Provider.Name()),
		zap.String("model", rt.Provider.Model()),
		zap.String("backend", s.Store.Backend),
		zap.Strings("advisors", rt.Chain.Names()),
		zap.Bool("tools", rt.Tools != nil),
		zap.Bool("knowledge", rt.Knowledge != nil))
	return rt, nil
}

// Close releases the backend and flushes the logger.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func (rt *Runtime) openBackend() (storage.SnapshotBackend, error) {
	s := rt.Settings.Store
	switch s.Backend {
	case "memory":
		return storage.NewMemoryBackend(), nil
	case "sqlite":
		b, err := storage.OpenSqlite(s.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		rt.closers = append(rt.closers, b.Close)
		return b, nil
	case "file", "":
		b, err := storage.NewFileBackend(s.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open file store: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", s.Backend)
	}
}

func buildChain(c config.ChatConfig, counter advisor.Counter, logger *zap.Logger) *advisor.Chain {
	advisors := []advisor.Advisor{advisor.NewLogger(logger)}
	if c.TokenBudget > 0 {
		if counter == nil {
			counter = advisor.NewTiktokenCounter("cl100k_base")
		}
		advisors = append(advisors, advisor.NewTokenBudget(c.TokenBudget, counter, logger))
	}
	if c.ReReading {
		advisors = append(advisors, advisor.ReReading{})
	}
	return advisor.NewChain(advisors...)
}

func buildProvider(c config.LLMConfig) (llm.Provider, error) {
	pt, err := llm.ParseProviderType(c.Provider)
	if err != nil {
		return nil, err
	}
	key, err := config.APIKeyFor(c.Provider)
	if err != nil {
		return nil, err
	}
	return llm.NewProvider(llm.ProviderConfig{
		Type:        pt,
		Model:       c.Model,
		BaseURL:     c.BaseURL,
		APIKey:      key,
		MaxTokens:   c.MaxTokens,
		Temperature: float32(c.Temperature),
	})
}

func buildTools(c config.ToolsConfig, logger *zap.Logger) (*tools.Registry, error) {
	cfg := tools.DefaultConfig()
	if c.SandboxDir != "" {
		cfg.SandboxDir = c.SandboxDir
	}
	if len(c.AllowedCommands) > 0 {
		cfg.AllowedCommands = c.AllowedCommands
	}
	if c.CommandTimeout > 0 {
		cfg.CommandTimeout = c.CommandTimeout
	}
	if c.DownloadLimitBytes > 0 {
		cfg.DownloadLimitBytes = c.DownloadLimitBytes
	}
	if c.FetchMaxChars > 0 {
		cfg.FetchMaxChars = c.FetchMaxChars
	}
	cfg.AllowedDomains = c.AllowedDomains

	if err := os.MkdirAll(cfg.SandboxDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sandbox: %w", err)
	}
	return tools.NewDefaultRegistry(cfg, logger)
}
