// Tool registry with explicit static registration.
//
// Information Hiding:
// - Tool storage and lookup implementation hidden
// - Schema rendering for providers hidden
// - Failure rendering hidden behind Invoke

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/richinex/counsel/llm"
)

var _ llm.ToolRunner = (*Registry)(nil)

// Registry manages available tools.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	executor *Executor
	logger   *zap.Logger
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:    make(map[string]Tool),
		executor: NewExecutor(Config{}),
		logger:   zap.NewNop(),
	}
}

// WithExecutor sets the executor used by Invoke.
func (r *Registry) WithExecutor(e *Executor) *Registry {
	if e != nil {
		r.executor = e
	}
	return r
}

// WithLogger sets the logger.
func (r *Registry) WithLogger(logger *zap.Logger) *Registry {
	if logger != nil {
		r.logger = logger.Named("tools")
	}
	return r
}

// Register adds a new tool to the registry.
// Returns error if a tool with the same name already exists.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Metadata().Name
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool '%s' already registered", name)
	}
	r.tools[name] = tool
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	return tool, exists
}

// Names returns all registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns metadata for all registered tools, sorted by name.
func (r *Registry) List() []ToolMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	metadata := make([]ToolMetadata, 0, len(r.tools))
	for _, tool := range r.tools {
		metadata = append(metadata, tool.Metadata())
	}
	sort.Slice(metadata, func(i, j int) bool { return metadata[i].Name < metadata[j].Name })
	return metadata
}

// Definitions returns the provider-facing tool definitions.
func (r *Registry) Definitions() []llm.ToolDefinition {
	list := r.List()
	defs := make([]llm.ToolDefinition, 0, len(list))
	for _, meta := range list {
		defs = append(defs, llm.ToolDefinition{
			Name:        meta.Name,
			Description: meta.Description,
			Parameters:  meta.Schema(),
		})
	}
	return defs
}

// Description returns a formatted description of all tools.
func (r *Registry) Description() string {
	var descriptions []string
	for _, meta := range r.List() {
		var params []string
		for _, p := range meta.Parameters {
			required := "optional"
			if p.Required {
				required = "required"
			}
			params = append(params, fmt.Sprintf("  - %s (%s): %s [%s]",
				p.Name, p.ParamType, p.Description, required))
		}

		descriptions = append(descriptions, fmt.Sprintf(
			"Tool: %s\nDescription: %s\nParameters:\n%s",
			meta.Name, meta.Description, strings.Join(params, "\n")))
	}
	return strings.Join(descriptions, "\n\n")
}

// Invoke validates and executes a tool and renders the outcome as text.
// It never fails: unknown tools, invalid arguments and execution errors are
// all reported in the returned string.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) string {
	tool, ok := r.Get(name)
	if !ok {
		r.logger.Warn("unknown tool", zap.String("tool", name))
		return fmt.Sprintf("Error: unknown tool '%s'", name)
	}
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := tool.Validate(args); err != nil {
		r.logger.Warn("tool arguments rejected", zap.String("tool", name), zap.Error(err))
		return FailureResult(fmt.Errorf("validation failed: %w", err)).Text()
	}

	start := time.Now()
	result, err := r.executor.Execute(ctx, tool, args)
	if err != nil {
		result = FailureResult(err)
	}

	fields := []zap.Field{
		zap.String("tool", name),
		zap.Bool("success", result.Success()),
		zap.Duration("elapsed", time.Since(start)),
	}
	if result.Success() {
		r.logger.Info("tool invoked", fields...)
	} else {
		r.logger.Warn("tool failed", append(fields, zap.Error(result.Error))...)
	}
	return result.Text()
}

// NewDefaultRegistry registers the built-in tools under cfg.
func NewDefaultRegistry(cfg Config, logger *zap.Logger) (*Registry, error) {
	registry := NewRegistry().WithExecutor(NewExecutor(cfg)).WithLogger(logger)
	sandbox := NewSandbox(cfg.Sandbox())

	tools := []Tool{
		NewTerminalTool(cfg.Timeout()).WithAllowedCommands(cfg.Commands()),
		NewDownloadTool(sandbox, cfg.DownloadLimit(), cfg.FetchDeadline()),
		NewReadFileTool(sandbox, DefaultMaxFileSize),
		NewWriteFileTool(sandbox, DefaultMaxFileSize),
		NewScrapeTool(cfg.FetchDeadline(), cfg.MaxChars()).WithAllowedDomains(cfg.AllowedDomains),
		NewCurrentTimeTool(),
		NewDateDiffTool(),
	}

	for _, t := range tools {
		if err := registry.Register(t); err != nil {
			return nil, fmt.Errorf("failed to register default tools: %w", err)
		}
	}
	return registry, nil
}
