// Package tools provides the tools the assistant may call during a turn.
//
// Information Hiding:
// - Tool execution details hidden behind interface
// - Tool parameters and schemas hidden in implementations
// - Sandbox and allow-list policy internalized per tool
// - Failures rendered to text, never returned to the conversation
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ToolParameter defines a parameter schema for a tool.
type ToolParameter struct {
	Name        string `json:"name"`
	ParamType   string `json:"param_type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// ToolMetadata describes what a tool does and how to use it.
type ToolMetadata struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
}

// String returns a string representation of the tool metadata.
func (m ToolMetadata) String() string {
	return fmt.Sprintf("%s: %s", m.Name, m.Description)
}

// Schema renders the parameters as a JSON Schema object.
func (m ToolMetadata) Schema() map[string]interface{} {
	props := make(map[string]interface{}, len(m.Parameters))
	var required []string
	for _, p := range m.Parameters {
		props[p.Name] = map[string]interface{}{
			"type":        p.ParamType,
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// ToolResult represents the result of a tool execution.
// Success is determined by whether Error is nil.
type ToolResult struct {
	Output string `json:"output"`
	Error  error  `json:"-"`
}

// MarshalJSON implements custom JSON marshaling for ToolResult.
func (t ToolResult) MarshalJSON() ([]byte, error) {
	if t.Error != nil {
		return json.Marshal(struct {
			Success bool   `json:"success"`
			Output  string `json:"output"`
			Error   string `json:"error"`
		}{
			Success: false,
			Output:  t.Output,
			Error:   t.Error.Error(),
		})
	}
	return json.Marshal(struct {
		Success bool   `json:"success"`
		Output  string `json:"output"`
	}{
		Success: true,
		Output:  t.Output,
	})
}

// Success returns true if the tool execution succeeded.
func (t ToolResult) Success() bool {
	return t.Error == nil
}

// Text renders the result for the model. Failures become "Error: ..." lines
// followed by any partial output.
func (t ToolResult) Text() string {
	if t.Error == nil {
		return t.Output
	}
	if t.Output == "" {
		return "Error: " + t.Error.Error()
	}
	return "Error: " + t.Error.Error() + "\n" + t.Output
}

// SuccessResult creates a successful tool result.
func SuccessResult(output string) ToolResult {
	return ToolResult{Output: output}
}

// FailureResult creates a failed tool result.
func FailureResult(err error) ToolResult {
	return ToolResult{Error: err}
}

// FailureResultf creates a failed tool result with a formatted error message.
func FailureResultf(format string, args ...interface{}) ToolResult {
	return ToolResult{Error: fmt.Errorf(format, args...)}
}

// ErrNotAllowed marks a request refused by policy (allow-lists, sandbox).
var ErrNotAllowed = errors.New("permission denied")

// Refusef creates a failed result for a policy refusal. Refusals are never
// retried.
func Refusef(format string, args ...interface{}) ToolResult {
	return ToolResult{Error: Permanent(fmt.Errorf("%w: "+format, append([]interface{}{ErrNotAllowed}, args...)...))}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Tool is the interface that all tools must implement.
type Tool interface {
	// Metadata returns tool metadata (name, description, parameters).
	Metadata() ToolMetadata

	// Execute runs the tool with given arguments.
	Execute(ctx context.Context, args json.RawMessage) (ToolResult, error)

	// Validate validates arguments before execution.
	Validate(args json.RawMessage) error
}

// BaseTool provides a default implementation for Validate.
type BaseTool struct{}

// Validate provides a default no-op validation.
func (BaseTool) Validate(args json.RawMessage) error {
	return nil
}

// decodeArgs unmarshals tool arguments. Empty arguments decode to the zero
// value.
func decodeArgs[T any](args json.RawMessage) (T, error) {
	var v T
	if len(args) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(args, &v); err != nil {
		return v, fmt.Errorf("invalid arguments: %w", err)
	}
	return v, nil
}

// Config holds tool policy and limits.
// The zero value is safe: every accessor falls back to its default.
type Config struct {
	SandboxDir         string
	AllowedCommands    []string
	CommandTimeout     time.Duration
	DownloadLimitBytes int64
	FetchMaxChars      int
	FetchTimeout       time.Duration
	AllowedDomains     []string
	MaxRetries         uint32
}

// Defaults.
const (
	DefaultSandboxDir         = "tmp"
	DefaultCommandTimeout     = 5 * time.Second
	DefaultDownloadLimitBytes = 50 * 1024 * 1024
	DefaultFetchMaxChars      = 4000
	DefaultFetchTimeout       = 10 * time.Second
	DefaultMaxRetries         = 3
	DefaultMaxFileSize        = 1024 * 1024
)

// DefaultAllowedCommands is the terminal allow-list used when none is set.
var DefaultAllowedCommands = []string{"git status", "git log", "go version", "ls", "dir", "echo"}

// DefaultConfig returns the default tool configuration.
func DefaultConfig() Config {
	return Config{
		SandboxDir:         DefaultSandboxDir,
		AllowedCommands:    append([]string(nil), DefaultAllowedCommands...),
		CommandTimeout:     DefaultCommandTimeout,
		DownloadLimitBytes: DefaultDownloadLimitBytes,
		FetchMaxChars:      DefaultFetchMaxChars,
		FetchTimeout:       DefaultFetchTimeout,
		MaxRetries:         DefaultMaxRetries,
	}
}

// Sandbox returns the sandbox root, defaulting to "tmp".
func (c *Config) Sandbox() string {
	if c == nil || c.SandboxDir == "" {
		return DefaultSandboxDir
	}
	return c.SandboxDir
}

// Commands returns the terminal allow-list.
func (c *Config) Commands() []string {
	if c == nil || len(c.AllowedCommands) == 0 {
		return DefaultAllowedCommands
	}
	return c.AllowedCommands
}

// Timeout returns the terminal timeout, defaulting to 5 seconds.
func (c *Config) Timeout() time.Duration {
	if c == nil || c.CommandTimeout <= 0 {
		return DefaultCommandTimeout
	}
	return c.CommandTimeout
}

// DownloadLimit returns the download size limit, defaulting to 50MB.
func (c *Config) DownloadLimit() int64 {
	if c == nil || c.DownloadLimitBytes <= 0 {
		return DefaultDownloadLimitBytes
	}
	return c.DownloadLimitBytes
}

// MaxChars returns the scrape truncation limit in runes.
func (c *Config) MaxChars() int {
	if c == nil || c.FetchMaxChars <= 0 {
		return DefaultFetchMaxChars
	}
	return c.FetchMaxChars
}

// FetchDeadline returns the HTTP timeout for network tools.
func (c *Config) FetchDeadline() time.Duration {
	if c == nil || c.FetchTimeout <= 0 {
		return DefaultFetchTimeout
	}
	return c.FetchTimeout
}

// Retries returns the configured max attempts, defaulting to 3.
func (c *Config) Retries() uint32 {
	if c == nil || c.MaxRetries == 0 {
		return DefaultMaxRetries
	}
	return c.MaxRetries
}
