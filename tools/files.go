// Sandboxed file tools.
//
// Information Hiding:
// - Path resolution and traversal checks hidden in Sandbox
// - File I/O and size limits hidden

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ReadFileTool reads a file from the sandbox.
type ReadFileTool struct {
	sandbox      *Sandbox
	maxSizeBytes int64
}

// NewReadFileTool creates a new read file tool.
func NewReadFileTool(sandbox *Sandbox, maxSizeBytes int64) *ReadFileTool {
	return &ReadFileTool{sandbox: sandbox, maxSizeBytes: maxSizeBytes}
}

// Metadata returns the tool metadata.
func (t *ReadFileTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "read_file",
		Description: "Read content from a file. Useful when you need to retrieve past records or analyze local files.",
		Parameters: []ToolParameter{
			{Name: "file_name", ParamType: "string", Description: "The name of the file to read", Required: true},
		},
	}
}

type readFileArgs struct {
	FileName string `json:"file_name"`
}

// Validate validates the arguments.
func (t *ReadFileTool) Validate(args json.RawMessage) error {
	a, err := decodeArgs[readFileArgs](args)
	if err != nil {
		return err
	}
	if a.FileName == "" {
		return fmt.Errorf("file_name cannot be empty")
	}
	return nil
}

// Execute reads the file.
func (t *ReadFileTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	a, err := decodeArgs[readFileArgs](args)
	if err != nil {
		return FailureResult(Permanent(err)), nil
	}
	path, err := t.sandbox.Resolve(a.FileName)
	if err != nil {
		return FailureResult(Permanent(err)), nil
	}

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return FailureResult(Permanent(fmt.Errorf("file '%s' does not exist", a.FileName))), nil
	}
	if err != nil {
		return FailureResult(fmt.Errorf("failed to read file metadata: %w", err)), nil
	}
	if info.IsDir() {
		return FailureResult(Permanent(fmt.Errorf("'%s' is a directory", a.FileName))), nil
	}
	if info.Size() > t.maxSizeBytes {
		return FailureResult(Permanent(fmt.Errorf("file too large: %d bytes (max: %d bytes)", info.Size(), t.maxSizeBytes))), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return FailureResult(fmt.Errorf("failed to read file: %w", err)), nil
	}
	return SuccessResult(string(content)), nil
}

// WriteFileTool writes a file into the sandbox, replacing any existing one.
type WriteFileTool struct {
	sandbox      *Sandbox
	maxSizeBytes int64
}

// NewWriteFileTool creates a new write file tool.
func NewWriteFileTool(sandbox *Sandbox, maxSizeBytes int64) *WriteFileTool {
	return &WriteFileTool{sandbox: sandbox, maxSizeBytes: maxSizeBytes}
}

// Metadata returns the tool metadata.
func (t *WriteFileTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "write_file",
		Description: "Write content to a file. Useful when you need to save text, code, or reports locally.",
		Parameters: []ToolParameter{
			{Name: "file_name", ParamType: "string", Description: "The name of the file (e.g., 'date_plan.txt')", Required: true},
			{Name: "content", ParamType: "string", Description: "The text content to write into the file", Required: true},
		},
	}
}

type writeFileArgs struct {
	FileName string `json:"file_name"`
	Content  string `json:"content"`
}

// Validate validates the arguments.
func (t *WriteFileTool) Validate(args json.RawMessage) error {
	a, err := decodeArgs[writeFileArgs](args)
	if err != nil {
		return err
	}
	if a.FileName == "" {
		return fmt.Errorf("file_name cannot be empty")
	}
	if int64(len(a.Content)) > t.maxSizeBytes {
		return fmt.Errorf("content too large: %d bytes (max: %d bytes)", len(a.Content), t.maxSizeBytes)
	}
	return nil
}

// Execute writes the file.
func (t *WriteFileTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	a, err := decodeArgs[writeFileArgs](args)
	if err != nil {
		return FailureResult(Permanent(err)), nil
	}
	path, err := t.sandbox.Resolve(a.FileName)
	if err != nil {
		return FailureResult(Permanent(err)), nil
	}
	if err := t.sandbox.Ensure(path); err != nil {
		return FailureResult(err), nil
	}
	if err := os.WriteFile(path, []byte(a.Content), 0o644); err != nil {
		return FailureResult(fmt.Errorf("failed to write file: %w", err)), nil
	}
	return SuccessResult(fmt.Sprintf("Success: file saved to %s", a.FileName)), nil
}
