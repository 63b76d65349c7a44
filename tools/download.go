// Resource Download Tool.
//
// Information Hiding:
// - File naming and sandbox placement hidden
// - Size limiting and partial-file cleanup hidden

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const downloadBufferSize = 8 * 1024

// ErrTooLarge is returned when a download crosses its size limit.
var ErrTooLarge = errors.New("file size exceeds the download limit")

// limitWriter fails once more than limit bytes would be written.
type limitWriter struct {
	w       io.Writer
	limit   int64
	written int64
}

func (l *limitWriter) Write(p []byte) (int, error) {
	if l.written+int64(len(p)) > l.limit {
		return 0, ErrTooLarge
	}
	n, err := l.w.Write(p)
	l.written += int64(n)
	return n, err
}

// DownloadTool saves a URL into the sandbox.
type DownloadTool struct {
	sandbox *Sandbox
	client  *http.Client
	limit   int64
}

// NewDownloadTool creates a download tool writing into sandbox.
func NewDownloadTool(sandbox *Sandbox, limitBytes int64, timeout time.Duration) *DownloadTool {
	if limitBytes <= 0 {
		limitBytes = DefaultDownloadLimitBytes
	}
	return &DownloadTool{
		sandbox: sandbox,
		client:  &http.Client{Timeout: timeout},
		limit:   limitBytes,
	}
}

// Metadata returns the tool metadata.
func (t *DownloadTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "download_resource",
		Description: "Download a file from a URL to local storage. Returns the local file path.",
		Parameters: []ToolParameter{
			{Name: "url", ParamType: "string", Description: "The URL of the resource", Required: true},
			{Name: "file_name", ParamType: "string", Description: "The filename to save as (optional)", Required: false},
		},
	}
}

type downloadArgs struct {
	URL      string `json:"url"`
	FileName string `json:"file_name"`
}

// Validate validates the arguments.
func (t *DownloadTool) Validate(args json.RawMessage) error {
	a, err := decodeArgs[downloadArgs](args)
	if err != nil {
		return err
	}
	if a.URL == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	u, err := url.Parse(a.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("URL must be http or https: %s", a.URL)
	}
	return nil
}

// Execute downloads the resource.
func (t *DownloadTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	a, err := decodeArgs[downloadArgs](args)
	if err != nil {
		return FailureResult(Permanent(err)), nil
	}

	name := fileNameFor(a.URL, a.FileName)
	dest, err := t.sandbox.Resolve(name)
	if err != nil {
		return FailureResult(Permanent(err)), nil
	}
	if _, err := os.Stat(dest); err == nil {
		return FailureResult(Permanent(fmt.Errorf("file '%s' already exists. Please choose a different name", name))), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return FailureResult(Permanent(fmt.Errorf("failed to create request: %w", err))), nil
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return FailureResult(fmt.Errorf("download failed: %w", err)), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return FailureResult(Permanent(fmt.Errorf("download failed. HTTP status: %d", resp.StatusCode))), nil
	}
	if resp.ContentLength > t.limit {
		return FailureResult(Permanent(fmt.Errorf("%w (%d bytes)", ErrTooLarge, t.limit))), nil
	}

	if err := t.sandbox.Ensure(dest); err != nil {
		return FailureResult(err), nil
	}
	if err := t.save(dest, resp.Body); err != nil {
		if errors.Is(err, ErrTooLarge) {
			err = Permanent(fmt.Errorf("%w (%d bytes)", ErrTooLarge, t.limit))
		}
		return FailureResult(err), nil
	}

	abs, err := filepath.Abs(dest)
	if err != nil {
		abs = dest
	}
	return SuccessResult(abs), nil
}

// save copies body into a new file at dest and removes it on any failure.
func (t *DownloadTool) save(dest string, body io.Reader) (err error) {
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Permanent(fmt.Errorf("failed to create file: %w", err))
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close file: %w", cerr)
		}
		if err != nil {
			os.Remove(dest)
		}
	}()

	lw := &limitWriter{w: f, limit: t.limit}
	if _, err = io.CopyBuffer(lw, body, make([]byte, downloadBufferSize)); err != nil {
		if errors.Is(err, ErrTooLarge) {
			return err
		}
		return fmt.Errorf("download failed: %w", err)
	}
	return nil
}

// fileNameFor picks the saved name: the caller's name reduced to its base,
// else the last element of the URL path, else a random id.
func fileNameFor(rawURL, requested string) string {
	if name := baseName(requested); name != "" {
		return name
	}
	if u, err := url.Parse(rawURL); err == nil {
		if name := baseName(strings.TrimSuffix(u.Path, "/")); name != "" {
			return name
		}
	}
	return uuid.NewString()
}
