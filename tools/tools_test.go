package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/richinex/counsel/knowledge"
)

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	return b
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
}

func execute(t *testing.T, tool Tool, args any) ToolResult {
	t.Helper()
	res, err := tool.Execute(context.Background(), raw(t, args))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	return res
}

func expectAbsent(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected %s to be absent, stat returned %v", path, err)
	}
}

func TestDefaultRegistry(t *testing.T) {
	reg, err := NewDefaultRegistry(Config{SandboxDir: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("NewDefaultRegistry failed: %v", err)
	}

	want := []string{
		"date_diff", "download_resource", "get_current_time", "read_file",
		"run_terminal_command", "scrape_webpage", "write_file",
	}
	if names := reg.Names(); !slices.Equal(names, want) {
		t.Errorf("expected %v, got %v", want, names)
	}

	defs := reg.Definitions()
	if len(defs) != 7 {
		t.Fatalf("expected 7 definitions, got %d", len(defs))
	}
	for _, d := range defs {
		if d.Name != "write_file" {
			continue
		}
		if d.Parameters["type"] != "object" {
			t.Errorf("expected object schema, got %v", d.Parameters["type"])
		}
		if req, _ := d.Parameters["required"].([]string); !slices.Equal(req, []string{"file_name", "content"}) {
			t.Errorf("unexpected required list %v", d.Parameters["required"])
		}
		props := d.Parameters["properties"].(map[string]interface{})
		if _, ok := props["content"]; !ok {
			t.Error("content property missing")
		}
	}

	if err := reg.Register(NewDateDiffTool()); err == nil {
		t.Error("duplicate names must be rejected")
	}
	if !strings.Contains(reg.Description(), "Tool: run_terminal_command") {
		t.Error("description missing terminal tool")
	}
}

func TestInvokeNeverFails(t *testing.T) {
	reg, err := NewDefaultRegistry(Config{SandboxDir: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("NewDefaultRegistry failed: %v", err)
	}
	ctx := context.Background()

	if out := reg.Invoke(ctx, "fly", nil); out != "Error: unknown tool 'fly'" {
		t.Errorf("unexpected output %q", out)
	}
	cases := []struct {
		tool, args, prefix string
	}{
		{"read_file", `{}`, "Error: validation failed"},
		{"date_diff", `{"target_date":"soon"}`, "Error: validation failed"},
		{"read_file", `not json`, "Error:"},
	}
	for _, c := range cases {
		if out := reg.Invoke(ctx, c.tool, json.RawMessage(c.args)); !strings.HasPrefix(out, c.prefix) {
			t.Errorf("%s %s: expected prefix %q, got %q", c.tool, c.args, c.prefix, out)
		}
	}
}

func TestTerminalRejectedCommandSpawnsNothing(t *testing.T) {
	var spawned atomic.Int32
	tool := NewTerminalTool(time.Second)
	tool.command = func(ctx context.Context, command string) *exec.Cmd {
		spawned.Add(1)
		return shellCommand(ctx, command)
	}

	for _, cmd := range []string{"rm -rf /", "shutdown now", "echo hi; rm -rf /", "ls | sh", "echo $(whoami)", "git status && reboot"} {
		res := execute(t, tool, map[string]string{"command": cmd})
		if res.Success() || !errors.Is(res.Error, ErrNotAllowed) {
			t.Errorf("%q: expected ErrNotAllowed, got %v", cmd, res.Error)
		}
		if !strings.Contains(res.Text(), "is not in the allowlist") {
			t.Errorf("%q: unexpected text %q", cmd, res.Text())
		}
	}
	if n := spawned.Load(); n != 0 {
		t.Errorf("rejected commands started %d processes", n)
	}
}

func TestTerminalRefusalNotRetried(t *testing.T) {
	var spawned atomic.Int32
	tool := NewTerminalTool(time.Second)
	tool.command = func(ctx context.Context, command string) *exec.Cmd {
		spawned.Add(1)
		return shellCommand(ctx, command)
	}
	reg := NewRegistry()
	if err := reg.Register(tool); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	out := reg.Invoke(context.Background(), "run_terminal_command", raw(t, map[string]string{"command": "rm x"}))
	if want := "Error: permission denied: command 'rm x' is not in the allowlist"; out != want {
		t.Errorf("expected %q, got %q", want, out)
	}
	if n := spawned.Load(); n != 0 {
		t.Errorf("refused command started %d processes", n)
	}
}

func TestTerminalRunsAllowedCommand(t *testing.T) {
	skipOnWindows(t)
	res := execute(t, NewTerminalTool(5*time.Second), map[string]string{"command": "echo hello"})
	if !res.Success() {
		t.Fatalf("command failed: %s", res.Text())
	}
	if res.Output != "hello\n" {
		t.Errorf("expected 'hello\\n', got %q", res.Output)
	}
}

func TestTerminalNoOutput(t *testing.T) {
	skipOnWindows(t)
	tool := NewTerminalTool(5 * time.Second).WithAllowedCommands([]string{"true"})

	if res := execute(t, tool, map[string]string{"command": "true"}); res.Output != noOutputNotice {
		t.Errorf("expected no-output notice, got %q", res.Output)
	}
}

func TestTerminalTimeoutKillsProcess(t *testing.T) {
	skipOnWindows(t)
	tool := NewTerminalTool(200 * time.Millisecond).WithAllowedCommands([]string{"sleep"})

	start := time.Now()
	res := execute(t, tool, map[string]string{"command": "sleep 10"})
	if elapsed := time.Since(start); elapsed >= 5*time.Second {
		t.Errorf("timeout did not stop the process, took %v", elapsed)
	}
	if !strings.HasSuffix(res.Output, timeoutNotice) {
		t.Errorf("expected timeout notice, got %q", res.Output)
	}
}

func TestSandboxResolve(t *testing.T) {
	root := t.TempDir()
	sb := NewSandbox(root)

	p, err := sb.Resolve("notes/plan.txt")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if want := filepath.Join(root, "notes", "plan.txt"); p != want {
		t.Errorf("expected %q, got %q", want, p)
	}

	for _, bad := range []string{"../secret", "a/../../secret", `..\secret`, "/etc/passwd", "", "."} {
		if _, err := sb.Resolve(bad); err == nil {
			t.Errorf("Resolve(%q) should fail", bad)
		}
	}
}

func TestFileToolsRoundTrip(t *testing.T) {
	root := t.TempDir()
	reg, err := NewDefaultRegistry(Config{SandboxDir: root}, nil)
	if err != nil {
		t.Fatalf("NewDefaultRegistry failed: %v", err)
	}
	ctx := context.Background()

	out := reg.Invoke(ctx, "write_file", raw(t, map[string]string{"file_name": "plan.txt", "content": "dinner at eight"}))
	if out != "Success: file saved to plan.txt" {
		t.Errorf("unexpected write output %q", out)
	}

	data, err := os.ReadFile(filepath.Join(root, "plan.txt"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "dinner at eight" {
		t.Errorf("unexpected file content %q", data)
	}

	if out := reg.Invoke(ctx, "read_file", raw(t, map[string]string{"file_name": "plan.txt"})); out != "dinner at eight" {
		t.Errorf("unexpected read output %q", out)
	}
	if out := reg.Invoke(ctx, "read_file", raw(t, map[string]string{"file_name": "missing.txt"})); out != "Error: file 'missing.txt' does not exist" {
		t.Errorf("unexpected missing-file output %q", out)
	}

	out = reg.Invoke(ctx, "write_file", raw(t, map[string]string{"file_name": "../escape.txt", "content": "x"}))
	if !strings.Contains(out, "escapes the sandbox") {
		t.Errorf("expected sandbox refusal, got %q", out)
	}
	expectAbsent(t, filepath.Join(filepath.Dir(root), "escape.txt"))
}

func TestFileNameFor(t *testing.T) {
	cases := []struct {
		url, name, want string
	}{
		{"https://x.test/a.bin", "../../etc/passwd", "passwd"},
		{"https://x.test/files/report.pdf?x=1", "", "report.pdf"},
		{"https://x.test/files/", " ", "files"},
	}
	for _, c := range cases {
		if got := fileNameFor(c.url, c.name); got != c.want {
			t.Errorf("fileNameFor(%q, %q) = %q, expected %q", c.url, c.name, got, c.want)
		}
	}

	// Falls back to a uuid.
	if id := fileNameFor("https://x.test/", ""); len(id) != 36 {
		t.Errorf("expected a uuid, got %q", id)
	}
}

func TestDownload(t *testing.T) {
	payload := strings.Repeat("a", 2048)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/small.txt":
			fmt.Fprint(w, payload)
		case "/stream.bin":
			flusher := w.(http.Flusher)
			for i := 0; i < 8; i++ {
				fmt.Fprint(w, payload)
				flusher.Flush()
			}
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	root := t.TempDir()
	tool := NewDownloadTool(NewSandbox(root), 4096, 5*time.Second)

	res := execute(t, tool, map[string]string{"url": srv.URL + "/small.txt"})
	if !res.Success() {
		t.Fatalf("download failed: %s", res.Text())
	}
	data, err := os.ReadFile(filepath.Join(root, "small.txt"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != payload {
		t.Errorf("downloaded %d bytes, expected %d", len(data), len(payload))
	}
	if !filepath.IsAbs(res.Output) {
		t.Errorf("expected absolute path, got %q", res.Output)
	}

	res = execute(t, tool, map[string]string{"url": srv.URL + "/small.txt"})
	if !strings.Contains(res.Text(), "already exists") || !IsPermanent(res.Error) {
		t.Errorf("expected permanent already-exists error, got %q", res.Text())
	}

	res = execute(t, tool, map[string]string{"url": srv.URL + "/stream.bin"})
	if !errors.Is(res.Error, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", res.Error)
	}
	// Partial file must be removed.
	expectAbsent(t, filepath.Join(root, "stream.bin"))

	res = execute(t, tool, map[string]string{"url": srv.URL + "/missing.txt"})
	if !strings.Contains(res.Text(), "HTTP status: 404") {
		t.Errorf("expected 404 error, got %q", res.Text())
	}
	expectAbsent(t, filepath.Join(root, "missing.txt"))
}

func TestDownloadRejectsLargeContentLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100000")
		w.Write(make([]byte, 100000))
	}))
	defer srv.Close()

	root := t.TempDir()
	res := execute(t, NewDownloadTool(NewSandbox(root), 1024, 5*time.Second), map[string]string{"url": srv.URL + "/big.iso"})
	if !errors.Is(res.Error, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", res.Error)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty sandbox, got %d entries", len(entries))
	}
}

const page = `<html><head><title>T</title><style>p{}</style><meta name="x"></head>
<body><nav>menu</nav><h1>Weekend   ideas</h1>
<script>alert(1)</script><noscript>enable js</noscript>
<p>Walk by the
 river.</p><iframe src="x">frame</iframe><footer>copyright</footer></body></html>`

func TestScrapeStripsNoise(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing User-Agent")
		}
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	res := execute(t, NewScrapeTool(5*time.Second, 0), map[string]string{"url": srv.URL})
	if !res.Success() {
		t.Fatalf("scrape failed: %s", res.Text())
	}
	if want := "Weekend ideas Walk by the river."; res.Output != want {
		t.Errorf("expected %q, got %q", want, res.Output)
	}
}

func TestScrapeTruncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "<html><body><p>%s</p></body></html>", strings.Repeat("爱", 30))
	}))
	defer srv.Close()

	res := execute(t, NewScrapeTool(5*time.Second, 10), map[string]string{"url": srv.URL})
	if want := strings.Repeat("爱", 10) + truncatedNotice; res.Output != want {
		t.Errorf("expected %q, got %q", want, res.Output)
	}
}

func TestScrapeDomainAllowList(t *testing.T) {
	tool := NewScrapeTool(time.Second, 0).WithAllowedDomains([]string{"example.com"})
	if !tool.isDomainAllowed("https://docs.example.com/a") {
		t.Error("subdomain should be allowed")
	}
	if tool.isDomainAllowed("https://example.com.evil.test/a") {
		t.Error("lookalike domain should be refused")
	}

	if res := execute(t, tool, map[string]string{"url": "https://evil.test"}); !errors.Is(res.Error, ErrNotAllowed) {
		t.Errorf("expected ErrNotAllowed, got %v", res.Error)
	}
}

func TestCurrentTime(t *testing.T) {
	tool := NewCurrentTimeTool()
	tool.now = func() time.Time { return time.Date(2025, 12, 5, 9, 2, 58, 0, time.UTC) }

	if res := execute(t, tool, map[string]string{"timezone": "Asia/Shanghai"}); res.Output != "2025-12-05 Friday 17:02:58 (CST)" {
		t.Errorf("unexpected time %q", res.Output)
	}
	if res := execute(t, tool, map[string]string{"timezone": "Mars/Olympus"}); !strings.Contains(res.Text(), "invalid timezone ID 'Mars/Olympus'") {
		t.Errorf("unexpected error text %q", res.Text())
	}
}

func TestDateDiff(t *testing.T) {
	tool := NewDateDiffTool()
	tool.now = func() time.Time { return time.Date(2025, 12, 5, 17, 0, 0, 0, time.UTC) }

	cases := map[string]string{
		"2025-12-25": "20 days until 2025-12-25.",
		"2025-12-01": "4 days have passed since 2025-12-01.",
		"2025-12-05": "2025-12-05 is today.",
	}
	for date, want := range cases {
		if got := execute(t, tool, map[string]string{"target_date": date}).Text(); got != want {
			t.Errorf("%s: expected %q, got %q", date, want, got)
		}
	}
}

type flakyTool struct {
	BaseTool
	calls int
	fails int
	err   error
}

func (f *flakyTool) Metadata() ToolMetadata { return ToolMetadata{Name: "flaky"} }

func (f *flakyTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	f.calls++
	if f.calls <= f.fails {
		return FailureResult(f.err), nil
	}
	return SuccessResult("ok"), nil
}

func TestExecutorRetries(t *testing.T) {
	e := NewExecutor(Config{MaxRetries: 3})
	e.baseDelay = time.Millisecond
	ctx := context.Background()

	tool := &flakyTool{fails: 2, err: errors.New("connection reset")}
	res, err := e.Execute(ctx, tool, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Output != "ok" || tool.calls != 3 {
		t.Errorf("expected success on the third call, got %q after %d calls", res.Output, tool.calls)
	}

	tool = &flakyTool{fails: 5, err: errors.New("connection reset")}
	res, err = e.Execute(ctx, tool, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(res.Text(), "failed after 3 attempts") {
		t.Errorf("unexpected text %q", res.Text())
	}

	tool = &flakyTool{fails: 5, err: Permanent(errors.New("gone"))}
	res, err = e.Execute(ctx, tool, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if tool.calls != 1 || res.Text() != "Error: gone" {
		t.Errorf("permanent error retried: %d calls, %q", tool.calls, res.Text())
	}
}

func TestExecutorHonoursCancel(t *testing.T) {
	e := NewExecutor(Config{MaxRetries: 3})
	e.baseDelay = time.Hour
	e.maxDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	tool := &flakyTool{fails: 5, err: errors.New("network down")}
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if _, err := e.Execute(ctx, tool, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestKnowledgeTools(t *testing.T) {
	ix := knowledge.NewIndex([]knowledge.Snippet{
		{Source: "dating.md", Text: "Plan a picnic in the park."},
		{Source: "dating.md", Text: "Bring flowers on the first date."},
		{Source: "money.md", Text: "Split the bill."},
	}, 2)
	reg := NewRegistry()
	if err := RegisterKnowledge(reg, ix); err != nil {
		t.Fatalf("RegisterKnowledge failed: %v", err)
	}
	ctx := context.Background()

	out := reg.Invoke(ctx, "search_knowledge", raw(t, map[string]string{"query": "picnic"}))
	if !strings.Contains(out, "Found 1 passage(s)") || !strings.Contains(out, "Plan a picnic in the park.") {
		t.Errorf("unexpected search output %q", out)
	}

	cases := []struct {
		tool string
		args json.RawMessage
		want string
	}{
		{"search_knowledge", raw(t, map[string]string{"query": "zebra"}), "No passages match 'zebra'."},
		{"list_knowledge", raw(t, map[string]string{"prefix": "dat"}), "dating.md (2 sections)\n"},
		{"list_knowledge", nil, "dating.md (2 sections)\nmoney.md (1 sections)\n"},
	}
	for _, c := range cases {
		if got := reg.Invoke(ctx, c.tool, c.args); got != c.want {
			t.Errorf("%s %s: expected %q, got %q", c.tool, c.args, c.want, got)
		}
	}
}
