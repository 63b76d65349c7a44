// Web Scraper Tool.
//
// Information Hiding:
// - HTTP fetch and domain policy hidden
// - HTML walking and noise removal hidden
// - Output truncation hidden

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	truncatedNotice = "\n...(content truncated because it's too long)"
	scrapeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// noiseTags are removed with their whole subtree.
var noiseTags = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Nav:      true,
	atom.Footer:   true,
	atom.Head:     true,
	atom.Iframe:   true,
	atom.Meta:     true,
	atom.Noscript: true,
}

// ScrapeTool fetches a page and returns its visible text.
type ScrapeTool struct {
	client         *http.Client
	maxChars       int
	allowedDomains []string
}

// NewScrapeTool creates a scrape tool.
func NewScrapeTool(timeout time.Duration, maxChars int) *ScrapeTool {
	if maxChars <= 0 {
		maxChars = DefaultFetchMaxChars
	}
	return &ScrapeTool{
		client:   &http.Client{Timeout: timeout},
		maxChars: maxChars,
	}
}

// WithAllowedDomains sets the allowed domains for requests.
func (t *ScrapeTool) WithAllowedDomains(domains []string) *ScrapeTool {
	t.allowedDomains = domains
	return t
}

// Metadata returns the tool metadata.
func (t *ScrapeTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "scrape_webpage",
		Description: "Scrape and read the text content of a specific webpage URL. Use this when you need to read a full article, documentation, or news report.",
		Parameters: []ToolParameter{
			{Name: "url", ParamType: "string", Description: "The URL of the webpage to read (e.g. https://example.com/article)", Required: true},
		},
	}
}

type scrapeArgs struct {
	URL string `json:"url"`
}

// Validate validates the arguments.
func (t *ScrapeTool) Validate(args json.RawMessage) error {
	a, err := decodeArgs[scrapeArgs](args)
	if err != nil {
		return err
	}
	if a.URL == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	return nil
}

// Execute fetches and cleans the page.
func (t *ScrapeTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	a, err := decodeArgs[scrapeArgs](args)
	if err != nil {
		return FailureResult(Permanent(err)), nil
	}
	if !t.isDomainAllowed(a.URL) {
		return Refusef("access to domain in '%s' is not allowed", a.URL), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return FailureResult(Permanent(fmt.Errorf("failed to create request: %w", err))), nil
	}
	req.Header.Set("User-Agent", scrapeUserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return FailureResult(fmt.Errorf("unable to access the webpage: %w", err)), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return FailureResult(Permanent(fmt.Errorf("unable to access the webpage. HTTP status: %d", resp.StatusCode))), nil
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return FailureResult(fmt.Errorf("failed to parse page: %w", err)), nil
	}
	return SuccessResult(truncateRunes(visibleText(doc), t.maxChars)), nil
}

// visibleText concatenates the text nodes outside noise elements with all
// whitespace runs collapsed to one space.
func visibleText(doc *html.Node) string {
	var words []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && noiseTags[n.DataAtom] {
			return
		}
		if n.Type == html.TextNode {
			words = append(words, strings.Fields(n.Data)...)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(words, " ")
}

// truncateRunes cuts s to max runes and appends the truncation notice.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + truncatedNotice
}

// isDomainAllowed checks if the URL's domain is in the allowlist.
// An empty allowlist permits every domain.
func (t *ScrapeTool) isDomainAllowed(urlStr string) bool {
	if len(t.allowedDomains) == 0 {
		return true
	}

	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	host := u.Hostname()
	for _, domain := range t.allowedDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
