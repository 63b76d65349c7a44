// Knowledge Tools - expose the markdown knowledge index to the model.
//
// These tools let the model search and browse the loaded knowledge base
// on demand, in addition to the context retrieved for every turn.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/richinex/counsel/knowledge"
)

// KnowledgeBase is the part of knowledge.Index the tools need.
type KnowledgeBase interface {
	knowledge.Retriever
	Sources(prefix string) []string
	Snippets(source string) []knowledge.Snippet
}

// SearchKnowledgeTool ranks knowledge snippets against a query.
type SearchKnowledgeTool struct {
	kb KnowledgeBase
}

// NewSearchKnowledgeTool creates a search tool over kb.
func NewSearchKnowledgeTool(kb KnowledgeBase) *SearchKnowledgeTool {
	return &SearchKnowledgeTool{kb: kb}
}

// Metadata returns the tool metadata.
func (t *SearchKnowledgeTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "search_knowledge",
		Description: "Search the local knowledge base for passages relevant to a question. Returns the best matching passages.",
		Parameters: []ToolParameter{
			{Name: "query", ParamType: "string", Description: "What to look for", Required: true},
		},
	}
}

type searchKnowledgeArgs struct {
	Query string `json:"query"`
}

// Validate validates the arguments.
func (t *SearchKnowledgeTool) Validate(args json.RawMessage) error {
	a, err := decodeArgs[searchKnowledgeArgs](args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(a.Query) == "" {
		return fmt.Errorf("query cannot be empty")
	}
	return nil
}

// Execute runs the search.
func (t *SearchKnowledgeTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	a, err := decodeArgs[searchKnowledgeArgs](args)
	if err != nil {
		return FailureResult(Permanent(err)), nil
	}
	hits, err := t.kb.Retrieve(ctx, a.Query)
	if err != nil {
		return FailureResult(fmt.Errorf("search failed: %w", err)), nil
	}
	if len(hits) == 0 {
		return SuccessResult(fmt.Sprintf("No passages match '%s'.", a.Query)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d passage(s):\n", len(hits))
	for i, h := range hits {
		fmt.Fprintf(&b, "\n[%d]\n%s\n", i+1, h)
	}
	return SuccessResult(b.String()), nil
}

// ListKnowledgeTool lists knowledge files by name prefix.
type ListKnowledgeTool struct {
	BaseTool
	kb KnowledgeBase
}

// NewListKnowledgeTool creates a listing tool over kb.
func NewListKnowledgeTool(kb KnowledgeBase) *ListKnowledgeTool {
	return &ListKnowledgeTool{kb: kb}
}

// Metadata returns the tool metadata.
func (t *ListKnowledgeTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "list_knowledge",
		Description: "List the files in the local knowledge base, optionally filtered by a name prefix, with their section counts.",
		Parameters: []ToolParameter{
			{Name: "prefix", ParamType: "string", Description: "File name prefix (optional)", Required: false},
		},
	}
}

type listKnowledgeArgs struct {
	Prefix string `json:"prefix"`
}

// Execute lists the files.
func (t *ListKnowledgeTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	a, err := decodeArgs[listKnowledgeArgs](args)
	if err != nil {
		return FailureResult(Permanent(err)), nil
	}
	sources := t.kb.Sources(a.Prefix)
	if len(sources) == 0 {
		return SuccessResult("No knowledge files found."), nil
	}

	var b strings.Builder
	for _, s := range sources {
		fmt.Fprintf(&b, "%s (%d sections)\n", s, len(t.kb.Snippets(s)))
	}
	return SuccessResult(b.String()), nil
}

// RegisterKnowledge adds the knowledge tools to r.
func RegisterKnowledge(r *Registry, kb KnowledgeBase) error {
	for _, tool := range []Tool{NewSearchKnowledgeTool(kb), NewListKnowledgeTool(kb)} {
		if err := r.Register(tool); err != nil {
			return fmt.Errorf("failed to register knowledge tools: %w", err)
		}
	}
	return nil
}
