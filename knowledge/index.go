// Package knowledge retrieves markdown snippets relevant to a user query.
//
// Information Hiding:
// - Markdown splitting and file discovery hidden
// - Substring index layout (one suffix array over all snippets) hidden
// - Scoring and ranking hidden behind Retrieve
package knowledge

import (
	"bufio"
	"cmp"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/richinex/counsel/internal/dsa"
)

// DefaultTopK is the number of snippets returned when none is configured.
const DefaultTopK = 3

// separator joins snippets in the search corpus so no match spans two.
const separator = "\x00"

// Retriever supplies context snippets for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]string, error)
}

// Snippet is one section of a markdown file.
type Snippet struct {
	Source string // file name
	Text   string
}

// Index is an immutable in-memory snippet index. Safe for concurrent use.
type Index struct {
	snippets []Snippet
	starts   []int // corpus offset of each snippet
	corpus   *dsa.SuffixArray
	sources  *dsa.Trie[[]int]
	topK     int
}

// Load reads every *.md file in dir and indexes its sections.
func Load(dir string, topK int, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("list markdown in %s: %w", dir, err)
	}
	slices.Sort(paths)

	var snippets []Snippet
	for _, p := range paths {
		sections, err := splitFile(p)
		if err != nil {
			return nil, err
		}
		name := filepath.Base(p)
		for _, s := range sections {
			snippets = append(snippets, Snippet{Source: name, Text: s})
		}
	}

	logger.Named("knowledge").Info("knowledge loaded",
		zap.String("dir", dir),
		zap.Int("files", len(paths)),
		zap.Int("snippets", len(snippets)),
	)
	return NewIndex(snippets, topK), nil
}

// NewIndex builds an index over snippets. topK <= 0 uses DefaultTopK.
func NewIndex(snippets []Snippet, topK int) *Index {
	if topK <= 0 {
		topK = DefaultTopK
	}
	ix := &Index{
		snippets: slices.Clone(snippets),
		starts:   make([]int, len(snippets)),
		sources:  dsa.NewTrie[[]int](),
		topK:     topK,
	}

	var corpus strings.Builder
	for i, s := range ix.snippets {
		ix.starts[i] = corpus.Len()
		corpus.WriteString(strings.ToLower(s.Text))
		corpus.WriteString(separator)

		ids, _ := ix.sources.Get(s.Source)
		ix.sources.Insert(s.Source, append(ids, i))
	}
	ix.corpus = dsa.BuildSuffixArray(corpus.String())
	return ix
}

// Len returns the number of indexed snippets.
func (ix *Index) Len() int { return len(ix.snippets) }

// Sources returns indexed file names starting with prefix.
func (ix *Index) Sources(prefix string) []string {
	return ix.sources.WithPrefix(prefix)
}

// Snippets returns the snippets loaded from the named file.
func (ix *Index) Snippets(source string) []Snippet {
	ids, _ := ix.sources.Get(source)
	out := make([]Snippet, len(ids))
	for i, id := range ids {
		out[i] = ix.snippets[id]
	}
	return out
}

// Retrieve returns up to topK snippet texts ranked by query-term hits.
// Ties keep load order. Snippets with no hits are never returned.
func (ix *Index) Retrieve(ctx context.Context, query string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scores := make(map[int]int)
	for _, term := range terms(query) {
		for _, pos := range ix.corpus.Search(term) {
			scores[ix.snippetAt(pos)]++
		}
	}
	if len(scores) == 0 {
		return nil, nil
	}

	ranked := make([]int, 0, len(scores))
	for id := range scores {
		ranked = append(ranked, id)
	}
	slices.SortFunc(ranked, func(a, b int) int {
		if c := cmp.Compare(scores[b], scores[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	if len(ranked) > ix.topK {
		ranked = ranked[:ix.topK]
	}

	out := make([]string, len(ranked))
	for i, id := range ranked {
		out[i] = ix.snippets[id].Text
	}
	return out, nil
}

func (ix *Index) snippetAt(pos int) int {
	return sort.Search(len(ix.starts), func(i int) bool { return ix.starts[i] > pos }) - 1
}

// terms lowercases query and splits it on anything that is not a letter or
// digit. Runs of Han characters become overlapping bigrams since they carry
// no spaces. Single-rune terms are dropped.
func terms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool)
	var out []string
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, f := range fields {
		runes := []rune(f)
		if len(runes) < 2 {
			continue
		}
		if !slices.ContainsFunc(runes, isHan) {
			add(f)
			continue
		}
		for i := 0; i+1 < len(runes); i++ {
			add(string(runes[i : i+2]))
		}
	}
	return out
}

func isHan(r rune) bool { return unicode.Is(unicode.Han, r) }

// splitFile reads a markdown file and splits it on horizontal rules.
// Fenced code blocks are dropped. Empty sections are skipped.
func splitFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var (
		sections []string
		current  []string
		inFence  bool
	)
	flush := func() {
		if text := strings.TrimSpace(strings.Join(current, "\n")); text != "" {
			sections = append(sections, text)
		}
		current = current[:0]
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if isHorizontalRule(trimmed) {
			flush()
			continue
		}
		current = append(current, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	flush()
	return sections, nil
}

// isHorizontalRule reports whether line is three or more of the same
// '-', '*' or '_' character, optionally separated by spaces.
func isHorizontalRule(line string) bool {
	compact := strings.ReplaceAll(line, " ", "")
	if len(compact) < 3 {
		return false
	}
	c := compact[0]
	if c != '-' && c != '*' && c != '_' {
		return false
	}
	return strings.Count(compact, string(c)) == len(compact)
}
