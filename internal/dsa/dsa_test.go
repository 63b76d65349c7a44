package dsa

import (
	"slices"
	"strings"
	"testing"
)

func naiveSearch(text, pattern string) []int {
	var out []int
	for i := 0; i+len(pattern) <= len(text); i++ {
		if text[i:i+len(pattern)] == pattern {
			out = append(out, i)
		}
	}
	return out
}

func TestSuffixArraySorted(t *testing.T) {
	text := "mississippi"
	sa := BuildSuffixArray(text)
	for i := 1; i < len(sa.SA); i++ {
		if text[sa.SA[i-1]:] >= text[sa.SA[i]:] {
			t.Fatalf("suffixes out of order at %d: %q >= %q", i, text[sa.SA[i-1]:], text[sa.SA[i]:])
		}
	}
}

func TestSuffixArraySearchMatchesNaive(t *testing.T) {
	text := "the cat sat on the mat\x00the hat\x00a theme"
	sa := BuildSuffixArray(text)
	for _, p := range []string{"the", "at", "t", "theme", "dog", "a ", "\x00the"} {
		got := sa.Search(p)
		want := naiveSearch(text, p)
		if !slices.Equal(got, want) {
			t.Errorf("Search(%q) = %v, want %v", p, got, want)
		}
		if sa.Count(p) != len(want) {
			t.Errorf("Count(%q) = %d, want %d", p, sa.Count(p), len(want))
		}
	}
}

func TestSuffixArrayEdgeCases(t *testing.T) {
	empty := BuildSuffixArray("")
	if empty.Contains("a") {
		t.Error("empty text should contain nothing")
	}
	sa := BuildSuffixArray("aaaa")
	if got := sa.Search("aa"); !slices.Equal(got, []int{0, 1, 2}) {
		t.Errorf("overlapping matches = %v", got)
	}
	if sa.Search("") != nil {
		t.Error("empty pattern should not match")
	}
	if sa.Contains("aaaaa") {
		t.Error("pattern longer than text should not match")
	}
}

func TestTrie(t *testing.T) {
	tr := NewTrie[int]()
	for i, k := range []string{"guide.md", "guide-advanced.md", "faq.md"} {
		tr.Insert(k, i)
	}
	tr.Insert("faq.md", 10)

	if tr.Len() != 3 {
		t.Fatalf("Len = %d, want 3", tr.Len())
	}
	if v, ok := tr.Get("faq.md"); !ok || v != 10 {
		t.Errorf("Get(faq.md) = %d, %v", v, ok)
	}
	if _, ok := tr.Get("missing"); ok {
		t.Error("unexpected hit")
	}
	got := tr.WithPrefix("guide")
	if strings.Join(got, ",") != "guide-advanced.md,guide.md" {
		t.Errorf("WithPrefix = %v", got)
	}
}
