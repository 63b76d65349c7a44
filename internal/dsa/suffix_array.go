// Suffix array over a byte string for substring search.
package dsa

import (
	"slices"
	"sort"
	"strings"
)

// SuffixArray indexes every suffix of Text in lexicographic order.
// Substring queries cost O(m log n) for a pattern of length m.
type SuffixArray struct {
	Text string
	SA   []int // SA[i] = start of the i-th smallest suffix
	rank []int // inverse of SA
}

// BuildSuffixArray constructs the array by prefix doubling, O(n log^2 n).
func BuildSuffixArray(text string) *SuffixArray {
	n := len(text)
	sa := &SuffixArray{Text: text, SA: make([]int, n), rank: make([]int, n)}
	if n == 0 {
		return sa
	}

	for i := range n {
		sa.SA[i] = i
		sa.rank[i] = int(text[i])
	}

	next := make([]int, n)
	for k := 1; ; k *= 2 {
		// Rank of the half starting k bytes later; -1 past the end sorts first.
		second := func(i int) int {
			if i+k < n {
				return sa.rank[i+k]
			}
			return -1
		}
		key := func(a, b int) int {
			if d := sa.rank[a] - sa.rank[b]; d != 0 {
				return d
			}
			return second(a) - second(b)
		}
		slices.SortFunc(sa.SA, key)

		next[sa.SA[0]] = 0
		for i := 1; i < n; i++ {
			next[sa.SA[i]] = next[sa.SA[i-1]]
			if key(sa.SA[i-1], sa.SA[i]) != 0 {
				next[sa.SA[i]]++
			}
		}
		copy(sa.rank, next)

		if sa.rank[sa.SA[n-1]] == n-1 || k >= n {
			break
		}
	}
	return sa
}

// Search returns the ascending start offsets of every occurrence of pattern.
func (sa *SuffixArray) Search(pattern string) []int {
	lo, hi := sa.bounds(pattern)
	if lo >= hi {
		return nil
	}
	out := slices.Clone(sa.SA[lo:hi])
	slices.Sort(out)
	return out
}

// Count returns the number of occurrences of pattern.
func (sa *SuffixArray) Count(pattern string) int {
	lo, hi := sa.bounds(pattern)
	return hi - lo
}

// Contains reports whether pattern occurs at least once.
func (sa *SuffixArray) Contains(pattern string) bool {
	return sa.Count(pattern) > 0
}

// bounds returns the half-open SA range of suffixes prefixed by pattern.
func (sa *SuffixArray) bounds(pattern string) (int, int) {
	if pattern == "" || len(sa.SA) == 0 {
		return 0, 0
	}
	m := len(pattern)
	prefix := func(i int) string {
		s := sa.Text[sa.SA[i]:]
		if len(s) > m {
			s = s[:m]
		}
		return s
	}
	lo := sort.Search(len(sa.SA), func(i int) bool {
		return strings.Compare(prefix(i), pattern) >= 0
	})
	hi := sort.Search(len(sa.SA), func(i int) bool {
		return strings.Compare(prefix(i), pattern) > 0
	})
	return lo, hi
}
