// Package overlap removes words that a transcription window repeats from the
// previous final transcript.
//
// Consecutive windows share a stretch of audio, so the start of a new
// transcript usually repeats the end of the previous one. The resolver finds
// the longest suffix of the previous words that equals a prefix of the new
// words and strips it. This is a greedy exact match, not an alignment: when the
// service transcribes the shared audio with different wording the match fails
// and the duplicate leaks through. WithFuzzyThreshold relaxes word equality to
// Jaro-Winkler similarity for deployments that prefer that trade-off.
package overlap

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// DefaultTailWords is how many trailing finalized words a session keeps for
// comparison.
const DefaultTailWords = 10

// Option is a functional option for configuring a Resolver.
type Option func(*Resolver)

// WithFuzzyThreshold makes two words equal when their case-insensitive
// Jaro-Winkler similarity is at least threshold. A threshold <= 0 keeps exact
// case-insensitive comparison.
func WithFuzzyThreshold(threshold float64) Option {
	return func(r *Resolver) {
		r.fuzzyThreshold = threshold
	}
}

// Resolver strips overlap duplicates. It is read-only after construction and
// safe for concurrent use.
type Resolver struct {
	fuzzyThreshold float64
}

// New returns a Resolver configured with opts.
func New(opts ...Option) *Resolver {
	r := &Resolver{}
	for _, o := range opts {
		o(r)
	}
	return r
}

var defaultResolver = New()

// Resolve strips the overlap using exact case-insensitive word comparison.
func Resolve(lastWords []string, newText string) string {
	return defaultResolver.Resolve(lastWords, newText)
}

// Resolve returns newText without the longest prefix of words that matches a
// suffix of lastWords. Spacing after the removed prefix is preserved. When no
// prefix matches, newText is returned unchanged.
func (r *Resolver) Resolve(lastWords []string, newText string) string {
	starts, words := fields(newText)
	if len(lastWords) == 0 || len(words) == 0 {
		return newText
	}

	k := r.matchLength(lastWords, words)
	switch {
	case k == 0:
		return newText
	case k == len(words):
		return ""
	default:
		return newText[starts[k]:]
	}
}

// matchLength returns the largest k such that the last k entries of prev equal
// the first k entries of next.
func (r *Resolver) matchLength(prev, next []string) int {
	maxK := min(len(prev), len(next))
	for k := maxK; k >= 1; k-- {
		if r.sequenceEqual(prev[len(prev)-k:], next[:k]) {
			return k
		}
	}
	return 0
}

func (r *Resolver) sequenceEqual(a, b []string) bool {
	for i := range a {
		if !r.wordEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func (r *Resolver) wordEqual(a, b string) bool {
	if strings.EqualFold(a, b) {
		return true
	}
	if r.fuzzyThreshold <= 0 {
		return false
	}
	return matchr.JaroWinkler(strings.ToLower(a), strings.ToLower(b), false) >= r.fuzzyThreshold
}

// fields splits s on white space and records the byte offset of every word.
func fields(s string) ([]int, []string) {
	var (
		starts []int
		words  []string
		start  = -1
	)
	for i, c := range s {
		if unicode.IsSpace(c) {
			if start >= 0 {
				starts = append(starts, start)
				words = append(words, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		starts = append(starts, start)
		words = append(words, s[start:])
	}
	return starts, words
}

// Words splits text into words the same way Resolve does.
func Words(text string) []string {
	_, words := fields(text)
	return words
}

// Tail appends the words of text to prev and keeps at most n trailing words.
// The returned slice never aliases prev.
func Tail(prev []string, text string, n int) []string {
	if n <= 0 {
		return nil
	}
	combined := make([]string, 0, len(prev)+n)
	combined = append(combined, prev...)
	combined = append(combined, Words(text)...)
	if len(combined) > n {
		combined = combined[len(combined)-n:]
	}
	return append([]string(nil), combined...)
}
