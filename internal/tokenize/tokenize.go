// Package tokenize turns hot-list titles into keyword sets for clustering.
package tokenize

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-ego/gse"
)

var defaultStopwords = []string{
	// zh
	"一个", "没有", "我们", "你们", "他们", "什么", "这个", "那个", "如何", "为什么",
	"怎么", "今天", "今日", "最新", "回应", "热搜", "网友", "官方", "曝光", "视频",
	"现场", "已经", "可以", "还是", "就是", "不是", "这样", "因为", "所以", "但是",
	// en
	"the", "and", "for", "with", "from", "this", "that", "are", "was", "were",
	"have", "has", "had", "will", "would", "could", "should", "what", "when",
	"where", "why", "how", "not", "new", "just", "about", "all", "more", "than",
}

func stopSet(extra []string) map[string]struct{} {
	set := make(map[string]struct{}, len(defaultStopwords)+len(extra))
	for _, w := range defaultStopwords {
		set[w] = struct{}{}
	}
	for _, w := range extra {
		set[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return set
}

// keep lowercases tokens, drops stopwords, single-rune and punctuation-only
// tokens, and dedupes while preserving first-seen order.
func keep(words []string, stop map[string]struct{}) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if utf8.RuneCountInString(w) < 2 {
			continue
		}
		if _, ok := stop[w]; ok {
			continue
		}
		if !strings.ContainsFunc(w, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// Segmenter tokenizes with the gse Chinese word segmenter.
type Segmenter struct {
	seg  gse.Segmenter
	stop map[string]struct{}
}

// NewSegmenter loads the default gse dictionary.
func NewSegmenter(extraStopwords ...string) (*Segmenter, error) {
	seg, err := gse.New()
	if err != nil {
		return nil, fmt.Errorf("load gse dictionary: %w", err)
	}
	return &Segmenter{seg: seg, stop: stopSet(extraStopwords)}, nil
}

// Tokens implements radar.Tokenizer.
func (s *Segmenter) Tokens(text string) []string {
	return keep(s.seg.Cut(text, true), s.stop)
}

// Whitespace splits on every rune that is neither a letter nor a digit. It
// suits pre-segmented or latin titles and keeps tests free of dictionaries.
type Whitespace struct {
	stop map[string]struct{}
}

// NewWhitespace builds a Whitespace tokenizer.
func NewWhitespace(extraStopwords ...string) *Whitespace {
	return &Whitespace{stop: stopSet(extraStopwords)}
}

// Tokens implements radar.Tokenizer.
func (w *Whitespace) Tokens(text string) []string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return keep(words, w.stop)
}

// Overlap returns |a ∩ b| / min(|a|, |b|), or 0 when either set is empty.
func Overlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	shared := 0
	for k := range small {
		if _, ok := large[k]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(small))
}

// Set converts a token list into a set.
func Set(tokens []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		out[t] = struct{}{}
	}
	return out
}
