package scoring

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	urlPattern         = regexp.MustCompile(`(?i)https?://|www\.`)
	digitPattern       = regexp.MustCompile(`\d`)
	multiClausePattern = regexp.MustCompile(`(?i)[,;]|\b(because|but|although|however|which|while)\b`)
)

// Words splits text into lowercase tokens with surrounding punctuation removed
func Words(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		w := strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if w != "" {
			words = append(words, w)
		}
	}
	return words
}

// UniqueRatio returns the share of distinct words, 0 for empty input
func UniqueRatio(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		seen[w] = struct{}{}
	}
	return float64(len(seen)) / float64(len(words))
}

// TextQuality is the embedding-worthiness breakdown of a text
type TextQuality struct {
	Length          int
	WordCount       int
	UniqueWordRatio float64
	StructuralScore float64
	Overall         float64
}

// ScoreText scores how worthwhile text is to embed from lexical features alone
func (p Policy) ScoreText(text string) TextQuality {
	words := Words(text)
	q := TextQuality{
		Length:          utf8.RuneCountInString(text),
		WordCount:       len(words),
		UniqueWordRatio: UniqueRatio(words),
		StructuralScore: p.structural(text, words),
	}

	q.Overall = clamp01(
		p.LengthWeight*ratioCapped(float64(q.Length), float64(p.LengthCap)) +
			p.WordWeight*ratioCapped(float64(q.WordCount), float64(p.WordCap)) +
			p.UniqueWeight*q.UniqueWordRatio +
			p.StructuralWeight*q.StructuralScore)
	return q
}

func (p Policy) structural(text string, words []string) float64 {
	flags := []bool{
		strings.Contains(text, "?"),
		digitPattern.MatchString(text),
		urlPattern.MatchString(text),
		p.hasDomainTerm(words),
		multiClausePattern.MatchString(text),
	}

	hits := 0
	for _, f := range flags {
		if f {
			hits++
		}
	}
	return float64(hits) / float64(len(flags))
}

func (p Policy) hasDomainTerm(words []string) bool {
	if len(p.DomainTerms) == 0 {
		return false
	}
	terms := make(map[string]struct{}, len(p.DomainTerms))
	for _, t := range p.DomainTerms {
		terms[strings.ToLower(t)] = struct{}{}
	}
	for _, w := range words {
		if _, ok := terms[w]; ok {
			return true
		}
	}
	return false
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "is": {}, "are": {},
	"was": {}, "were": {}, "be": {}, "been": {}, "to": {}, "of": {}, "in": {}, "on": {},
	"at": {}, "for": {}, "with": {}, "this": {}, "that": {}, "it": {}, "its": {}, "it's": {},
	"i": {}, "me": {}, "my": {}, "you": {}, "your": {}, "we": {}, "they": {}, "he": {},
	"she": {}, "do": {}, "does": {}, "did": {}, "how": {}, "what": {}, "so": {}, "just": {},
	"can": {}, "from": {}, "about": {}, "as": {}, "by": {}, "if": {}, "not": {}, "no": {},
	"am": {}, "has": {}, "have": {}, "had": {}, "there": {}, "their": {}, "them": {},
}

// IsStopWord reports whether w carries no retrieval signal
func IsStopWord(w string) bool {
	_, ok := stopWords[w]
	return ok
}

// ContentWords returns Words(text) without stop words
func ContentWords(text string) []string {
	words := Words(text)
	out := words[:0]
	for _, w := range words {
		if !IsStopWord(w) {
			out = append(out, w)
		}
	}
	return out
}
