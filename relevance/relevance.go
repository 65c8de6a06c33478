// Package relevance scores page text against keywords and a description.
//
// Scores are a bag-of-words ranking signal in [0, 100], not a judgement of
// correctness.
package relevance

import (
	"math"
	"sort"
	"unicode/utf8"

	"github.com/aluiziolira/go-linkcheck/config"
	"github.com/aluiziolira/go-linkcheck/models"
)

// DefaultScale is the multiplier applied to the weighted average hit count.
const DefaultScale = 20

// minDescriptionRunes drops short description words such as "the" or "and".
const minDescriptionRunes = 4

// KeywordTable maps a keyword or phrase to its weight (at least 1).
type KeywordTable map[string]float64

// DefaultKeywords is a table tuned for articles on high-concurrency I/O.
func DefaultKeywords() KeywordTable {
	return KeywordTable{
		"io": 5, "multiplexing": 5, "epoll": 5,
		"concurrency": 4, "threading": 4, "async": 4, "event-driven": 4, "reactor": 4,
		"performance": 3, "architecture": 3, "linux": 3, "kernel": 3,
		"network": 3, "scalability": 3, "nginx": 3, "redis": 3,
		"nodejs": 3, "java": 3, "go": 3, "python": 3, "cache": 3,
	}
}

type phrase struct {
	keyword string
	tokens  []string
}

// Scorer computes relevance results. It is immutable after NewScorer and
// safe for concurrent use.
type Scorer struct {
	keywords          KeywordTable
	byFirst           map[string][]phrase
	strategy          string
	scale             float64
	descriptionWeight float64
}

// NewScorer builds a scorer from cfg, using DefaultKeywords when cfg has
// no table of its own. A nil cfg uses the defaults.
func NewScorer(cfg *config.Config) *Scorer {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	table := KeywordTable(cfg.Keywords)
	if len(table) == 0 {
		table = DefaultKeywords()
	}
	s := &Scorer{
		keywords:          make(KeywordTable, len(table)),
		byFirst:           make(map[string][]phrase),
		strategy:          cfg.ScoringStrategy,
		scale:             cfg.ScaleK,
		descriptionWeight: cfg.DescriptionWeight,
	}
	if s.scale <= 0 {
		s.scale = DefaultScale
	}
	for keyword, weight := range table {
		tokens := Tokenize(keyword)
		if len(tokens) == 0 {
			continue
		}
		if weight < 1 {
			weight = 1
		}
		s.keywords[keyword] = weight
		s.byFirst[tokens[0]] = append(s.byFirst[tokens[0]], phrase{keyword: keyword, tokens: tokens})
	}
	return s
}

// Score rates text against the keyword table and description.
func (s *Scorer) Score(text, description string) models.RelevanceResult {
	tokens := Tokenize(text)
	matches := s.Matches(tokens)
	keywordScore := KeywordScore(matches, s.keywords, s.scale)
	overlap := DescriptionOverlap(tokens, description)

	var score float64
	switch s.strategy {
	case config.ScoreDescription:
		score = overlap * 100
	case config.ScoreBlend:
		score = (1-s.descriptionWeight)*keywordScore + s.descriptionWeight*overlap*100
	default:
		score = keywordScore
	}

	return models.RelevanceResult{
		KeywordMatches:     matches,
		KeywordScore:       round1(keywordScore),
		DescriptionOverlap: math.Round(overlap*1000) / 1000,
		Score:              round1(clamp(score)),
	}
}

// Matches counts keyword occurrences in a token stream. Multi-token
// keywords match consecutive tokens.
func (s *Scorer) Matches(tokens []string) map[string]int {
	matches := make(map[string]int)
	for i, tok := range tokens {
		for _, p := range s.byFirst[tok] {
			if hasPrefix(tokens[i:], p.tokens) {
				matches[p.keyword]++
			}
		}
	}
	return matches
}

// KeywordScore is min(100, Σcount·weight / Σweight(hit) · scale), or 0
// without hits.
func KeywordScore(matches map[string]int, table KeywordTable, scale float64) float64 {
	// sorted so float sums do not depend on map order
	keys := make([]string, 0, len(matches))
	for keyword := range matches {
		keys = append(keys, keyword)
	}
	sort.Strings(keys)

	var raw, total float64
	for _, keyword := range keys {
		count := matches[keyword]
		if count <= 0 {
			continue
		}
		weight, ok := table[keyword]
		if !ok {
			weight = 1
		}
		raw += float64(count) * weight
		total += weight
	}
	if total == 0 {
		return 0
	}
	return clamp(raw / total * scale)
}

// DescriptionOverlap is the share of distinct description words (four or
// more letters) that occur in the text, in [0, 1].
func DescriptionOverlap(textTokens []string, description string) float64 {
	wanted := make(map[string]struct{})
	for _, tok := range Tokenize(description) {
		if utf8.RuneCountInString(tok) >= minDescriptionRunes {
			wanted[tok] = struct{}{}
		}
	}
	if len(wanted) == 0 {
		return 0
	}
	found := make(map[string]struct{}, len(wanted))
	for _, tok := range textTokens {
		if _, ok := wanted[tok]; ok {
			found[tok] = struct{}{}
		}
	}
	return float64(len(found)) / float64(len(wanted))
}

// KeywordCount is one matched keyword with its count.
type KeywordCount struct {
	Keyword string
	Count   int
}

// TopKeywords returns the n most frequent matches, ties broken by name.
func TopKeywords(matches map[string]int, n int) []KeywordCount {
	out := make([]KeywordCount, 0, len(matches))
	for k, c := range matches {
		if c > 0 {
			out = append(out, KeywordCount{Keyword: k, Count: c})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Keyword < out[j].Keyword
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func hasPrefix(tokens, prefix []string) bool {
	if len(tokens) < len(prefix) {
		return false
	}
	for i := range prefix {
		if tokens[i] != prefix[i] {
			return false
		}
	}
	return true
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
