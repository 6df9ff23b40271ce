// Package warmth computes the family warmth score: a bounded composite
// replacing like counts with a measure of emotional support.
//
// This file holds the keyword classifier. It is one pluggable strategy
// behind contract.Classifier; the scorer never depends on the matching
// algorithm itself.
package warmth

import (
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/abadojack/whatlanggo"

	"bumpfeed/contract"
)

// Lexicon maps support categories to their keyword lists for one
// language.
type Lexicon map[contract.Category][]string

// DefaultLexicons cover the languages the feed ships with. Keyword
// lists are tuning data, not derived.
func DefaultLexicons() map[string]Lexicon {
	return map[string]Lexicon{
		"en": {
			contract.CategorySupport: {
				"here for you", "thinking of you", "you got this", "stay strong",
				"we love you", "proud of you", "sending love", "hang in there",
			},
			contract.CategoryReassurance: {
				"everything will be", "dont worry", "it will be ok", "all will be well",
				"youre doing great", "perfectly normal", "no need to worry",
			},
			contract.CategoryCelebration: {
				"congratulations", "congrats", "so happy for", "amazing news",
				"wonderful news", "cant wait to meet", "what a blessing", "milestone",
			},
		},
		"fr": {
			contract.CategorySupport: {
				"on est la pour toi", "je pense a toi", "courage", "on taime",
				"fiere de toi", "fier de toi", "plein de tendresse",
			},
			contract.CategoryReassurance: {
				"tout ira bien", "ne tinquiete pas", "cest normal", "tu geres",
			},
			contract.CategoryCelebration: {
				"felicitations", "bravo", "quelle bonne nouvelle", "trop hate",
			},
		},
	}
}

type matcher struct {
	machine    *goahocorasick.Machine
	categories map[string]contract.Category // normalized keyword -> category
}

// KeywordClassifier classifies text by scanning it against per-language
// keyword automata. Language is detected per call; unknown languages
// fall back to English.
type KeywordClassifier struct {
	matchers map[string]*matcher
}

func NewKeywordClassifier(lexicons map[string]Lexicon) (*KeywordClassifier, error) {
	matchers := make(map[string]*matcher, len(lexicons))
	for lang, lexicon := range lexicons {
		var patterns [][]rune
		categories := make(map[string]contract.Category)
		for category, keywords := range lexicon {
			for _, keyword := range keywords {
				normalized := normalizeRunes([]rune(keyword))
				patterns = append(patterns, normalized)
				categories[string(normalized)] = category
			}
		}

		m := new(goahocorasick.Machine)
		if err := m.Build(patterns); err != nil {
			return nil, err
		}
		matchers[lang] = &matcher{machine: m, categories: categories}
	}
	return &KeywordClassifier{matchers: matchers}, nil
}

// Classify returns the dominant support category of the text and a
// confidence in [0,1] growing with the number of keyword hits.
// Text without any hit is neutral with zero confidence.
func (c *KeywordClassifier) Classify(text string) (contract.Category, float64) {
	m := c.matcherFor(text)
	if m == nil {
		return contract.CategoryNeutral, 0
	}

	normalized := normalizeRunes([]rune(text))
	if len(normalized) == 0 {
		return contract.CategoryNeutral, 0
	}

	hits := make(map[contract.Category]int)
	total := 0
	for _, term := range m.machine.MultiPatternSearch(normalized, false) {
		if category, ok := m.categories[string(term.Word)]; ok {
			hits[category]++
			total++
		}
	}
	if total == 0 {
		return contract.CategoryNeutral, 0
	}

	dominant := contract.CategoryNeutral
	best := 0
	for category, n := range hits {
		if n > best {
			dominant = category
			best = n
		}
	}

	confidence := float64(total) / 3
	if confidence > 1 {
		confidence = 1
	}
	return dominant, confidence
}

func (c *KeywordClassifier) matcherFor(text string) *matcher {
	info := whatlanggo.Detect(text)
	if m, ok := c.matchers[info.Lang.Iso6391()]; ok {
		return m
	}
	return c.matchers["en"]
}

// normalizeRunes lowercases, strips accents-adjacent punctuation noise
// and collapses whitespace runs to single spaces so keyword phrases
// match regardless of typing style.
func normalizeRunes(input []rune) []rune {
	out := make([]rune, 0, len(input))
	lastSpace := false
	for _, r := range input {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			out = append(out, unicode.ToLower(r))
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace && len(out) > 0 {
				out = append(out, ' ')
			}
			lastSpace = true
		}
	}
	return []rune(strings.TrimSpace(string(out)))
}
