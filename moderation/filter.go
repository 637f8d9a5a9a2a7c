package moderation

import (
	"sort"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

// TopicFilter rejects free text containing one of the configured topic tokens.
// Matching is a case-insensitive substring search; nothing is ever sanitized.
type TopicFilter struct {
	matcher *goahocorasick.Machine
	topics  []string
}

// NewTopicFilter initializes the Aho-Corasick automaton with a lower-cased, deduplicated
// version of the provided topics. An empty list yields a filter that allows everything.
func NewTopicFilter(topics []string) (*TopicFilter, error) {
	cleaned := lo.Uniq(lo.FilterMap(topics, func(topic string, _ int) (string, bool) {
		t := strings.TrimSpace(topic)
		return string(normalizeRunes([]rune(t))), t != ""
	}))
	sort.Strings(cleaned)

	if len(cleaned) == 0 {
		return &TopicFilter{}, nil
	}

	patterns := lo.Map(cleaned, func(topic string, _ int) []rune {
		return []rune(topic)
	})

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &TopicFilter{matcher: m, topics: cleaned}, nil
}

// IsAllowed reports whether text contains none of the denied topics.
func (f *TopicFilter) IsAllowed(text string) bool {
	if f.matcher == nil || text == "" {
		return true
	}
	return len(f.matcher.MultiPatternSearch(normalizeRunes([]rune(text)), true)) == 0
}

// Match returns every denied topic found in text, in order of appearance.
func (f *TopicFilter) Match(text string) []string {
	if f.matcher == nil || text == "" {
		return nil
	}
	terms := f.matcher.MultiPatternSearch(normalizeRunes([]rune(text)), false)
	if len(terms) == 0 {
		return nil
	}
	return lo.Map(terms, func(term *goahocorasick.Term, _ int) string {
		return string(term.Word)
	})
}

// Topics returns the normalized deny-list.
func (f *TopicFilter) Topics() []string {
	return append([]string(nil), f.topics...)
}

func normalizeRunes(input []rune) []rune {
	out := make([]rune, len(input))
	for i, r := range input {
		out[i] = unicode.ToLower(r)
	}
	return out
}
