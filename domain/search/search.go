package search

import (
	"strconv"
	"strings"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Query represents the structured parameters of a room history search.
// It decouples the raw user input from the actual index requirements.
type Query struct {
	RawInput string // The original input from the user
	Terms    string // The actual text to search in the index
	Lang     string // Optional ISO 639-1 language filter
	Limit    int    // Number of results
}

// NewSearchQuery parses a raw string to extract command-line style arguments.
// Example: `/find opening gambit --lang en --limit 5`
func NewSearchQuery(input string) *Query {
	query := &Query{
		RawInput: input,
		Limit:    DefaultLimit,
	}

	parts := strings.Fields(input)
	var textTerms []string

	for i := 0; i < len(parts); i++ {
		part := parts[i]

		if strings.HasPrefix(part, "--") && i+1 < len(parts) {
			key := strings.TrimPrefix(part, "--")
			val := parts[i+1]

			switch key {
			case "lang":
				query.Lang = strings.ToLower(val)
			case "limit":
				if n, err := strconv.Atoi(val); err == nil && n > 0 {
					query.Limit = min(n, MaxLimit)
				}
			}
			i++
			continue
		}

		if !strings.HasPrefix(part, "/") {
			textTerms = append(textTerms, part)
		}
	}

	query.Terms = strings.Join(textTerms, " ")
	return query
}

func (q *Query) IsEmpty() bool {
	return strings.TrimSpace(q.Terms) == ""
}
