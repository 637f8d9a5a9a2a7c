package search

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSearchQuery(t *testing.T) {
	req := require.New(t)

	tests := []struct {
		name  string
		input string
		terms string
		lang  string
		limit int
	}{
		{"plain terms", "sicilian defense", "sicilian defense", "", DefaultLimit},
		{"command prefix is dropped", "/find sicilian", "sicilian", "", DefaultLimit},
		{"lang flag", "gambit --lang EN", "gambit", "en", DefaultLimit},
		{"limit flag", "gambit --limit 5", "gambit", "", 5},
		{"limit is capped", "gambit --limit 5000", "gambit", "", MaxLimit},
		{"invalid limit ignored", "gambit --limit abc", "gambit", "", DefaultLimit},
		{"unknown flag swallowed", "gambit --color red", "gambit", "", DefaultLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewSearchQuery(tt.input)
			req.Equal(tt.terms, q.Terms)
			req.Equal(tt.lang, q.Lang)
			req.Equal(tt.limit, q.Limit)
		})
	}

	req.True(NewSearchQuery("  --lang fr ").IsEmpty())
}
