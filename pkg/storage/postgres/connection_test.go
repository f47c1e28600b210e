package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseReplicaURLs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "empty",
			input: "",
			want:  nil,
		},
		{
			name:  "single",
			input: "postgres://replica1:5432/corpus",
			want:  []string{"postgres://replica1:5432/corpus"},
		},
		{
			name:  "multiple with whitespace",
			input: "postgres://replica1/corpus, postgres://replica2/corpus ",
			want:  []string{"postgres://replica1/corpus", "postgres://replica2/corpus"},
		},
		{
			name:  "skips blank entries",
			input: "postgres://replica1/corpus,,postgres://replica2/corpus",
			want:  []string{"postgres://replica1/corpus", "postgres://replica2/corpus"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseReplicaURLs(tt.input))
		})
	}
}
