package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeywords(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "lowercases and strips trailing punctuation",
			body: "Meet me at Noon!",
			want: []string{"meet", "noon"},
		},
		{
			name: "drops stopwords",
			body: "the cat and the dog",
			want: []string{"cat", "dog"},
		},
		{
			name: "dedupes in first-seen order",
			body: "ship ship Ship plan",
			want: []string{"ship", "plan"},
		},
		{
			name: "strips emoji",
			body: "party🎉 tonight",
			want: []string{"party", "tonight"},
		},
		{
			name: "empty body",
			body: "",
			want: nil,
		},
		{
			name: "only stopwords and punctuation",
			body: "and the ... !!!",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Keywords(tt.body))
		})
	}
}
