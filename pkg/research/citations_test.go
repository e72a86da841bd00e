package research

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeCitations(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		sources   int
		want      string
		wantCited []int
	}{
		{
			name:      "all valid",
			text:      "Go is fast [1]. It compiles quickly [2].",
			sources:   2,
			want:      "Go is fast [1]. It compiles quickly [2].",
			wantCited: []int{1, 2},
		},
		{
			name:      "out of range removed",
			text:      "A claim [3].",
			sources:   2,
			want:      "A claim.",
			wantCited: []int{},
		},
		{
			name:      "zero index removed",
			text:      "Zero [0] here.",
			sources:   2,
			want:      "Zero here.",
			wantCited: []int{},
		},
		{
			name:      "group keeps valid members",
			text:      "Both [2,5, 1].",
			sources:   2,
			want:      "Both [2, 1].",
			wantCited: []int{1, 2},
		},
		{
			name:      "no sources strips everything",
			text:      "Nothing [1] at all [2, 3].",
			sources:   0,
			want:      "Nothing at all.",
			wantCited: []int{},
		},
		{
			name:      "non numeric brackets untouched",
			text:      "See [docs] and [1].",
			sources:   1,
			want:      "See [docs] and [1].",
			wantCited: []int{1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, cited := SanitizeCitations(tt.text, tt.sources)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCited, cited)
		})
	}
}

func TestCitations(t *testing.T) {
	assert.Equal(t, []int{3, 1, 2}, Citations("x [3] y [1, 3] z [2]"))
	assert.Nil(t, Citations("no markers"))
}
