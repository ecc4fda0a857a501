package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"triage_server/core/domain"
)

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"punctuation and stop words", "The URGENT deadline, for Q3-launch!!", []string{"urgent", "deadline", "q3launch"}},
		{"short tokens dropped", "an ox is by me", []string{}},
		{"duplicates kept", "review review plan", []string{"review", "review", "plan"}},
		{"underscore is a word rune", "build_id ready", []string{"build_id", "ready"}},
		{"mixed whitespace", "  budget\tproposal\nattached  ", []string{"budget", "proposal", "attached"}},
		{"empty", "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Keywords(tt.text))
		})
	}
}

func TestExtractKeywords_Restartable(t *testing.T) {
	seq := ExtractKeywords("quarterly budget review meeting")

	var first, second []string
	for kw := range seq {
		first = append(first, kw)
	}
	for kw := range seq {
		second = append(second, kw)
	}
	assert.Equal(t, first, second)
	assert.Len(t, first, 4)
}

func TestExtractKeywords_EarlyStop(t *testing.T) {
	var got []string
	for kw := range ExtractKeywords("alpha bravo charlie delta") {
		got = append(got, kw)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"alpha", "bravo"}, got)
}

func TestKeywordSet(t *testing.T) {
	set := KeywordSet("plan plan launch")
	assert.Len(t, set, 2)
	assert.Contains(t, set, "plan")
	assert.Contains(t, set, "launch")
}

func TestMatchGoals(t *testing.T) {
	goals := []domain.Goal{
		{ID: "g1", Title: "Ship Q3 product", Category: domain.GoalCategoryProductivity, Keywords: []string{"Launch"}},
		{ID: "g2", Title: "Run marathon", Category: domain.GoalCategoryHealth},
		{ID: "g3", Title: "Learn Go", Category: domain.GoalCategoryLearning, Keywords: []string{"golang"}},
	}

	tests := []struct {
		name   string
		tokens []string
		want   []string
	}{
		{"keyword match is case-insensitive", []string{"launch"}, []string{"g1"}},
		{"title words", []string{"marathon"}, []string{"g2"}},
		{"category", []string{"PRODUCTIVITY"}, []string{"g1"}},
		{"input order kept", []string{"golang", "marathon"}, []string{"g2", "g3"}},
		{"no match", []string{"invoice"}, []string{}},
		{"no tokens", nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchGoals(tt.tokens, goals)
			ids := []string{}
			for _, g := range got {
				ids = append(ids, g.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	assert.NotNil(t, MatchGoals([]string{"launch"}, nil))
}
