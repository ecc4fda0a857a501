package domain

import (
	"time"

	"triage_server/pkg/apperr"
)

// =============================================================================
// Goal - 사용자 목표
// =============================================================================

type GoalCategory string

const (
	GoalCategoryProductivity GoalCategory = "productivity"
	GoalCategoryFocus        GoalCategory = "focus"
	GoalCategoryLearning     GoalCategory = "learning"
	GoalCategoryHealth       GoalCategory = "health"
	GoalCategoryCustom       GoalCategory = "custom"
)

func (c GoalCategory) IsValid() bool {
	switch c {
	case GoalCategoryProductivity, GoalCategoryFocus, GoalCategoryLearning, GoalCategoryHealth, GoalCategoryCustom:
		return true
	}
	return false
}

type GoalPriority string

const (
	GoalPriorityHigh   GoalPriority = "high"
	GoalPriorityMedium GoalPriority = "medium"
	GoalPriorityLow    GoalPriority = "low"
)

func (p GoalPriority) IsValid() bool {
	switch p {
	case GoalPriorityHigh, GoalPriorityMedium, GoalPriorityLow:
		return true
	}
	return false
}

type Goal struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Category    GoalCategory `json:"category"`
	Priority    GoalPriority `json:"priority"`
	Keywords    []string     `json:"keywords"`
	Deadline    *time.Time   `json:"deadline,omitempty"`
	Progress    int          `json:"progress"`
	CreatedAt   time.Time    `json:"created_at"`
}

func (g *Goal) Validate() error {
	if g.Title == "" {
		return apperr.MissingField("title")
	}
	if !g.Category.IsValid() {
		return apperr.InvalidInput("category", "unknown goal category "+string(g.Category))
	}
	if !g.Priority.IsValid() {
		return apperr.InvalidInput("priority", "unknown goal priority "+string(g.Priority))
	}
	if g.Progress < 0 || g.Progress > 100 {
		return apperr.InvalidInput("progress", "must be between 0 and 100")
	}
	return nil
}

// GoalTitles returns the titles in input order.
func GoalTitles(goals []Goal) []string {
	titles := make([]string, 0, len(goals))
	for _, g := range goals {
		titles = append(titles, g.Title)
	}
	return titles
}
