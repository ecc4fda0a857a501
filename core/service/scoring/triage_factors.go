package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"

	"triage_server/core/domain"
)

// =============================================================================
// Factor Scorers
// =============================================================================

var (
	importantSenderMarkers = []string{"ceo@", "manager@", "urgent@", ".edu", ".gov"}
	urgentKeywords         = []string{"urgent", "asap", "deadline", "important", "action required", "immediate"}
	actionPhrases          = []string{
		"please", "could you", "can you", "need you to", "action required",
		"respond", "reply", "confirm", "approve", "review", "sign",
		"by end of day", "by tomorrow", "due date", "deadline",
	}
)

const (
	vipSenderScore        = 95
	baseSenderScore       = 50
	senderMarkerBonus     = 20
	engagedInteractions   = 5
	engagedSenderScore    = 70
	baseRelevanceScore    = 30
	goalRelevanceBase     = 50
	perGoalRelevance      = 20
	urgentKeywordBonus    = 25
	actionDetectedScore   = 80
	actionAbsentScore     = 30
	baseTimingScore       = 50
	offHoursPenalty       = 20
	focusModePenalty      = 30
	recentEmailBonus      = 20
	recentEmailWindow     = time.Hour
	minHistoryForScore    = 3
	historyBaseScore      = 30
	historyOpenRateWeight = 70
	neutralHistoryScore   = 50
)

// ScoreSenderImportance rates the sender by VIP membership, engagement and
// address markers.
func ScoreSenderImportance(obs *domain.Observation, uc *domain.UserContext) domain.SenderImportanceFactor {
	if uc.IsVIPSender {
		return domain.SenderImportanceFactor{Score: vipSenderScore, Reason: "VIP sender detected."}
	}

	score := float64(baseSenderScore)
	if uc.SenderHistory.Interactions > engagedInteractions {
		score = math.Min(100, baseSenderScore+uc.SenderHistory.OpenRate*50)
	}

	// markers match the address as received
	for _, marker := range importantSenderMarkers {
		if strings.Contains(obs.Sender.Email, marker) {
			score = math.Min(100, score+senderMarkerBonus)
			break
		}
	}

	reason := "Standard sender priority."
	if score > engagedSenderScore {
		reason = "Sender has high engagement history."
	}
	return domain.SenderImportanceFactor{Score: clampScore(int(math.Round(score))), Reason: reason}
}

// ScoreContentRelevance rates how the email relates to the user's goals.
func ScoreContentRelevance(obs *domain.Observation, uc *domain.UserContext) domain.ContentRelevanceFactor {
	score := baseRelevanceScore
	matched := append([]string{}, uc.RelevantGoals...)

	if n := len(matched); n > 0 {
		score = min(100, goalRelevanceBase+n*perGoalRelevance)
	}

	text := strings.ToLower(obs.Subject + " " + obs.BodyPreview)
	if containsAny(text, urgentKeywords) {
		score = min(100, score+urgentKeywordBonus)
	}

	reason := "No direct goal relevance detected."
	if len(matched) > 0 {
		reason = fmt.Sprintf("Matches %d active goal(s): %s.", len(matched), strings.Join(matched, ", "))
	}
	return domain.ContentRelevanceFactor{Score: score, MatchedGoals: matched, Reason: reason}
}

// ScoreActionRequired detects request phrases in the subject and body.
func ScoreActionRequired(obs *domain.Observation, _ *domain.UserContext) domain.ActionRequiredFactor {
	if containsAny(strings.ToLower(obs.ContentText()), actionPhrases) {
		return domain.ActionRequiredFactor{Score: actionDetectedScore, Detected: true, Reason: "Action or response appears to be required."}
	}
	return domain.ActionRequiredFactor{Score: actionAbsentScore, Detected: false, Reason: "No explicit action required."}
}

// ScoreTimingContext rates when the email arrives relative to the user's
// working state. now is the evaluation time.
func ScoreTimingContext(obs *domain.Observation, uc *domain.UserContext, now time.Time) domain.TimingContextFactor {
	score := baseTimingScore
	var reasons []string

	if !uc.IsWorkHours {
		score -= offHoursPenalty
		reasons = append(reasons, "Outside work hours.")
	}
	if uc.FocusModeActive {
		score -= focusModePenalty
		reasons = append(reasons, "Focus mode active.")
	}
	if now.Sub(obs.Timestamp) < recentEmailWindow {
		score += recentEmailBonus
		reasons = append(reasons, "Very recent email.")
	}

	reason := "Normal timing context."
	if len(reasons) > 0 {
		reason = strings.Join(reasons, " ")
	}
	return domain.TimingContextFactor{
		Score:           clampScore(score),
		IsWorkHours:     uc.IsWorkHours,
		FocusModeActive: uc.FocusModeActive,
		Reason:          reason,
	}
}

// ScoreHistoricalBehavior rates the sender by past open rate once enough
// interactions are known.
func ScoreHistoricalBehavior(_ *domain.Observation, uc *domain.UserContext) domain.HistoricalBehaviorFactor {
	h := uc.SenderHistory
	if h.Interactions < minHistoryForScore {
		return domain.HistoricalBehaviorFactor{
			Score:            neutralHistoryScore,
			PastInteractions: h.Interactions,
			OpenRate:         h.OpenRate,
			Reason:           "Insufficient history for this sender.",
		}
	}

	score := clampScore(int(math.Round(historyBaseScore + h.OpenRate*historyOpenRateWeight)))
	return domain.HistoricalBehaviorFactor{
		Score:            score,
		PastInteractions: h.Interactions,
		OpenRate:         h.OpenRate,
		Reason: fmt.Sprintf("Based on %d past interactions with %d%% open rate.",
			h.Interactions, int(math.Round(h.OpenRate*100))),
	}
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

func clampScore(v int) int {
	return max(0, min(100, v))
}
