package domain

// =============================================================================
// AnalyticsData - 세션 집계
// =============================================================================

type DecisionsBreakdown struct {
	NotifyImmediately int `json:"notify_immediately"`
	Delayed           int `json:"delayed"`
	Batched           int `json:"batched"`
	Ignored           int `json:"ignored"`
}

type AccuracyStats struct {
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
	FalsePositives int     `json:"false_positives"`
}

type AnalyticsData struct {
	TotalEmailsProcessed int                `json:"total_emails_processed"`
	DecisionsBreakdown   DecisionsBreakdown `json:"decisions_breakdown"`
	Accuracy             AccuracyStats      `json:"accuracy"`
	UserOverrides        int                `json:"user_overrides"`
	TimeSavedMinutes     int                `json:"time_saved_minutes"`
	AvgConfidenceScore   float64            `json:"avg_confidence_score"`
}
