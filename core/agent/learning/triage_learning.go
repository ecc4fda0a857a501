// Package learning owns the adaptive state of one triage session: the factor
// weight vector and the per-sender interaction history.
package learning

import (
	"fmt"
	"sync"

	"triage_server/core/domain"
)

// =============================================================================
// Learning Session
// =============================================================================

// LearningRate is the multiplicative step applied to a weight per feedback.
const LearningRate = 0.02

// SenderKeyMode selects which key feedback updates in the sender history.
type SenderKeyMode string

const (
	// SenderKeyEmailID keys history by the email id of the feedback, which
	// the scorer never looks up (history stays at its defaults).
	SenderKeyEmailID SenderKeyMode = "email_id"
	// SenderKeySenderAddress keys history by the sender address, the key the
	// scorer reads, so feedback affects future scores.
	SenderKeySenderAddress SenderKeyMode = "sender_address"
)

func (m SenderKeyMode) IsValid() bool {
	return m == SenderKeyEmailID || m == SenderKeySenderAddress
}

// ParseSenderKeyMode accepts "" as the default mode.
func ParseSenderKeyMode(s string) (SenderKeyMode, error) {
	if s == "" {
		return SenderKeyEmailID, nil
	}
	m := SenderKeyMode(s)
	if !m.IsValid() {
		return "", fmt.Errorf("unknown sender key mode %q", s)
	}
	return m, nil
}

// Session serializes every weight and sender-history write behind one lock.
// Readers get copies.
type Session struct {
	mu      sync.RWMutex
	weights domain.WeightVector
	senders map[string]domain.SenderStats
	keyMode SenderKeyMode
}

func NewSession(mode SenderKeyMode) *Session {
	if !mode.IsValid() {
		mode = SenderKeyEmailID
	}
	return &Session{
		weights: domain.DefaultWeights(),
		senders: make(map[string]domain.SenderStats),
		keyMode: mode,
	}
}

func (s *Session) KeyMode() SenderKeyMode {
	return s.keyMode
}

// Weights returns a consistent copy of the current weights.
func (s *Session) Weights() domain.WeightVector {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.weights
}

// SenderStats returns the history for key, or the neutral default.
func (s *Session) SenderStats(key string) domain.SenderStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.senders[key]; ok {
		return st
	}
	return domain.DefaultSenderStats()
}

// SenderKey picks the history key for a feedback event. email may be nil
// when the analysed email is no longer known; the email id is used then.
func (s *Session) SenderKey(fb *domain.UserFeedback, email *domain.Email) string {
	if s.keyMode == SenderKeySenderAddress && email != nil && email.Sender.Email != "" {
		return email.Sender.Email
	}
	return fb.EmailID
}

// Learn applies one feedback event. The weight step is applied and
// renormalized, then the sender history is updated, all under one lock.
func (s *Session) Learn(fb domain.UserFeedback, senderKey string) domain.LearningResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.weights = AdjustWeights(s.weights, &fb)

	prev, ok := s.senders[senderKey]
	if !ok {
		prev = domain.DefaultSenderStats()
	}
	next := UpdateSenderStats(prev, fb.Action == domain.FeedbackOpened)
	s.senders[senderKey] = next

	return domain.LearningResult{
		Feedback:       fb,
		UpdatedWeights: s.weights,
		SenderKey:      senderKey,
		SenderStats:    next,
	}
}

// Snapshot exports a deep copy of the session state.
func (s *Session) Snapshot() domain.LearningSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	senders := make(map[string]domain.SenderStats, len(s.senders))
	for k, v := range s.senders {
		senders[k] = v
	}
	return domain.LearningSnapshot{Weights: s.weights, Senders: senders}
}

// Restore replaces the session state. The weights are renormalized and
// sender stats outside their ranges are rejected.
func (s *Session) Restore(snap domain.LearningSnapshot) error {
	for key, st := range snap.Senders {
		if st.Interactions < 0 || st.OpenRate < 0 || st.OpenRate > 1 {
			return fmt.Errorf("sender %q: stats out of range: %+v", key, st)
		}
	}
	for _, f := range domain.AllFactors {
		if snap.Weights.Get(f) < 0 {
			return fmt.Errorf("weight %s is negative", f)
		}
	}

	senders := make(map[string]domain.SenderStats, len(snap.Senders))
	for k, v := range snap.Senders {
		senders[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.weights = snap.Weights.Normalize()
	s.senders = senders
	return nil
}

// AdjustWeights applies the multiplicative rule for one feedback action and
// renormalizes. Opened feedback and reclassification to delay or batch
// leave the weights as they are.
func AdjustWeights(w domain.WeightVector, fb *domain.UserFeedback) domain.WeightVector {
	down, up := 1-LearningRate, 1+LearningRate

	switch fb.Action {
	case domain.FeedbackDismissed:
		w = w.Scale(domain.FactorSenderImportance, down).Scale(domain.FactorContentRelevance, up)
	case domain.FeedbackIgnored:
		w = w.Scale(domain.FactorTimingContext, up)
	case domain.FeedbackReclassified:
		switch fb.Target() {
		case domain.DecisionNotifyImmediately:
			w = w.Scale(domain.FactorContentRelevance, up)
		case domain.DecisionIgnore:
			w = w.Scale(domain.FactorSenderImportance, down)
		}
	}
	return w.Normalize()
}

// UpdateSenderStats folds one interaction into the running open rate.
func UpdateSenderStats(prev domain.SenderStats, opened bool) domain.SenderStats {
	wasOpened := 0.0
	if opened {
		wasOpened = 1
	}
	n := float64(prev.Interactions)
	return domain.SenderStats{
		Interactions: prev.Interactions + 1,
		OpenRate:     (prev.OpenRate*n + wasOpened) / (n + 1),
	}
}
