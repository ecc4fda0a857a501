package learning

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage_server/core/domain"
)

func decisionPtr(d domain.Decision) *domain.Decision { return &d }

func TestAdjustWeights(t *testing.T) {
	def := domain.DefaultWeights()

	t.Run("dismissed lowers sender importance and raises relevance", func(t *testing.T) {
		w := AdjustWeights(def, &domain.UserFeedback{Action: domain.FeedbackDismissed})
		require.True(t, w.IsNormalized())
		assert.Less(t, w.SenderImportance, def.SenderImportance)
		assert.Greater(t, w.ContentRelevance, def.ContentRelevance)
		assert.InDelta(t, def.ActionRequired/def.TimingContext, w.ActionRequired/w.TimingContext, 1e-12)
		assert.InDelta(t, def.TimingContext/def.HistoricalBehavior, w.TimingContext/w.HistoricalBehavior, 1e-12)
	})

	t.Run("ignored raises timing", func(t *testing.T) {
		w := AdjustWeights(def, &domain.UserFeedback{Action: domain.FeedbackIgnored})
		require.True(t, w.IsNormalized())
		assert.Greater(t, w.TimingContext, def.TimingContext)
	})

	t.Run("reclassified to notify raises relevance", func(t *testing.T) {
		w := AdjustWeights(def, &domain.UserFeedback{Action: domain.FeedbackReclassified, ReclassifiedTo: decisionPtr(domain.DecisionNotifyImmediately)})
		assert.Greater(t, w.ContentRelevance, def.ContentRelevance)
	})

	t.Run("reclassified to ignore lowers sender importance", func(t *testing.T) {
		w := AdjustWeights(def, &domain.UserFeedback{Action: domain.FeedbackReclassified, ReclassifiedTo: decisionPtr(domain.DecisionIgnore)})
		assert.Less(t, w.SenderImportance, def.SenderImportance)
	})

	t.Run("opened and other targets keep weights", func(t *testing.T) {
		assert.InDelta(t, 0, diff(def, AdjustWeights(def, &domain.UserFeedback{Action: domain.FeedbackOpened})), 1e-12)
		assert.InDelta(t, 0, diff(def, AdjustWeights(def, &domain.UserFeedback{Action: domain.FeedbackReclassified, ReclassifiedTo: decisionPtr(domain.DecisionBatch)})), 1e-12)
	})
}

func diff(a, b domain.WeightVector) float64 {
	total := 0.0
	for _, f := range domain.AllFactors {
		d := a.Get(f) - b.Get(f)
		if d < 0 {
			d = -d
		}
		total += d
	}
	return total
}

func TestUpdateSenderStats(t *testing.T) {
	st := domain.DefaultSenderStats()
	st = UpdateSenderStats(st, true)
	assert.Equal(t, 1, st.Interactions)
	assert.InDelta(t, 1.0, st.OpenRate, 1e-12)

	st = UpdateSenderStats(st, false)
	assert.Equal(t, 2, st.Interactions)
	assert.InDelta(t, 0.5, st.OpenRate, 1e-12)
}

func TestSession_LearnKeysByMode(t *testing.T) {
	email := &domain.Email{ID: "e1", Sender: domain.Sender{Email: "pal@corp.com"}}
	fb := domain.UserFeedback{EmailID: "e1", Action: domain.FeedbackOpened}

	byID := NewSession(SenderKeyEmailID)
	res := byID.Learn(fb, byID.SenderKey(&fb, email))
	assert.Equal(t, "e1", res.SenderKey)
	assert.Equal(t, domain.DefaultSenderStats(), byID.SenderStats("pal@corp.com"))

	bySender := NewSession(SenderKeySenderAddress)
	res = bySender.Learn(fb, bySender.SenderKey(&fb, email))
	assert.Equal(t, "pal@corp.com", res.SenderKey)
	assert.Equal(t, 1, bySender.SenderStats("pal@corp.com").Interactions)

	assert.Equal(t, "e1", bySender.SenderKey(&fb, nil))
}

func TestSession_ConcurrentLearnKeepsInvariant(t *testing.T) {
	s := NewSession(SenderKeySenderAddress)
	actions := []domain.FeedbackAction{domain.FeedbackDismissed, domain.FeedbackIgnored, domain.FeedbackOpened}

	var wg sync.WaitGroup
	for i := 0; i < 300; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Learn(domain.UserFeedback{EmailID: "e", Action: actions[i%len(actions)]}, "pal@corp.com")
			assert.True(t, s.Weights().IsNormalized())
		}(i)
	}
	wg.Wait()

	assert.True(t, s.Weights().IsNormalized())
	st := s.SenderStats("pal@corp.com")
	assert.Equal(t, 300, st.Interactions)
	assert.InDelta(t, 1.0/3.0, st.OpenRate, 1e-9)
}

func TestSession_SnapshotRestore(t *testing.T) {
	s := NewSession(SenderKeyEmailID)
	s.Learn(domain.UserFeedback{EmailID: "e1", Action: domain.FeedbackDismissed}, "e1")

	snap := s.Snapshot()
	other := NewSession(SenderKeyEmailID)
	require.NoError(t, other.Restore(snap))
	assert.Equal(t, s.Weights(), other.Weights())
	assert.Equal(t, s.SenderStats("e1"), other.SenderStats("e1"))

	snap.Senders["e1"] = domain.SenderStats{Interactions: 99}
	assert.Equal(t, 1, s.SenderStats("e1").Interactions, "snapshot must be a copy")

	assert.Error(t, other.Restore(domain.LearningSnapshot{Senders: map[string]domain.SenderStats{"x": {OpenRate: 2}}}))
	assert.Error(t, other.Restore(domain.LearningSnapshot{Weights: domain.WeightVector{SenderImportance: -1}}))
}

func TestParseSenderKeyMode(t *testing.T) {
	m, err := ParseSenderKeyMode("")
	require.NoError(t, err)
	assert.Equal(t, SenderKeyEmailID, m)

	m, err = ParseSenderKeyMode("sender_address")
	require.NoError(t, err)
	assert.Equal(t, SenderKeySenderAddress, m)

	_, err = ParseSenderKeyMode("domain")
	assert.Error(t, err)
}
