package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"triage_server/core/agent"
	"triage_server/core/domain"
	"triage_server/pkg/apperr"
)

// =============================================================================
// Session Registry
// =============================================================================

const maxCleanupInterval = 5 * time.Minute

type entry struct {
	agent    *agent.AdaptiveGoalAgent
	lastUsed time.Time
}

// Registry holds one AdaptiveGoalAgent per user and expires idle sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	ttl      time.Duration

	deps agent.SessionDeps
	cfg  agent.SessionConfig
	now  func() time.Time
	base zerolog.Logger
	log  zerolog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRegistry creates a registry. A positive ttl starts the cleanup loop;
// call Stop to end it.
func NewRegistry(deps agent.SessionDeps, cfg agent.SessionConfig, ttl time.Duration, log zerolog.Logger) *Registry {
	r := &Registry{
		sessions: make(map[string]*entry),
		ttl:      ttl,
		deps:     deps,
		cfg:      cfg,
		now:      time.Now,
		base:     log,
		log:      log.With().Str("component", "session_registry").Logger(),
		stopCh:   make(chan struct{}),
	}
	if ttl > 0 {
		go r.cleanupLoop(min(ttl/2, maxCleanupInterval))
	}
	return r
}

// Open starts a session for the user, replacing any previous one. Learned
// state, stored analyses and stored goals are loaded best-effort.
func (r *Registry) Open(ctx context.Context, user *domain.User) (*agent.AdaptiveGoalAgent, error) {
	a, err := agent.NewAdaptiveGoalAgent(user, r.deps, r.cfg, r.base)
	if err != nil {
		return nil, err
	}

	if err := a.RestoreSnapshot(ctx); err != nil {
		r.log.Warn().Err(err).Str("user_id", user.ID).Msg("learning snapshot not restored")
	}
	if n, err := a.RestoreAnalyses(ctx); err != nil {
		r.log.Warn().Err(err).Str("user_id", user.ID).Msg("analyses not restored")
	} else if n > 0 {
		r.log.Debug().Str("user_id", user.ID).Int("analyses", n).Msg("analyses restored")
	}
	if len(user.Goals) == 0 {
		if _, err := a.SyncGoals(ctx); err != nil {
			r.log.Warn().Err(err).Str("user_id", user.ID).Msg("goals not synced")
		}
	}

	r.mu.Lock()
	_, replaced := r.sessions[user.ID]
	r.sessions[user.ID] = &entry{agent: a, lastUsed: r.now()}
	r.mu.Unlock()

	r.log.Info().Str("user_id", user.ID).Bool("replaced", replaced).Msg("session opened")
	return a, nil
}

// Get returns the live session of a user.
func (r *Registry) Get(userID string) (*agent.AdaptiveGoalAgent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[userID]
	if !ok {
		return nil, apperr.NotFound("session")
	}
	e.lastUsed = r.now()
	return e.agent, nil
}

// Close ends a session. It reports whether one existed.
func (r *Registry) Close(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.sessions[userID]
	delete(r.sessions, userID)
	return ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.cleanup()
		case <-r.stopCh:
			return
		}
	}
}

// cleanup removes sessions idle for longer than the ttl and returns how
// many were removed.
func (r *Registry) cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for id, e := range r.sessions {
		if now.Sub(e.lastUsed) > r.ttl {
			delete(r.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		r.log.Debug().Int("removed", removed).Msg("expired sessions removed")
	}
	return removed
}

// Stop ends the cleanup loop. Safe to call more than once.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}
