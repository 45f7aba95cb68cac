// Package cheat turns page-visibility signals into tamper-evidence records.
package cheat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/whitelist-backend/internal/model"
)

// Visibility is the page-visibility state reported by the browser.
type Visibility string

const (
	Hidden  Visibility = "hidden"
	Visible Visibility = "visible"
)

// Feed receives every recorded attempt for live staff monitoring.
type Feed interface {
	PublishCheat(ctx context.Context, quizID, userID string, attempt model.CheatAttempt) error
}

// Monitor records one attempt per transition to hidden while attached.
// It keeps no list of its own: the session owns the attempt log.
type Monitor struct {
	mu       sync.Mutex
	attached bool

	quizID string
	userID string
	feed   Feed
	now    func() time.Time
	log    zerolog.Logger
}

// NewMonitor creates a detached Monitor. feed may be nil.
func NewMonitor(quizID, userID string, feed Feed, log zerolog.Logger) *Monitor {
	return &Monitor{
		quizID: quizID,
		userID: userID,
		feed:   feed,
		now:    time.Now,
		log:    log.With().Str("component", "cheat_monitor").Logger(),
	}
}

// SetClock replaces the time source.
func (m *Monitor) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Monitor) Attach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attached = true
}

func (m *Monitor) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attached = false
}

func (m *Monitor) Attached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attached
}

// Observe handles one visibility signal. It returns the new attempt and true
// when the signal counts as a cheat attempt.
func (m *Monitor) Observe(ctx context.Context, v Visibility) (model.CheatAttempt, bool) {
	m.mu.Lock()
	if !m.attached || v != Hidden {
		m.mu.Unlock()
		return model.CheatAttempt{}, false
	}
	attempt := model.CheatAttempt{
		Method:    model.CheatMethodVisibilityLoss,
		Timestamp: m.now().UTC(),
	}
	m.mu.Unlock()

	if m.feed != nil {
		if err := m.feed.PublishCheat(ctx, m.quizID, m.userID, attempt); err != nil {
			m.log.Warn().Err(err).
				Str("quiz_id", m.quizID).
				Str("user_id", m.userID).
				Msg("Live monitor publish failed")
		}
	}

	return attempt, true
}
