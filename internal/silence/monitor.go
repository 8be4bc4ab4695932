// Package silence watches elapsed post-question silence and escalates bot
// interventions at fixed thresholds.
package silence

import (
	"sync"
	"time"

	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/interview"
)

// Clock is the shared last-speech timestamp. The VAD engine and the
// transcript aggregator touch it; the monitor reads it.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// Touch stamps the clock with the current time.
func (c *Clock) Touch() {
	c.mu.Lock()
	c.t = time.Now()
	c.mu.Unlock()
}

// TouchAt stamps the clock with an explicit time.
func (c *Clock) TouchAt(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// Last returns the most recent stamp.
func (c *Clock) Last() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Config holds the monitor timing. Zero values take defaults.
type Config struct {
	Tick               time.Duration
	ThinkingCheckAfter time.Duration
	SuggestMoveAfter   time.Duration
	ForceMoveAfter     time.Duration
	Now                func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Tick == 0 {
		c.Tick = 2 * time.Second
	}
	if c.ThinkingCheckAfter == 0 {
		c.ThinkingCheckAfter = 7 * time.Second
	}
	if c.SuggestMoveAfter == 0 {
		c.SuggestMoveAfter = 15 * time.Second
	}
	if c.ForceMoveAfter == 0 {
		c.ForceMoveAfter = 30 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Events lets the host forward escalations.
type Events struct {
	// OnIntervene fires at most once per level per answer cycle; levels
	// always arrive in increasing order. After force_move the monitor is
	// disarmed permanently for the cycle.
	OnIntervene func(rec interview.InterventionRecord, silence time.Duration)
}

// Monitor raises at most one event per escalation level while armed.
// Fired-level state survives disarm/re-arm within one question and resets
// when armed for a different question.
type Monitor struct {
	cfg        Config
	lastSpeech func() time.Time
	ev         Events

	mu         sync.Mutex
	questionID string
	fired      map[interview.InterventionLevel]bool
	exhausted  bool
	armed      bool
	stopCh     chan struct{}
}

// NewMonitor constructs a disarmed monitor reading silence from lastSpeech.
func NewMonitor(cfg Config, lastSpeech func() time.Time, ev Events) *Monitor {
	return &Monitor{
		cfg:        cfg.withDefaults(),
		lastSpeech: lastSpeech,
		ev:         ev,
		fired:      make(map[interview.InterventionLevel]bool),
	}
}

// Arm starts monitoring for the given question. Arming for a new question
// resets escalation state; re-arming within the same question keeps it, so a
// level never fires twice per answer cycle. A no-op once force_move fired.
func (m *Monitor) Arm(questionID string) {
	m.mu.Lock()
	if questionID != m.questionID {
		m.questionID = questionID
		m.fired = make(map[interview.InterventionLevel]bool)
		m.exhausted = false
	}
	if m.armed || m.exhausted {
		m.mu.Unlock()
		return
	}
	m.armed = true
	stop := make(chan struct{})
	m.stopCh = stop
	m.mu.Unlock()

	go m.loop(stop)
}

// Disarm stops monitoring immediately. Safe to call repeatedly; always
// synchronous with respect to a subsequent Arm.
func (m *Monitor) Disarm() {
	m.mu.Lock()
	m.disarmLocked()
	m.mu.Unlock()
}

func (m *Monitor) disarmLocked() {
	if !m.armed {
		return
	}
	m.armed = false
	close(m.stopCh)
	m.stopCh = nil
}

// Armed reports whether the monitor is currently ticking.
func (m *Monitor) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed
}

func (m *Monitor) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if done := m.evaluate(stop); done {
				return
			}
		}
	}
}

// evaluate fires every eligible unfired level in ascending order so the
// sequence stays strictly increasing even if a tick crosses more than one
// threshold. Returns true once the cycle is exhausted.
func (m *Monitor) evaluate(stop <-chan struct{}) bool {
	m.mu.Lock()
	if !m.armed || m.stopCh != stop {
		m.mu.Unlock()
		return true
	}
	silence := m.cfg.Now().Sub(m.lastSpeech())

	type step struct {
		level interview.InterventionLevel
		after time.Duration
	}
	steps := []step{
		{interview.LevelThinkingCheck, m.cfg.ThinkingCheckAfter},
		{interview.LevelSuggestMoveOn, m.cfg.SuggestMoveAfter},
		{interview.LevelForceMove, m.cfg.ForceMoveAfter},
	}

	var recs []interview.InterventionRecord
	for _, s := range steps {
		if silence < s.after || m.fired[s.level] {
			continue
		}
		m.fired[s.level] = true
		recs = append(recs, interview.InterventionRecord{Level: s.level, EmittedAt: m.cfg.Now()})
		if s.level == interview.LevelForceMove {
			m.exhausted = true
			m.disarmLocked()
		}
	}
	exhausted := m.exhausted
	cb := m.ev.OnIntervene
	m.mu.Unlock()

	if cb != nil {
		for _, r := range recs {
			cb(r, silence)
		}
	}
	return exhausted
}
