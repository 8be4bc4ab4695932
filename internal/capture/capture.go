// Package capture owns recorder lifecycle and frame sampling for a session.
// The underlying audio/video device stream is acquired once per session and
// shared read-only; only the Manager issues recorder state transitions.
package capture

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/interview"
)

// Scope distinguishes the continuous full-session recording from the
// per-question recordings.
type Scope string

const (
	ScopeSession  Scope = "session"
	ScopeQuestion Scope = "question"
)

// Recorder records one media segment. Stop returns a channel that yields the
// final blob once the recorder has flushed; callers bound the wait.
type Recorder interface {
	Start() error
	Stop() (<-chan interview.Blob, error)
}

// Device is the abstract media-capture capability. AudioFrames yields 16kHz
// PCM16LE mono frames for the lifetime of the session.
type Device interface {
	AudioFrames() <-chan []byte
	GrabFrame(ctx context.Context) (interview.CapturedFrame, error)
	NewRecorder(scope Scope) (Recorder, error)
	Close() error
}

// Config holds sampling and flush tuning. Zero values take defaults.
type Config struct {
	// FrameInterval is the periodic frame sampling cadence while answering.
	FrameInterval time.Duration
	// FlushWait bounds how long OnAnswerStop waits for the recorder blob.
	FlushWait time.Duration
	// MaxFrames caps the frames handed downstream per answer.
	MaxFrames int
}

func (c Config) withDefaults() Config {
	if c.FrameInterval == 0 {
		c.FrameInterval = 3 * time.Second
	}
	if c.FlushWait == 0 {
		c.FlushWait = 2 * time.Second
	}
	if c.MaxFrames == 0 {
		c.MaxFrames = 10
	}
	return c
}

// Manager starts and stops the per-question recorder, the parallel
// full-session recorder, and the periodic frame sampler.
type Manager struct {
	cfg Config
	dev Device

	mu          sync.Mutex
	sessionRec  Recorder
	questionRec Recorder
	questionID  string
	frames      []interview.CapturedFrame
	samplerStop chan struct{}
}

// NewManager wraps the device with lifecycle management.
func NewManager(cfg Config, dev Device) *Manager {
	return &Manager{cfg: cfg.withDefaults(), dev: dev}
}

// StartSession begins the full-session recording. It runs independently of
// question-scoped recordings until StopSession.
func (m *Manager) StartSession() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessionRec != nil {
		return nil
	}
	rec, err := m.dev.NewRecorder(ScopeSession)
	if err != nil {
		return &interview.DeviceError{Cause: err}
	}
	if err := rec.Start(); err != nil {
		return &interview.DeviceError{Cause: err}
	}
	m.sessionRec = rec
	return nil
}

// StopSession ends the full-session recording and waits, bounded, for its
// blob.
func (m *Manager) StopSession(ctx context.Context) (interview.Blob, error) {
	m.mu.Lock()
	rec := m.sessionRec
	m.sessionRec = nil
	m.mu.Unlock()
	if rec == nil {
		return interview.Blob{}, nil
	}
	return m.stopAndWait(ctx, rec)
}

// OnQuestionSpeechEnd starts the question-scoped recording and the frame
// sampler: one frame immediately, then one every FrameInterval.
func (m *Manager) OnQuestionSpeechEnd(ctx context.Context, questionID string) error {
	m.mu.Lock()
	if m.questionRec != nil {
		m.mu.Unlock()
		return fmt.Errorf("question recording already active for %s", m.questionID)
	}
	rec, err := m.dev.NewRecorder(ScopeQuestion)
	if err != nil {
		m.mu.Unlock()
		return &interview.DeviceError{Cause: err}
	}
	if err := rec.Start(); err != nil {
		m.mu.Unlock()
		return &interview.DeviceError{Cause: err}
	}
	m.questionRec = rec
	m.questionID = questionID
	m.frames = nil
	stop := make(chan struct{})
	m.samplerStop = stop
	m.mu.Unlock()

	m.grabFrame(ctx)
	go m.sampleLoop(ctx, stop)
	return nil
}

// OnAnswerStop stops the question recording, waits bounded for the recorder
// flush, takes one final frame and returns the capped frame sequence.
func (m *Manager) OnAnswerStop(ctx context.Context) (interview.Blob, []interview.CapturedFrame, error) {
	m.mu.Lock()
	rec := m.questionRec
	stop := m.samplerStop
	m.questionRec = nil
	m.samplerStop = nil
	m.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if rec == nil {
		return interview.Blob{}, nil, fmt.Errorf("no question recording active")
	}

	m.grabFrame(ctx)

	blob, err := m.stopAndWait(ctx, rec)
	m.mu.Lock()
	frames := Subsample(m.frames, m.cfg.MaxFrames)
	m.frames = nil
	m.mu.Unlock()
	return blob, frames, err
}

func (m *Manager) stopAndWait(ctx context.Context, rec Recorder) (interview.Blob, error) {
	blobCh, err := rec.Stop()
	if err != nil {
		return interview.Blob{}, &interview.DeviceError{Cause: err}
	}
	select {
	case blob := <-blobCh:
		return blob, nil
	case <-time.After(m.cfg.FlushWait):
		log.Printf("capture: recorder flush timed out after %s; proceeding without blob", m.cfg.FlushWait)
		return interview.Blob{}, nil
	case <-ctx.Done():
		return interview.Blob{}, ctx.Err()
	}
}

func (m *Manager) sampleLoop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.FrameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.grabFrame(ctx)
		}
	}
}

func (m *Manager) grabFrame(ctx context.Context) {
	frame, err := m.dev.GrabFrame(ctx)
	if err != nil {
		return
	}
	m.mu.Lock()
	m.frames = append(m.frames, frame)
	m.mu.Unlock()
}

// Subsample bounds frames to max entries, evenly spaced and always keeping
// the first and last, so downstream payload size is independent of answer
// length.
func Subsample(frames []interview.CapturedFrame, max int) []interview.CapturedFrame {
	if max <= 0 || len(frames) <= max {
		out := make([]interview.CapturedFrame, len(frames))
		copy(out, frames)
		return out
	}
	if max == 1 {
		return []interview.CapturedFrame{frames[0]}
	}
	out := make([]interview.CapturedFrame, 0, max)
	n := len(frames)
	for i := 0; i < max; i++ {
		idx := i * (n - 1) / (max - 1)
		out = append(out, frames[idx])
	}
	return out
}
