package session

import (
	"context"
	"time"

	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/capture"
	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/interview"
	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/silence"
	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/submit"
	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/transcript"
	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/vad"
)

// Speaker streams 48kHz PCM mono audio for the given text.
type Speaker interface {
	StreamPCM48k(ctx context.Context, text string) (<-chan []byte, <-chan error)
}

// AudioSink delivers bot speech to the candidate. Implementations buffer
// internally and pace delivery.
type AudioSink interface {
	WritePCM(pcm []byte)
	FlushTail()
	// Reset drops any queued audio immediately.
	Reset()
}

// Protocol is the slice of the session protocol client the controller needs.
type Protocol interface {
	Connect(ctx context.Context) error
	Join(interviewID, userRole string) error
	StartSession(interviewID, candidateID string) error
	SetSessionID(id string)

	Ready() <-chan interview.SessionReady
	Responses() <-chan interview.Evaluation
	Followups() <-chan interview.Question
	Bot() <-chan interview.BotMessage
	Complete() <-chan struct{}

	SendAudioChunk(pcm []byte, sampleRate int, ts time.Time)
	SendVAD(speaking bool, energy float64, ts time.Time) error
	SendTranscriptChunk(questionID, text string, isFinal bool, ts time.Time) error
	SendSilence(questionID string, silence time.Duration, level interview.InterventionLevel) error
	QuestionStarted(questionID, text string) error
	SubmitAnswer(ctx context.Context, pkg interview.AnswerPackage) (*interview.Evaluation, error)

	CachedQuestions() []interview.Question
	Close() error
}

// Submitter is the answer delivery seam. The production implementation is
// submit.Pipeline.
type Submitter interface {
	Dispatch(pkg interview.AnswerPackage)
	Deliver(questionID string, ev interview.Evaluation) bool
	Drain(timeout time.Duration) bool
}

// Deps are the external collaborators of one controller.
type Deps struct {
	Protocol   Protocol
	Speaker    Speaker
	Sink       AudioSink
	Device     capture.Device
	Recognizer transcript.Recognizer
	Uploader   submit.Uploader
}

// Config tunes one interview session. Zero durations take defaults.
type Config struct {
	InterviewID string
	CandidateID string
	UserRole    string

	DurationBudget time.Duration

	// InitTimeout bounds the wait for session-ready before degrading to the
	// cached question list.
	InitTimeout time.Duration
	// SynthStartTimeout is the no-start synthesis watchdog.
	SynthStartTimeout time.Duration
	// SynthMaxDuration is the no-end synthesis watchdog.
	SynthMaxDuration time.Duration
	// SynthFallbackDelay is the timed fallback after a synthesis failure;
	// answering unlocks regardless.
	SynthFallbackDelay time.Duration
	// PendingRecheck is the interval for re-checking whether a deferred
	// question can be applied.
	PendingRecheck time.Duration
	// CompletionGrace delays the automatic stop after a completion phrase.
	CompletionGrace time.Duration
	// SubmitDrain bounds the wait for in-flight answer submissions at
	// shutdown. Generous on purpose: a lost last answer is worse than a slow
	// goodbye.
	SubmitDrain time.Duration

	SampleRate int

	VAD     vad.Config
	Silence silence.Config
	Capture capture.Config
	Submit  submit.Config
}

func (c Config) withDefaults() Config {
	if c.UserRole == "" {
		c.UserRole = "candidate"
	}
	if c.InitTimeout == 0 {
		c.InitTimeout = 20 * time.Second
	}
	if c.SynthStartTimeout == 0 {
		c.SynthStartTimeout = 2 * time.Second
	}
	if c.SynthMaxDuration == 0 {
		c.SynthMaxDuration = 30 * time.Second
	}
	if c.SynthFallbackDelay == 0 {
		c.SynthFallbackDelay = time.Second
	}
	if c.PendingRecheck == 0 {
		c.PendingRecheck = 500 * time.Millisecond
	}
	if c.CompletionGrace == 0 {
		c.CompletionGrace = 1500 * time.Millisecond
	}
	if c.SubmitDrain == 0 {
		c.SubmitDrain = 60 * time.Second
	}
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	return c
}
