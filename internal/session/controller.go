// Package session is the top-level conversation state machine for one live
// interview: it owns conversation state and the current question, and
// orchestrates speech synthesis, VAD, silence escalation, transcript
// aggregation, capture and answer submission.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/capture"
	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/interview"
	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/silence"
	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/submit"
	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/transcript"
	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/vad"
)

// Controller drives a single candidate through a scripted-but-adaptive voice
// interview. All conversation-state mutation is scoped to the controller's
// single active-question context.
type Controller struct {
	cfg     Config
	proto   Protocol
	speaker Speaker
	sink    AudioSink
	dev     capture.Device
	recog   transcript.Recognizer

	detector *vad.Engine
	monitor  *silence.Monitor
	agg      *transcript.Aggregator
	media    *capture.Manager
	pipe     Submitter
	clock    *silence.Clock

	mu            sync.Mutex
	sess          *interview.Session
	questions     []interview.Question
	seen          map[string]bool
	currentIdx    int
	answering     bool
	stopped       bool
	pending       *interview.Question
	pendingActive bool
	stopTimer     *time.Timer
	interventions []interview.InterventionRecord
	firstQuestion *interview.Question

	applyCh chan interview.Question
	evalCh  chan interview.Evaluation
	endCh   chan struct{}
	cancel  context.CancelFunc
}

// NewController wires a controller and its owned components.
func NewController(cfg Config, deps Deps) *Controller {
	cfg = cfg.withDefaults()
	c := &Controller{
		cfg:        cfg,
		proto:      deps.Protocol,
		speaker:    deps.Speaker,
		sink:       deps.Sink,
		dev:        deps.Device,
		recog:      deps.Recognizer,
		clock:      &silence.Clock{},
		seen:       make(map[string]bool),
		currentIdx: -1,
		applyCh:    make(chan interview.Question, 4),
		evalCh:     make(chan interview.Evaluation, 8),
		endCh:      make(chan struct{}, 1),
	}
	c.detector = vad.NewEngine(cfg.VAD, vad.Events{OnTransition: c.onVADTransition})
	c.monitor = silence.NewMonitor(cfg.Silence, c.clock.Last, silence.Events{OnIntervene: c.onIntervene})
	c.agg = transcript.NewAggregator(transcript.Events{
		OnActivity:         c.clock.Touch,
		OnCompletionPhrase: c.onCompletionPhrase,
	})
	c.media = capture.NewManager(cfg.Capture, deps.Device)
	c.pipe = submit.NewPipeline(cfg.Submit, deps.Uploader, deps.Protocol, submit.Events{
		OnResult: c.onEvaluationResult,
		OnError:  c.onSubmitError,
	})
	return c
}

// Initialize opens the remote session and obtains the first question, or
// degrades to a locally cached one. It fails with InitializationError only
// when session creation times out and no cached question exists.
func (c *Controller) Initialize(ctx context.Context, templateID string) (interview.Session, error) {
	sess := &interview.Session{
		ID:                   uuid.NewString(),
		CandidateInterviewID: c.cfg.InterviewID,
		Status:               interview.StatusLoading,
		DurationBudget:       c.cfg.DurationBudget,
		Conversation:         interview.StateIdle,
	}
	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()

	if err := c.proto.Connect(ctx); err != nil {
		return c.initFallback(fmt.Errorf("transport: %w", err))
	}
	if err := c.proto.Join(c.cfg.InterviewID, c.cfg.UserRole); err != nil {
		log.Printf("[%s] join failed: %v", sess.ID, err)
	}
	if err := c.proto.StartSession(c.cfg.InterviewID, c.cfg.CandidateID); err != nil {
		return c.initFallback(fmt.Errorf("start session: %w", err))
	}

	select {
	case ready := <-c.proto.Ready():
		c.mu.Lock()
		if ready.SessionID != "" {
			c.sess.ID = ready.SessionID
		}
		q := ready.FirstQuestion
		c.firstQuestion = &q
		c.sess.Status = interview.StatusReady
		out := *c.sess
		c.mu.Unlock()
		c.proto.SetSessionID(out.ID)
		log.Printf("[%s] session ready for template %s", out.ID, templateID)
		return out, nil
	case <-time.After(c.cfg.InitTimeout):
		return c.initFallback(fmt.Errorf("session-ready timed out after %s", c.cfg.InitTimeout))
	case <-ctx.Done():
		c.setStatus(interview.StatusError)
		return interview.Session{}, ctx.Err()
	}
}

// initFallback degrades to the cached question list when the transport failed
// during initialization.
func (c *Controller) initFallback(cause error) (interview.Session, error) {
	cached := c.proto.CachedQuestions()
	if len(cached) == 0 {
		c.setStatus(interview.StatusError)
		return interview.Session{}, &interview.InitializationError{Cause: cause}
	}
	c.mu.Lock()
	q := cached[0]
	c.firstQuestion = &q
	c.sess.Status = interview.StatusReady
	out := *c.sess
	c.mu.Unlock()
	log.Printf("[%s] initialization degraded to cached question list: %v", out.ID, cause)
	return out, nil
}

// Run speaks the first question and processes events until the interview
// completes or the context is cancelled. It must be called after Initialize.
func (c *Controller) Run(ctx context.Context) error {
	rctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	if c.sess == nil || c.firstQuestion == nil {
		c.mu.Unlock()
		cancel()
		return errors.New("controller not initialized")
	}
	first := *c.firstQuestion
	c.firstQuestion = nil
	c.sess.Status = interview.StatusInProgress
	c.sess.StartedAt = time.Now()
	budget := c.sess.DurationBudget
	c.mu.Unlock()
	defer cancel()

	if err := c.media.StartSession(); err != nil {
		// Camera/mic denied is fatal; the session cannot proceed.
		c.fail(err)
		return err
	}
	go c.audioPump(rctx)
	go c.transcriptPump(rctx)

	var budgetCh <-chan time.Time
	if budget > 0 {
		t := time.NewTimer(budget)
		defer t.Stop()
		budgetCh = t.C
	}

	c.speakAndOpen(rctx, first)

	for {
		select {
		case <-rctx.Done():
			c.teardown()
			return rctx.Err()
		case <-c.endCh:
			c.finish(rctx)
			return nil
		case <-c.proto.Complete():
			c.finish(rctx)
			return nil
		case <-budgetCh:
			log.Printf("[%s] duration budget exhausted, ending interview", c.sessionID())
			c.finish(rctx)
			return nil
		case q := <-c.applyCh:
			c.applyQuestion(rctx, q)
		case q := <-c.proto.Followups():
			c.applyQuestion(rctx, q)
		case ev := <-c.evalCh:
			if done := c.advance(rctx, ev); done {
				return nil
			}
		case ev := <-c.proto.Responses():
			// The same response can arrive here and through SubmitAnswer;
			// the pipeline's delivery guard keeps it exactly-once.
			c.pipe.Deliver(ev.QuestionID, ev)
		case b := <-c.proto.Bot():
			log.Printf("[%s] bot %s: %s", c.sessionID(), b.Type, b.Message)
		}
	}
}

// End requests a graceful interview completion.
func (c *Controller) End() {
	select {
	case c.endCh <- struct{}{}:
	default:
	}
}

// StopAnswering transitions out of answering: capture stops, the transcript
// freezes, and the answer package is dispatched without blocking the next
// question. Idempotent per question; safe from any goroutine.
func (c *Controller) StopAnswering(ctx context.Context) {
	c.mu.Lock()
	if !c.answering || c.stopped {
		c.mu.Unlock()
		return
	}
	c.answering = false
	c.stopped = true
	idx := c.currentIdx
	now := time.Now()
	c.questions[idx].Timestamps.AnswerEnd = &now
	c.sess.Conversation = interview.StateIdle
	q := c.questions[idx]
	t := c.stopTimer
	c.stopTimer = nil
	c.mu.Unlock()

	if t != nil {
		t.Stop()
	}
	c.monitor.Disarm()

	text := c.agg.Freeze()
	blob, frames, err := c.media.OnAnswerStop(ctx)
	if err != nil {
		log.Printf("[%s] answer capture stop: %v", c.sessionID(), err)
	}
	pkg := interview.AnswerPackage{
		QuestionID: q.ID,
		Transcript: text,
		Video:      blob,
		Frames:     frames,
		Timestamps: q.Timestamps,
	}
	log.Printf("[%s] dispatching answer for question %s (%d frames, %d transcript bytes)",
		c.sessionID(), q.ID, len(frames), len(text))
	c.pipe.Dispatch(pkg)
}

// advance applies the evaluation service's directive. Returns true when the
// interview ended.
func (c *Controller) advance(ctx context.Context, ev interview.Evaluation) bool {
	switch ev.NextAction {
	case interview.ActionAskFollowup:
		q := interview.Question{
			ID:               uuid.NewString(),
			Text:             ev.NextText,
			Kind:             interview.KindFollowup,
			ParentQuestionID: ev.QuestionID,
		}
		c.applyQuestion(ctx, q)
	case interview.ActionNextQuestion:
		if ev.NextQuestion == nil {
			log.Printf("[%s] next_question directive without a question, ending", c.sessionID())
			c.finish(ctx)
			return true
		}
		c.applyQuestion(ctx, *ev.NextQuestion)
	case interview.ActionEndInterview:
		c.finish(ctx)
		return true
	default:
		log.Printf("[%s] unknown next_action %q ignored", c.sessionID(), ev.NextAction)
	}
	return false
}

// applyQuestion speaks a question now, or defers it while the candidate is
// mid-answer. Duplicate deliveries of the same id are ignored.
func (c *Controller) applyQuestion(ctx context.Context, q interview.Question) {
	c.mu.Lock()
	if q.ID != "" && c.seen[q.ID] {
		c.mu.Unlock()
		log.Printf("[%s] duplicate question %s ignored", c.sessionID(), q.ID)
		return
	}
	if c.sess.Conversation == interview.StateCandidateSpeaking {
		c.pending = &q
		start := !c.pendingActive
		c.pendingActive = true
		c.mu.Unlock()
		if start {
			go c.pendingRecheck(ctx)
		}
		return
	}
	c.mu.Unlock()
	c.speakAndOpen(ctx, q)
}

// pendingRecheck re-checks on a fixed interval until the candidate stops
// speaking, then hands the deferred question back to the run loop.
func (c *Controller) pendingRecheck(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PendingRecheck)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.sess.Conversation == interview.StateCandidateSpeaking {
				c.mu.Unlock()
				continue
			}
			q := c.pending
			c.pending = nil
			c.pendingActive = false
			c.mu.Unlock()
			if q != nil {
				select {
				case c.applyCh <- *q:
				case <-ctx.Done():
				}
			}
			return
		}
	}
}

// speakAndOpen runs one question cycle: speak (with watchdogs), then unlock
// answering and open capture, VAD and silence monitoring. Question N+1 never
// starts before question N's capture has fully stopped.
func (c *Controller) speakAndOpen(ctx context.Context, q interview.Question) {
	c.StopAnswering(ctx)

	c.mu.Lock()
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	q.Order = len(c.questions)
	now := time.Now()
	q.Timestamps.QuestionStart = &now
	c.seen[q.ID] = true
	c.questions = append(c.questions, q)
	c.currentIdx = len(c.questions) - 1
	c.stopped = false
	c.sess.Conversation = interview.StateBotSpeaking
	c.mu.Unlock()

	if err := c.proto.QuestionStarted(q.ID, q.Text); err != nil {
		log.Printf("[%s] question-started notify failed: %v", c.sessionID(), err)
	}

	if err := c.speak(ctx, q.Text); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Printf("[%s] %v; unlocking answering after fallback", c.sessionID(),
			&interview.SynthesisError{QuestionID: q.ID, Cause: err})
		select {
		case <-time.After(c.cfg.SynthFallbackDelay):
		case <-ctx.Done():
			return
		}
	}

	c.agg.Reset()
	c.detector.Reset()
	c.clock.Touch()

	c.mu.Lock()
	idx := c.currentIdx
	now = time.Now()
	c.questions[idx].Timestamps.QuestionEnd = &now
	c.questions[idx].Timestamps.AnswerStart = &now
	c.sess.Conversation = interview.StateListening
	c.answering = true
	c.mu.Unlock()

	if err := c.media.OnQuestionSpeechEnd(ctx, q.ID); err != nil {
		// Degraded: the answer proceeds without a question-scoped recording.
		log.Printf("[%s] question recording unavailable: %v", c.sessionID(), err)
	}
	c.monitor.Arm(q.ID)
}

// speak suspends until synthesis completes, watching for a stream that never
// starts or never ends.
func (c *Controller) speak(ctx context.Context, text string) error {
	if c.speaker == nil {
		return nil
	}
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pcmCh, errCh := c.speaker.StreamPCM48k(sctx, text)
	startT := time.NewTimer(c.cfg.SynthStartTimeout)
	defer startT.Stop()
	endT := time.NewTimer(c.cfg.SynthMaxDuration)
	defer endT.Stop()

	started := false
	for {
		select {
		case b, ok := <-pcmCh:
			if !ok {
				if started && c.sink != nil {
					c.sink.FlushTail()
				}
				return nil
			}
			if len(b) == 0 {
				continue
			}
			if !started {
				started = true
				startT.Stop()
			}
			if c.sink != nil {
				c.sink.WritePCM(b)
			}
		case e, ok := <-errCh:
			if ok && e != nil {
				return e
			}
			errCh = nil
		case <-startT.C:
			if !started {
				return fmt.Errorf("no audio within %s", c.cfg.SynthStartTimeout)
			}
		case <-endT.C:
			return fmt.Errorf("synthesis exceeded %s", c.cfg.SynthMaxDuration)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// audioPump feeds the shared device stream into the VAD engine and the
// protocol. Frames are read-only here; recorder transitions stay with the
// capture manager.
func (c *Controller) audioPump(ctx context.Context) {
	if c.dev == nil {
		return
	}
	frames := c.dev.AudioFrames()
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			c.detector.Sample(f)
			c.proto.SendAudioChunk(f, c.cfg.SampleRate, time.Now())
		}
	}
}

// transcriptPump feeds recognition results into the aggregator and forwards
// them upstream. Transient no-speech results are ignored.
func (c *Controller) transcriptPump(ctx context.Context) {
	if c.recog == nil {
		return
	}
	results := c.recog.Results()
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-results:
			if !ok {
				return
			}
			if r.Err != nil {
				if !errors.Is(r.Err, interview.ErrNoSpeech) {
					log.Printf("[%s] recognition error: %v", c.sessionID(), r.Err)
				}
				continue
			}
			c.agg.Ingest(r.Index, r.Text, r.Final)
			if qid := c.currentQuestionID(); qid != "" {
				_ = c.proto.SendTranscriptChunk(qid, r.Text, r.Final, time.Now())
			}
		}
	}
}

func (c *Controller) onVADTransition(speaking bool, energy float64) {
	_ = c.proto.SendVAD(speaking, energy, time.Now())
	c.clock.Touch()

	c.mu.Lock()
	if !c.answering {
		c.mu.Unlock()
		return
	}
	if speaking {
		c.sess.Conversation = interview.StateCandidateSpeaking
	} else {
		c.sess.Conversation = interview.StateListening
	}
	qid := c.questions[c.currentIdx].ID
	c.mu.Unlock()

	if speaking {
		c.monitor.Disarm()
	} else {
		c.monitor.Arm(qid)
	}
}

func (c *Controller) onIntervene(rec interview.InterventionRecord, silenceFor time.Duration) {
	qid := c.currentQuestionID()
	log.Printf("[%s] silence escalation %s after %s on question %s",
		c.sessionID(), rec.Level, silenceFor.Round(time.Second), qid)
	c.mu.Lock()
	c.interventions = append(c.interventions, rec)
	c.mu.Unlock()
	if err := c.proto.SendSilence(qid, silenceFor, rec.Level); err != nil {
		log.Printf("[%s] silence event send failed: %v", c.sessionID(), err)
	}
	if rec.Level == interview.LevelForceMove {
		c.StopAnswering(context.Background())
	}
}

func (c *Controller) onCompletionPhrase(phrase string) {
	c.mu.Lock()
	if !c.answering || c.stopTimer != nil {
		c.mu.Unlock()
		return
	}
	c.stopTimer = time.AfterFunc(c.cfg.CompletionGrace, func() {
		c.StopAnswering(context.Background())
	})
	c.mu.Unlock()
	log.Printf("[%s] completion phrase %q heard, stopping answer in %s",
		c.sessionID(), phrase, c.cfg.CompletionGrace)
}

func (c *Controller) onEvaluationResult(questionID string, ev interview.Evaluation) {
	select {
	case c.evalCh <- ev:
	default:
		log.Printf("[%s] evaluation queue full, dropping result for %s", c.sessionID(), questionID)
	}
}

// onSubmitError surfaces degraded submission outcomes without touching
// session progression.
func (c *Controller) onSubmitError(err error) {
	log.Printf("[%s] submission degraded: %v", c.sessionID(), err)
}

// finish ends the interview gracefully. In-flight submissions keep running.
func (c *Controller) finish(ctx context.Context) {
	c.StopAnswering(ctx)
	c.monitor.Disarm()

	blob, err := c.media.StopSession(ctx)
	if err != nil {
		log.Printf("[%s] session recording stop: %v", c.sessionID(), err)
	} else if !blob.Empty() {
		log.Printf("[%s] session recording captured (%d bytes)", c.sessionID(), len(blob.Data))
	}

	c.mu.Lock()
	c.sess.Status = interview.StatusCompleted
	c.sess.Conversation = interview.StateIdle
	c.mu.Unlock()
	// The last answer may still be uploading; the transport stays open until
	// its submission lands or the drain bound expires.
	if !c.pipe.Drain(c.cfg.SubmitDrain) {
		log.Printf("[%s] submissions still in flight after %s, closing anyway", c.sessionID(), c.cfg.SubmitDrain)
	}
	_ = c.proto.Close()
	log.Printf("[%s] interview completed after %d questions", c.sessionID(), len(c.Questions()))
}

// teardown handles hard cancellation: timers and recorders stop, synthesis is
// already aborted via context. In-flight submissions still drain before the
// transport closes.
func (c *Controller) teardown() {
	c.monitor.Disarm()
	c.mu.Lock()
	if t := c.stopTimer; t != nil {
		t.Stop()
		c.stopTimer = nil
	}
	if c.sess.Status != interview.StatusCompleted {
		c.sess.Status = interview.StatusError
	}
	c.sess.Conversation = interview.StateIdle
	c.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, _ = c.media.StopSession(ctx)
	if !c.pipe.Drain(c.cfg.SubmitDrain) {
		log.Printf("[%s] submissions still in flight after %s, closing anyway", c.sessionID(), c.cfg.SubmitDrain)
	}
	_ = c.proto.Close()
}

func (c *Controller) fail(err error) {
	log.Printf("[%s] fatal: %v", c.sessionID(), err)
	c.setStatus(interview.StatusError)
}

func (c *Controller) setStatus(s interview.Status) {
	c.mu.Lock()
	if c.sess != nil {
		c.sess.Status = s
	}
	c.mu.Unlock()
}

func (c *Controller) sessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return ""
	}
	return c.sess.ID
}

func (c *Controller) currentQuestionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentIdx < 0 {
		return ""
	}
	return c.questions[c.currentIdx].ID
}

// Session returns a snapshot of the session record.
func (c *Controller) Session() interview.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return interview.Session{}
	}
	return *c.sess
}

// Questions returns a copy of the append-only question list.
func (c *Controller) Questions() []interview.Question {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]interview.Question(nil), c.questions...)
}

// Interventions returns the escalations emitted so far.
func (c *Controller) Interventions() []interview.InterventionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]interview.InterventionRecord(nil), c.interventions...)
}
