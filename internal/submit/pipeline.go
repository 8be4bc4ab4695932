// Package submit delivers finished answers to the evaluation service with
// durable retry. Submission is fire-and-forget from the controller's point of
// view: a submitted answer with a missing video beats a lost answer, and
// nothing here ever blocks the next question.
package submit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/interview"
)

// Uploader stores a video blob and returns a durable reference.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// Evaluator exchanges the packaged answer for an evaluation response.
type Evaluator interface {
	SubmitAnswer(ctx context.Context, pkg interview.AnswerPackage) (*interview.Evaluation, error)
}

// Events lets the controller observe pipeline outcomes.
type Events struct {
	// OnResult fires exactly once per question, even when the same response
	// arrives through more than one channel.
	OnResult func(questionID string, ev interview.Evaluation)
	// OnError surfaces degraded outcomes (upload exhaustion, evaluation
	// timeout, server rejection). None of them stop the session.
	OnError func(err error)
}

// Config holds retry and timeout tuning. Zero values take defaults.
type Config struct {
	UploadAttempts int
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	EvalTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.UploadAttempts == 0 {
		c.UploadAttempts = 3
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffCap == 0 {
		c.BackoffCap = 5 * time.Second
	}
	if c.EvalTimeout == 0 {
		c.EvalTimeout = 30 * time.Second
	}
	return c
}

// Pipeline owns answer delivery. In-flight submissions are never cancelled by
// session shutdown; they run on background contexts until done or exhausted.
type Pipeline struct {
	cfg      Config
	uploader Uploader
	eval     Evaluator
	ev       Events

	inflight sync.WaitGroup

	mu        sync.Mutex
	delivered map[string]bool
}

// NewPipeline constructs a pipeline.
func NewPipeline(cfg Config, up Uploader, eval Evaluator, ev Events) *Pipeline {
	return &Pipeline{
		cfg:       cfg.withDefaults(),
		uploader:  up,
		eval:      eval,
		ev:        ev,
		delivered: make(map[string]bool),
	}
}

// Dispatch runs Submit on a background goroutine and registers it as
// in-flight before returning, so a Drain that follows the call always sees
// the submission.
func (p *Pipeline) Dispatch(pkg interview.AnswerPackage) {
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		p.Submit(pkg)
	}()
}

// Drain blocks until every dispatched submission has finished, up to the
// given bound. Returns false when submissions were still running at the
// deadline.
func (p *Pipeline) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Submit takes ownership of the package and delivers it. The controller
// invokes this on its own goroutine and does not wait.
func (p *Pipeline) Submit(pkg interview.AnswerPackage) {
	ctx := context.Background()

	if !pkg.Video.Empty() && p.uploader != nil {
		ref, err := p.uploadWithRetry(ctx, pkg)
		if err != nil {
			// Degrade: the answer still goes out with an empty video ref.
			p.notifyError(err)
		} else {
			pkg.VideoRef = ref
		}
	}
	pkg.Video = interview.Blob{}

	evalCtx, cancel := context.WithTimeout(ctx, p.cfg.EvalTimeout)
	defer cancel()
	res, err := p.eval.SubmitAnswer(evalCtx, pkg)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			p.notifyError(&interview.EvaluationTimeoutError{QuestionID: pkg.QuestionID, After: p.cfg.EvalTimeout})
		} else {
			p.notifyError(&interview.SubmissionError{QuestionID: pkg.QuestionID, Cause: err})
		}
		return
	}
	p.Deliver(pkg.QuestionID, *res)
}

// Deliver hands an evaluation to the controller exactly once per question.
// Returns false when the question's result was already delivered.
func (p *Pipeline) Deliver(questionID string, ev interview.Evaluation) bool {
	p.mu.Lock()
	if p.delivered[questionID] {
		p.mu.Unlock()
		return false
	}
	p.delivered[questionID] = true
	cb := p.ev.OnResult
	p.mu.Unlock()
	if cb != nil {
		cb(questionID, ev)
	}
	return true
}

func (p *Pipeline) uploadWithRetry(ctx context.Context, pkg interview.AnswerPackage) (string, error) {
	key := fmt.Sprintf("answers/%s/%s.webm", pkg.QuestionID, uuid.NewString())
	contentType := pkg.Video.MIME
	if contentType == "" {
		contentType = "video/webm"
	}

	var lastErr error
	backoff := p.cfg.BackoffBase
	for attempt := 1; attempt <= p.cfg.UploadAttempts; attempt++ {
		ref, err := p.uploader.Upload(ctx, key, contentType, pkg.Video.Data)
		if err == nil {
			return ref, nil
		}
		lastErr = err
		log.Printf("submit: video upload attempt %d/%d for question %s failed: %v",
			attempt, p.cfg.UploadAttempts, pkg.QuestionID, err)
		if attempt == p.cfg.UploadAttempts {
			break
		}
		time.Sleep(backoff)
		backoff *= 2
		if backoff > p.cfg.BackoffCap {
			backoff = p.cfg.BackoffCap
		}
	}
	return "", &interview.UploadError{QuestionID: pkg.QuestionID, Attempts: p.cfg.UploadAttempts, Cause: lastErr}
}

func (p *Pipeline) notifyError(err error) {
	if p.ev.OnError != nil {
		p.ev.OnError(err)
		return
	}
	log.Printf("submit: %v", err)
}
