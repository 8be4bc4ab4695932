package capture

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/interview"
)

type stubRecorder struct {
	blob    interview.Blob
	flushIn time.Duration
	started int32
}

func (r *stubRecorder) Start() error {
	atomic.AddInt32(&r.started, 1)
	return nil
}

func (r *stubRecorder) Stop() (<-chan interview.Blob, error) {
	ch := make(chan interview.Blob, 1)
	go func() {
		time.Sleep(r.flushIn)
		ch <- r.blob
	}()
	return ch, nil
}

type stubDevice struct {
	frames    chan []byte
	recorders []*stubRecorder
	grabErr   error
	grabs     int32
	flushIn   time.Duration
}

func (d *stubDevice) AudioFrames() <-chan []byte { return d.frames }

func (d *stubDevice) GrabFrame(ctx context.Context) (interview.CapturedFrame, error) {
	n := atomic.AddInt32(&d.grabs, 1)
	if d.grabErr != nil {
		return interview.CapturedFrame{}, d.grabErr
	}
	return interview.CapturedFrame{Timestamp: time.Now(), Image: []byte{byte(n)}}, nil
}

func (d *stubDevice) NewRecorder(scope Scope) (Recorder, error) {
	rec := &stubRecorder{
		blob:    interview.Blob{Data: []byte(scope), MIME: "video/webm"},
		flushIn: d.flushIn,
	}
	d.recorders = append(d.recorders, rec)
	return rec, nil
}

func (d *stubDevice) Close() error { return nil }

func TestManager_QuestionCycleProducesBlobAndFrames(t *testing.T) {
	dev := &stubDevice{}
	m := NewManager(Config{FrameInterval: 10 * time.Millisecond, FlushWait: 200 * time.Millisecond}, dev)

	ctx := context.Background()
	if err := m.OnQuestionSpeechEnd(ctx, "q1"); err != nil {
		t.Fatalf("question start: %v", err)
	}
	time.Sleep(35 * time.Millisecond)
	blob, frames, err := m.OnAnswerStop(ctx)
	if err != nil {
		t.Fatalf("answer stop: %v", err)
	}
	if string(blob.Data) != "question" {
		t.Fatalf("blob = %q", blob.Data)
	}
	// Immediate frame + sampled frames + final frame.
	if len(frames) < 3 {
		t.Fatalf("frames = %d, want at least 3", len(frames))
	}
	if len(dev.recorders) != 1 || atomic.LoadInt32(&dev.recorders[0].started) != 1 {
		t.Fatalf("recorder not started exactly once")
	}
}

func TestManager_FlushWaitIsBounded(t *testing.T) {
	dev := &stubDevice{flushIn: time.Hour}
	m := NewManager(Config{FlushWait: 30 * time.Millisecond}, dev)

	ctx := context.Background()
	if err := m.OnQuestionSpeechEnd(ctx, "q1"); err != nil {
		t.Fatalf("question start: %v", err)
	}
	start := time.Now()
	blob, _, err := m.OnAnswerStop(ctx)
	if err != nil {
		t.Fatalf("answer stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("flush wait not bounded, took %s", elapsed)
	}
	if !blob.Empty() {
		t.Fatalf("expected empty blob on flush timeout")
	}
}

func TestManager_FrameGrabFailuresAreSkipped(t *testing.T) {
	dev := &stubDevice{grabErr: errors.New("camera gone")}
	m := NewManager(Config{FlushWait: 50 * time.Millisecond}, dev)

	ctx := context.Background()
	if err := m.OnQuestionSpeechEnd(ctx, "q1"); err != nil {
		t.Fatalf("question start: %v", err)
	}
	_, frames, err := m.OnAnswerStop(ctx)
	if err != nil {
		t.Fatalf("answer stop: %v", err)
	}
	if len(frames) != 0 {
		t.Fatalf("frames = %d, want 0 when every grab fails", len(frames))
	}
}

func TestManager_SessionRecordingIndependentOfQuestions(t *testing.T) {
	dev := &stubDevice{}
	m := NewManager(Config{FlushWait: 100 * time.Millisecond}, dev)

	if err := m.StartSession(); err != nil {
		t.Fatalf("start session: %v", err)
	}
	ctx := context.Background()
	if err := m.OnQuestionSpeechEnd(ctx, "q1"); err != nil {
		t.Fatalf("question start: %v", err)
	}
	if _, _, err := m.OnAnswerStop(ctx); err != nil {
		t.Fatalf("answer stop: %v", err)
	}
	blob, err := m.StopSession(ctx)
	if err != nil {
		t.Fatalf("stop session: %v", err)
	}
	if string(blob.Data) != "session" {
		t.Fatalf("session blob = %q", blob.Data)
	}
}

func TestManager_SecondQuestionStartWhileActiveFails(t *testing.T) {
	dev := &stubDevice{}
	m := NewManager(Config{}, dev)
	ctx := context.Background()
	if err := m.OnQuestionSpeechEnd(ctx, "q1"); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := m.OnQuestionSpeechEnd(ctx, "q2"); err == nil {
		t.Fatalf("expected error starting second question recording while active")
	}
	_, _, _ = m.OnAnswerStop(ctx)
}

func TestSubsample(t *testing.T) {
	mk := func(n int) []interview.CapturedFrame {
		out := make([]interview.CapturedFrame, n)
		for i := range out {
			out[i] = interview.CapturedFrame{Image: []byte{byte(i)}}
		}
		return out
	}

	if got := Subsample(mk(4), 10); len(got) != 4 {
		t.Fatalf("under-cap subsample resized: %d", len(got))
	}

	got := Subsample(mk(25), 10)
	if len(got) != 10 {
		t.Fatalf("len = %d, want 10", len(got))
	}
	if got[0].Image[0] != 0 {
		t.Fatalf("first frame not preserved: %d", got[0].Image[0])
	}
	if got[9].Image[0] != 24 {
		t.Fatalf("last frame not preserved: %d", got[9].Image[0])
	}
	for i := 1; i < len(got); i++ {
		if got[i].Image[0] <= got[i-1].Image[0] {
			t.Fatalf("subsample not strictly ordered at %d: %v", i, got)
		}
	}

	if got := Subsample(mk(5), 1); len(got) != 1 || got[0].Image[0] != 0 {
		t.Fatalf("max=1 subsample = %v", got)
	}

	if got := Subsample(nil, 10); len(got) != 0 {
		t.Fatalf("nil input produced frames")
	}
}
