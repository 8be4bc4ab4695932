package vad

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func frame(amplitude int16, samples int) []byte {
	b := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(amplitude))
	}
	return b
}

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Fatalf("rms(nil) = %f", got)
	}
	if got := RMS(frame(0, 100)); got != 0 {
		t.Fatalf("rms(silence) = %f", got)
	}
	got := RMS(frame(1000, 100))
	if math.Abs(got-1000) > 0.001 {
		t.Fatalf("rms(const 1000) = %f", got)
	}
}

func TestEngine_ThresholdConvergesMonotonically(t *testing.T) {
	e := NewEngine(Config{InitialThreshold: 300}, Events{})
	prev := e.Threshold()
	// Sustained quiet-but-audible ambience pulls the threshold down, never up.
	for i := 0; i < 200; i++ {
		e.ObserveEnergy(50)
		cur := e.Threshold()
		if cur > prev {
			t.Fatalf("threshold rose from %f to %f at step %d", prev, cur, i)
		}
		prev = cur
	}
	if prev >= 300 {
		t.Fatalf("threshold did not converge, still %f", prev)
	}
	// Dead frames below the floor leave the threshold untouched.
	before := e.Threshold()
	e.ObserveEnergy(0)
	if e.Threshold() != before {
		t.Fatalf("sub-floor energy moved the threshold")
	}
}

func TestEngine_EdgeTriggeredTransitions(t *testing.T) {
	var transitions []bool
	e := NewEngine(Config{InitialThreshold: 300}, Events{
		OnTransition: func(speaking bool, energy float64) {
			transitions = append(transitions, speaking)
		},
	})
	// Many loud frames: exactly one speaking=true edge.
	for i := 0; i < 10; i++ {
		if !e.ObserveEnergy(5000) {
			t.Fatalf("loud frame %d not classified as speech", i)
		}
	}
	// Many quiet frames: exactly one speaking=false edge.
	for i := 0; i < 10; i++ {
		e.ObserveEnergy(10)
	}
	if len(transitions) != 2 || !transitions[0] || transitions[1] {
		t.Fatalf("transitions = %v, want [true false]", transitions)
	}
}

func TestEngine_LastSpeechStampedOnSpeakingStart(t *testing.T) {
	e := NewEngine(Config{}, Events{})
	if !e.LastSpeechTime().IsZero() {
		t.Fatalf("expected zero last-speech before any speech")
	}
	before := time.Now()
	e.ObserveEnergy(5000)
	stamp := e.LastSpeechTime()
	if stamp.Before(before) {
		t.Fatalf("last speech %v predates the speech edge", stamp)
	}
	// Continued speech does not restamp; the edge does.
	e.ObserveEnergy(5000)
	if !e.LastSpeechTime().Equal(stamp) {
		t.Fatalf("sustained speech restamped last-speech")
	}
}

func TestEngine_ResetKeepsLearnedThreshold(t *testing.T) {
	e := NewEngine(Config{InitialThreshold: 300}, Events{})
	for i := 0; i < 100; i++ {
		e.ObserveEnergy(50)
	}
	e.ObserveEnergy(5000)
	if !e.Speaking() {
		t.Fatalf("expected speaking before reset")
	}
	learned := e.Threshold()
	e.Reset()
	if e.Speaking() {
		t.Fatalf("reset must clear speaking state")
	}
	if e.Threshold() != learned {
		t.Fatalf("reset discarded the learned threshold: %f vs %f", e.Threshold(), learned)
	}
}

func TestEngine_SampleClassifiesPCM(t *testing.T) {
	e := NewEngine(Config{}, Events{})
	if e.Sample(frame(0, 160)) {
		t.Fatalf("silence classified as speech")
	}
	if !e.Sample(frame(12000, 160)) {
		t.Fatalf("loud frame not classified as speech")
	}
}
