// Package vad classifies live audio frames as speech or non-speech with an
// adaptive energy threshold.
package vad

import (
	"encoding/binary"
	"math"
	"sync"
	"time"
)

// Config holds the detector tuning.
type Config struct {
	SampleRate int
	// InitialThreshold seeds the adaptive threshold before any audio is seen.
	InitialThreshold float64
	// Floor is the minimal energy required for a frame to influence the
	// adaptive threshold; dead frames do not drag it to zero.
	Floor float64
	// SpeakFactor scales the threshold into the speech decision boundary.
	SpeakFactor float64
}

// Default returns the tuning used for 16kHz mono headset audio.
func Default() Config {
	return Config{
		SampleRate:       16000,
		InitialThreshold: 300.0,
		Floor:            12.0,
		SpeakFactor:      1.5,
	}
}

// Events lets the host react to speaking-state edges. Transitions are
// edge-triggered: OnTransition fires only when the boolean state changes,
// never per sample.
type Events struct {
	OnTransition func(speaking bool, energy float64)
}

// Engine turns an audio energy signal into a speaking/not-speaking state.
// The threshold tracks ambient noise via an exponential moving average so a
// quiet room slowly lowers the bar for detecting speech.
type Engine struct {
	cfg Config
	ev  Events
	now func() time.Time

	mu         sync.Mutex
	threshold  float64
	speaking   bool
	lastSpeech time.Time
}

// NewEngine constructs a detector. Zero-valued config fields take defaults.
func NewEngine(cfg Config, ev Events) *Engine {
	def := Default()
	if cfg.SampleRate == 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.InitialThreshold == 0 {
		cfg.InitialThreshold = def.InitialThreshold
	}
	if cfg.Floor == 0 {
		cfg.Floor = def.Floor
	}
	if cfg.SpeakFactor == 0 {
		cfg.SpeakFactor = def.SpeakFactor
	}
	return &Engine{cfg: cfg, ev: ev, now: time.Now, threshold: cfg.InitialThreshold}
}

// RMS computes root-mean-square energy of a PCM16LE mono buffer.
func RMS(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}
	var sum float64
	n := 0
	for i := 0; i+1 < len(pcm); i += 2 {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i : i+2])))
		sum += v * v
		n++
	}
	return math.Sqrt(sum / float64(n))
}

// Sample feeds one PCM16LE frame and returns the current speaking state.
func (e *Engine) Sample(pcm []byte) bool { return e.ObserveEnergy(RMS(pcm)) }

// ObserveEnergy feeds a precomputed RMS energy value.
func (e *Engine) ObserveEnergy(energy float64) bool {
	e.mu.Lock()
	if energy > e.cfg.Floor {
		e.threshold = e.threshold*0.99 + energy*0.01
	}
	speaking := energy >= e.threshold*e.cfg.SpeakFactor
	changed := speaking != e.speaking
	e.speaking = speaking
	if changed && speaking {
		e.lastSpeech = e.now()
	}
	cb := e.ev.OnTransition
	e.mu.Unlock()
	if changed && cb != nil {
		cb(speaking, energy)
	}
	return speaking
}

// Speaking reports the current edge state.
func (e *Engine) Speaking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speaking
}

// LastSpeechTime is the moment speech was last detected to start. The silence
// monitor keys off this to suppress false interventions.
func (e *Engine) LastSpeechTime() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSpeech
}

// Threshold exposes the current adaptive threshold.
func (e *Engine) Threshold() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.threshold
}

// Reset clears the speaking state for a new answer cycle. The learned
// ambient threshold is kept; the room does not change between questions.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.speaking = false
	e.mu.Unlock()
}
