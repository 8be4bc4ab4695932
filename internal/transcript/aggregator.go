// Package transcript turns a stream of interim/final recognition results into
// one deduplicated, monotonically growing answer transcript.
package transcript

import (
	"strings"
	"sync"
)

const (
	// trailingWindowWords is how much finalized tail is kept for duplicate
	// suppression.
	trailingWindowWords = 10
	// compareWords bounds the leading-words comparison against the trailing
	// window when deciding whether a final chunk is an engine repeat.
	compareWords = 5
)

// completionPhrases end an answer when spoken in a final chunk.
var completionPhrases = []string{
	"i'm done",
	"im done",
	"i am done",
	"that's all",
	"thats all",
	"that is all",
	"i'm finished",
	"i am finished",
	"that's my answer",
	"nothing more to add",
}

// Result is one recognition result from the speech capability.
type Result struct {
	Index int
	Text  string
	Final bool
	Err   error
}

// Recognizer is the minimal interface for the streaming speech recognition
// capability. Implementations emit interim results repeatedly and a final
// result once per utterance segment.
type Recognizer interface {
	Results() <-chan Result
	Close() error
}

// Events lets the host react to transcript activity.
type Events struct {
	// OnActivity fires for interim results; it refreshes the speech clock so
	// the silence monitor does not intervene while the candidate is talking.
	OnActivity func()
	// OnCompletionPhrase fires when a final chunk contains a completion
	// phrase. The host schedules the answer stop after a grace delay.
	OnCompletionPhrase func(phrase string)
}

// Aggregator owns the per-answer transcript buffer. Reset must be called
// exactly once per answer, before recognition restarts; Freeze seals the
// buffer when the answer stops.
type Aggregator struct {
	ev Events

	mu        sync.Mutex
	finalized string
	trailing  []string
	consumed  map[int]struct{}
	interim   string
	frozen    bool
}

// NewAggregator constructs an empty aggregator.
func NewAggregator(ev Events) *Aggregator {
	return &Aggregator{ev: ev, consumed: make(map[int]struct{})}
}

// Ingest consumes one recognition result. Interim results update a
// display-only buffer; final results are deduplicated and appended.
func (a *Aggregator) Ingest(index int, text string, isFinal bool) {
	a.mu.Lock()
	if a.frozen {
		a.mu.Unlock()
		return
	}

	if !isFinal {
		a.interim = text
		cb := a.ev.OnActivity
		a.mu.Unlock()
		if cb != nil && strings.TrimSpace(text) != "" {
			cb()
		}
		return
	}

	if _, seen := a.consumed[index]; seen {
		a.mu.Unlock()
		return
	}
	a.consumed[index] = struct{}{}

	chunk := strings.Join(strings.Fields(text), " ")
	if chunk == "" {
		a.mu.Unlock()
		return
	}
	if a.isEngineRepeat(chunk) {
		a.mu.Unlock()
		return
	}

	if a.finalized == "" {
		a.finalized = chunk
	} else {
		a.finalized += " " + chunk
	}
	words := strings.Fields(a.finalized)
	if len(words) > trailingWindowWords {
		words = words[len(words)-trailingWindowWords:]
	}
	a.trailing = words
	a.interim = ""

	cbDone := a.ev.OnCompletionPhrase
	a.mu.Unlock()

	if cbDone != nil {
		if phrase, ok := containsCompletionPhrase(chunk); ok {
			cbDone(phrase)
		}
	}
}

// isEngineRepeat reports whether the leading words of chunk exactly match the
// trailing window of the already-finalized text. Recognition engines restart
// segments and re-emit the previous final; those repeats are discarded.
// Caller holds a.mu.
func (a *Aggregator) isEngineRepeat(chunk string) bool {
	lead := strings.Fields(strings.ToLower(chunk))
	n := compareWords
	if len(lead) < n {
		n = len(lead)
	}
	if len(a.trailing) < n {
		n = len(a.trailing)
	}
	if n == 0 {
		return false
	}
	tail := a.trailing[len(a.trailing)-n:]
	for i := 0; i < n; i++ {
		if strings.ToLower(tail[i]) != lead[i] {
			return false
		}
	}
	return true
}

func containsCompletionPhrase(chunk string) (string, bool) {
	lower := strings.ToLower(chunk)
	for _, p := range completionPhrases {
		if strings.Contains(lower, p) {
			return p, true
		}
	}
	return "", false
}

// Final returns the finalized transcript so far.
func (a *Aggregator) Final() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.finalized
}

// Interim returns the display-only buffer of the in-flight segment.
func (a *Aggregator) Interim() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.interim
}

// Freeze seals the buffer and returns the finalized transcript. Results
// ingested after Freeze are dropped until the next Reset.
func (a *Aggregator) Freeze() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.frozen = true
	a.interim = ""
	return a.finalized
}

// Reset clears all state for a new answer.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.finalized = ""
	a.trailing = nil
	a.consumed = make(map[int]struct{})
	a.interim = ""
	a.frozen = false
	a.mu.Unlock()
}
