package interview

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoSpeech marks a transient recognizer result carrying no usable speech.
// Callers ignore it.
var ErrNoSpeech = errors.New("no speech detected")

// InitializationError means session/transport setup failed and no cached
// question was available to degrade to. Fatal for the whole session.
type InitializationError struct {
	Cause error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("session initialization failed: %v", e.Cause)
}
func (e *InitializationError) Unwrap() error { return e.Cause }

// DeviceError means the capture device could not be acquired or failed hard.
// The session cannot proceed.
type DeviceError struct {
	Cause error
}

func (e *DeviceError) Error() string { return fmt.Sprintf("capture device: %v", e.Cause) }
func (e *DeviceError) Unwrap() error { return e.Cause }

// SynthesisError means question speech playback failed or a synthesis
// watchdog fired. Recovered by a timed fallback that still unlocks answering.
type SynthesisError struct {
	QuestionID string
	Cause      error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("speech synthesis for question %s: %v", e.QuestionID, e.Cause)
}
func (e *SynthesisError) Unwrap() error { return e.Cause }

// UploadError means the video upload failed after all retries. The answer is
// submitted with an empty video reference instead of being dropped.
type UploadError struct {
	QuestionID string
	Attempts   int
	Cause      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("video upload for question %s failed after %d attempts: %v", e.QuestionID, e.Attempts, e.Cause)
}
func (e *UploadError) Unwrap() error { return e.Cause }

// EvaluationTimeoutError means the evaluation service did not answer within
// the submission deadline. Reported to the user; the session continues.
type EvaluationTimeoutError struct {
	QuestionID string
	After      time.Duration
}

func (e *EvaluationTimeoutError) Error() string {
	return fmt.Sprintf("no evaluation response for question %s within %s", e.QuestionID, e.After)
}

// SubmissionError is an unexpected server rejection of an answer. It does not
// roll back local state.
type SubmissionError struct {
	QuestionID string
	Cause      error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("answer submission for question %s rejected: %v", e.QuestionID, e.Cause)
}
func (e *SubmissionError) Unwrap() error { return e.Cause }
