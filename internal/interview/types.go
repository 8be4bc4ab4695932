// Package interview holds the data model shared by the live interview
// orchestrator components: the session, its questions, and the artifacts
// produced while a candidate answers.
package interview

import "time"

// Status is the lifecycle state of one live interview attempt.
type Status string

const (
	StatusLoading    Status = "loading"
	StatusReady      Status = "ready"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// ConversationState tracks who is speaking right now. It is derived from
// synthesis and VAD events only and is never persisted. At most one of
// bot_speaking/candidate_speaking holds at a time.
type ConversationState string

const (
	StateIdle              ConversationState = "idle"
	StateBotSpeaking       ConversationState = "bot_speaking"
	StateListening         ConversationState = "listening"
	StateCandidateSpeaking ConversationState = "candidate_speaking"
)

// Session is one candidate's live attempt at an interview template.
// It is owned exclusively by the session controller.
type Session struct {
	ID                   string            `json:"sessionId"`
	CandidateInterviewID string            `json:"candidateInterviewId"`
	Status               Status            `json:"status"`
	StartedAt            time.Time         `json:"startTimestamp"`
	DurationBudget       time.Duration     `json:"durationBudgetNs"`
	Conversation         ConversationState `json:"conversationState"`
}

// QuestionKind distinguishes scripted questions from locally synthesized
// followups.
type QuestionKind string

const (
	KindPrimary  QuestionKind = "primary"
	KindFollowup QuestionKind = "followup"
)

// Timestamps are the per-question boundary marks. Each is nil until reached.
type Timestamps struct {
	QuestionStart *time.Time `json:"questionStart,omitempty"`
	QuestionEnd   *time.Time `json:"questionEnd,omitempty"`
	AnswerStart   *time.Time `json:"answerStart,omitempty"`
	AnswerEnd     *time.Time `json:"answerEnd,omitempty"`
}

// Question is one entry of a session's append-only question list.
type Question struct {
	ID               string       `json:"id"`
	Text             string       `json:"text"`
	Kind             QuestionKind `json:"kind"`
	Order            int          `json:"order"`
	ParentQuestionID string       `json:"parentQuestionId,omitempty"`
	SkillsTargeted   []string     `json:"skillsTargeted,omitempty"`
	Timestamps       Timestamps   `json:"timestamps"`
}

// InterventionLevel is the escalating severity of a silence intervention.
type InterventionLevel int

const (
	LevelThinkingCheck InterventionLevel = iota + 1
	LevelSuggestMoveOn
	LevelForceMove
)

func (l InterventionLevel) String() string {
	switch l {
	case LevelThinkingCheck:
		return "thinking_check"
	case LevelSuggestMoveOn:
		return "suggest_move_on"
	case LevelForceMove:
		return "force_move"
	}
	return "unknown"
}

// InterventionRecord marks one emitted escalation. Per answer cycle there is
// at most one record per level and levels appear in strictly increasing order.
type InterventionRecord struct {
	Level     InterventionLevel
	EmittedAt time.Time
}

// CapturedFrame is a single sampled video frame.
type CapturedFrame struct {
	Timestamp time.Time
	Image     []byte
}

// Blob is an opaque recorded media payload.
type Blob struct {
	Data []byte
	MIME string
}

// Empty reports whether the blob carries no data.
func (b Blob) Empty() bool { return len(b.Data) == 0 }

// AnswerPackage bundles everything produced for one answered question.
// It is created atomically when the candidate stops answering; ownership then
// transfers to the submission pipeline, which either delivers it or exhausts
// its retry budget. VideoRef is filled in by the pipeline after upload and
// may stay empty when the upload is exhausted.
type AnswerPackage struct {
	QuestionID string
	Transcript string
	Video      Blob
	VideoRef   string
	Frames     []CapturedFrame
	Timestamps Timestamps
}

// NextAction is the server's directive after evaluating an answer.
type NextAction string

const (
	ActionAskFollowup  NextAction = "ask_followup"
	ActionNextQuestion NextAction = "next_question"
	ActionEndInterview NextAction = "end_interview"
)

// Evaluation is the evaluation service's response for one answer.
type Evaluation struct {
	QuestionID   string
	NextAction   NextAction
	NextText     string
	NextQuestion *Question
	Transcript   string
}

// SessionReady is the server's acknowledgment that a live session exists and
// the first question is available.
type SessionReady struct {
	SessionID     string
	FirstQuestion Question
}

// BotMessage is a server-pushed conversational nudge (intervention,
// deflection or acknowledgment).
type BotMessage struct {
	Message string
	Type    string
}
