package protocol

import (
	"time"

	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/interview"
)

// Event names exchanged with the orchestration/evaluation service.
const (
	evJoinInterview     = "join-interview"
	evStartSession      = "start-gemini-session"
	evAudioChunk        = "audio-chunk"
	evVADDetected       = "vad-detected"
	evTranscriptChunk   = "transcript-chunk"
	evSilenceDetected   = "silence-detected"
	evQuestionStarted   = "question-started"
	evAnswerSubmit      = "gemini-audio"
	evSessionReady      = "gemini-session-ready"
	evResponse          = "gemini-response"
	evFollowupReady     = "followup-question-ready"
	evBotIntervention   = "bot-intervention"
	evBotDeflection     = "bot-deflection"
	evBotAcknowledgment = "bot-acknowledgment"
	evInterviewComplete = "interview-complete"
)

// envelope is the wire frame: an event name plus its JSON payload.
type envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

type joinPayload struct {
	InterviewID string `json:"interviewId"`
	UserRole    string `json:"userRole"`
}

type startSessionPayload struct {
	InterviewID string `json:"interviewId"`
	CandidateID string `json:"candidateId"`
}

type audioChunkPayload struct {
	SessionID  string `json:"sessionId"`
	AudioData  string `json:"audioData"` // base64 PCM16
	SampleRate int    `json:"sampleRate"`
	Timestamp  int64  `json:"timestamp"`
}

type vadPayload struct {
	SessionID  string  `json:"sessionId"`
	IsSpeaking bool    `json:"isSpeaking"`
	Energy     float64 `json:"energy"`
	Timestamp  int64   `json:"timestamp"`
}

type transcriptChunkPayload struct {
	SessionID       string `json:"sessionId"`
	QuestionID      string `json:"questionId"`
	TranscriptChunk string `json:"transcriptChunk"`
	IsFinal         bool   `json:"isFinal"`
	Timestamp       int64  `json:"timestamp"`
}

type silencePayload struct {
	SessionID         string `json:"sessionId"`
	QuestionID        string `json:"questionId"`
	SilenceDuration   int64  `json:"silenceDuration"` // ms
	InterventionLevel string `json:"interventionLevel"`
}

type questionStartedPayload struct {
	SessionID    string `json:"sessionId"`
	QuestionID   string `json:"questionId"`
	QuestionText string `json:"questionText"`
}

type timestampsWire struct {
	QuestionStart *time.Time `json:"questionStart,omitempty"`
	QuestionEnd   *time.Time `json:"questionEnd,omitempty"`
	AnswerStart   *time.Time `json:"answerStart,omitempty"`
	AnswerEnd     *time.Time `json:"answerEnd,omitempty"`
}

type answerSubmitPayload struct {
	SessionID   string         `json:"sessionId"`
	QuestionID  string         `json:"questionId"`
	VideoData   string         `json:"videoData,omitempty"`
	Transcript  string         `json:"transcript"`
	ImageFrames []string       `json:"imageFrames,omitempty"` // base64
	Timestamps  timestampsWire `json:"timestamps"`
}

type questionWire struct {
	ID               string   `json:"id"`
	Text             string   `json:"text"`
	Kind             string   `json:"kind,omitempty"`
	Order            int      `json:"order"`
	ParentQuestionID string   `json:"parentQuestionId,omitempty"`
	SkillsTargeted   []string `json:"skillsTargeted,omitempty"`
}

func (q questionWire) toQuestion() interview.Question {
	kind := interview.QuestionKind(q.Kind)
	if kind == "" {
		kind = interview.KindPrimary
	}
	return interview.Question{
		ID:               q.ID,
		Text:             q.Text,
		Kind:             kind,
		Order:            q.Order,
		ParentQuestionID: q.ParentQuestionID,
		SkillsTargeted:   q.SkillsTargeted,
	}
}

type sessionReadyPayload struct {
	SessionID     string        `json:"sessionId"`
	FirstQuestion *questionWire `json:"firstQuestion,omitempty"`
	Error         string        `json:"error,omitempty"`
}

type responsePayload struct {
	NextAction   string        `json:"next_action"`
	NextText     string        `json:"next_text,omitempty"`
	NextQuestion *questionWire `json:"nextQuestion,omitempty"`
	Transcript   string        `json:"transcript,omitempty"`
	QuestionID   string        `json:"question_id"`
}

func (r responsePayload) toEvaluation() interview.Evaluation {
	ev := interview.Evaluation{
		QuestionID: r.QuestionID,
		NextAction: interview.NextAction(r.NextAction),
		NextText:   r.NextText,
		Transcript: r.Transcript,
	}
	if r.NextQuestion != nil {
		q := r.NextQuestion.toQuestion()
		ev.NextQuestion = &q
	}
	return ev
}

type followupReadyPayload struct {
	FollowupQuestion questionWire `json:"followupQuestion"`
}

type botMessagePayload struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}
