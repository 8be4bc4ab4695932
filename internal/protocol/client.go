// Package protocol is the bidirectional message contract with the remote
// orchestration/evaluation service: session init, audio streaming, question
// delivery and interventions over a single websocket.
package protocol

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/interview"
)

// Client is the websocket session client. Event delivery is channel-based;
// outbound audio goes through a buffered queue that drops on overflow so a
// slow link never stalls capture.
type Client struct {
	url   string
	token string

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	sessionID string
	cached    []interview.Question

	writeMu sync.Mutex

	stopCh  chan struct{}
	audioCh chan audioChunkPayload

	readyCh    chan interview.SessionReady
	responseCh chan interview.Evaluation
	followupCh chan interview.Question
	botCh      chan interview.BotMessage
	completeCh chan struct{}

	waiterMu sync.Mutex
	waiters  map[string]chan interview.Evaluation
}

// NewClient constructs a disconnected client for the given websocket URL.
func NewClient(url, token string) *Client {
	return &Client{
		url:        url,
		token:      token,
		stopCh:     make(chan struct{}),
		audioCh:    make(chan audioChunkPayload, 256),
		readyCh:    make(chan interview.SessionReady, 1),
		responseCh: make(chan interview.Evaluation, 8),
		followupCh: make(chan interview.Question, 4),
		botCh:      make(chan interview.BotMessage, 8),
		completeCh: make(chan struct{}, 1),
		waiters:    make(map[string]chan interview.Evaluation),
	}
}

// Connect dials the service and starts the reader and audio sender.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}
	if c.url == "" {
		return fmt.Errorf("session service URL is empty")
	}

	headers := http.Header{}
	if c.token != "" {
		headers.Set("Authorization", "Bearer "+c.token)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, c.url, headers)
	if err != nil {
		if resp != nil {
			log.Printf("protocol: connection failed with status %d", resp.StatusCode)
		}
		return fmt.Errorf("connect session service: %w", err)
	}
	c.conn = conn
	c.connected = true

	go c.readLoop()
	go c.sendAudioLoop()
	return nil
}

// SetSessionID pins the server-assigned session id used on outbound events.
func (c *Client) SetSessionID(id string) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

func (c *Client) currentSessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// SetCachedQuestions stores a question list used as the initialization
// fallback when the transport drops before session-ready.
func (c *Client) SetCachedQuestions(qs []interview.Question) {
	c.mu.Lock()
	c.cached = append([]interview.Question(nil), qs...)
	c.mu.Unlock()
}

// CachedQuestions returns the fallback question list, if any.
func (c *Client) CachedQuestions() []interview.Question {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]interview.Question(nil), c.cached...)
}

// Join announces this participant on the interview room.
func (c *Client) Join(interviewID, userRole string) error {
	return c.send(evJoinInterview, joinPayload{InterviewID: interviewID, UserRole: userRole})
}

// StartSession asks the server to open a live evaluation session. The server
// replies with session-ready carrying the first question.
func (c *Client) StartSession(interviewID, candidateID string) error {
	return c.send(evStartSession, startSessionPayload{InterviewID: interviewID, CandidateID: candidateID})
}

// SendAudioChunk queues one PCM16 frame. Audio is best-effort: when the queue
// is full the frame is dropped rather than blocking the capture path.
func (c *Client) SendAudioChunk(pcm []byte, sampleRate int, ts time.Time) {
	p := audioChunkPayload{
		SessionID:  c.currentSessionID(),
		AudioData:  base64.StdEncoding.EncodeToString(pcm),
		SampleRate: sampleRate,
		Timestamp:  ts.UnixMilli(),
	}
	select {
	case c.audioCh <- p:
	default:
		log.Println("protocol: audio queue full, dropping frame")
	}
}

// SendVAD forwards a speaking-state edge.
func (c *Client) SendVAD(speaking bool, energy float64, ts time.Time) error {
	return c.send(evVADDetected, vadPayload{
		SessionID:  c.currentSessionID(),
		IsSpeaking: speaking,
		Energy:     energy,
		Timestamp:  ts.UnixMilli(),
	})
}

// SendTranscriptChunk forwards one recognition result.
func (c *Client) SendTranscriptChunk(questionID, text string, isFinal bool, ts time.Time) error {
	return c.send(evTranscriptChunk, transcriptChunkPayload{
		SessionID:       c.currentSessionID(),
		QuestionID:      questionID,
		TranscriptChunk: text,
		IsFinal:         isFinal,
		Timestamp:       ts.UnixMilli(),
	})
}

// SendSilence forwards an escalation event.
func (c *Client) SendSilence(questionID string, silence time.Duration, level interview.InterventionLevel) error {
	return c.send(evSilenceDetected, silencePayload{
		SessionID:         c.currentSessionID(),
		QuestionID:        questionID,
		SilenceDuration:   silence.Milliseconds(),
		InterventionLevel: level.String(),
	})
}

// QuestionStarted notifies the server that a question is being spoken.
func (c *Client) QuestionStarted(questionID, text string) error {
	return c.send(evQuestionStarted, questionStartedPayload{
		SessionID:    c.currentSessionID(),
		QuestionID:   questionID,
		QuestionText: text,
	})
}

// SubmitAnswer sends the packaged answer and waits for the matching
// evaluation under ctx. Responses surfaced here are not re-delivered on the
// Responses stream.
func (c *Client) SubmitAnswer(ctx context.Context, pkg interview.AnswerPackage) (*interview.Evaluation, error) {
	frames := make([]string, 0, len(pkg.Frames))
	for _, f := range pkg.Frames {
		frames = append(frames, base64.StdEncoding.EncodeToString(f.Image))
	}
	payload := answerSubmitPayload{
		SessionID:   c.currentSessionID(),
		QuestionID:  pkg.QuestionID,
		VideoData:   pkg.VideoRef,
		Transcript:  pkg.Transcript,
		ImageFrames: frames,
		Timestamps: timestampsWire{
			QuestionStart: pkg.Timestamps.QuestionStart,
			QuestionEnd:   pkg.Timestamps.QuestionEnd,
			AnswerStart:   pkg.Timestamps.AnswerStart,
			AnswerEnd:     pkg.Timestamps.AnswerEnd,
		},
	}

	waiter := make(chan interview.Evaluation, 1)
	c.waiterMu.Lock()
	c.waiters[pkg.QuestionID] = waiter
	c.waiterMu.Unlock()
	defer func() {
		c.waiterMu.Lock()
		delete(c.waiters, pkg.QuestionID)
		c.waiterMu.Unlock()
	}()

	if err := c.send(evAnswerSubmit, payload); err != nil {
		return nil, err
	}
	select {
	case ev := <-waiter:
		return &ev, nil
	case <-c.stopCh:
		return nil, fmt.Errorf("session transport closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ready delivers the session-ready acknowledgment.
func (c *Client) Ready() <-chan interview.SessionReady { return c.readyCh }

// Responses delivers unsolicited evaluation responses.
func (c *Client) Responses() <-chan interview.Evaluation { return c.responseCh }

// Followups delivers server-synthesized followup questions.
func (c *Client) Followups() <-chan interview.Question { return c.followupCh }

// Bot delivers conversational nudges.
func (c *Client) Bot() <-chan interview.BotMessage { return c.botCh }

// Complete signals the server ended the interview.
func (c *Client) Complete() <-chan struct{} { return c.completeCh }

// Close tears the transport down. Event channels stay open; pending readers
// unblock via stopCh-aware call sites.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	c.connected = false
	close(c.stopCh)
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = c.conn.Close()
		c.conn = nil
	}
	log.Println("protocol: session transport closed")
	return nil
}

func (c *Client) send(event string, data interface{}) error {
	c.mu.RLock()
	conn := c.conn
	ok := c.connected
	c.mu.RUnlock()
	if !ok || conn == nil {
		return fmt.Errorf("not connected to session service")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(envelope{Event: event, Data: data})
}

func (c *Client) sendAudioLoop() {
	for {
		select {
		case <-c.stopCh:
			return
		case p := <-c.audioCh:
			if err := c.send(evAudioChunk, p); err != nil {
				log.Printf("protocol: audio send error: %v", err)
				return
			}
		}
	}
}

func (c *Client) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("protocol: recovered from panic in readLoop: %v", r)
		}
	}()
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			log.Printf("protocol: read error: %v", err)
			return
		}
		c.dispatch(message)
	}
}

func (c *Client) dispatch(message []byte) {
	var env struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(message, &env); err != nil {
		log.Printf("protocol: malformed frame: %v", err)
		return
	}

	switch env.Event {
	case evSessionReady:
		var p sessionReadyPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			log.Printf("protocol: bad session-ready payload: %v", err)
			return
		}
		if p.Error != "" {
			log.Printf("protocol: session-ready carried error: %s", p.Error)
			return
		}
		ready := interview.SessionReady{SessionID: p.SessionID}
		if p.FirstQuestion != nil {
			ready.FirstQuestion = p.FirstQuestion.toQuestion()
		}
		select {
		case c.readyCh <- ready:
		default:
		}

	case evResponse:
		var p responsePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			log.Printf("protocol: bad gemini-response payload: %v", err)
			return
		}
		ev := p.toEvaluation()
		c.waiterMu.Lock()
		waiter := c.waiters[ev.QuestionID]
		c.waiterMu.Unlock()
		if waiter != nil {
			select {
			case waiter <- ev:
				return
			default:
			}
		}
		select {
		case c.responseCh <- ev:
		default:
			log.Println("protocol: response queue full, dropping evaluation")
		}

	case evFollowupReady:
		var p followupReadyPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			log.Printf("protocol: bad followup payload: %v", err)
			return
		}
		q := p.FollowupQuestion.toQuestion()
		q.Kind = interview.KindFollowup
		select {
		case c.followupCh <- q:
		default:
		}

	case evBotIntervention, evBotDeflection, evBotAcknowledgment:
		var p botMessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			log.Printf("protocol: bad bot message payload: %v", err)
			return
		}
		select {
		case c.botCh <- interview.BotMessage{Message: p.Message, Type: p.Type}:
		default:
		}

	case evInterviewComplete:
		select {
		case c.completeCh <- struct{}{}:
		default:
		}

	default:
		log.Printf("protocol: unknown event %q", env.Event)
	}
}
