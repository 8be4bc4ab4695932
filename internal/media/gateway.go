// Package media bridges the candidate's browser to the interview controller
// over a single websocket: microphone PCM and camera frames flow in, bot
// speech flows out, and recorder lifecycle is driven remotely.
//
// Wire format: binary messages carry raw PCM16LE mono audio (16kHz inbound
// from the microphone, 48kHz outbound bot speech). Text messages carry a JSON
// envelope for everything else.
package media

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/capture"
	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/interview"
	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/transcript"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin: func(r *http.Request) bool {
		// Allow any origin; the interview token gates access upstream.
		return true
	},
}

// message is the JSON envelope for non-audio traffic in both directions.
// Types from the browser: "frame", "chunk", "transcript", "bye".
// Types to the browser: "grab-frame", "recorder-start", "recorder-stop",
// "audio-end", "audio-reset", "error".
type message struct {
	Type string `json:"type"`

	// grab-frame / frame
	RequestID string `json:"requestId,omitempty"`
	Image     string `json:"image,omitempty"`

	// recorder-start / recorder-stop / chunk
	RecorderID string `json:"recorderId,omitempty"`
	Scope      string `json:"scope,omitempty"`
	Data       string `json:"data,omitempty"`
	MIME       string `json:"mime,omitempty"`
	Final      bool   `json:"final,omitempty"`

	// transcript (browser speech recognition results)
	ResultIndex int    `json:"resultIndex,omitempty"`
	Text        string `json:"text,omitempty"`
	IsFinal     bool   `json:"isFinal,omitempty"`
}

// Gateway adapts one browser websocket into the controller's media
// capabilities. It satisfies capture.Device and the controller's audio sink.
type Gateway struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	audioCh   chan []byte
	resultsCh chan transcript.Result
	stopCh    chan struct{}
	once      sync.Once

	mu        sync.Mutex
	frameReqs map[string]chan interview.CapturedFrame
	recorders map[string]*wsRecorder
}

// Upgrade takes over the HTTP request as a media websocket.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Gateway, error) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("media upgrade: %w", err)
	}
	g := newGateway(conn)
	go g.readLoop()
	return g, nil
}

func newGateway(conn *websocket.Conn) *Gateway {
	return &Gateway{
		conn:      conn,
		audioCh:   make(chan []byte, 256),
		resultsCh: make(chan transcript.Result, 64),
		stopCh:    make(chan struct{}),
		frameReqs: make(map[string]chan interview.CapturedFrame),
		recorders: make(map[string]*wsRecorder),
	}
}

// AudioFrames yields inbound microphone PCM for the connection lifetime.
func (g *Gateway) AudioFrames() <-chan []byte { return g.audioCh }

// Results yields browser speech recognition results, satisfying the
// aggregator's Recognizer.
func (g *Gateway) Results() <-chan transcript.Result { return g.resultsCh }

// GrabFrame asks the browser for one camera frame and waits for it.
func (g *Gateway) GrabFrame(ctx context.Context) (interview.CapturedFrame, error) {
	id := uuid.NewString()
	ch := make(chan interview.CapturedFrame, 1)
	g.mu.Lock()
	g.frameReqs[id] = ch
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		delete(g.frameReqs, id)
		g.mu.Unlock()
	}()

	if err := g.writeJSON(message{Type: "grab-frame", RequestID: id}); err != nil {
		return interview.CapturedFrame{}, err
	}
	select {
	case f := <-ch:
		return f, nil
	case <-time.After(2 * time.Second):
		return interview.CapturedFrame{}, errors.New("frame grab timed out")
	case <-g.stopCh:
		return interview.CapturedFrame{}, errors.New("media connection closed")
	case <-ctx.Done():
		return interview.CapturedFrame{}, ctx.Err()
	}
}

// NewRecorder allocates a browser-side MediaRecorder for the given scope.
func (g *Gateway) NewRecorder(scope capture.Scope) (capture.Recorder, error) {
	select {
	case <-g.stopCh:
		return nil, errors.New("media connection closed")
	default:
	}
	rec := &wsRecorder{
		g:      g,
		id:     uuid.NewString(),
		scope:  scope,
		blobCh: make(chan interview.Blob, 1),
	}
	g.mu.Lock()
	g.recorders[rec.id] = rec
	g.mu.Unlock()
	return rec, nil
}

// WritePCM sends bot speech audio to the browser.
func (g *Gateway) WritePCM(pcm []byte) {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	_ = g.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := g.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		log.Printf("media: audio write failed: %v", err)
	}
}

// FlushTail marks the end of one spoken utterance so the browser can drain
// its playout buffer.
func (g *Gateway) FlushTail() {
	_ = g.writeJSON(message{Type: "audio-end"})
}

// Reset tells the browser to drop queued playout audio immediately.
func (g *Gateway) Reset() {
	_ = g.writeJSON(message{Type: "audio-reset"})
}

// Close tears the connection down. Pending frame grabs and recorder stops
// unblock with errors.
func (g *Gateway) Close() error {
	var err error
	g.once.Do(func() {
		close(g.stopCh)
		g.writeMu.Lock()
		_ = g.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		g.writeMu.Unlock()
		err = g.conn.Close()
	})
	return err
}

// Done is closed when the browser side goes away.
func (g *Gateway) Done() <-chan struct{} { return g.stopCh }

func (g *Gateway) writeJSON(m message) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	_ = g.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return g.conn.WriteJSON(m)
}

func (g *Gateway) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("media: read loop panic: %v", r)
		}
		_ = g.Close()
		close(g.audioCh)
		close(g.resultsCh)
	}()
	for {
		mt, data, err := g.conn.ReadMessage()
		if err != nil {
			select {
			case <-g.stopCh:
			default:
				log.Printf("media: read: %v", err)
			}
			return
		}
		switch mt {
		case websocket.BinaryMessage:
			buf := make([]byte, len(data))
			copy(buf, data)
			select {
			case g.audioCh <- buf:
			default:
				// Drop rather than stall the browser's send path.
			}
		case websocket.TextMessage:
			var m message
			if err := json.Unmarshal(data, &m); err != nil {
				log.Printf("media: bad envelope: %v", err)
				continue
			}
			if done := g.dispatch(m); done {
				return
			}
		}
	}
}

func (g *Gateway) dispatch(m message) bool {
	switch m.Type {
	case "frame":
		img, err := base64.StdEncoding.DecodeString(m.Image)
		if err != nil {
			log.Printf("media: bad frame payload: %v", err)
			return false
		}
		g.mu.Lock()
		ch := g.frameReqs[m.RequestID]
		g.mu.Unlock()
		if ch != nil {
			select {
			case ch <- interview.CapturedFrame{Timestamp: time.Now(), Image: img}:
			default:
			}
		}
	case "chunk":
		g.mu.Lock()
		rec := g.recorders[m.RecorderID]
		g.mu.Unlock()
		if rec == nil {
			return false
		}
		rec.append(m)
		if m.Final {
			g.mu.Lock()
			delete(g.recorders, m.RecorderID)
			g.mu.Unlock()
		}
	case "transcript":
		select {
		case g.resultsCh <- transcript.Result{Index: m.ResultIndex, Text: m.Text, Final: m.IsFinal}:
		default:
		}
	case "bye":
		return true
	default:
		log.Printf("media: unknown message type %q", m.Type)
	}
	return false
}

// wsRecorder drives a browser MediaRecorder. The browser streams chunks as
// they are cut; the final chunk after recorder-stop completes the blob.
type wsRecorder struct {
	g     *Gateway
	id    string
	scope capture.Scope

	mu     sync.Mutex
	chunks []byte
	mime   string
	sealed bool

	blobCh chan interview.Blob
}

func (r *wsRecorder) Start() error {
	return r.g.writeJSON(message{Type: "recorder-start", RecorderID: r.id, Scope: string(r.scope)})
}

func (r *wsRecorder) Stop() (<-chan interview.Blob, error) {
	if err := r.g.writeJSON(message{Type: "recorder-stop", RecorderID: r.id}); err != nil {
		return nil, err
	}
	return r.blobCh, nil
}

func (r *wsRecorder) append(m message) {
	data, err := base64.StdEncoding.DecodeString(m.Data)
	if err != nil {
		log.Printf("media: bad recorder chunk: %v", err)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return
	}
	r.chunks = append(r.chunks, data...)
	if m.MIME != "" {
		r.mime = m.MIME
	}
	if m.Final {
		r.sealed = true
		mime := r.mime
		if mime == "" {
			mime = "video/webm"
		}
		blob := interview.Blob{Data: r.chunks, MIME: mime}
		select {
		case r.blobCh <- blob:
		default:
		}
	}
}
