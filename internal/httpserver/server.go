// Package httpserver exposes the interview service over HTTP: the browser
// attaches its media websocket per interview, then launches and tracks an
// orchestrated session.
package httpserver

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"

	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/interview"
	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/media"
)

// Runner is the slice of the session controller the server drives.
type Runner interface {
	Initialize(ctx context.Context, templateID string) (interview.Session, error)
	Run(ctx context.Context) error
	End()
	Session() interview.Session
}

// Factory builds a controller bound to one attached media gateway.
type Factory func(interviewID, candidateID string, gw *media.Gateway) Runner

type running struct {
	runner Runner
	cancel context.CancelFunc
	done   chan struct{}
}

// Server bundles the router and the registry of live interviews.
type Server struct {
	e       *echo.Echo
	factory Factory

	mu       sync.Mutex
	gateways map[string]*media.Gateway
	sessions map[string]*running
}

// New constructs the HTTP server with routes.
func New(factory Factory) *Server {
	s := &Server{
		e:        newRouter(),
		factory:  factory,
		gateways: make(map[string]*media.Gateway),
		sessions: make(map[string]*running),
	}

	s.e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	s.e.GET("/interviews/:id/media", s.handleMedia)
	s.e.POST("/interviews/:id/sessions", s.handleLaunch)
	s.e.GET("/sessions/:id", s.handleStatus)
	s.e.DELETE("/sessions/:id", s.handleEnd)
	return s
}

// Handler exposes the router for serving and tests.
func (s *Server) Handler() http.Handler { return s.e }

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error { return s.e.Start(addr) }

// Shutdown stops listening and ends every running interview.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, r := range s.sessions {
		r.runner.End()
	}
	s.mu.Unlock()
	return s.e.Shutdown(ctx)
}

func (s *Server) handleMedia(c echo.Context) error {
	interviewID := c.Param("id")
	gw, err := media.Upgrade(c.Response(), c.Request())
	if err != nil {
		log.Printf("media attach failed for interview %s: %v", interviewID, err)
		return nil
	}
	s.mu.Lock()
	if old := s.gateways[interviewID]; old != nil {
		_ = old.Close()
	}
	s.gateways[interviewID] = gw
	s.mu.Unlock()
	log.Printf("media attached for interview %s", interviewID)

	// Keep the handler alive until the browser disconnects, then drop the
	// mapping if it is still ours.
	<-gw.Done()
	s.mu.Lock()
	if s.gateways[interviewID] == gw {
		delete(s.gateways, interviewID)
	}
	s.mu.Unlock()
	return nil
}

type launchRequest struct {
	CandidateID string `json:"candidateId"`
	TemplateID  string `json:"templateId"`
}

type sessionResponse struct {
	SessionID string                      `json:"sessionId"`
	Status    interview.Status            `json:"status"`
	State     interview.ConversationState `json:"conversationState"`
}

func (s *Server) handleLaunch(c echo.Context) error {
	interviewID := c.Param("id")
	var req launchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	s.mu.Lock()
	gw := s.gateways[interviewID]
	s.mu.Unlock()
	if gw == nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": "no media connection attached for interview"})
	}

	runner := s.factory(interviewID, req.CandidateID, gw)
	ctx, cancel := context.WithCancel(context.Background())
	sess, err := runner.Initialize(ctx, req.TemplateID)
	if err != nil {
		cancel()
		log.Printf("session launch failed for interview %s: %v", interviewID, err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}

	r := &running{runner: runner, cancel: cancel, done: make(chan struct{})}
	s.mu.Lock()
	s.sessions[sess.ID] = r
	s.mu.Unlock()

	go func() {
		defer close(r.done)
		defer cancel()
		if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[%s] session ended with error: %v", sess.ID, err)
		}
		// Drop the registry entry so finished interviews do not accumulate.
		s.mu.Lock()
		if s.sessions[sess.ID] == r {
			delete(s.sessions, sess.ID)
		}
		s.mu.Unlock()
	}()

	return c.JSON(http.StatusCreated, sessionResponse{
		SessionID: sess.ID,
		Status:    sess.Status,
		State:     sess.Conversation,
	})
}

func (s *Server) handleStatus(c echo.Context) error {
	s.mu.Lock()
	r := s.sessions[c.Param("id")]
	s.mu.Unlock()
	if r == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown session"})
	}
	sess := r.runner.Session()
	return c.JSON(http.StatusOK, sessionResponse{
		SessionID: sess.ID,
		Status:    sess.Status,
		State:     sess.Conversation,
	})
}

func (s *Server) handleEnd(c echo.Context) error {
	s.mu.Lock()
	r := s.sessions[c.Param("id")]
	s.mu.Unlock()
	if r == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown session"})
	}
	r.runner.End()
	return c.NoContent(http.StatusAccepted)
}
