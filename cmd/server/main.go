package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/config"
	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/httpserver"
	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/media"
	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/protocol"
	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/session"
	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/storage"
	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/submit"
	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/tts"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	var uploader submit.Uploader
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceRoleKey != "" {
		store, err := storage.New(storage.Config{
			URL:            cfg.SupabaseURL,
			ServiceRoleKey: cfg.SupabaseServiceRoleKey,
			Bucket:         cfg.SupabaseBucket,
		})
		if err != nil {
			log.Printf("storage unavailable, answers will carry no video ref: %v", err)
		} else {
			uploader = store
		}
	}

	factory := func(interviewID, candidateID string, gw *media.Gateway) httpserver.Runner {
		speaker := tts.NewClient(cfg.DeepgramAPIKey, cfg.DeepgramModel)
		proto := protocol.NewClient(cfg.SessionWSURL, cfg.SessionToken)
		return session.NewController(session.Config{
			InterviewID:    interviewID,
			CandidateID:    candidateID,
			DurationBudget: cfg.InterviewDuration,
		}, session.Deps{
			Protocol:   proto,
			Speaker:    speaker,
			Sink:       gw,
			Device:     gw,
			Recognizer: gw,
			Uploader:   uploader,
		})
	}

	srv := httpserver.New(factory)

	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- srv.Start(cfg.HTTPAddress)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
