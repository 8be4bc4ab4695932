package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string

	// SessionWSURL is the evaluation service websocket endpoint.
	SessionWSURL string
	SessionToken string

	DeepgramAPIKey string
	DeepgramModel  string

	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseBucket         string

	// InterviewDuration bounds a single interview; 0 means unbounded.
	InterviewDuration time.Duration
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file loaded")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	wsURL := os.Getenv("SESSION_WS_URL")
	if wsURL == "" {
		log.Println("Warning: SESSION_WS_URL not set - interviews cannot reach the evaluation service")
	}
	token := os.Getenv("SESSION_TOKEN")

	dgKey := os.Getenv("DEEPGRAM_API_KEY")
	if dgKey == "" {
		log.Println("Warning: DEEPGRAM_API_KEY not set - question synthesis will not work")
	}
	dgModel := os.Getenv("DEEPGRAM_MODEL")
	if dgModel == "" {
		dgModel = "aura-2-thalia-en"
	}

	sbURL := os.Getenv("SUPABASE_URL")
	sbKey := os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
	if sbURL == "" || sbKey == "" {
		log.Println("Warning: SUPABASE_URL/SUPABASE_SERVICE_ROLE_KEY not set - answer videos will not be uploaded")
	}
	bucket := os.Getenv("SUPABASE_BUCKET")
	if bucket == "" {
		bucket = "interview-recordings"
	}

	dur := 45 * time.Minute
	if raw := os.Getenv("INTERVIEW_DURATION"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			log.Printf("Warning: invalid INTERVIEW_DURATION %q, using %s", raw, dur)
		} else {
			dur = d
		}
	}

	log.Printf("config: HTTP_ADDRESS=%s", addr)
	return Config{
		HTTPAddress:            addr,
		SessionWSURL:           wsURL,
		SessionToken:           token,
		DeepgramAPIKey:         dgKey,
		DeepgramModel:          dgModel,
		SupabaseURL:            sbURL,
		SupabaseServiceRoleKey: sbKey,
		SupabaseBucket:         bucket,
		InterviewDuration:      dur,
	}
}
