package storage

import (
	"strings"
	"testing"
)

func TestNew_RequiresProjectCoordinates(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for empty config")
	}
	if _, err := New(Config{URL: "https://proj.supabase.co"}); err == nil {
		t.Fatalf("expected error without service role key")
	}
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	s, err := New(Config{
		URL:            "https://proj.supabase.co/",
		ServiceRoleKey: "service-key",
		Bucket:         "interview-recordings",
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if strings.HasSuffix(s.baseURL, "/") {
		t.Fatalf("base url keeps trailing slash: %q", s.baseURL)
	}
	if s.bucket != "interview-recordings" {
		t.Fatalf("bucket = %q", s.bucket)
	}
}
