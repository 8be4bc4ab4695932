package tts

import (
	"context"
	"testing"
	"time"
)

func TestNewClient_DefaultModel(t *testing.T) {
	c := NewClient("key", "")
	if c.model != "aura-2-thalia-en" {
		t.Fatalf("model = %q", c.model)
	}
	if c.sampleRate != 48000 || c.encoding != "linear16" {
		t.Fatalf("format = %d/%s", c.sampleRate, c.encoding)
	}
	c = NewClient("key", "aura-2-orion-en")
	if c.model != "aura-2-orion-en" {
		t.Fatalf("model override ignored: %q", c.model)
	}
}

func TestStreamPCM48k_MissingKeyErrors(t *testing.T) {
	c := NewClient("", "")
	pcm, errc := c.StreamPCM48k(context.Background(), "hello")
	select {
	case err := <-errc:
		if err == nil {
			t.Fatalf("expected error for missing API key")
		}
	case <-time.After(time.Second):
		t.Fatalf("no error delivered")
	}
	// The PCM channel closes without audio.
	for range pcm {
		t.Fatalf("unexpected audio without credentials")
	}
}

func TestStreamPCM48k_EmptyTextCompletesSilently(t *testing.T) {
	c := NewClient("key", "")
	pcm, errc := c.StreamPCM48k(context.Background(), "")
	select {
	case err, ok := <-errc:
		if ok && err != nil {
			t.Fatalf("empty text errored: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("error channel never closed")
	}
	for range pcm {
		t.Fatalf("unexpected audio for empty text")
	}
}
