// Package chat provides the request/response collaborators next to the live
// relay: a text chat endpoint and speech synthesis for canned clips. Both
// ride the official GenAI SDK rather than the raw streaming socket.
package chat

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/spoc-ai/voicebridge/audio"
)

const (
	synthesisRate = 24000
	maxRetries    = 3
	retryBaseWait = 500 * time.Millisecond
)

// fallbackReply is returned when the model is overloaded past all retries.
const fallbackReply = "I'm having trouble responding right now. Please try again in a moment."

// Turn is one prior exchange in a chat history.
type Turn struct {
	Role string `json:"role"` // "user" or "model"
	Text string `json:"text"`
}

// Clip describes one synthesized audio file.
type Clip struct {
	AudioURL  string `json:"audio_url"`
	VoiceUsed string `json:"voice_used"`
}

// Options configures a Service.
type Options struct {
	APIKey       string
	ChatModel    string
	TTSModel     string
	DefaultVoice string
	AudioDir     string
	SystemPrompt string
}

// Service answers text chat requests and synthesizes speech clips.
type Service struct {
	client *genai.Client
	opts   Options
}

// NewService builds the GenAI client and ensures the clip directory exists.
func NewService(ctx context.Context, opts Options) (*Service, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if err := os.MkdirAll(opts.AudioDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating audio dir: %w", err)
	}
	return &Service{client: client, opts: opts}, nil
}

// Reply generates a chat response for message, given prior history. Model
// overload is retried with backoff; if every attempt fails with a transient
// error the fallback reply is returned instead of an error.
func (s *Service) Reply(ctx context.Context, message string, history []Turn) (string, error) {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, turn := range history {
		role := turn.Role
		if role != "model" {
			role = "user"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: turn.Text}},
		})
	}
	contents = append(contents, &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: message}},
	})

	config := &genai.GenerateContentConfig{}
	if s.opts.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: s.opts.SystemPrompt}},
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			wait := retryBaseWait * time.Duration(1<<(attempt-1))
			log.Printf("⏳ Chat attempt %d failed, retrying in %s", attempt, wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		resp, err := s.client.Models.GenerateContent(ctx, s.opts.ChatModel, contents, config)
		if err != nil {
			lastErr = err
			if isTransient(err) {
				continue
			}
			return "", fmt.Errorf("generating reply: %w", err)
		}
		if text := resp.Text(); text != "" {
			return text, nil
		}
		lastErr = fmt.Errorf("empty response")
	}

	log.Printf("⚠️ Chat fell back after retries: %v", lastErr)
	return fallbackReply, nil
}

// Synthesize renders text as speech and writes it to a WAV clip under the
// audio directory. voice falls back to the configured default when empty.
func (s *Service) Synthesize(ctx context.Context, text, voice string) (*Clip, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("nothing to synthesize")
	}
	if voice == "" {
		voice = s.opts.DefaultVoice
	}

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{
					VoiceName: voice,
				},
			},
		},
	}

	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: SanitizeForSpeech(text)}},
	}}

	resp, err := s.client.Models.GenerateContent(ctx, s.opts.TTSModel, contents, config)
	if err != nil {
		return nil, fmt.Errorf("synthesizing speech: %w", err)
	}

	stitcher := NewPartStitcher()
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil {
				continue
			}
			if err := stitcher.Append(part.InlineData.Data); err != nil {
				return nil, fmt.Errorf("stitching audio parts: %w", err)
			}
		}
	}
	if stitcher.Len() == 0 {
		return nil, fmt.Errorf("response contained no audio")
	}

	wav, err := audio.EncodeWAV(audio.PCM16FromBytes(stitcher.Bytes()), synthesisRate)
	if err != nil {
		return nil, fmt.Errorf("encoding clip: %w", err)
	}
	name := uuid.New().String() + ".wav"
	path := filepath.Join(s.opts.AudioDir, name)
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		return nil, fmt.Errorf("writing clip: %w", err)
	}

	log.Printf("🔊 Synthesized %d bytes of audio to %s (voice %s)", stitcher.Len(), name, voice)
	return &Clip{AudioURL: "/audio/" + name, VoiceUsed: voice}, nil
}

// isTransient reports whether an error is worth retrying.
func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "unavailable") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "resource exhausted")
}
