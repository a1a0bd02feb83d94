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

	"github.com/spoc-ai/voicebridge/chat"
	"github.com/spoc-ai/voicebridge/config"
	"github.com/spoc-ai/voicebridge/server"
	"github.com/spoc-ai/voicebridge/session"
	"github.com/spoc-ai/voicebridge/upstream"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Each session dials its own upstream connection.
	dial := func(ctx context.Context) (session.Upstream, error) {
		up, err := upstream.Dial(ctx, upstream.Config{
			APIKey:       cfg.GeminiAPIKey,
			Model:        cfg.GeminiModel,
			Voice:        cfg.GeminiVoice,
			SystemPrompt: session.DefaultSystemPrompt,
		})
		if err != nil {
			return nil, err
		}
		return up, nil
	}

	sessionManager, err := session.NewManager(cfg, dial)
	if err != nil {
		log.Fatalf("Failed to create session manager: %v", err)
	}

	chatService, err := chat.NewService(ctx, chat.Options{
		APIKey:       cfg.GeminiAPIKey,
		ChatModel:    cfg.ChatModel,
		TTSModel:     cfg.TTSModel,
		DefaultVoice: cfg.TTSVoice,
		AudioDir:     cfg.AudioDir,
		SystemPrompt: session.DefaultSystemPrompt,
	})
	if err != nil {
		// The relay works without the chat endpoints; run degraded.
		log.Printf("⚠️ Chat service unavailable: %v", err)
		chatService = nil
	}

	// Start cleanup routine
	go sessionManager.StartCleanupRoutine(ctx)

	srv := server.NewServer(cfg, sessionManager, chatService)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("\nReceived shutdown signal...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server stopped")
}
