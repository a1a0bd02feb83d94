// Package server exposes the relay over HTTP: the live websocket endpoint
// plus the request/response chat and synthesis APIs.
package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/spoc-ai/voicebridge/chat"
	"github.com/spoc-ai/voicebridge/config"
	"github.com/spoc-ai/voicebridge/messages"
	"github.com/spoc-ai/voicebridge/session"
)

const maxAPIBodyBytes = 1 << 20

type Server struct {
	httpServer     *http.Server
	upgrader       websocket.Upgrader
	sessionManager *session.Manager
	chatService    *chat.Service
	config         *config.Config
}

// NewServer wires the HTTP mux. chatService may be nil, in which case the
// chat and synthesis endpoints report unavailable.
func NewServer(cfg *config.Config, sessionManager *session.Manager, chatService *chat.Service) *Server {
	s := &Server{
		sessionManager: sessionManager,
		chatService:    chatService,
		config:         cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    64 * 1024, // 64KB for audio chunks
			WriteBufferSize:   64 * 1024,
			EnableCompression: true,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				for _, allowed := range cfg.AllowedOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				return false
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/api/tts", s.handleTTS)
	mux.Handle("/audio/", http.StripPrefix("/audio/", http.FileServer(http.Dir(cfg.AudioDir))))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second, // synthesis responses can take a while
	}

	return s
}

// Start begins listening for connections
func (s *Server) Start() error {
	log.Printf("🚀 Server starting on port %d", s.config.Port)
	log.Printf("📡 WebSocket endpoint: ws://localhost:%d/ws", s.config.Port)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("🛑 Shutting down server...")
	s.sessionManager.Shutdown()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	clientSession, err := s.sessionManager.CreateSession(r.Context(), conn)
	if err != nil {
		log.Printf("Failed to create session: %v", err)
		if data, encErr := messages.Encode(messages.NewError(err.Error())); encErr == nil {
			_ = conn.WriteMessage(websocket.TextMessage, data)
		}
		conn.Close()
		return
	}

	log.Printf("✅ New session created: %s", clientSession.ID)
	clientSession.Start()

	// Block until the session ends, then clean up.
	<-clientSession.CloseChan
	_ = s.sessionManager.RemoveSession(context.Background(), clientSession.ID)
	log.Printf("🔌 Session closed: %s", clientSession.ID)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","sessions":%d}`, s.sessionManager.ActiveSessionCount())
}

type chatRequest struct {
	Message string      `json:"message"`
	History []chat.Turn `json:"history,omitempty"`
}

type chatResponse struct {
	Reply string `json:"reply,omitempty"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.chatService == nil {
		writeJSON(w, http.StatusServiceUnavailable, chatResponse{Error: "chat service not configured"})
		return
	}

	var req chatRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, chatResponse{Error: err.Error()})
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, chatResponse{Error: "message is required"})
		return
	}

	reply, err := s.chatService.Reply(r.Context(), req.Message, req.History)
	if err != nil {
		log.Printf("❌ Chat request failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, chatResponse{Error: "failed to generate reply"})
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

type ttsRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

type ttsResponse struct {
	AudioURL  string `json:"audio_url,omitempty"`
	VoiceUsed string `json:"voice_used,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.chatService == nil {
		writeJSON(w, http.StatusServiceUnavailable, ttsResponse{Error: "synthesis service not configured"})
		return
	}

	var req ttsRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ttsResponse{Error: err.Error()})
		return
	}
	if req.Text == "" {
		writeJSON(w, http.StatusBadRequest, ttsResponse{Error: "text is required"})
		return
	}

	clip, err := s.chatService.Synthesize(r.Context(), req.Text, req.Voice)
	if err != nil {
		log.Printf("❌ Synthesis failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, ttsResponse{Error: "synthesis failed"})
		return
	}
	writeJSON(w, http.StatusOK, ttsResponse{AudioURL: clip.AudioURL, VoiceUsed: clip.VoiceUsed})
}

func decodeJSONBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxAPIBodyBytes))
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	if err := sonic.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, "encoding failure", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
