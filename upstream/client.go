// Package upstream speaks the raw BidiGenerateContent websocket protocol to
// the streaming model endpoint: one connection per relay session, a setup
// handshake, then media chunks out and server content in.
package upstream

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

const (
	liveEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContent"

	dialTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
)

// Config selects the model, voice and behavioral instruction sent in the
// setup handshake.
type Config struct {
	APIKey       string
	Model        string
	Voice        string
	SystemPrompt string
}

// Handlers receives protocol events. Unset callbacks are skipped. All
// callbacks fire on the client's single receive goroutine, so handlers for
// one connection never run concurrently with each other.
type Handlers struct {
	OnReady        func()            // setup acknowledged
	OnAudio        func(data string) // transport-encoded PCM16 at 24 kHz
	OnText         func(text string)
	OnTurnComplete func()
	OnInterrupted  func()
	OnError        func(err error)
}

// Client is one live connection to the model endpoint. It is created by
// Dial, bound to handlers, then started; a closed Client is never reused.
type Client struct {
	conn     *websocket.Conn
	handlers Handlers

	writeMu sync.Mutex
	mu      sync.RWMutex
	closed  bool
}

// Dial connects and sends the setup handshake. The acknowledgment arrives
// later, on the receive loop, as an OnReady callback.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("upstream API key is required")
	}

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, liveEndpoint+"?key="+cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial upstream: %w", err)
	}

	c := &Client{conn: conn}
	if err := c.sendSetup(cfg); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) sendSetup(cfg Config) error {
	frame := setupFrame{Setup: setupPayload{
		Model: cfg.Model,
		SystemInstruction: &content{
			Parts: []part{{Text: cfg.SystemPrompt}},
		},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{
				VoiceConfig: voiceConfig{
					PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.Voice},
				},
			},
		},
	}}
	if err := c.writeFrame(frame); err != nil {
		return fmt.Errorf("failed to send setup: %w", err)
	}
	return nil
}

// Bind sets the event handlers. Must be called before Start.
func (c *Client) Bind(h Handlers) {
	c.handlers = h
}

// Start launches the receive loop. It exits when the connection drops, the
// context is canceled, or Close is called.
func (c *Client) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		c.Close()
	}()
	go c.readLoop()
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.isClosed() && c.handlers.OnError != nil {
				c.handlers.OnError(fmt.Errorf("upstream connection closed: %w", err))
			}
			return
		}
		c.dispatch(data)
	}
}

// dispatch routes one inbound frame to the bound handlers. Unparseable
// frames are logged and dropped; the stream continues.
func (c *Client) dispatch(data []byte) {
	var frame serverFrame
	if err := sonic.Unmarshal(data, &frame); err != nil {
		log.Printf("⚠️ Dropping malformed upstream frame: %v", err)
		return
	}

	if frame.SetupComplete != nil {
		if c.handlers.OnReady != nil {
			c.handlers.OnReady()
		}
		return
	}

	if sc := frame.ServerContent; sc != nil {
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p.Text != "" && c.handlers.OnText != nil {
					c.handlers.OnText(p.Text)
				}
				if p.InlineData != nil && p.InlineData.Data != "" && c.handlers.OnAudio != nil {
					c.handlers.OnAudio(p.InlineData.Data)
				}
			}
		}
		if sc.Interrupted && c.handlers.OnInterrupted != nil {
			c.handlers.OnInterrupted()
		}
		if sc.TurnComplete && c.handlers.OnTurnComplete != nil {
			c.handlers.OnTurnComplete()
		}
	}

	if frame.Error != nil && c.handlers.OnError != nil {
		c.handlers.OnError(fmt.Errorf("upstream error: %s", frame.Error.Message))
	}
}

// SendMediaChunk forwards one transport-encoded audio chunk. The payload is
// passed through untouched; the relay never decodes audio.
func (c *Client) SendMediaChunk(mimeType, data string) error {
	return c.writeFrame(realtimeFrame{RealtimeInput: realtimeInput{
		MediaChunks: []mediaChunk{{MimeType: mimeType, Data: data}},
	}})
}

// SendText submits a complete user text turn.
func (c *Client) SendText(text string) error {
	return c.writeFrame(clientContentFrame{ClientContent: clientContent{
		Turns:        []content{{Role: "user", Parts: []part{{Text: text}}}},
		TurnComplete: true,
	}})
}

func (c *Client) writeFrame(frame any) error {
	if c.isClosed() {
		return fmt.Errorf("upstream connection is closed")
	}
	data, err := sonic.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Close tears the connection down. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}
