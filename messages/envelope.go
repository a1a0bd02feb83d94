// Package messages defines the flat JSON envelope exchanged between the
// browser client and the relay.
package messages

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Envelope types.
const (
	TypeAudio        = "audio"
	TypeText         = "text"
	TypeConnected    = "connected"
	TypeTurnComplete = "turnComplete"
	TypeInterrupted  = "interrupted"
	TypeError        = "error"
)

// DefaultInputMimeType is assumed when a client audio frame omits mimeType.
const DefaultInputMimeType = "audio/pcm;rate=16000"

// OutputMimeType describes relay -> client audio; the model always speaks
// 24 kHz PCM.
const OutputMimeType = "audio/pcm;rate=24000"

// Envelope is one frame on the client <-> relay channel. Exactly one of the
// payload fields is meaningful for any given Type.
type Envelope struct {
	Type     string `json:"type"`
	Data     string `json:"data,omitempty"`     // transport-encoded PCM16
	MimeType string `json:"mimeType,omitempty"` // client -> relay audio only
	Text     string `json:"text,omitempty"`
	Message  string `json:"message,omitempty"` // "connected" banner
	Error    string `json:"error,omitempty"`
}

func NewClientAudio(data, mimeType string) *Envelope {
	return &Envelope{Type: TypeAudio, Data: data, MimeType: mimeType}
}

func NewAudio(data string) *Envelope {
	return &Envelope{Type: TypeAudio, Data: data}
}

func NewText(text string) *Envelope {
	return &Envelope{Type: TypeText, Text: text}
}

func NewConnected(message string) *Envelope {
	return &Envelope{Type: TypeConnected, Message: message}
}

func NewTurnComplete() *Envelope {
	return &Envelope{Type: TypeTurnComplete}
}

func NewInterrupted() *Envelope {
	return &Envelope{Type: TypeInterrupted}
}

func NewError(message string) *Envelope {
	return &Envelope{Type: TypeError, Error: message}
}

// Encode marshals an envelope for the wire.
func Encode(e *Envelope) ([]byte, error) {
	return sonic.Marshal(e)
}

// Decode parses an inbound frame. Frames without a recognized type field
// are rejected so the caller can drop them.
func Decode(data []byte) (*Envelope, error) {
	var e Envelope
	if err := sonic.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if e.Type == "" {
		return nil, fmt.Errorf("frame missing type")
	}
	return &e, nil
}
