// Package message defines the frames exchanged with chat clients: the inbound
// payload (raw text or structured JSON) and the outbound envelopes.
package message

import (
	"bytes"
	"encoding/json"
)

// Kind tags how an inbound payload was interpreted.
type Kind int

const (
	KindText       Kind = iota // payload was not a JSON object; the whole frame is the message
	KindStructured             // payload was {"message": ..., "selectedFiles": [...]}
)

func (k Kind) String() string {
	if k == KindStructured {
		return "structured"
	}
	return "text"
}

// Inbound is a parsed client frame.
type Inbound struct {
	Kind          Kind
	Message       string
	SelectedFiles []string // nil for KindText
}

type structuredPayload struct {
	Message       string   `json:"message"`
	SelectedFiles []string `json:"selectedFiles,omitempty"`
}

// Parse interprets raw as a structured JSON object, falling back to treating
// the entire payload as text when it is not one. It never fails.
func Parse(raw []byte) Inbound {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var p structuredPayload
		if err := json.Unmarshal(trimmed, &p); err == nil {
			return Inbound{Kind: KindStructured, Message: p.Message, SelectedFiles: p.SelectedFiles}
		}
	}
	return Inbound{Kind: KindText, Message: string(raw)}
}

// Sender roles
const (
	SenderUser = "user"
	SenderAI   = "ai"
)

// BackendErrorText is sent to the requester when the answering service fails.
const BackendErrorText = "⚠️ AI backend error"

// UserEnvelope is broadcast to every open connection when a message arrives.
type UserEnvelope struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// AnswerEnvelope carries the answering service's reply to the requesting connection.
type AnswerEnvelope struct {
	Sender  string   `json:"sender"`
	Text    string   `json:"text"`
	UsedRAG bool     `json:"usedRag"`
	Sources []string `json:"sources"`
}

// ErrorEnvelope tells the requesting connection that no answer could be obtained.
type ErrorEnvelope struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

func NewUserEnvelope(text string) UserEnvelope {
	return UserEnvelope{Sender: SenderUser, Text: text}
}

// NewAnswerEnvelope builds the reply frame; sources is never encoded as null.
func NewAnswerEnvelope(text string, usedRAG bool, sources []string) AnswerEnvelope {
	if sources == nil {
		sources = []string{}
	}
	return AnswerEnvelope{Sender: SenderAI, Text: text, UsedRAG: usedRAG, Sources: sources}
}

func NewErrorEnvelope() ErrorEnvelope {
	return ErrorEnvelope{Sender: SenderAI, Text: BackendErrorText}
}
