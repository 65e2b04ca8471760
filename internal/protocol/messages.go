// Package protocol defines the websocket event vocabulary exchanged between
// a connected client and the Session Orchestrator: envelope parsing for
// inbound events and the typed outbound event payloads.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType identifies a websocket event's "type" discriminator field.
type EventType string

const (
	// Inbound
	TypeStartSession           EventType = "start-session"
	TypeStartProcessing        EventType = "start-processing"
	TypeStopProcessing         EventType = "stop-processing"
	TypeAudioData              EventType = "audio-data"
	TypeGetConversationHistory EventType = "get-conversation-history"
	TypeClearConversation      EventType = "clear-conversation"
	TypeGetConversationStats   EventType = "get-conversation-stats"

	// Outbound
	TypeReady               EventType = "ready"
	TypeSessionCreated       EventType = "session-created"
	TypeProcessingStarted    EventType = "processing-started"
	TypeProcessingStopped    EventType = "processing-stopped"
	TypeTranscriptionResult  EventType = "transcription-result"
	TypeAIResponse           EventType = "ai-response"
	TypeAIResponseError      EventType = "ai-response-error"
	TypeAIInterrupted        EventType = "ai-interrupted"
	TypeTTSAudio             EventType = "tts-audio"
	TypeTTSError             EventType = "tts-error"
	TypeTTSUnavailable       EventType = "tts-unavailable"
	TypeTranscriptionError   EventType = "transcription-error"
	TypeConversationHistory  EventType = "conversation-history"
	TypeConversationCleared  EventType = "conversation-cleared"
	TypeConversationStats    EventType = "conversation-stats"
	TypeConversationError    EventType = "conversation-error"
	TypeError                EventType = "error"
)

var ErrUnsupportedType = errors.New("unsupported message type")

// Envelope reads just enough of an inbound frame to dispatch it.
type Envelope struct {
	Type EventType `json:"type"`
}

// Inbound events -------------------------------------------------------

type StartSession struct {
	Type         EventType `json:"type"`
	UserID       string    `json:"userId"`
	LanguageCode string    `json:"languageCode,omitempty"`
}

type StartProcessing struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
}

type StopProcessing struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId,omitempty"`
}

type AudioData struct {
	Type       EventType `json:"type"`
	SessionID  string    `json:"sessionId"`
	Samples    []int16   `json:"samples"`
	SampleRate int       `json:"sampleRate,omitempty"`
	Channels   int       `json:"channels,omitempty"`
}

type GetConversationHistory struct {
	Type  EventType `json:"type"`
	Limit int       `json:"limit,omitempty"`
}

type ClearConversation struct {
	Type EventType `json:"type"`
}

type GetConversationStats struct {
	Type EventType `json:"type"`
}

// ParseClientMessage decodes one inbound websocket frame into its typed
// event. A malformed frame or unknown type is never fatal to the
// connection: the transport must respond with an Error event and continue.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeStartSession:
		var msg StartSession
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeStartProcessing:
		var msg StartProcessing
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid start-processing: missing sessionId")
		}
		return msg, nil
	case TypeStopProcessing:
		var msg StopProcessing
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeAudioData:
		var msg AudioData
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid audio-data: missing sessionId")
		}
		return msg, nil
	case TypeGetConversationHistory:
		var msg GetConversationHistory
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeClearConversation:
		var msg ClearConversation
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeGetConversationStats:
		var msg GetConversationStats
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// Outbound events --------------------------------------------------------

type Ready struct {
	Type EventType `json:"type"`
}

type SessionCreated struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	Message   string    `json:"message"`
}

type ProcessingStarted struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}

type ProcessingStopped struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}

type TranscriptionResult struct {
	Type       EventType `json:"type"`
	Transcript string    `json:"transcript"`
	Confidence float64   `json:"confidence"`
	IsPartial  bool      `json:"isPartial"`
	Timestamp  int64     `json:"timestamp"`
}

type AIResponse struct {
	Type                EventType `json:"type"`
	Response            string    `json:"response"`
	Transcript          string    `json:"transcript"`
	Timestamp           int64     `json:"timestamp"`
	Confidence          float64   `json:"confidence"`
	BufferedTranscripts bool      `json:"bufferedTranscripts"`
}

type AIResponseError struct {
	Type      EventType `json:"type"`
	Message   string    `json:"message"`
	Timestamp int64     `json:"timestamp"`
}

type AIInterrupted struct {
	Type          EventType `json:"type"`
	Timestamp     int64     `json:"timestamp"`
	InterruptedAt int64     `json:"interruptedAt"`
}

type TTSAudio struct {
	Type      EventType `json:"type"`
	AudioData []byte    `json:"audioData"`
	Text      string    `json:"text"`
	Timestamp int64     `json:"timestamp"`
}

type TTSError struct {
	Type      EventType `json:"type"`
	Message   string    `json:"message"`
	Timestamp int64     `json:"timestamp"`
}

type TTSUnavailable struct {
	Type      EventType `json:"type"`
	Message   string    `json:"message"`
	Timestamp int64     `json:"timestamp"`
}

type TranscriptionError struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}

type ConversationHistoryTurn struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

type ConversationHistory struct {
	Type      EventType                 `json:"type"`
	History   []ConversationHistoryTurn `json:"history"`
	UserID    string                    `json:"userId"`
	Timestamp int64                     `json:"timestamp"`
}

type ConversationCleared struct {
	Type      EventType `json:"type"`
	UserID    string    `json:"userId"`
	Timestamp int64     `json:"timestamp"`
}

type ConversationStats struct {
	Type              EventType `json:"type"`
	ConversationCount int       `json:"conversationCount"`
	TotalTurns        int       `json:"totalTurns"`
	Timestamp         int64     `json:"timestamp"`
}

type ConversationError struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}

type Error struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}
