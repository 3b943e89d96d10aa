package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	// Inbound (server -> client).
	TypeAITyping           MessageType = "ai_typing"
	TypeAIResponseStart    MessageType = "ai_response_start"
	TypeAIChunk            MessageType = "ai_chunk"
	TypeAIResponseComplete MessageType = "ai_response_complete"
	TypeAudioChunk         MessageType = "audio_chunk"
	TypeAudioResponse      MessageType = "audio_response"
	TypeSystem             MessageType = "system"
	TypeError              MessageType = "error"
	TypeTranscription      MessageType = "transcription"
	TypeLiveTranscription  MessageType = "live_transcription"

	// Outbound (client -> server).
	TypeUserSpeech MessageType = "user_speech"
	TypePing       MessageType = "ping"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type AITyping struct {
	Type MessageType `json:"type"`
}

type AIResponseStart struct {
	Type MessageType `json:"type"`
}

// AIChunk carries the cumulative assistant text so far, not a delta.
type AIChunk struct {
	Type     MessageType `json:"type"`
	FullText string      `json:"full_text"`
}

type AIResponseComplete struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content"`
}

// AudioChunk carries one base64-encoded slice of a streamed utterance.
type AudioChunk struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content"`
	Text    string      `json:"text,omitempty"`
}

// AudioResponse is the legacy single-shot audio payload. With empty Content
// and IsFinal set it only marks the end of a chunked audio stream.
type AudioResponse struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content"`
	IsFinal bool        `json:"is_final,omitempty"`
}

type SystemNotice struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content"`
}

type ErrorNotice struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content"`
}

type Transcription struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content"`
}

type LiveTranscription struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content"`
}

type UserSpeech struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content"`
}

type Ping struct {
	Type MessageType `json:"type"`
}

func NewUserSpeech(content string) UserSpeech {
	return UserSpeech{Type: TypeUserSpeech, Content: content}
}

func NewPing() Ping {
	return Ping{Type: TypePing}
}

// ParseServerMessage decodes one inbound text frame into its typed variant.
// Unknown types return ErrUnsupportedType so callers can drop them without
// treating the frame as malformed.
func ParseServerMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeAITyping:
		return AITyping{Type: env.Type}, nil
	case TypeAIResponseStart:
		return AIResponseStart{Type: env.Type}, nil
	case TypeAIChunk:
		var msg AIChunk
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeAIResponseComplete:
		var msg AIResponseComplete
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeAudioChunk:
		var msg AudioChunk
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Content == "" {
			return nil, errors.New("invalid audio_chunk: empty content")
		}
		return msg, nil
	case TypeAudioResponse:
		var msg AudioResponse
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeSystem:
		var msg SystemNotice
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeError:
		var msg ErrorNotice
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeTranscription:
		var msg Transcription
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeLiveTranscription:
		var msg LiveTranscription
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// TypeOf reports the wire type of an outbound or parsed message value.
func TypeOf(msg any) (MessageType, bool) {
	switch m := msg.(type) {
	case AITyping:
		return m.Type, true
	case AIResponseStart:
		return m.Type, true
	case AIChunk:
		return m.Type, true
	case AIResponseComplete:
		return m.Type, true
	case AudioChunk:
		return m.Type, true
	case AudioResponse:
		return m.Type, true
	case SystemNotice:
		return m.Type, true
	case ErrorNotice:
		return m.Type, true
	case Transcription:
		return m.Type, true
	case LiveTranscription:
		return m.Type, true
	case UserSpeech:
		return m.Type, true
	case Ping:
		return m.Type, true
	default:
		return "", false
	}
}
