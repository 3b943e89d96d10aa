package protocol

import (
	"errors"
	"testing"
)

func TestParseServerMessageAIChunk(t *testing.T) {
	raw := []byte(`{"type":"ai_chunk","full_text":"Hello th"}`)
	msg, err := ParseServerMessage(raw)
	if err != nil {
		t.Fatalf("ParseServerMessage() error = %v", err)
	}

	chunk, ok := msg.(AIChunk)
	if !ok {
		t.Fatalf("message type = %T, want AIChunk", msg)
	}
	if chunk.FullText != "Hello th" {
		t.Fatalf("FullText = %q, want %q", chunk.FullText, "Hello th")
	}
}

func TestParseServerMessageAudioChunk(t *testing.T) {
	raw := []byte(`{"type":"audio_chunk","content":"AQIDBA==","text":"Hello"}`)
	msg, err := ParseServerMessage(raw)
	if err != nil {
		t.Fatalf("ParseServerMessage() error = %v", err)
	}

	audio, ok := msg.(AudioChunk)
	if !ok {
		t.Fatalf("message type = %T, want AudioChunk", msg)
	}
	if audio.Content != "AQIDBA==" || audio.Text != "Hello" {
		t.Fatalf("unexpected audio chunk: %+v", audio)
	}
}

func TestParseServerMessageRejectsEmptyAudioChunk(t *testing.T) {
	_, err := ParseServerMessage([]byte(`{"type":"audio_chunk","content":""}`))
	if err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestParseServerMessageAudioResponseFinalMarker(t *testing.T) {
	raw := []byte(`{"type":"audio_response","content":"","is_final":true}`)
	msg, err := ParseServerMessage(raw)
	if err != nil {
		t.Fatalf("ParseServerMessage() error = %v", err)
	}

	resp, ok := msg.(AudioResponse)
	if !ok {
		t.Fatalf("message type = %T, want AudioResponse", msg)
	}
	if !resp.IsFinal || resp.Content != "" {
		t.Fatalf("unexpected audio response: %+v", resp)
	}
}

func TestParseServerMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseServerMessage([]byte(`{"type":"frobnicate"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseServerMessageRejectsMalformedFrame(t *testing.T) {
	_, err := ParseServerMessage([]byte(`not json`))
	if err == nil {
		t.Fatalf("expected envelope error")
	}
	if errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("malformed frame must not classify as unsupported type")
	}
}

func TestTypeOfOutboundMessages(t *testing.T) {
	if mt, ok := TypeOf(NewUserSpeech("hello world")); !ok || mt != TypeUserSpeech {
		t.Fatalf("TypeOf(UserSpeech) = %q, %v", mt, ok)
	}
	if mt, ok := TypeOf(NewPing()); !ok || mt != TypePing {
		t.Fatalf("TypeOf(Ping) = %q, %v", mt, ok)
	}
	if _, ok := TypeOf(42); ok {
		t.Fatalf("TypeOf(non-message) reported ok")
	}
}

func BenchmarkParseServerMessageAudioChunk(b *testing.B) {
	raw := []byte(`{"type":"audio_chunk","content":"AQIDBAUGBwgJCgsMDQ4P","text":"hi"}`)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		msg, err := ParseServerMessage(raw)
		if err != nil {
			b.Fatalf("ParseServerMessage() error = %v", err)
		}
		if _, ok := msg.(AudioChunk); !ok {
			b.Fatalf("message type = %T, want AudioChunk", msg)
		}
	}
}
