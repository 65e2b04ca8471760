package protocol

import (
	"errors"
	"testing"
)

func TestParseClientMessageStartSession(t *testing.T) {
	raw := []byte(`{"type":"start-session","userId":"u1","languageCode":"fr-FR"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	start, ok := msg.(StartSession)
	if !ok {
		t.Fatalf("message type = %T, want StartSession", msg)
	}
	if start.UserID != "u1" || start.LanguageCode != "fr-FR" {
		t.Fatalf("unexpected start-session: %+v", start)
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageAudioData(t *testing.T) {
	raw := []byte(`{"type":"audio-data","sessionId":"s1","samples":[1,2,3],"sampleRate":16000,"channels":1}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	audio, ok := msg.(AudioData)
	if !ok {
		t.Fatalf("message type = %T, want AudioData", msg)
	}
	if audio.SessionID != "s1" || len(audio.Samples) != 3 || audio.SampleRate != 16000 {
		t.Fatalf("unexpected audio-data: %+v", audio)
	}
}

func TestParseClientMessageRejectsAudioDataWithoutSessionID(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"audio-data","samples":[1]}`))
	if err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestParseClientMessageStartProcessingRequiresSessionID(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"start-processing"}`))
	if err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestParseClientMessageStopProcessingSessionIDOptional(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"stop-processing"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if _, ok := msg.(StopProcessing); !ok {
		t.Fatalf("message type = %T, want StopProcessing", msg)
	}
}

func TestParseClientMessageGetConversationHistory(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"get-conversation-history","limit":5}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	hist, ok := msg.(GetConversationHistory)
	if !ok {
		t.Fatalf("message type = %T, want GetConversationHistory", msg)
	}
	if hist.Limit != 5 {
		t.Fatalf("Limit = %d, want 5", hist.Limit)
	}
}

func BenchmarkParseClientMessageAudioData(b *testing.B) {
	raw := []byte(`{"type":"audio-data","sessionId":"s1","samples":[1,2,3,4,5,6,7,8],"sampleRate":16000}`)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		msg, err := ParseClientMessage(raw)
		if err != nil {
			b.Fatalf("ParseClientMessage() error = %v", err)
		}
		if _, ok := msg.(AudioData); !ok {
			b.Fatalf("message type = %T, want AudioData", msg)
		}
	}
}
