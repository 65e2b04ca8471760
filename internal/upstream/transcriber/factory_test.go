package transcriber

import "testing"

func TestNewAutoFallsBackToMockWithoutConfig(t *testing.T) {
	tr, err := New(Config{Mode: "auto"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := tr.(*Mock); !ok {
		t.Fatalf("got %T, want *Mock", tr)
	}
}

func TestNewAutoPrefersWebsocketWhenAPIKeySet(t *testing.T) {
	tr, err := New(Config{Mode: "auto", WebsocketVAD: WebsocketVADConfig{APIKey: "key"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := tr.(*WebsocketVAD); !ok {
		t.Fatalf("got %T, want *WebsocketVAD", tr)
	}
}

func TestNewWSModeRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{Mode: "ws"}); err == nil {
		t.Fatal("expected error for ws mode without API key")
	}
}

func TestNewDuplexModeRequiresScript(t *testing.T) {
	if _, err := New(Config{Mode: "duplex"}); err == nil {
		t.Fatal("expected error for duplex mode without script path")
	}
}

func TestNewUnsupportedMode(t *testing.T) {
	if _, err := New(Config{Mode: "bogus"}); err == nil {
		t.Fatal("expected error for unsupported mode")
	}
}
