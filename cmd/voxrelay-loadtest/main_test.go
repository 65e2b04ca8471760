package main

import "testing"

func TestWSURLForRewritesScheme(t *testing.T) {
	got, err := wsURLFor("http://127.0.0.1:3000")
	if err != nil {
		t.Fatalf("wsURLFor() error = %v", err)
	}
	if got != "ws://127.0.0.1:3000/ws" {
		t.Fatalf("wsURLFor() = %q, want ws://127.0.0.1:3000/ws", got)
	}
}

func TestWSURLForRejectsUnsupportedScheme(t *testing.T) {
	if _, err := wsURLFor("ftp://127.0.0.1:3000"); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

func TestFillToneProducesNonZeroSamples(t *testing.T) {
	samples := make([]int16, 160)
	fillTone(samples, 16000, 220.0, 0)
	nonZero := 0
	for _, s := range samples {
		if s != 0 {
			nonZero++
		}
	}
	if nonZero == 0 {
		t.Fatal("expected fillTone to produce non-zero samples")
	}
}
