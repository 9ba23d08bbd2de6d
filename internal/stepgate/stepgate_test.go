package stepgate_test

import (
	"testing"

	"vidintel/internal/stepgate"
)

func TestGateShapes(t *testing.T) {
	tests := []struct {
		name    string
		raw     []string
		present bool
		stage   string
		want    bool
	}{
		{"null enables diarize", nil, false, stepgate.Diarize, true},
		{"null enables stt", nil, false, stepgate.STT, true},
		{"empty disables diarize", []string{}, true, stepgate.Diarize, false},
		{"empty disables stt", []string{}, true, stepgate.STT, false},
		{"membership", []string{"diarize"}, true, stepgate.Diarize, true},
		{"non member", []string{"diarize"}, true, stepgate.Voice, false},
		{"normalized", []string{" Enrich-CLI "}, true, stepgate.EnrichCLI, true},
		{"stt forced on", []string{"diarize"}, true, stepgate.STT, true},
		{"stt ignores no_stt", []string{"no_stt"}, true, stepgate.STT, true},
		{"stt ignores dash token", []string{"diarize", "-stt"}, true, stepgate.STT, true},
		{"stt ignores bang token", []string{"!stt"}, true, stepgate.STT, true},
		{"blank only behaves as empty", []string{"  "}, true, stepgate.Context, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := stepgate.Parse(tt.raw, tt.present)
			if got := gate.Enabled(tt.stage); got != tt.want {
				t.Fatalf("Enabled(%q) = %v, want %v", tt.stage, got, tt.want)
			}
		})
	}
}

func TestGateNames(t *testing.T) {
	gate := stepgate.Parse([]string{"voice", "Diarize", "voice"}, true)
	names := gate.Names()
	if len(names) != 2 || names[0] != "diarize" || names[1] != "voice" {
		t.Fatalf("Names = %v", names)
	}
	if !gate.Has("DIARIZE") || gate.Has("stt") {
		t.Fatal("unexpected Has result")
	}
	if stepgate.Parse(nil, false).Names() != nil {
		t.Fatal("null gate should have nil names")
	}
	if !stepgate.Parse(nil, true).Empty() {
		t.Fatal("explicit empty list should report Empty")
	}
}
