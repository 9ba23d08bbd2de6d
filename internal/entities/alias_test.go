package entities

import (
	"reflect"
	"testing"
)

func TestNormAlias(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Apple   Inc. ", "apple inc"},
		{`"OpenAI"`, "openai"},
		{"‘Berlin’", "berlin"},
		{"Dr.  Who?!", "dr. who"},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := NormAlias(tt.in); got != tt.want {
			t.Fatalf("NormAlias(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUniqStrings(t *testing.T) {
	got := UniqStrings([]string{" Apple ", "apple.", "", "Google", "\"google\"", "Meta"}, 2)
	want := []string{"Apple", "Google"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("UniqStrings = %v, want %v", got, want)
	}
}

func TestLookupVariants(t *testing.T) {
	got := lookupVariants("The Acme Inc.")
	want := []string{"The Acme Inc.", "Acme Inc.", "The Acme", "The Acme Inc."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("lookupVariants = %v, want %v", got, want)
	}
}
