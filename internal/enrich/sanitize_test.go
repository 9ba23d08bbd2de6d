package enrich

import (
	"fmt"
	"strings"
	"testing"

	"vidintel/internal/entities"
)

func TestSanitizeEntities(t *testing.T) {
	raw := Output{Entities: []entities.CanonicalEntity{
		{Type: "person", CanonicalName: "  Ada Lovelace ", Aliases: []string{"Ada", "ada", " "}},
		{Type: "org", CanonicalName: "   "},
	}}
	got := Sanitize(raw, 0)
	if len(got.Entities) != 1 {
		t.Fatalf("expected blank canonical to be dropped, got %#v", got.Entities)
	}
	e := got.Entities[0]
	if e.CanonicalName != "Ada Lovelace" {
		t.Fatalf("canonical = %q", e.CanonicalName)
	}
	if strings.Join(e.Aliases, "|") != "Ada|Ada Lovelace" {
		t.Fatalf("aliases = %q", e.Aliases)
	}
}

func TestSanitizeCapsEntitiesAndAliases(t *testing.T) {
	var raw Output
	aliases := make([]string, 100)
	for i := range aliases {
		aliases[i] = fmt.Sprintf("alias %d", i)
	}
	for i := 0; i < 300; i++ {
		raw.Entities = append(raw.Entities, entities.CanonicalEntity{Type: "org", CanonicalName: fmt.Sprintf("Org %d", i), Aliases: aliases})
	}
	got := Sanitize(raw, 0)
	if len(got.Entities) != maxEntities {
		t.Fatalf("entities = %d, want %d", len(got.Entities), maxEntities)
	}
	if n := len(got.Entities[0].Aliases); n != maxEntityAliases {
		t.Fatalf("aliases = %d, want %d", n, maxEntityAliases)
	}
}

func TestSanitizeTags(t *testing.T) {
	got := Sanitize(Output{Tags: []string{"Space", "space", " Rockets ", "", "SPACE!"}}, 0)
	if strings.Join(got.Tags, ",") != "space,rockets" {
		t.Fatalf("tags = %q", got.Tags)
	}
}

func TestSanitizeChapters(t *testing.T) {
	tests := []struct {
		name  string
		in    []Chapter
		endMs int64
		want  []Chapter
	}{
		{
			name:  "sorted and clamped",
			in:    []Chapter{{StartMs: 50_000, EndMs: 90_000, Title: "Two"}, {StartMs: 0, EndMs: 50_000, Title: " One "}},
			endMs: 80_000,
			want:  []Chapter{{0, 50_000, "One"}, {50_000, 80_000, "Two"}},
		},
		{
			name:  "untitled and empty dropped",
			in:    []Chapter{{StartMs: 0, EndMs: 10, Title: ""}, {StartMs: 20, EndMs: 20, Title: "Empty"}, {StartMs: 30, EndMs: 40, Title: "Kept"}},
			endMs: 0,
			want:  []Chapter{{30, 40, "Kept"}},
		},
		{
			name:  "overlap nudged",
			in:    []Chapter{{0, 100, "A"}, {80, 200, "B"}},
			endMs: 0,
			want:  []Chapter{{0, 100, "A"}, {100, 200, "B"}},
		},
		{
			name:  "contained overlap skipped",
			in:    []Chapter{{0, 100, "A"}, {20, 90, "B"}, {100, 150, "C"}},
			endMs: 0,
			want:  []Chapter{{0, 100, "A"}, {100, 150, "C"}},
		},
		{
			name:  "beyond end collapses",
			in:    []Chapter{{90_000, 95_000, "Late"}},
			endMs: 80_000,
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(Output{Chapters: tt.in}, tt.endMs).Chapters
			if len(got) != len(tt.want) {
				t.Fatalf("chapters = %#v, want %#v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("chapter %d = %#v, want %#v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestTrimChunksBudget(t *testing.T) {
	long := strings.Repeat("a", 6000)
	chunks := []ChunkText{{0, 1, long}, {1, 2, long}, {2, 3, long}}
	got := TrimChunks(chunks, 500)
	if len(got) != 2 {
		t.Fatalf("expected two chunks under the 10000 floor, got %d", len(got))
	}
	if len(got[1].Text) != 4000 {
		t.Fatalf("second chunk len = %d, want 4000", len(got[1].Text))
	}
	if all := TrimChunks(chunks, 80_000); len(all) != 3 || all[2].Text != long {
		t.Fatalf("expected untouched chunks with large budget")
	}
}
