package entities

import (
	"errors"
	"testing"
)

func mention(entityType, surface string, startMs int64) RawMention {
	return RawMention{Type: entityType, Surface: surface, CueID: "cue", StartMs: startMs, EndMs: startMs + 1000, Confidence: 0.6}
}

func TestAggregateGroupsAndOrders(t *testing.T) {
	mentions := []RawMention{
		mention(TypeOrg, "Acme", 0),
		mention(TypePerson, "Ada Lovelace", 1000),
		mention(TypePerson, "ada lovelace", 2000),
		mention(TypePerson, "Ada Lovelace", 3000),
		mention(TypePerson, "ADA LOVELACE", 4000),
		mention(TypeLocation, "Acme", 5000),
	}
	got := Aggregate(mentions)
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %#v", got)
	}
	first := got[0]
	if first.Surface != "Ada Lovelace" || first.Count != 4 || len(first.ExamplesMs) != 3 || first.ExamplesMs[2] != 3000 {
		t.Fatalf("unexpected first candidate: %#v", first)
	}
	if got[1].Type != TypeOrg || got[2].Type != TypeLocation {
		t.Fatalf("ties should keep first-seen order: %#v", got)
	}
}

func TestAggregateCaps(t *testing.T) {
	var mentions []RawMention
	for i := range 400 {
		mentions = append(mentions, mention(TypePerson, string(rune('A'+i%26))+string(rune('a'+i/26)), int64(i)))
	}
	if got := Aggregate(mentions); len(got) != maxCandidates {
		t.Fatalf("expected cap %d, got %d", maxCandidates, len(got))
	}
}

func TestResolveDeterministicCreatesFallbacks(t *testing.T) {
	mentions := []RawMention{
		mention(TypeOrg, "Acme", 0),
		mention(TypeOrg, "The Acme", 1000),
		mention(TypePerson, "Grace", 2000),
	}
	candidates := Aggregate(mentions[:1])
	res := Resolve(mentions, candidates, nil)
	if res.UsingCanonical {
		t.Fatal("nil canonical set must resolve deterministically")
	}
	if res.Inserted != 3 || res.Skipped != 0 || res.FallbackCreated != 1 {
		t.Fatalf("unexpected counts: %+v", res)
	}
	if res.Mentions[1].EntityKey != "org:acme" {
		t.Fatalf("leading article should resolve to acme, got %q", res.Mentions[1].EntityKey)
	}
	if len(res.Entities) != 2 || !res.Entities[1].Fallback || res.Entities[1].Aliases[0] != "Grace" {
		t.Fatalf("unexpected entities: %#v", res.Entities)
	}
}

func TestResolveCanonicalSkipsUnmatched(t *testing.T) {
	mentions := []RawMention{
		mention(TypeOrg, "Acme Inc.", 0),
		mention(TypeOrg, "ACME", 1000),
		mention(TypePerson, "Bob", 2000),
		mention(TypeOrg, "Globex LLC", 3000),
	}
	canonical := &CanonicalSet{Entities: []CanonicalEntity{
		{Type: TypeOrg, CanonicalName: "Acme Corporation", Aliases: []string{"Acme"}},
		{Type: TypeOrg, CanonicalName: "acme corporation", Aliases: []string{"Acme Corp"}},
		{Type: TypeOrg, CanonicalName: "Globex", Aliases: nil},
		{Type: TypePerson, CanonicalName: "  ", Aliases: []string{"ignored"}},
	}}
	res := Resolve(mentions, Aggregate(mentions), canonical)
	if !res.UsingCanonical {
		t.Fatal("expected canonical resolution")
	}
	if len(res.Entities) != 2 {
		t.Fatalf("expected dedup to 2 entities, got %#v", res.Entities)
	}
	acme := res.Entities[0]
	if acme.CanonicalName != "Acme Corporation" || len(acme.Aliases) != 3 {
		t.Fatalf("unexpected merged entity: %#v", acme)
	}
	if res.Inserted != 3 || res.Skipped != 1 || res.FallbackCreated != 0 {
		t.Fatalf("unexpected counts: %+v", res)
	}
	if res.Mentions[2].EntityKey != "org:globex" {
		t.Fatalf("llc suffix should resolve to globex: %#v", res.Mentions[2])
	}
}

func TestResolveFailedCanonicalFallsBack(t *testing.T) {
	mentions := []RawMention{mention(TypePerson, "Bob", 0)}
	res := Resolve(mentions, Aggregate(mentions), &CanonicalSet{Err: errors.New("timeout")})
	if res.UsingCanonical || res.Inserted != 1 || len(res.Entities) != 1 {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestResolveCanonicalAliasWithLeadingArticle(t *testing.T) {
	mentions := []RawMention{
		mention(TypePerson, "Jane Doe", 0),
		mention(TypePerson, "the Jane", 1000),
		mention(TypePerson, "John Smith", 2000),
	}
	canonical := &CanonicalSet{Entities: []CanonicalEntity{
		{Type: TypePerson, CanonicalName: "Jane Doe", Aliases: []string{"Jane"}},
	}}
	res := Resolve(mentions, Aggregate(mentions), canonical)
	if !res.UsingCanonical || len(res.Entities) != 1 {
		t.Fatalf("unexpected entities: %#v", res.Entities)
	}
	if res.Inserted != 2 || res.Skipped != 1 || res.FallbackCreated != 0 {
		t.Fatalf("unexpected counts: %+v", res)
	}
	for _, m := range res.Mentions {
		if m.EntityKey != "person:jane doe" {
			t.Fatalf("mention %q resolved to %q", m.Mention.Surface, m.EntityKey)
		}
		if m.Mention.Surface == "John Smith" {
			t.Fatal("John Smith should be skipped")
		}
	}
}
