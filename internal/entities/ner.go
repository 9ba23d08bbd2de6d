package entities

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jdkato/prose/v2"
)

// NamedEntity is one entity found in a piece of text.
type NamedEntity struct {
	Type       string
	Name       string
	Confidence float64
}

// Extractor finds named entities in cue text.
type Extractor interface {
	Extract(text string) []NamedEntity
}

var typeConfidence = map[string]float64{
	TypePerson:   0.6,
	TypeOrg:      0.55,
	TypeLocation: 0.55,
}

var orgSuffixPattern = regexp.MustCompile(`\b((?:[A-Z][\w&'-]*\s+){0,4}(?:Inc\.?|LLC|Corp\.?|Ltd\.?|Foundation|University))(?:\W|$)`)

// ProseExtractor tags people and places with the prose NER model and finds
// organizations by their legal or institutional suffix.
type ProseExtractor struct{}

// NewProseExtractor returns the default extractor.
func NewProseExtractor() *ProseExtractor {
	return &ProseExtractor{}
}

// Extract implements Extractor. Results are unique per type and lowercased
// name, in person, org, location order.
func (ProseExtractor) Extract(text string) []NamedEntity {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var people, orgs, places []string
	if doc, err := prose.NewDocument(text, prose.WithSegmentation(false)); err == nil {
		for _, ent := range doc.Entities() {
			switch ent.Label {
			case "PERSON":
				people = append(people, ent.Text)
			case "GPE", "LOC":
				places = append(places, ent.Text)
			case "ORG":
				orgs = append(orgs, ent.Text)
			}
		}
	}
	for _, match := range orgSuffixPattern.FindAllStringSubmatch(text, -1) {
		orgs = append(orgs, match[1])
	}

	seen := make(map[string]struct{})
	var out []NamedEntity
	add := func(entityType string, names []string) {
		for _, name := range names {
			name = strings.TrimSpace(name)
			if utf8.RuneCountInString(name) < 2 {
				continue
			}
			key := entityType + ":" + strings.ToLower(name)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, NamedEntity{Type: entityType, Name: name, Confidence: typeConfidence[entityType]})
		}
	}
	add(TypePerson, people)
	add(TypeOrg, orgs)
	add(TypeLocation, places)
	return out
}

// CueText is the cue view mention extraction needs.
type CueText struct {
	ID      string
	StartMs int64
	EndMs   int64
	Text    string
}

// ExtractMentions runs the extractor over every cue.
func ExtractMentions(ex Extractor, cues []CueText) []RawMention {
	var mentions []RawMention
	for _, cue := range cues {
		for _, ent := range ex.Extract(cue.Text) {
			surface := strings.TrimSpace(ent.Name)
			if surface == "" {
				continue
			}
			mentions = append(mentions, RawMention{
				Type:       ent.Type,
				Surface:    surface,
				CueID:      cue.ID,
				StartMs:    cue.StartMs,
				EndMs:      cue.EndMs,
				Confidence: ent.Confidence,
			})
		}
	}
	return mentions
}
