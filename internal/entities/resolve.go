package entities

import "strings"

// CanonicalEntity is an entity proposed by canonicalization.
type CanonicalEntity struct {
	Type          string   `json:"type"`
	CanonicalName string   `json:"canonical_name"`
	Aliases       []string `json:"aliases"`
}

// CanonicalSet is the outcome of canonicalization. A nil set, a set with Err
// or an empty set means mentions resolve deterministically.
type CanonicalSet struct {
	Entities []CanonicalEntity
	Err      error
}

func (c *CanonicalSet) usable() bool {
	return c != nil && c.Err == nil && len(c.Entities) > 0
}

// Planned is an entity to persist. Key is "type:lower(canonical)" and Aliases
// always starts with the canonical name.
type Planned struct {
	Key           string
	Type          string
	CanonicalName string
	Aliases       []string
	Fallback      bool
}

// Resolved ties a mention to a planned entity.
type Resolved struct {
	Mention   RawMention
	EntityKey string
}

// Resolution is the full materialization plan for a video.
type Resolution struct {
	Entities        []Planned
	Mentions        []Resolved
	UsingCanonical  bool
	Inserted        int
	Skipped         int
	FallbackCreated int
}

type resolver struct {
	res     Resolution
	byKey   map[string]int
	aliases map[string]string
}

// Resolve plans entities and mention links. With a usable canonical set,
// entities are deduplicated by type and canonical name and unmatched mentions
// are skipped. Otherwise each candidate becomes an entity and any unmatched
// mention creates a fallback entity.
func Resolve(mentions []RawMention, candidates []Candidate, canonical *CanonicalSet) Resolution {
	r := &resolver{byKey: map[string]int{}, aliases: map[string]string{}}
	r.res.UsingCanonical = canonical.usable()

	if r.res.UsingCanonical {
		for _, e := range canonical.Entities {
			name := strings.TrimSpace(e.CanonicalName)
			if name == "" {
				continue
			}
			r.add(e.Type, name, UniqStrings(e.Aliases, maxEntityAliases), false)
		}
	} else {
		for _, c := range candidates {
			r.add(c.Type, strings.TrimSpace(c.Surface), nil, false)
		}
	}

	for _, m := range mentions {
		key, ok := r.lookup(m.Type, m.Surface)
		if !ok {
			if r.res.UsingCanonical {
				r.res.Skipped++
				continue
			}
			before := len(r.res.Entities)
			key = r.add(m.Type, strings.TrimSpace(m.Surface), nil, true)
			if key == "" {
				r.res.Skipped++
				continue
			}
			if len(r.res.Entities) > before {
				r.res.FallbackCreated++
			}
		}
		r.res.Mentions = append(r.res.Mentions, Resolved{Mention: m, EntityKey: key})
		r.res.Inserted++
	}
	return r.res
}

func (r *resolver) add(entityType, canonical string, aliases []string, fallback bool) string {
	if canonical == "" {
		return ""
	}
	key := entityType + ":" + strings.ToLower(canonical)
	if i, ok := r.byKey[key]; ok {
		r.res.Entities[i].Aliases = UniqStrings(append(r.res.Entities[i].Aliases, aliases...), maxEntityAliases)
	} else {
		r.byKey[key] = len(r.res.Entities)
		r.res.Entities = append(r.res.Entities, Planned{
			Key:           key,
			Type:          entityType,
			CanonicalName: canonical,
			Aliases:       UniqStrings(append([]string{canonical}, aliases...), maxEntityAliases),
			Fallback:      fallback,
		})
	}
	planned := r.res.Entities[r.byKey[key]]
	for _, alias := range UniqStrings(planned.Aliases, maxIndexedAliases) {
		if norm := NormAlias(alias); norm != "" {
			r.aliases[entityType+":"+norm] = key
		}
	}
	return key
}

func (r *resolver) lookup(entityType, surface string) (string, bool) {
	for _, variant := range lookupVariants(surface) {
		norm := NormAlias(variant)
		if norm == "" {
			continue
		}
		if key, ok := r.aliases[entityType+":"+norm]; ok {
			return key, true
		}
	}
	return "", false
}
