package vocabulary

import (
	"strings"

	"orgfinder/internal/model"
)

// Resolver expands normalized text into canonical service tokens
type Resolver struct {
	synonyms []Synonyms
	direct   []string
	priority []string
}

// NewResolver creates a resolver over the given tables
func NewResolver(synonyms []Synonyms, direct, priority []string) *Resolver {
	return &Resolver{synonyms: synonyms, direct: direct, priority: priority}
}

// Default returns a resolver over the built-in tables
func Default() *Resolver {
	return NewResolver(DefaultSynonyms, DefaultDirectWords, DefaultPriority)
}

// Candidates returns every matched token in insertion order: synonym tokens
// first in table order, then direct words not already present.
func (r *Resolver) Candidates(normalized string) []string {
	text := strings.ToLower(normalized)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var out []string
	seen := make(map[string]bool)
	add := func(token string) {
		if !seen[token] {
			seen[token] = true
			out = append(out, token)
		}
	}

	for _, s := range r.synonyms {
		for _, phrase := range s.Phrases {
			if strings.Contains(text, phrase) {
				add(s.Token)
				break
			}
		}
	}
	for _, word := range r.direct {
		if strings.Contains(text, word) {
			add(word)
		}
	}
	return out
}

// Primary picks the highest-priority candidate, falling back to the first one
func (r *Resolver) Primary(candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	for _, p := range r.priority {
		for _, c := range candidates {
			if c == p {
				return p
			}
		}
	}
	return candidates[0]
}

// Resolve returns the canonical service set of normalized text.
// An empty set means no service constraint, not an error.
func (r *Resolver) Resolve(normalized string) model.CanonicalServiceSet {
	candidates := r.Candidates(normalized)
	if len(candidates) == 0 {
		return model.CanonicalServiceSet{}
	}
	return model.CanonicalServiceSet{
		Primary: r.Primary(candidates),
		All:     candidates,
	}
}
