package normalizer

import (
	"regexp"
	"strings"
)

// Alias rewrites one lexical variant to the form stored in the graph
type Alias struct {
	From string
	To   string
}

// DefaultAliases is applied in order. Targets are never themselves a From
// entry, so a second pass is a no-op.
var DefaultAliases = []Alias{
	{"wifi", "wi-fi"},
	{"internet", "wi-fi"},
	{"wireless", "wi-fi"},

	{"meal", "food"},
	{"meals", "food"},
	{"dining", "food"},
	{"lunch", "food"},
	{"dinner", "food"},
	{"breakfast", "food"},

	{"appeals", "appeal"},
	{"benefits", "benefit"},
	{"applications", "apply"},
	{"computers", "computer"},
	{"classes", "class"},
	{"workshops", "workshop"},
	{"programs", "program"},
	{"collections", "collection"},
	{"rooms", "room"},
	{"spaces", "space"},
	{"events", "event"},
	{"services", "service"},
	{"books", "book"},
	{"cards", "card"},
	{"statements", "statement"},
	{"estimates", "estimate"},

	{"housing", "shelter"},
	{"stay", "shelter"},
	{"clothes", "clothing"},

	{"printing", "print"},
	{"copying", "copy"},
	{"scanning", "scan"},
	{"tutoring", "homework help"},
	{"employment", "job assistance"},
	{"storytime", "story time"},
	{"after-school", "after school"},
	{"programming", "coding"},
	{"audiobooks", "audio"},
}

type rule struct {
	from    string
	pattern *regexp.Regexp
	to      string
}

// Normalizer applies a fixed ordered table of whole-word substitutions
type Normalizer struct {
	rules []rule
}

// New compiles the alias table. Duplicate From entries keep the first target.
func New(aliases []Alias) *Normalizer {
	seen := make(map[string]bool, len(aliases))
	rules := make([]rule, 0, len(aliases))
	for _, a := range aliases {
		key := strings.ToLower(a.From)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		rules = append(rules, rule{
			from:    key,
			pattern: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(key) + `\b`),
			to:      a.To,
		})
	}
	return &Normalizer{rules: rules}
}

// Default returns a normalizer over DefaultAliases
func Default() *Normalizer {
	return New(DefaultAliases)
}

// Normalize rewrites aliases in text. Casing outside the replaced words is kept.
func (n *Normalizer) Normalize(text string) string {
	if text == "" {
		return ""
	}
	out := text
	for _, r := range n.rules {
		if !strings.Contains(strings.ToLower(out), r.from) {
			continue
		}
		out = r.pattern.ReplaceAllLiteralString(out, r.to)
	}
	return out
}
