package classifier

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"orgfinder/internal/model"
	"orgfinder/internal/spatial"
)

var timePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(?:this|tomorrow|today)\s+(?:morning|afternoon|evening|night)\b`),
	regexp.MustCompile(`\b(?:morning|afternoon|evening|night)s?\b`),
	regexp.MustCompile(`\b(?:tonight|today|tomorrow|now)\b`),
	regexp.MustCompile(`\b(?:weekdays?|weekends?)\b`),
	regexp.MustCompile(`\b(?:(?:mon|tues|wednes|thurs|fri|satur|sun)days?|mon|tue|tues|wed|thu|thur|thurs|fri|sat)\b`),
	regexp.MustCompile(`\b\d{1,2}(?::\d{2})?\s*(?:am|pm|a\.m\.|p\.m\.)`),
	regexp.MustCompile(`\bnoon\b`),
}

var (
	tokenPattern   = regexp.MustCompile(`[a-z0-9][a-z0-9'\-]*`)
	distanceDigits = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
)

var serviceStopWords = toSet(
	"a", "an", "the", "i", "me", "my", "we", "us", "you", "need", "want", "looking", "look",
	"for", "find", "show", "get", "where", "what", "which", "who", "is", "are", "there", "any",
	"some", "can", "could", "do", "does", "with", "that", "have", "has", "offer", "offers",
	"offering", "provide", "provides", "near", "nearby", "around", "close", "closest", "nearest",
	"to", "in", "at", "on", "of", "by", "from", "within", "mile", "miles", "mi", "km", "block",
	"blocks", "walking", "driving", "distance", "place", "places", "organization", "organizations",
	"location", "locations", "area", "vicinity", "here", "open", "please", "and", "or", "this",
	"library", "libraries", "it", "they", "them", "their", "how", "when", "am", "pm", "o'clock",
)

func toSet(words ...string) map[string]bool {
	out := make(map[string]bool, len(words))
	for _, w := range words {
		out[w] = true
	}
	return out
}

// Heuristic is the deterministic classifier. It never calls out and is the
// default implementation.
type Heuristic struct {
	spatial *spatial.Resolver
}

// NewHeuristic creates a heuristic classifier that uses resolver for
// location phrase extraction
func NewHeuristic(resolver *spatial.Resolver) *Heuristic {
	if resolver == nil {
		resolver = spatial.NewResolver(spatial.Options{}, nil, nil)
	}
	return &Heuristic{spatial: resolver}
}

// Extract implements Classifier
func (h *Heuristic) Extract(ctx context.Context, query string) (Extraction, error) {
	if err := ctx.Err(); err != nil {
		return Extraction{}, err
	}
	return Extraction{Intent: h.ExtractIntent(query), Source: SourceHeuristic}, nil
}

// Categorize implements Classifier
func (h *Heuristic) Categorize(ctx context.Context, services []string) (Categorization, error) {
	if err := ctx.Err(); err != nil {
		return Categorization{}, err
	}
	return Categorization{Plan: BuildPlan(services), Source: SourceHeuristic}, nil
}

// ExtractIntent splits query into time, location and service phrases
func (h *Heuristic) ExtractIntent(query string) model.ExtractedIntent {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return model.ExtractedIntent{}
	}

	spans := timeSpans(q)
	var timeParts []string
	for _, s := range spans {
		timeParts = append(timeParts, q[s[0]:s[1]])
	}

	location := ""
	if !spatial.IsPersonalLocation(q) && (h.spatial.DetectSpatial(q) || zipInText(q)) {
		location = h.spatial.ExtractLocationPhrase(q)
	}

	rest := blankSpans(q, spans)
	if location != "" {
		rest = strings.Replace(rest, location, " ", 1)
	}

	var serviceParts []string
	for _, tok := range tokenPattern.FindAllString(rest, -1) {
		if serviceStopWords[tok] || distanceDigits.MatchString(tok) {
			continue
		}
		serviceParts = append(serviceParts, tok)
	}

	return model.ExtractedIntent{
		TimePhrase:     strings.Join(timeParts, " "),
		LocationPhrase: location,
		ServicePhrase:  strings.Join(serviceParts, " "),
	}
}

var zipToken = regexp.MustCompile(`\b\d{5}\b`)

func zipInText(q string) bool {
	return zipToken.MatchString(q)
}

// timeSpans returns the merged, ordered byte ranges of every time expression
func timeSpans(q string) [][2]int {
	var spans [][2]int
	for _, p := range timePatterns {
		for _, m := range p.FindAllStringIndex(q, -1) {
			spans = append(spans, [2]int{m[0], m[1]})
		}
	}
	if len(spans) == 0 {
		return nil
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i][0] != spans[j][0] {
			return spans[i][0] < spans[j][0]
		}
		return spans[i][1] > spans[j][1]
	})

	merged := [][2]int{spans[0]}
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s[0] <= last[1] {
			if s[1] > last[1] {
				last[1] = s[1]
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

func blankSpans(q string, spans [][2]int) string {
	if len(spans) == 0 {
		return q
	}
	b := []byte(q)
	for _, s := range spans {
		for i := s[0]; i < s[1]; i++ {
			b[i] = ' '
		}
	}
	return string(b)
}

var _ Classifier = (*Heuristic)(nil)
