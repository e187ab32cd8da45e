package spatial

import (
	"regexp"
	"strings"
)

const contextStop = `(?:\s+(?:has|have|with|on|at|in|is|are|handles|handle)\b|\s*$)`

var trailingStopWords = map[string]bool{
	"has": true, "have": true, "with": true, "on": true, "at": true,
	"in": true, "is": true, "are": true, "handles": true, "handle": true,
}

var (
	zipPattern = regexp.MustCompile(`\b(19\d{3})\b`)

	landmarkPhrasePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bnear\s+the\s+([a-zA-Z]+(?:\s+[a-zA-Z]+){1,4})` + contextStop),
		regexp.MustCompile(`\bclose\s+to\s+the\s+([a-zA-Z]+(?:\s+[a-zA-Z]+){1,4})` + contextStop),
		regexp.MustCompile(`\bat\s+the\s+([a-zA-Z]+(?:\s+[a-zA-Z]+){1,4})` + contextStop),
		regexp.MustCompile(`\baround\s+the\s+([a-zA-Z]+(?:\s+[a-zA-Z]+){1,4})` + contextStop),
		regexp.MustCompile(`\bnear\s+([a-zA-Z]+(?:\s+[a-zA-Z]+){1,3})` + contextStop),
		regexp.MustCompile(`\bclose\s+to\s+([a-zA-Z]+(?:\s+[a-zA-Z]+){1,3})` + contextStop),
	}

	numberedDirectionalPattern = regexp.MustCompile(`\b((?:north|south|east|west)\s+\d+(?:st|nd|rd|th)?\s+` + streetSuffix + `)\b`)
	numberedAddressPattern     = regexp.MustCompile(`\b(\d{1,5}\s+[a-zA-Z]+(?:\s+[a-zA-Z]+){0,2}\s+` + streetSuffix + `)\b`)

	directionalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b((?:north|south|east|west)\s+[a-zA-Z]+\s+` + streetSuffix + `)\b`),
		regexp.MustCompile(`\b((?:north|south|east|west)\s+[a-zA-Z]+\s+[a-zA-Z]+\s+` + streetSuffix + `)\b`),
	}

	streetPrepositionPatterns = []locationPattern{
		{regexp.MustCompile(`\bnear\s+([a-zA-Z]+(?:\s+[a-zA-Z]+){0,2}\s+` + streetSuffix + `)(?:\s|$)`), false},
		{regexp.MustCompile(`\bclose\s+to\s+([a-zA-Z]+(?:\s+[a-zA-Z]+){0,2}\s+` + streetSuffix + `)(?:\s|$)`), false},
		{regexp.MustCompile(`\bon\s+([a-zA-Z]+(?:\s+[a-zA-Z]+){0,2}\s+` + streetSuffix + `)(?:\s+(?:on|at|in)\b|\s*$)`), false},
		{regexp.MustCompile(`\bat\s+([a-zA-Z]+(?:\s+[a-zA-Z]+){0,2}\s+` + streetSuffix + `)(?:\s|$)`), false},
		{regexp.MustCompile(`\bin\s+([a-zA-Z]+(?:\s+[a-zA-Z]+){0,2}\s+` + streetSuffix + `)(?:\s|$)`), false},
		{regexp.MustCompile(`\baround\s+([a-zA-Z]+(?:\s+[a-zA-Z]+){0,2}\s+` + streetSuffix + `)(?:\s|$)`), true},
	}

	simplePrepositionPatterns = []locationPattern{
		{regexp.MustCompile(`\bnear\s+([a-zA-Z]+(?:\s+[a-zA-Z]+){0,3})` + contextStop), false},
		{regexp.MustCompile(`\bclose\s+to\s+([a-zA-Z]+(?:\s+[a-zA-Z]+){0,3})` + contextStop), false},
		{regexp.MustCompile(`\bat\s+([a-zA-Z]+(?:\s+[a-zA-Z]+){0,3})` + contextStop), false},
		{regexp.MustCompile(`\bin\s+([a-zA-Z]+(?:\s+[a-zA-Z]+){0,3})` + contextStop), false},
		{regexp.MustCompile(`\baround\s+([a-zA-Z]+(?:\s+[a-zA-Z]+){0,3})` + contextStop), true},
	}

	distancePhrasePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bwithin\s+\d+(?:\.\d+)?\s+(?:miles?|mi|km|blocks?)\s+of\s+([a-zA-Z]+(?:\s+[a-zA-Z]+){0,4})(?:\s+(?:has|have|with|on|at|in)\b|\s*$)`),
		regexp.MustCompile(`\d+\s*(?:miles?|mi|km|blocks?)\s+(?:of|from)\s+([a-zA-Z]+(?:\s+[a-zA-Z]+){0,4})(?:\s+(?:has|have|with|on|at|in)\b|\s*$)`),
	}

	hasLetter = regexp.MustCompile(`[a-zA-Z]`)
)

type locationPattern struct {
	re     *regexp.Regexp
	around bool
}

var (
	landmarkExclusions    = []string{"story", "time", "toddler", "program", "class", "service", "form", "tax", "application"}
	formExclusions        = []string{"form", "tax", "w2", "w-2", "1099", "statement", "document"}
	directionalExclusions = []string{"story", "time", "toddler", "has", "have", "with", "program", "class", "service"}
	phraseExclusions      = []string{
		"form", "tax", "w2", "w-2", "1099", "statement", "document", "paper",
		"apply", "retirement", "benefits", "where", "can",
		"story", "time", "toddler", "program", "class", "service",
	}
	simpleExclusions = append(append([]string{}, phraseExclusions...),
		"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday")
)

var exclusionCache = map[string]*regexp.Regexp{}

func init() {
	for _, list := range [][]string{landmarkExclusions, formExclusions, directionalExclusions, simpleExclusions} {
		for _, w := range list {
			if _, ok := exclusionCache[w]; !ok {
				exclusionCache[w] = regexp.MustCompile(`\b` + regexp.QuoteMeta(w) + `\b`)
			}
		}
	}
}

func containsExcluded(text string, words []string) bool {
	lower := strings.ToLower(text)
	for _, w := range words {
		if exclusionCache[w].MatchString(lower) {
			return true
		}
	}
	return false
}

// trimStopWords drops trailing context words. A phrase made only of stop
// words is returned unchanged.
func trimStopWords(text string) string {
	words := strings.Fields(text)
	for len(words) > 0 && trailingStopWords[strings.ToLower(words[len(words)-1])] {
		words = words[:len(words)-1]
	}
	if len(words) == 0 {
		return strings.TrimSpace(text)
	}
	return strings.Join(words, " ")
}

// ExtractLocationPhrase pulls the place description out of text. Layers run
// from most to least specific and the first accepted phrase wins.
func (r *Resolver) ExtractLocationPhrase(text string) string {
	q := strings.ToLower(text)

	if l, ok := r.gazetteer.Find(q); ok {
		return l.Name
	}

	if m := zipPattern.FindStringSubmatch(q); m != nil {
		return m[1]
	}

	for _, p := range landmarkPhrasePatterns {
		if m := p.FindStringSubmatch(q); m != nil {
			phrase := trimStopWords(m[1])
			if !containsExcluded(phrase, landmarkExclusions) && phrase != "" {
				return phrase
			}
		}
	}

	if m := numberedDirectionalPattern.FindStringSubmatch(q); m != nil {
		return strings.TrimSpace(m[1])
	}

	if m := numberedAddressPattern.FindStringSubmatch(q); m != nil {
		address := strings.TrimSpace(m[1])
		if !containsExcluded(address, formExclusions) {
			return address
		}
	}

	for _, p := range directionalPatterns {
		if m := p.FindStringSubmatch(q); m != nil {
			street := strings.TrimSpace(m[1])
			if !containsExcluded(street, directionalExclusions) {
				return street
			}
		}
	}

	aroundIsTime := aroundTimeAny.MatchString(q)

	for _, p := range streetPrepositionPatterns {
		if p.around && aroundIsTime {
			continue
		}
		if m := p.re.FindStringSubmatch(q); m != nil {
			street := strings.TrimSpace(m[1])
			if !containsExcluded(street, phraseExclusions) {
				return street
			}
		}
	}

	for _, p := range simplePrepositionPatterns {
		if p.around && aroundIsTime {
			continue
		}
		if m := p.re.FindStringSubmatch(q); m != nil {
			phrase := trimStopWords(m[1])
			if !containsExcluded(phrase, simpleExclusions) && hasLetter.MatchString(phrase) {
				return phrase
			}
		}
	}

	for _, p := range distancePhrasePatterns {
		if m := p.FindStringSubmatch(q); m != nil {
			phrase := trimStopWords(m[1])
			if !containsExcluded(phrase, phraseExclusions) {
				return phrase
			}
		}
	}

	return ""
}
