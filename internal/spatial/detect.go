package spatial

import (
	"regexp"
	"strings"
)

const streetSuffix = `(?:street|st|avenue|ave|road|rd|blvd|boulevard)`

var (
	explicitPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bnear\s+[a-zA-Z]`),
		regexp.MustCompile(`\bclose\s+to\s+[a-zA-Z]`),
		regexp.MustCompile(`\bwithin\s+\d+.*(?:mile|km|block)`),
		regexp.MustCompile(`\b\d+\s*(?:mile|km|block)s?\s+(?:of|from)`),
		regexp.MustCompile(`\b(?:walking|driving)\s+distance`),
	}

	addressPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\d+\s+\w+\s+` + streetSuffix),
		regexp.MustCompile(`(?:north|south|east|west)\s+\w+\s+` + streetSuffix),
		regexp.MustCompile(`\w+\s+` + streetSuffix + `(?:\s|$|,|\.)`),
		regexp.MustCompile(`\b19\d{3}\b`),
	}

	timeWordPattern = regexp.MustCompile(`\b(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday|` +
		`weekday|weekend|morning|afternoon|evening|night|today|tomorrow|yesterday|weekdays|weekends|` +
		`am|pm|oclock|o'clock)\b`)

	aroundTimePatterns = []*regexp.Regexp{
		regexp.MustCompile(`around\s+\d+\s*(am|pm|:\d+)`),
		regexp.MustCompile(`around\s+\d+\s*(o'?clock)`),
	}
	aroundTimeAny = regexp.MustCompile(`around\s+\d+\s*(am|pm|:\d+|o'?clock)`)

	timeContextPatterns = []*regexp.Regexp{
		regexp.MustCompile(`open\s+around`),
		regexp.MustCompile(`close\s+around`),
		regexp.MustCompile(`hours.*around`),
	}

	residualKeywords = []string{"closest", "nearest", "vicinity", "area", "location"}

	letterRun    = regexp.MustCompile(`^[a-zA-Z]+(?:\s+[a-zA-Z]+)*`)
	startsThe    = regexp.MustCompile(`^the\s`)
	startsA      = regexp.MustCompile(`^a\s`)
	startsDigit  = regexp.MustCompile(`^\d`)
	prefixIn     = regexp.MustCompile(`\bin\s+`)
	prefixAt     = regexp.MustCompile(`\bat\s+`)
	prefixOn     = regexp.MustCompile(`\bon\s+`)
	prefixAround = regexp.MustCompile(`\baround\s+`)
)

// prepositionRule captures the noun phrase after a preposition unless the
// phrase starts with one of the rejected openings
type prepositionRule struct {
	name   string
	prefix *regexp.Regexp
	reject []*regexp.Regexp
}

var prepositionRules = []prepositionRule{
	{"in", prefixIn, []*regexp.Regexp{startsThe, startsA, startsDigit}},
	{"at", prefixAt, []*regexp.Regexp{startsDigit}},
	{"on", prefixOn, []*regexp.Regexp{startsA, startsThe, startsDigit}},
}

var aroundRule = prepositionRule{"around", prefixAround, []*regexp.Regexp{startsThe, startsDigit}}

// candidates returns each captured phrase in scan order. A capture consumes the
// text it spans, so later prefixes inside it are not tried.
func (p prepositionRule) candidates(text string) []string {
	var out []string
	consumed := 0
	for _, loc := range p.prefix.FindAllStringIndex(text, -1) {
		if loc[0] < consumed {
			continue
		}
		rest := text[loc[1]:]
		rejected := false
		for _, r := range p.reject {
			if r.MatchString(rest) {
				rejected = true
				break
			}
		}
		if rejected {
			continue
		}
		m := letterRun.FindString(rest)
		if m == "" {
			continue
		}
		out = append(out, strings.TrimSpace(m))
		consumed = loc[1] + len(m)
	}
	return out
}

// Detection is the result of spatial-intent detection
type Detection struct {
	Spatial bool
	Rule    string
	Match   string
}

// Detect runs the detection rule banks in order; the first hit wins.
func (r *Resolver) Detect(text string) Detection {
	q := strings.ToLower(text)

	for _, p := range explicitPatterns {
		if m := p.FindString(q); m != "" {
			return Detection{Spatial: true, Rule: "explicit", Match: m}
		}
	}

	if l, ok := r.gazetteer.Find(q); ok {
		return Detection{Spatial: true, Rule: "landmark", Match: l.Name}
	}

	for _, p := range addressPatterns {
		if m := p.FindString(q); m != "" {
			return Detection{Spatial: true, Rule: "address", Match: m}
		}
	}

	for _, rule := range prepositionRules {
		for _, c := range rule.candidates(q) {
			if !timeWordPattern.MatchString(c) {
				return Detection{Spatial: true, Rule: "preposition_" + rule.name, Match: c}
			}
		}
	}

	hasAroundTime := false
	for _, p := range aroundTimePatterns {
		if p.MatchString(q) {
			hasAroundTime = true
			break
		}
	}

	for _, c := range aroundRule.candidates(q) {
		if !timeWordPattern.MatchString(c) {
			return Detection{Spatial: true, Rule: "preposition_around", Match: c}
		}
	}

	if hasAroundTime {
		for _, p := range timeContextPatterns {
			if p.MatchString(q) {
				return Detection{Spatial: false, Rule: "time_context"}
			}
		}
	}

	for _, kw := range residualKeywords {
		if strings.Contains(q, kw) {
			return Detection{Spatial: true, Rule: "keyword", Match: kw}
		}
	}
	return Detection{}
}

// DetectSpatial reports whether text asks for a location-bounded search
func (r *Resolver) DetectSpatial(text string) bool {
	return r.Detect(text).Spatial
}

var personalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`near me`),
	regexp.MustCompile(`around me`),
	regexp.MustCompile(`close to me`),
	regexp.MustCompile(`nearby me`),
	regexp.MustCompile(`within.*of me`),
	regexp.MustCompile(`my location`),
	regexp.MustCompile(`\bhere\b`),
	regexp.MustCompile(`where i am`),
	regexp.MustCompile(`my area`),
	regexp.MustCompile(`in my vicinity`),
}

// IsPersonalLocation reports whether text refers to the caller's own position
func IsPersonalLocation(text string) bool {
	q := strings.ToLower(text)
	for _, p := range personalPatterns {
		if p.MatchString(q) {
			return true
		}
	}
	return false
}
