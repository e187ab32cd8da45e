package memory

import (
	"regexp"
	"strings"
)

// RuleKind tags a rule bank entry
type RuleKind string

const (
	PronounRule    RuleKind = "pronoun"
	FollowupRule   RuleKind = "followup"
	DetailOnlyRule RuleKind = "detail_only"
	TopicRule      RuleKind = "topic"
)

// Rule is one named pattern of a rule bank
type Rule struct {
	Kind    RuleKind
	Name    string
	Pattern *regexp.Regexp
}

// Matches reports whether the lowercased query matches the rule
func (r Rule) Matches(lowerQuery string) bool {
	return r.Pattern.MatchString(lowerQuery)
}

func rule(kind RuleKind, name, pattern string) Rule {
	return Rule{Kind: kind, Name: name, Pattern: regexp.MustCompile(pattern)}
}

// PronounRules detect references to organizations of the previous turn
var PronounRules = []Rule{
	rule(PronounRule, "they", `\bthey\b`),
	rule(PronounRule, "them", `\bthem\b`),
	rule(PronounRule, "their", `\btheir\b`),
	rule(PronounRule, "those", `\bthose\b`),
	rule(PronounRule, "it", `\bit\b`),
	rule(PronounRule, "that_place", `\bthat\s+(?:organization|place)\b`),
	rule(PronounRule, "this_place", `\bthis\s+(?:organization|place)\b`),
}

// FollowupRules detect interrogatives that continue the previous turn
var FollowupRules = []Rule{
	rule(FollowupRule, "what_about", `^(?:what about|how about|do they|are they|can i|is there)`),
	rule(FollowupRule, "which_ones", `^(?:which ones|any of them|what are their)`),
	rule(FollowupRule, "show_their", `^(?:show me their|tell me about their)`),
	rule(FollowupRule, "hours", `hours\?$`),
	rule(FollowupRule, "services", `services\?$`),
	rule(FollowupRule, "address", `address\?$`),
	rule(FollowupRule, "phone", `phone\?$`),
}

// DetailOnlyRules detect detail questions; they only apply without a new location
var DetailOnlyRules = []Rule{
	rule(DetailOnlyRule, "what_services", `^(?:what services|what are the hours|when are they open)`),
	rule(DetailOnlyRule, "do_any_have", `^(?:do any have|does anyone have|which have)`),
	rule(DetailOnlyRule, "detail_for", `^(?:phone number|address|location) for`),
}

// newLocationRules detect a query that introduces its own location
var newLocationRules = []*regexp.Regexp{
	regexp.MustCompile(`\bnear\s+\w+`),
	regexp.MustCompile(`\bclose\s+to\s+\w+`),
	regexp.MustCompile(`\bin\s+\w+`),
	regexp.MustCompile(`\bat\s+\w+`),
	regexp.MustCompile(`\baround\s+\w+`),
	regexp.MustCompile(`\bwithin\s+\d+`),
}

// TopicWords is the vocabulary used for topic continuity between two queries
var TopicWords = []string{
	"printing", "computers", "wifi", "internet", "copying",
	"books", "study", "meeting", "programs", "classes",
	"hours", "open", "closed", "schedule", "time",
}

var simpleFollowupPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(?:what are their|what about their|do they have|can i|tell me about their)`),
	regexp.MustCompile(`^(?:which ones|any of them|how many)`),
	regexp.MustCompile(`hours\?`),
	regexp.MustCompile(`services\?`),
	regexp.MustCompile(`address\?`),
	regexp.MustCompile(`phone\?`),
	regexp.MustCompile(`location\?`),
}

var focusedFollowupPatterns = []*regexp.Regexp{
	regexp.MustCompile(`what are their.*(?:paid|free).*services`),
	regexp.MustCompile(`do they have.*(?:wifi|wi-fi|printing|computers)`),
	regexp.MustCompile(`what are their hours on \w+`),
	regexp.MustCompile(`are they open on \w+`),
	regexp.MustCompile(`what.*phone.*number`),
	regexp.MustCompile(`what.*address`),
	regexp.MustCompile(`when.*(?:open|close)`),
	regexp.MustCompile(`how much.*(?:cost|price)`),
}

type substitution struct {
	pattern *regexp.Regexp
}

var pronounSubstitutions = []substitution{
	{regexp.MustCompile(`(?i)\bthey\b`)},
	{regexp.MustCompile(`(?i)\bthem\b`)},
	{regexp.MustCompile(`(?i)\bthose\s+(?:libraries|places|organizations)\b`)},
	{regexp.MustCompile(`(?i)\bthose\b`)},
}

func firstMatch(rules []Rule, lowerQuery string) (Rule, bool) {
	for _, r := range rules {
		if r.Matches(lowerQuery) {
			return r, true
		}
	}
	return Rule{}, false
}

// HasNewLocation reports whether query introduces a location of its own
func HasNewLocation(query string) bool {
	q := strings.ToLower(query)
	for _, p := range newLocationRules {
		if p.MatchString(q) {
			return true
		}
	}
	return false
}

// Topics returns the topic words found in query
func Topics(query string) map[string]bool {
	q := strings.ToLower(query)
	out := make(map[string]bool)
	for _, w := range TopicWords {
		if strings.Contains(q, w) {
			out[w] = true
		}
	}
	return out
}

// sharedTopic returns one topic word common to a and b, in TopicWords order
func sharedTopic(a, b string) (string, bool) {
	ta, tb := Topics(a), Topics(b)
	for _, w := range TopicWords {
		if ta[w] && tb[w] {
			return w, true
		}
	}
	return "", false
}

// IsSimpleFollowup reports whether query can be answered from cached results as-is
func IsSimpleFollowup(query string) bool {
	q := strings.ToLower(query)
	for _, p := range simpleFollowupPatterns {
		if p.MatchString(q) {
			return true
		}
	}
	return false
}

// IsFocusedFollowup reports whether query asks for one specific detail of cached results
func IsFocusedFollowup(query string) bool {
	q := strings.ToLower(query)
	for _, p := range focusedFollowupPatterns {
		if p.MatchString(q) {
			return true
		}
	}
	return false
}
