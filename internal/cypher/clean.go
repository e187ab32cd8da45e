package cypher

import (
	"regexp"
	"strings"
)

var responsePrefixes = []string{
	"Here is the Cypher query:",
	"Here's the Cypher query:",
	"The Cypher query is:",
	"Cypher query:",
	"Query:",
	"Here is the query:",
	"Here's the query:",
}

var fencePattern = regexp.MustCompile("(?s)```(?:cypher)?\\s*(.*?)\\s*```")

// CleanResponse strips prose prefixes, markdown fences and doubled braces
// from generated query text
func CleanResponse(text string) string {
	s := strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	for _, p := range responsePrefixes {
		if len(s) >= len(p) && strings.EqualFold(s[:len(p)], p) {
			s = strings.TrimSpace(s[len(p):])
		}
	}
	s = strings.Trim(s, "`")
	s = strings.ReplaceAll(s, "{{", "{")
	s = strings.ReplaceAll(s, "}}", "}")
	return strings.TrimSpace(s)
}

var textLocationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`tolower\(l\.city\)`),
	regexp.MustCompile(`tolower\(l\.streetaddress\)`),
	regexp.MustCompile(`tolower\(l\.state\)`),
	regexp.MustCompile(`l\.city\s*contains`),
	regexp.MustCompile(`l\.streetaddress\s*contains`),
	regexp.MustCompile(`l\.zipcode\s*(?:=|contains)`),
	regexp.MustCompile(`l\.state\s*=`),
}

// ValidateSpatial returns the text location filters found in a spatial
// query. Distance is the only location constraint a spatial query should have.
func ValidateSpatial(query string) []string {
	q := strings.ToLower(query)
	var found []string
	for _, p := range textLocationPatterns {
		if m := p.FindString(q); m != "" {
			found = append(found, m)
		}
	}
	return found
}

var writeClause = regexp.MustCompile(`(?i)\b(?:create|merge|delete|detach|set|remove|drop)\b`)

// IsReadOnly reports whether a generated query only reads the graph
func IsReadOnly(query string) bool {
	q := strings.TrimSpace(query)
	upper := strings.ToUpper(q)
	if !strings.HasPrefix(upper, "MATCH") && !strings.HasPrefix(upper, "OPTIONAL MATCH") && !strings.HasPrefix(upper, "WITH") {
		return false
	}
	return strings.Contains(upper, "RETURN") && !writeClause.MatchString(q)
}
