package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	fencedJSONPattern  = regexp.MustCompile("(?s)```json\\s*(.+?)\\s*```")
	fencedPattern      = regexp.MustCompile("(?s)```\\s*(.+?)\\s*```")
	trailingCommaRegex = regexp.MustCompile(`,\s*([}\]])`)
	bareKeyPattern     = regexp.MustCompile(`([{,]\s*)(\w+)(\s*:)`)
	controlCharPattern = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)
)

// ParseJSON extracts and parses JSON from model output that may contain:
// - Pure JSON
// - JSON wrapped in markdown code blocks (```json ... ```)
// - JSON with surrounding text
// - JSON with trailing commas, bare keys or single quotes
func ParseJSON(input string, target interface{}) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return fmt.Errorf("empty input")
	}

	if err := json.Unmarshal([]byte(input), target); err == nil {
		return nil
	}

	if extracted := extractFromMarkdown(input); extracted != "" {
		if err := json.Unmarshal([]byte(extracted), target); err == nil {
			return nil
		}
	}

	if extracted := extractJSONFromText(input); extracted != "" {
		if err := json.Unmarshal([]byte(extracted), target); err == nil {
			return nil
		}
		if cleaned := cleanAndFixJSON(extracted); cleaned != "" {
			if err := json.Unmarshal([]byte(cleaned), target); err == nil {
				return nil
			}
		}
	}

	if cleaned := cleanAndFixJSON(input); cleaned != "" {
		if err := json.Unmarshal([]byte(cleaned), target); err == nil {
			return nil
		}
	}

	return fmt.Errorf("failed to parse JSON from input: %s", truncate(input, 100))
}

// extractFromMarkdown extracts JSON from markdown code blocks
func extractFromMarkdown(input string) string {
	if matches := fencedJSONPattern.FindStringSubmatch(input); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	if matches := fencedPattern.FindStringSubmatch(input); len(matches) > 1 {
		content := strings.TrimSpace(matches[1])
		if strings.HasPrefix(content, "{") || strings.HasPrefix(content, "[") {
			return content
		}
	}
	return ""
}

// extractJSONFromText finds the first JSON object or array in surrounding text
func extractJSONFromText(input string) string {
	if start := strings.Index(input, "{"); start >= 0 {
		if extracted := extractBalanced(input[start:], '{', '}'); extracted != "" {
			return extracted
		}
	}
	if start := strings.Index(input, "["); start >= 0 {
		if extracted := extractBalanced(input[start:], '[', ']'); extracted != "" {
			return extracted
		}
	}
	return ""
}

// extractBalanced returns the prefix of input up to the matching close rune
func extractBalanced(input string, open, close rune) string {
	depth := 0
	inString := false
	escape := false

	for i, ch := range input {
		if escape {
			escape = false
			continue
		}
		switch {
		case ch == '\\':
			escape = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == open:
			depth++
		case ch == close:
			depth--
			if depth == 0 {
				return input[:i+1]
			}
		}
	}
	return ""
}

// cleanAndFixJSON attempts to fix common JSON formatting issues
func cleanAndFixJSON(input string) string {
	s := strings.TrimSpace(input)
	s = strings.TrimPrefix(s, "\ufeff")
	s = trailingCommaRegex.ReplaceAllString(s, "$1")
	s = fixSingleQuotes(s)
	s = bareKeyPattern.ReplaceAllString(s, `$1"$2"$3`)
	return controlCharPattern.ReplaceAllString(s, "")
}

// fixSingleQuotes converts single-quoted strings to double-quoted ones,
// leaving apostrophes inside double-quoted strings alone
func fixSingleQuotes(input string) string {
	var b strings.Builder
	inDouble, inSingle, escape := false, false, false

	for _, ch := range input {
		if escape {
			b.WriteRune(ch)
			escape = false
			continue
		}
		switch {
		case ch == '\\':
			escape = true
			b.WriteRune(ch)
		case ch == '"' && !inSingle:
			inDouble = !inDouble
			b.WriteRune(ch)
		case ch == '"' && inSingle:
			b.WriteString(`\"`)
		case ch == '\'' && !inDouble:
			inSingle = !inSingle
			b.WriteRune('"')
		default:
			b.WriteRune(ch)
		}
	}
	return b.String()
}
