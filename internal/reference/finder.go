package reference

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"orgfinder/internal/model"
)

// Service attribute keywords matched against the service type, not its name
const (
	AttributeFree = "free"
	AttributePaid = "paid"
)

var (
	wordPattern      = regexp.MustCompile(`[a-z][a-z'\-]*`)
	zipPattern       = regexp.MustCompile(`\b\d{5}\b`)
	clockPattern     = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)`)
	hourRangePattern = regexp.MustCompile(`(?i)(\d{1,2})(?::(\d{2}))?\s*([ap])\.?m\.?\s*(?:-|–|to)\s*(\d{1,2})(?::(\d{2}))?\s*([ap])\.?m\.?`)
	dayRangePattern  = regexp.MustCompile(`([a-z]+)\s*(?:-|–|to|through)\s*([a-z]+)`)
)

var dayNames = []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

var dayAbbreviations = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"fri": time.Friday, "sat": time.Saturday,
}

// dayparts map a vague time of day to a representative clock time in minutes
var dayparts = map[string]int{
	"morning":   9 * 60,
	"noon":      12 * 60,
	"lunch":     12 * 60,
	"afternoon": 14 * 60,
	"evening":   18 * 60,
	"night":     20 * 60,
	"tonight":   20 * 60,
}

var serviceStopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "near": true, "open": true,
	"service": true, "services": true, "help": true, "place": true, "places": true,
	"organization": true, "organizations": true, "where": true, "find": true, "need": true,
	"any": true, "some": true, "that": true, "have": true, "has": true, "get": true,
	"can": true, "offer": true, "offers": true, "provide": true, "provides": true,
}

// Candidates are the reference entries matched by each extracted phrase
type Candidates struct {
	Times     []string `json:"times,omitempty"`
	Locations []string `json:"locations,omitempty"`
	Services  []string `json:"services,omitempty"`
}

// Counts returns the candidate set sizes used by the specificity heuristic
func (c Candidates) Counts() model.CandidateCounts {
	return model.CandidateCounts{
		Time:     len(c.Times),
		Location: len(c.Locations),
		Service:  len(c.Services),
	}
}

// Finder matches extracted phrases against reference keywords
type Finder struct {
	keywords *Keywords
	now      func() time.Time
}

// NewFinder creates a new finder. A nil keywords value matches nothing.
func NewFinder(keywords *Keywords) *Finder {
	if keywords == nil {
		keywords = &Keywords{}
	}
	return &Finder{keywords: keywords, now: time.Now}
}

// WithClock returns a copy of the finder resolving "today" against now
func (f *Finder) WithClock(now func() time.Time) *Finder {
	out := *f
	out.now = now
	return &out
}

// Keywords returns the reference vocabulary in use
func (f *Finder) Keywords() *Keywords {
	return f.keywords
}

// Match runs every finder whose phrase was extracted
func (f *Finder) Match(intent model.ExtractedIntent, services model.CanonicalServiceSet) Candidates {
	var c Candidates
	if strings.TrimSpace(intent.TimePhrase) != "" {
		c.Times = f.Times(intent.TimePhrase)
	}
	if strings.TrimSpace(intent.LocationPhrase) != "" {
		c.Locations = f.Addresses(intent.LocationPhrase)
	}
	if strings.TrimSpace(intent.ServicePhrase) != "" || !services.IsEmpty() {
		c.Services = f.Services(intent.ServicePhrase, services)
	}
	return c
}

// Times returns the day and hour entries matching a time phrase
func (f *Finder) Times(phrase string) []string {
	p := strings.ToLower(phrase)
	days := f.requestedDays(p)
	minutes := f.requestedMinutes(p)
	if len(days) == 0 && len(minutes) == 0 {
		return nil
	}

	var out []string
	for _, entry := range f.keywords.Times {
		e := strings.ToLower(entry)
		if open, close, ok := parseHourRange(e); ok {
			for _, m := range minutes {
				if within(m, open, close) {
					out = append(out, entry)
					break
				}
			}
			continue
		}
		for d := range entryDays(e) {
			if days[d] {
				out = append(out, entry)
				break
			}
		}
	}
	return out
}

func (f *Finder) requestedDays(p string) map[time.Weekday]bool {
	days := make(map[time.Weekday]bool)
	now := f.now()
	for _, w := range wordPattern.FindAllString(p, -1) {
		if d, ok := dayFromWord(w); ok {
			days[d] = true
			continue
		}
		switch strings.TrimSuffix(w, "s") {
		case "weekday":
			for d := time.Monday; d <= time.Friday; d++ {
				days[d] = true
			}
		case "weekend":
			days[time.Saturday] = true
			days[time.Sunday] = true
		case "today", "tonight", "now":
			days[now.Weekday()] = true
		case "tomorrow":
			days[now.AddDate(0, 0, 1).Weekday()] = true
		}
	}
	return days
}

func (f *Finder) requestedMinutes(p string) []int {
	var minutes []int
	for _, m := range clockPattern.FindAllStringSubmatch(p, -1) {
		if v, ok := clockMinutes(m[1], m[2], m[3][:1]); ok {
			minutes = append(minutes, v)
		}
	}
	for _, w := range wordPattern.FindAllString(p, -1) {
		if v, ok := dayparts[w]; ok {
			minutes = append(minutes, v)
		}
		if w == "now" {
			now := f.now()
			minutes = append(minutes, now.Hour()*60+now.Minute())
		}
	}
	return minutes
}

func dayFromWord(w string) (time.Weekday, bool) {
	w = strings.TrimSuffix(w, "s")
	for i, name := range dayNames {
		if w == name {
			return time.Weekday(i), true
		}
	}
	if d, ok := dayAbbreviations[w]; ok {
		return d, true
	}
	return 0, false
}

// entryDays returns the weekdays named by a reference entry, expanding
// ranges such as "Monday - Friday".
func entryDays(e string) map[time.Weekday]bool {
	out := make(map[time.Weekday]bool)
	for _, m := range dayRangePattern.FindAllStringSubmatch(e, -1) {
		from, ok1 := dayFromWord(m[1])
		to, ok2 := dayFromWord(m[2])
		if !ok1 || !ok2 {
			continue
		}
		for d := from; ; d = (d + 1) % 7 {
			out[d] = true
			if d == to {
				break
			}
		}
	}
	for _, w := range wordPattern.FindAllString(e, -1) {
		if d, ok := dayFromWord(w); ok {
			out[d] = true
		}
	}
	return out
}

func clockMinutes(hour, minute, meridiem string) (int, bool) {
	h, err := strconv.Atoi(hour)
	if err != nil || h < 1 || h > 12 {
		return 0, false
	}
	m := 0
	if minute != "" {
		m, err = strconv.Atoi(minute)
		if err != nil || m > 59 {
			return 0, false
		}
	}
	h %= 12
	if strings.EqualFold(meridiem, "p") {
		h += 12
	}
	return h*60 + m, true
}

func parseHourRange(e string) (open, close int, ok bool) {
	m := hourRangePattern.FindStringSubmatch(e)
	if m == nil {
		return 0, 0, false
	}
	open, ok1 := clockMinutes(m[1], m[2], m[3])
	close, ok2 := clockMinutes(m[4], m[5], m[6])
	return open, close, ok1 && ok2
}

// within reports whether minute m falls in [open, close], wrapping past midnight
func within(m, open, close int) bool {
	if open <= close {
		return m >= open && m <= close
	}
	return m >= open || m <= close
}

// Addresses returns the address and zip entries matching a location phrase
func (f *Finder) Addresses(phrase string) []string {
	p := strings.ToLower(strings.TrimSpace(phrase))
	if p == "" {
		return nil
	}
	zips := zipPattern.FindAllString(p, -1)

	var out []string
	for _, entry := range f.keywords.Addresses {
		e := strings.ToLower(entry)
		matched := false
		for _, z := range zips {
			if strings.Contains(e, z) {
				matched = true
				break
			}
		}
		if !matched && len(p) >= 3 {
			matched = strings.Contains(e, p) || (len(e) >= 4 && strings.Contains(p, e))
		}
		if matched {
			out = append(out, entry)
		}
	}
	return out
}

// Services returns the lowercased reference service names matching the
// canonical tokens or the content words of phrase, sorted, followed by any
// free/paid attribute named in phrase.
func (f *Finder) Services(phrase string, services model.CanonicalServiceSet) []string {
	p := strings.ToLower(phrase)
	words := wordPattern.FindAllString(p, -1)

	tokens := append([]string(nil), services.All...)
	attributes := make(map[string]bool)
	for _, w := range words {
		switch {
		case w == AttributeFree || w == AttributePaid:
			attributes[w] = true
		case len(w) >= 3 && !serviceStopWords[w]:
			tokens = append(tokens, w)
		}
	}

	seen := make(map[string]bool)
	var out []string
	for _, entry := range f.keywords.Services {
		e := strings.ToLower(entry)
		if seen[e] {
			continue
		}
		for _, t := range tokens {
			if t != "" && strings.Contains(e, t) {
				seen[e] = true
				out = append(out, e)
				break
			}
		}
	}
	sort.Strings(out)

	for _, a := range []string{AttributeFree, AttributePaid} {
		if attributes[a] {
			out = append(out, a)
		}
	}
	return out
}
