package memory

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"orgfinder/internal/model"
)

// DefaultHistorySize is the number of turns kept when none is configured
const DefaultHistorySize = 5

// NameFields are tried in order to find an organization name in a record
var NameFields = []string{"o.name", "org.name", "name", "organization", "organization_name"}

// Turn is one answered query
type Turn struct {
	Query     string
	Records   []model.Record
	OrgNames  []string
	Spatial   *model.SpatialContext
	Timestamp time.Time
}

// Decision explains why memory was or was not used
type Decision struct {
	Use  bool
	Kind RuleKind
	Rule string
}

// Memory is a bounded FIFO of turns owned by one session
type Memory struct {
	mu      sync.RWMutex
	size    int
	history []Turn
	now     func() time.Time
}

// New creates a memory keeping at most size turns
func New(size int) *Memory {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &Memory{size: size, now: time.Now}
}

// OrganizationNames extracts names from records using NameFields
func OrganizationNames(records []model.Record) []string {
	names := make([]string, 0, len(records))
	for _, rec := range records {
		for _, field := range NameFields {
			if name, ok := rec.String(field); ok {
				names = append(names, name)
				break
			}
		}
	}
	return names
}

func (m *Memory) last() *Turn {
	if len(m.history) == 0 {
		return nil
	}
	return &m.history[len(m.history)-1]
}

// Decide runs the rule banks in order: pronoun, follow-up, detail-only, topic.
// It never uses memory when there is no previous turn with results.
func (m *Memory) Decide(query string) Decision {
	m.mu.RLock()
	defer m.mu.RUnlock()

	last := m.last()
	if last == nil || len(last.Records) == 0 || last.Query == "" {
		return Decision{}
	}

	q := strings.ToLower(query)

	if r, ok := firstMatch(PronounRules, q); ok {
		return Decision{Use: true, Kind: r.Kind, Rule: r.Name}
	}
	if r, ok := firstMatch(FollowupRules, q); ok {
		return Decision{Use: true, Kind: r.Kind, Rule: r.Name}
	}

	newLocation := HasNewLocation(query)
	if r, ok := firstMatch(DetailOnlyRules, q); ok && !newLocation {
		return Decision{Use: true, Kind: r.Kind, Rule: r.Name}
	}
	if topic, ok := sharedTopic(last.Query, query); ok && !newLocation {
		return Decision{Use: true, Kind: TopicRule, Rule: topic}
	}
	return Decision{}
}

// ShouldUseMemory reports whether query should be answered from the previous turn
func (m *Memory) ShouldUseMemory(query string) bool {
	return m.Decide(query).Use
}

// SubstitutePronouns replaces pronouns with the previous turn's organization names
func (m *Memory) SubstitutePronouns(query string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	last := m.last()
	if last == nil || len(last.OrgNames) == 0 {
		return query
	}

	names := strings.Join(last.OrgNames, ", ")
	out := query
	for _, s := range pronounSubstitutions {
		out = s.pattern.ReplaceAllLiteralString(out, names)
	}
	return out
}

// AddInteraction appends a turn and evicts the oldest past the bound
func (m *Memory) AddInteraction(query string, records []model.Record, spatial *model.SpatialContext) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]model.Record, len(records))
	copy(stored, records)

	m.history = append(m.history, Turn{
		Query:     query,
		Records:   stored,
		OrgNames:  OrganizationNames(records),
		Spatial:   spatial.Clone(),
		Timestamp: m.now(),
	})
	if len(m.history) > m.size {
		m.history = append([]Turn(nil), m.history[len(m.history)-m.size:]...)
	}
}

// Clear drops every stored turn
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = nil
}

// Len returns the number of stored turns
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.history)
}

// History returns a copy of the stored turns, oldest first
func (m *Memory) History() []Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Turn, len(m.history))
	copy(out, m.history)
	return out
}

// LastRecords returns the records of the most recent turn
func (m *Memory) LastRecords() []model.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	last := m.last()
	if last == nil {
		return nil
	}
	out := make([]model.Record, len(last.Records))
	copy(out, last.Records)
	return out
}

// LastSpatial returns the spatial context of the most recent turn
func (m *Memory) LastSpatial() *model.SpatialContext {
	m.mu.RLock()
	defer m.mu.RUnlock()
	last := m.last()
	if last == nil {
		return nil
	}
	return last.Spatial.Clone()
}

// Context renders the previous turn for inclusion in an LLM prompt
func (m *Memory) Context() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	last := m.last()
	if last == nil || len(last.Records) == 0 || len(last.OrgNames) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\nMEMORY CONTEXT:\n")
	fmt.Fprintf(&b, "Previous Query: %s\n", last.Query)
	fmt.Fprintf(&b, "Organizations from Previous Results: %s\n", strings.Join(last.OrgNames, ", "))
	if last.Spatial != nil {
		location := last.Spatial.SourceText
		if location == "" {
			location = "unknown"
		}
		fmt.Fprintf(&b, "Previous Spatial Context: User was asking about location near %s\n", location)
	}
	fmt.Fprintf(&b, "Available Previous Results: %d organizations with full details\n", len(last.Records))
	return b.String()
}

// Stats summarizes the memory for the session API
func (m *Memory) Stats() model.MemoryStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := model.MemoryStats{InteractionCount: len(m.history)}
	if last := m.last(); last != nil {
		stats.LastResultCount = len(last.Records)
		stats.HasContext = len(last.Records) > 0
		stats.HasSpatialContext = last.Spatial != nil
		stats.LastQuery = last.Query
	}
	return stats
}
