package model

// FilterDecision says which extracted filters are enforced in the structured query
type FilterDecision struct {
	ApplyTime     bool `json:"apply_time"`
	ApplyLocation bool `json:"apply_location"`
	ApplyService  bool `json:"apply_service"`
}

// CandidateCounts holds how many reference-data matches each extracted phrase produced
type CandidateCounts struct {
	Time     int `json:"time"`
	Location int `json:"location"`
	Service  int `json:"service"`
}

// TokenUsage is the LLM token consumption of one or more calls
type TokenUsage struct {
	InputTokens  int  `json:"input_tokens"`
	OutputTokens int  `json:"output_tokens"`
	TotalTokens  int  `json:"total_tokens"`
	Estimated    bool `json:"estimated,omitempty"`
}

// Add sums two usages field by field
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
		TotalTokens:  u.TotalTokens + o.TotalTokens,
		Estimated:    u.Estimated || o.Estimated,
	}
}

// Metrics is the cost bookkeeping of a query or of one retrieval attempt.
// Durations are milliseconds.
type Metrics struct {
	GraphMs      float64    `json:"graph_ms"`
	LLMMs        float64    `json:"llm_ms"`
	SpatialMs    float64    `json:"spatial_ms"`
	GenerationMs float64    `json:"generation_ms"`
	FirstTokenMs *float64   `json:"first_token_ms,omitempty"`
	Tokens       TokenUsage `json:"token_usage"`
}

// CombineMetrics adds every field of a and b. The first-token time is not summed:
// the first non-nil value wins and later values are discarded.
func CombineMetrics(a, b Metrics) Metrics {
	out := Metrics{
		GraphMs:      a.GraphMs + b.GraphMs,
		LLMMs:        a.LLMMs + b.LLMMs,
		SpatialMs:    a.SpatialMs + b.SpatialMs,
		GenerationMs: a.GenerationMs + b.GenerationMs,
		Tokens:       a.Tokens.Add(b.Tokens),
	}
	switch {
	case a.FirstTokenMs != nil:
		v := *a.FirstTokenMs
		out.FirstTokenMs = &v
	case b.FirstTokenMs != nil:
		v := *b.FirstTokenMs
		out.FirstTokenMs = &v
	}
	return out
}

// RetrievalStage names a state of the retrieval state machine
type RetrievalStage string

const (
	StageDefault  RetrievalStage = "default_radius"
	StageExpanded RetrievalStage = "expanded_radius"
	StageClosest  RetrievalStage = "closest_match"
	StageDone     RetrievalStage = "done"
)

// RetrievalAttempt is one executed structured query
type RetrievalAttempt struct {
	Stage           RetrievalStage         `json:"stage"`
	ThresholdMiles  *float64               `json:"threshold_miles,omitempty"`
	StructuredQuery string                 `json:"structured_query"`
	Params          map[string]interface{} `json:"params,omitempty"`
	Records         []Record               `json:"-"`
	RecordCount     int                    `json:"record_count"`
	DurationMs      float64                `json:"duration_ms"`
	Category        string                 `json:"category,omitempty"`
	Failed          bool                   `json:"failed,omitempty"`
	Error           string                 `json:"-"`
	Metrics         Metrics                `json:"-"`
}

// FailureReason is the caller-visible failure category of a query
type FailureReason string

const (
	FailureNone           FailureReason = ""
	FailureClassification FailureReason = "classification_failure"
	FailureGeocoding      FailureReason = "geocoding_failure"
	FailureBackend        FailureReason = "backend_failure"
	FailureNoResults      FailureReason = "no_results"
	FailureCancelled      FailureReason = "cancelled"
)

// Message is the user-facing text for a failure reason
func (f FailureReason) Message() string {
	switch f {
	case FailureClassification:
		return "could not understand the request"
	case FailureGeocoding:
		return "could not find that place"
	case FailureBackend:
		return "the organization database could not answer this query"
	case FailureNoResults:
		return "no organizations matched at any search radius"
	case FailureCancelled:
		return "the request was cancelled"
	}
	return ""
}

// CategoryResult is the retrieval of one leg of a multi-category query
type CategoryResult struct {
	Category        string             `json:"category"`
	Services        []string           `json:"services"`
	Origin          *Coordinates       `json:"origin,omitempty"`
	Records         []Record           `json:"records"`
	Attempts        []RetrievalAttempt `json:"attempts,omitempty"`
	ExpandedRadius  bool               `json:"expanded_radius"`
	ClosestFallback bool               `json:"closest_fallback"`
	FailureReason   FailureReason      `json:"failure_reason,omitempty"`
	Response        *Answer            `json:"response,omitempty"`
}

// RetrievalOutcome is what a session caller receives for one query
type RetrievalOutcome struct {
	QueryID         string `json:"query_id"`
	SessionID       string `json:"session_id,omitempty"`
	Query           string `json:"query"`
	NormalizedQuery string `json:"normalized_query"`
	ProcessedQuery  string `json:"processed_query,omitempty"`

	Records         []Record `json:"records"`
	UsedMemory      bool     `json:"used_memory"`
	Focused         bool     `json:"focused,omitempty"`
	SimpleFollowup  bool     `json:"simple_followup,omitempty"`
	IsSpatial       bool     `json:"is_spatial"`
	ExpandedRadius  bool     `json:"expanded_radius"`
	ClosestFallback bool     `json:"closest_fallback"`

	Intent         ExtractedIntent     `json:"intent"`
	Services       CanonicalServiceSet `json:"services"`
	Categories     CategoryPlan        `json:"categories,omitempty"`
	Category       string              `json:"category,omitempty"`
	Candidates     CandidateCounts     `json:"candidates"`
	AppliedFilters FilterDecision      `json:"applied_filters"`
	Spatial        *SpatialContext     `json:"spatial,omitempty"`
	Legs           []CategoryResult    `json:"legs,omitempty"`
	Response       *Answer             `json:"response,omitempty"`

	Attempts []RetrievalAttempt `json:"attempts,omitempty"`
	Metrics  Metrics            `json:"metrics"`

	FailureReason FailureReason `json:"failure_reason,omitempty"`
	Failure       string        `json:"failure,omitempty"`
	Notices       []string      `json:"notices,omitempty"`
	Took          int64         `json:"took_ms"`
}

// Succeeded reports whether records were produced
func (o *RetrievalOutcome) Succeeded() bool {
	return o.FailureReason == FailureNone && len(o.Records) > 0
}

// Fail records a terminal failure reason
func (o *RetrievalOutcome) Fail(reason FailureReason) {
	o.FailureReason = reason
	o.Failure = reason.Message()
}

// Notice appends a soft, non-terminal message
func (o *RetrievalOutcome) Notice(msg string) {
	o.Notices = append(o.Notices, msg)
}
