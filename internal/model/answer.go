package model

// AnswerMode names the response style chosen for an outcome
type AnswerMode string

const (
	AnswerNone    AnswerMode = "none"
	AnswerFocused AnswerMode = "focused"
	AnswerSpatial AnswerMode = "spatial"
	AnswerSimple  AnswerMode = "simple"
)

// Answer is the user-facing text of an outcome. Organizations hold the
// short view of each record; Hours and Services are the full details.
type Answer struct {
	Mode          AnswerMode            `json:"mode"`
	Text          string                `json:"text"`
	Intro         string                `json:"intro,omitempty"`
	Organizations []OrganizationSummary `json:"organizations,omitempty"`
	Generated     bool                  `json:"generated"`
}

// OrganizationSummary is one numbered organization of an answer
type OrganizationSummary struct {
	Number    int      `json:"number"`
	Name      string   `json:"name"`
	MainItems []string `json:"main_items"`
	Hours     []string `json:"hours,omitempty"`
	Services  []string `json:"services,omitempty"`
}
