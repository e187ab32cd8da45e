package classifier

import (
	"strings"

	"orgfinder/internal/model"
)

// Organization categories in search order
const (
	FoodBank             = "Food Bank"
	Library              = "Library"
	SocialSecurityOffice = "Social Security Office"
	MentalHealth         = "Mental Health"
	TemporaryShelter     = "Temporary Shelter"
)

// CategoryOrder is the order categories are searched and presented in
var CategoryOrder = []string{FoodBank, Library, SocialSecurityOffice, MentalHealth, TemporaryShelter}

// CategoryKeywords maps each category to the service words that belong to it
var CategoryKeywords = map[string][]string{
	FoodBank: {"meal", "meals", "food", "dining", "lunch", "dinner", "breakfast",
		"emergency food", "food pantry", "pantry", "nutrition"},
	Library: {"printer", "printing", "print", "computer", "computers", "wifi", "wi-fi",
		"internet", "copy", "copying", "scan", "scanning", "book", "books", "esl",
		"story", "homework", "study", "job"},
	SocialSecurityOffice: {"benefit", "benefits", "retirement", "appeal", "appeals",
		"card", "social security", "disability", "ssi", "medicare"},
	MentalHealth: {"therapy", "counseling", "psychiatric", "mental health",
		"addiction", "substance abuse", "recovery"},
	TemporaryShelter: {"stay", "shelter", "housing", "emergency housing"},
}

// CategoryFor returns the first category whose keywords overlap service
func CategoryFor(service string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(service))
	if s == "" {
		return "", false
	}
	for _, category := range CategoryOrder {
		for _, kw := range CategoryKeywords[category] {
			if strings.Contains(s, kw) || (len(s) >= 3 && strings.Contains(kw, s)) {
				return category, true
			}
		}
	}
	return "", false
}

// BuildPlan groups services by category in CategoryOrder. Services matching
// no category are dropped.
func BuildPlan(services []string) model.CategoryPlan {
	grouped := make(map[string][]string)
	for _, svc := range services {
		category, ok := CategoryFor(svc)
		if !ok {
			continue
		}
		if !contains(grouped[category], svc) {
			grouped[category] = append(grouped[category], svc)
		}
	}
	return orderPlan(grouped)
}

// orderPlan keeps known categories with at least one service, in CategoryOrder
func orderPlan(grouped map[string][]string) model.CategoryPlan {
	var plan model.CategoryPlan
	for _, category := range CategoryOrder {
		for name, services := range grouped {
			if strings.EqualFold(name, category) && len(services) > 0 {
				plan = append(plan, model.CategoryServices{Category: category, Services: services})
				break
			}
		}
	}
	return plan
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
