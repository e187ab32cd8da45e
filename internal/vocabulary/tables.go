package vocabulary

// Synonyms maps one canonical service token to the phrases that select it
type Synonyms struct {
	Token   string
	Phrases []string
}

// DefaultSynonyms is scanned in order; the order decides candidate insertion order.
var DefaultSynonyms = []Synonyms{
	// Social Security Office
	{"appeal", []string{"appeal", "appeals", "decision", "dispute", "challenge", "disputing", "appealing"}},
	{"benefit", []string{"benefit", "benefits", "retirement", "disability", "ssi", "medicare", "social security", "apply for benefits"}},
	{"apply", []string{"apply", "application", "applications", "filing", "apply for"}},
	{"1099", []string{"1099", "statement", "statements", "proof", "earnings", "history", "replacement 1099"}},
	{"change", []string{"change", "update", "modify", "direct deposit", "change address", "change direct deposit", "direct deposit information"}},
	{"address", []string{"address", "direct deposit", "change address", "update address"}},
	{"direct", []string{"direct deposit", "direct deposit information", "change direct deposit"}},
	{"deposit", []string{"deposit", "direct deposit", "change direct deposit"}},
	{"estimate", []string{"estimate", "estimates", "calculator", "calculation"}},
	{"proof", []string{"proof", "print proof", "statements"}},
	{"history", []string{"history", "earnings", "review earnings"}},
	{"withdrawal", []string{"withdrawal", "atm", "cash"}},
	{"transfer", []string{"transfer", "funds transfer", "money transfer"}},
	{"international", []string{"international", "international transactions", "overseas"}},
	{"overnight", []string{"overnight", "express", "expedited", "rush", "overnight delivery"}},

	// Library technology
	{"computer", []string{"computer", "computers", "public computers", "computer access", "computer labs", "computer or internet access"}},
	{"wi-fi", []string{"wifi", "wi-fi", "internet", "wireless"}},
	{"print", []string{"print", "printing", "printer"}},
	{"copy", []string{"copy", "copying", "copies", "copier"}},
	{"scan", []string{"scan", "scanning", "scanner", "scanners"}},

	// Library education
	{"class", []string{"class", "classes", "education", "learning", "computer class", "health education", "sex education", "parenting education"}},
	{"ged", []string{"ged", "adult education", "basic literacy", "literacy"}},
	{"homework", []string{"homework", "homework help", "tutoring", "study"}},
	{"job", []string{"job", "job assistance", "job search", "job readiness", "workforce development", "employment", "help find work", "resume development"}},
	{"citizenship", []string{"citizenship", "citizenship class", "new americans", "services for new americans"}},

	// Library children
	{"story", []string{"story", "story time", "story times", "storytime", "children"}},
	{"after", []string{"after-school", "after school", "kids programs", "youth programs", "after school care"}},
	{"summer", []string{"summer", "summer learning", "summer programs", "day camp"}},
	{"stem", []string{"stem", "science", "technology", "engineering", "math", "coding", "programming"}},

	// Library collections
	{"book", []string{"book", "books", "collection", "large collection"}},
	{"special", []string{"special", "special collections", "research", "archives"}},
	{"foreign", []string{"foreign", "chinese", "spanish", "language collection", "multilingual"}},
	{"audio", []string{"audio", "audiobooks", "braille", "large print", "accessibility"}},

	// Library events
	{"event", []string{"event", "events", "author events", "author talks", "exhibitions"}},
	{"workshop", []string{"workshop", "workshops", "programs", "community programs"}},
	{"tour", []string{"tour", "tours", "guided tours"}},
	{"game", []string{"game", "games", "gaming", "board games", "chess", "chess club"}},
	{"music", []string{"music", "music classes", "arts"}},
	{"cooking", []string{"cooking", "cooking classes", "culinary"}},

	// Library spaces
	{"meeting", []string{"meeting", "meeting room", "meeting rooms", "meeting spaces", "conference"}},
	{"study", []string{"study", "study room", "study rooms", "quiet space"}},
	{"restroom", []string{"restroom", "restrooms", "bathroom", "facilities"}},
	{"drop", []string{"book drop", "return", "drop box", "drop off"}},

	// Library special services
	{"mail", []string{"mail", "delivery", "postage", "shipping"}},
	{"social", []string{"social services", "social support", "community support"}},
	{"health", []string{"health", "health classes", "wellness", "health education", "medical care", "disease screening"}},
	{"film", []string{"film", "movies", "foreign film", "video"}},

	// Shelter, food bank and mental health
	{"shelter", []string{"stay", "shelter", "housing", "safe housing", "short-term housing", "residential housing", "help find housing"}},
	{"food", []string{"food", "meals", "meal", "emergency food", "food pantry", "nutrition", "food delivery"}},
	{"mental health", []string{"mental health", "mental health care", "counseling", "therapy", "psychiatric", "support groups", "peer support", "bereavement", "anger management", "group therapy"}},
	{"substance abuse", []string{"substance abuse", "addiction", "recovery", "sober living", "detox", "12-step", "outpatient treatment"}},
	{"financial", []string{"financial", "financial assistance", "emergency payments", "pay for housing", "pay for utilities", "government benefits"}},
	{"legal", []string{"legal", "advocacy & legal aid"}},
	{"clothing", []string{"clothing", "clothes"}},
	{"hygiene", []string{"hygiene", "personal care", "personal hygiene"}},
	{"parenting", []string{"parenting", "parenting education"}},
	{"hotline", []string{"hotline", "help hotlines"}},
}

// DefaultDirectWords are matched as-is and appended after the synonym tokens
var DefaultDirectWords = []string{
	"wi-fi", "computer", "print", "copy", "scan", "class", "workshop",
	"story time", "meeting room", "study room", "book", "appeal",
	"benefit", "card", "statement", "job", "homework", "esl",
	"deposit", "change", "direct", "shelter", "food", "mental health",
	"substance abuse", "counseling", "therapy", "pantry", "meals",
}

// DefaultPriority ranks tokens from most to least domain-specific.
// Government-benefit actions come first, generic events last.
var DefaultPriority = []string{
	// Social Security Office
	"appeal", "change", "direct", "address", "1099", "card", "benefit", "estimate", "proof", "history",
	"withdrawal", "transfer", "international", "overnight",

	// shelter, food bank, mental health
	"hotline", "shelter", "food", "mental health", "substance abuse", "financial", "legal",

	// library technology
	"wi-fi", "computer", "print", "copy", "scan",

	// library education
	"esl", "homework", "job", "citizenship", "class",

	// library children
	"story", "after", "stem", "summer",

	// library facilities
	"meeting", "study", "drop",

	"workshop", "event", "tour", "game", "book", "parenting", "clothing", "hygiene",
}
