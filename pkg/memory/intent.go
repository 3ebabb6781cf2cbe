package memory

import "strings"

type intentRule struct {
	intent   string
	keywords []string
}

// KeywordClassifier labels text with the first rule whose keyword occurs as a
// substring of the lower-cased text. Text matching no rule is a question when
// it contains '?', otherwise a statement.
type KeywordClassifier struct {
	rules []intentRule
}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{rules: []intentRule{
		{intent: IntentSendEmail, keywords: []string{"send", "email", "message"}},
		{intent: IntentScheduleMeeting, keywords: []string{"schedule", "meet", "calendar"}},
		{intent: IntentSearch, keywords: []string{"find", "search", "look for"}},
		{intent: IntentSetReminder, keywords: []string{"remind", "reminder", "remember"}},
	}}
}

func (k *KeywordClassifier) Classify(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range k.rules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.intent
			}
		}
	}
	if strings.Contains(text, "?") {
		return IntentQuestion
	}
	return IntentStatement
}
