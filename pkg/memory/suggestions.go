package memory

import (
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/dotsetgreg/dotrecall/pkg/logger"
	"github.com/google/uuid"
)

const (
	missingInfoConfidence = 0.85
	questionConfidence    = 0.7
	calendarConfidence    = 0.9
	reminderConfidence    = 0.6

	// Number of most recent window messages searched for the person an
	// unanswered request refers to.
	missingInfoLookback = 3

	dailyMorningCron  = "0 9 * * *"
	mondayMorningCron = "0 9 * * 1"
)

var reminderKeywords = []string{"tomorrow", "next week", "monday", "later", "remind"}

type SuggestionEngine struct {
	now        Clock
	laterDelay time.Duration
}

func NewSuggestionEngine(now Clock, laterDelay time.Duration) *SuggestionEngine {
	if now == nil {
		now = time.Now
	}
	if laterDelay <= 0 {
		laterDelay = 2 * time.Hour
	}
	return &SuggestionEngine{now: now, laterDelay: laterDelay}
}

// Analyze emits missing-information, follow-up and reminder suggestions, in
// that order. window must already contain msg.
func (e *SuggestionEngine) Analyze(msg *Message, window []*Message, updates []ContactUpdate) []Suggestion {
	out := []Suggestion{}
	out = append(out, e.missingInfo(msg, window, updates)...)
	out = append(out, e.followUps(msg)...)
	out = append(out, e.reminders(msg)...)
	for i := range out {
		out[i].ID = uuid.NewString()
	}
	return out
}

func (e *SuggestionEngine) missingInfo(msg *Message, window []*Message, updates []ContactUpdate) []Suggestion {
	if !strings.Contains(strings.ToLower(msg.Content), "address") {
		return nil
	}
	for _, m := range window {
		if m.HasEntity(EntityAddress) {
			return nil
		}
	}

	person := ""
	start := len(window) - missingInfoLookback
	if start < 0 {
		start = 0
	}
	for i := len(window) - 1; i >= start && person == ""; i-- {
		if ent, ok := window[i].FirstEntity(EntityPerson); ok {
			person = ent.Value
		}
	}
	if person == "" && len(updates) > 0 {
		person = updates[0].Name
	}
	if person == "" {
		return nil
	}
	return []Suggestion{{
		Type:        SuggestionMissingInfo,
		Priority:    PriorityHigh,
		Description: fmt.Sprintf("Missing address from %s", person),
		Action:      fmt.Sprintf("Ask %s for their address", person),
		Confidence:  missingInfoConfidence,
		Template:    fmt.Sprintf("Hi %s, could you please send me your address?", person),
		Person:      person,
		InfoType:    "address",
	}}
}

func (e *SuggestionEngine) followUps(msg *Message) []Suggestion {
	out := []Suggestion{}
	if msg.Intent == IntentQuestion {
		out = append(out, Suggestion{
			Type:        SuggestionFollowUp,
			Priority:    PriorityMedium,
			Description: "Research answer to question",
			Action:      "search_knowledge_base",
			Confidence:  questionConfidence,
		})
	}
	if msg.Intent == IntentScheduleMeeting {
		out = append(out, Suggestion{
			Type:        SuggestionFollowUp,
			Priority:    PriorityHigh,
			Description: "Check calendar availability",
			Action:      "check_calendar",
			Confidence:  calendarConfidence,
		})
	}
	return out
}

func (e *SuggestionEngine) reminders(msg *Message) []Suggestion {
	lower := strings.ToLower(msg.Content)
	hit := false
	for _, kw := range reminderKeywords {
		if strings.Contains(lower, kw) {
			hit = true
			break
		}
	}
	if !hit {
		return nil
	}
	return []Suggestion{{
		Type:        SuggestionReminder,
		Priority:    PriorityMedium,
		Description: "Potential reminder detected",
		Action:      "set_reminder",
		Confidence:  reminderConfidence,
		Content:     msg.Content,
		DueAt:       e.dueAt(lower),
	}}
}

// dueAt guesses when a reminder should fire from the time words in text.
// Plain "remind" carries no time and yields nil.
func (e *SuggestionEngine) dueAt(lower string) *time.Time {
	now := e.now()
	var (
		due time.Time
		err error
	)
	switch {
	case strings.Contains(lower, "tomorrow"):
		y, m, d := now.Date()
		tomorrow := time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
		due, err = gronx.NextTickAfter(dailyMorningCron, tomorrow, true)
	case strings.Contains(lower, "monday"), strings.Contains(lower, "next week"):
		due, err = gronx.NextTickAfter(mondayMorningCron, now, false)
	case strings.Contains(lower, "later"):
		due = now.Add(e.laterDelay)
	default:
		return nil
	}
	if err != nil {
		logger.DebugCF("memory", "Reminder due time unavailable", map[string]interface{}{"error": err.Error()})
		return nil
	}
	return &due
}
