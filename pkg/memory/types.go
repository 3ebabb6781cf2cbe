package memory

import "time"

type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityLocation     EntityType = "location"
	EntityEmail        EntityType = "email"
	EntityPhone        EntityType = "phone"
	EntityAddress      EntityType = "address"
	EntityDate         EntityType = "date"
	EntityTime         EntityType = "time"
)

// Span is a half-open byte range into the source text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Entity is a typed span of recognized information.
type Entity struct {
	Type       EntityType `json:"type"`
	Value      string     `json:"value"`
	Confidence float64    `json:"confidence"`
	Context    string     `json:"context"`
	Span       Span       `json:"span"`
}

type Speaker string

const (
	SpeakerUser   Speaker = "user"
	SpeakerAgent  Speaker = "agent"
	SpeakerSystem Speaker = "system"
)

// ParseSpeaker maps free-form input to a Speaker, defaulting to user.
func ParseSpeaker(s string) Speaker {
	switch Speaker(s) {
	case SpeakerAgent, SpeakerSystem:
		return Speaker(s)
	default:
		return SpeakerUser
	}
}

const (
	IntentSendEmail       = "send_email"
	IntentScheduleMeeting = "schedule_meeting"
	IntentSearch          = "search"
	IntentSetReminder     = "set_reminder"
	IntentQuestion        = "question"
	IntentStatement       = "statement"
)

// Message is one utterance. It is filled in once by the pipeline and
// treated as read-only afterwards.
type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Timestamp time.Time `json:"timestamp"`
	Speaker   Speaker   `json:"speaker"`
	Content   string    `json:"content"`
	Intent    string    `json:"intent,omitempty"`
	Entities  []Entity  `json:"entities,omitempty"`
}

// HasEntity reports whether the message carries an entity of type t.
func (m *Message) HasEntity(t EntityType) bool {
	for _, e := range m.Entities {
		if e.Type == t {
			return true
		}
	}
	return false
}

// FirstEntity returns the first entity of type t.
func (m *Message) FirstEntity(t EntityType) (Entity, bool) {
	for _, e := range m.Entities {
		if e.Type == t {
			return e, true
		}
	}
	return Entity{}, false
}

type Contact struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Aliases          []string   `json:"aliases,omitempty"`
	Email            string     `json:"email,omitempty"`
	Phone            string     `json:"phone,omitempty"`
	Address          string     `json:"address,omitempty"`
	Company          string     `json:"company,omitempty"`
	Relationship     string     `json:"relationship,omitempty"`
	LastInteraction  *time.Time `json:"last_interaction,omitempty"`
	InteractionCount int        `json:"interaction_count"`
	Notes            []string   `json:"notes,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (c Contact) clone() Contact {
	out := c
	out.Aliases = append([]string(nil), c.Aliases...)
	out.Notes = append([]string(nil), c.Notes...)
	if c.LastInteraction != nil {
		t := *c.LastInteraction
		out.LastInteraction = &t
	}
	return out
}

// Interaction is one logged mention of a contact.
type Interaction struct {
	ContactID string    `json:"contact_id"`
	MessageID string    `json:"message_id,omitempty"`
	At        time.Time `json:"at"`
	Summary   string    `json:"summary"`
}

type ContactHistory struct {
	Contact          Contact       `json:"contact"`
	InteractionCount int           `json:"interaction_count"`
	LastInteraction  *time.Time    `json:"last_interaction,omitempty"`
	Notes            []string      `json:"notes"`
	Interactions     []Interaction `json:"interactions"`
}

type Thread struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	StartedAt    time.Time  `json:"started_at"`
	LastActive   time.Time  `json:"last_active"`
	Topic        string     `json:"topic,omitempty"`
	Participants []string   `json:"participants"`
	Messages     []*Message `json:"messages,omitempty"`
	Summary      string     `json:"summary,omitempty"`
	IsActive     bool       `json:"is_active"`
}

// ThreadInfo is a message-free view of a Thread.
type ThreadInfo struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	StartedAt    time.Time `json:"started_at"`
	LastActive   time.Time `json:"last_active"`
	Topic        string    `json:"topic,omitempty"`
	Participants []string  `json:"participants"`
	MessageCount int       `json:"message_count"`
	Summary      string    `json:"summary,omitempty"`
	IsActive     bool      `json:"is_active"`
}

type SuggestionType string

const (
	SuggestionMissingInfo SuggestionType = "missing_info"
	SuggestionFollowUp    SuggestionType = "follow_up"
	SuggestionReminder    SuggestionType = "reminder"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Suggestion is a proactive next action. Never persisted.
type Suggestion struct {
	ID          string         `json:"id"`
	Type        SuggestionType `json:"type"`
	Priority    Priority       `json:"priority"`
	Description string         `json:"description"`
	Action      string         `json:"action"`
	Confidence  float64        `json:"confidence"`
	Template    string         `json:"template,omitempty"`
	Person      string         `json:"person,omitempty"`
	InfoType    string         `json:"info_type,omitempty"`
	Content     string         `json:"content,omitempty"`
	DueAt       *time.Time     `json:"due_at,omitempty"`
}

const UpdateInteraction = "interaction"

type ContactUpdate struct {
	ContactID  string            `json:"contact_id"`
	Name       string            `json:"name"`
	UpdateType string            `json:"update_type"`
	Details    map[string]string `json:"details"`
	Created    bool              `json:"created,omitempty"`
	Changes    []string          `json:"changes,omitempty"`
}

// ProcessResult bundles everything one pipeline turn produced.
type ProcessResult struct {
	MessageID      string          `json:"message_id"`
	ThreadID       string          `json:"thread_id"`
	Entities       []Entity        `json:"entities"`
	Intent         string          `json:"intent"`
	ContactUpdates []ContactUpdate `json:"contact_updates"`
	Suggestions    []Suggestion    `json:"suggestions"`
	ContextSummary string          `json:"context_summary"`
}

const (
	QueryInformationCheck = "information_check"
	QuerySummaryRequest   = "summary_request"
	QueryContactQuery     = "contact_query"
	QueryGeneral          = "general"
)

// Answer is the recall response. Found is nil when the question could not be
// resolved to a person and an information type.
type Answer struct {
	QueryType  string              `json:"query_type"`
	Answer     string              `json:"answer"`
	Found      *bool               `json:"found"`
	Suggestion *string             `json:"suggestion"`
	Summary    *ConversationDigest `json:"summary,omitempty"`
	Contacts   []Contact           `json:"contacts,omitempty"`
	Related    []SearchHit         `json:"related,omitempty"`
}

// ConversationDigest summarizes the messages currently in the window.
type ConversationDigest struct {
	MessageCount    int            `json:"message_count"`
	From            *time.Time     `json:"from,omitempty"`
	To              *time.Time     `json:"to,omitempty"`
	BySpeaker       map[string]int `json:"by_speaker"`
	ByIntent        map[string]int `json:"by_intent"`
	PeopleMentioned []string       `json:"people_mentioned"`
}

// SearchHit is a long-term message matched by a MessageSearcher.
type SearchHit struct {
	MessageID string    `json:"message_id"`
	ThreadID  string    `json:"thread_id"`
	Speaker   Speaker   `json:"speaker"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
}
