package memory

import (
	"context"
	"time"
)

// Extractor turns text into entities. Implementations must be deterministic
// and side-effect free.
type Extractor interface {
	Extract(text string) []Entity
}

// Recognizer is a pluggable named-entity collaborator. Errors are absorbed by
// CompositeExtractor.
type Recognizer interface {
	Name() string
	Recognize(text string) ([]Entity, error)
}

type IntentClassifier interface {
	Classify(text string) string
}

// FuzzyMatcher scores the similarity of two names in [0,1].
type FuzzyMatcher interface {
	Similarity(a, b string) float64
}

// LongTermStore receives every processed message.
type LongTermStore interface {
	StoreMessage(ctx context.Context, msg *Message) error
	Close() error
}

// MessageSearcher is implemented by long-term stores that can answer
// free-text lookups over past messages.
type MessageSearcher interface {
	SearchMessages(ctx context.Context, query string, limit int) ([]SearchHit, error)
}

// MessageLoader restores recent messages, oldest first.
type MessageLoader interface {
	RecentMessages(ctx context.Context, limit int) ([]*Message, error)
}

// ContactRepository persists contacts and their interaction log.
type ContactRepository interface {
	UpsertContact(ctx context.Context, c Contact) error
	AppendInteraction(ctx context.Context, in Interaction) error
	LoadContacts(ctx context.Context) ([]Contact, error)
	ListInteractions(ctx context.Context, contactID string, limit int) ([]Interaction, error)
}

// Clock abstracts time for deterministic tests.
type Clock func() time.Time
