package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dotsetgreg/dotrecall/pkg/logger"
	"github.com/google/uuid"
)

const (
	defaultSummaryMessages = 3
	summarySnippetRunes    = 50
	updateContextRunes     = 100
	noActiveContext        = "No active context"
)

type Option func(*System)

func WithExtractor(e Extractor) Option { return func(s *System) { s.extractor = e } }

func WithClassifier(c IntentClassifier) Option { return func(s *System) { s.classifier = c } }

func WithContactStore(c *ContactStore) Option { return func(s *System) { s.contacts = c } }

func WithLongTermStore(l LongTermStore) Option { return func(s *System) { s.longTerm = l } }

func WithSuggestionEngine(e *SuggestionEngine) Option { return func(s *System) { s.suggestions = e } }

func WithMetrics(m *Metrics) Option { return func(s *System) { s.metrics = m } }

func WithClock(c Clock) Option { return func(s *System) { s.now = c } }

func WithWindowSize(n int) Option { return func(s *System) { s.window = NewWindow(n) } }

// WithSummaryMessages sets how many recent messages the context summary covers.
func WithSummaryMessages(n int) Option {
	return func(s *System) {
		if n > 0 {
			s.summaryN = n
		}
	}
}

// System is the memory pipeline for one user session. Turns are serialized
// by mu; the contact store may be shared between systems.
type System struct {
	mu sync.Mutex

	userID      string
	extractor   Extractor
	classifier  IntentClassifier
	contacts    *ContactStore
	longTerm    LongTermStore
	suggestions *SuggestionEngine
	metrics     *Metrics
	now         Clock
	window      *Window
	summaryN    int

	threads     map[string]*Thread
	threadOrder []string
	active      *Thread
}

func NewSystem(userID string, opts ...Option) *System {
	s := &System{
		userID:   userID,
		now:      time.Now,
		summaryN: defaultSummaryMessages,
		threads:  map[string]*Thread{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.contacts == nil {
		s.contacts = NewContactStore(ContactStoreOptions{Fuzzy: LevenshteinMatcher{}, Clock: s.now})
	}
	if s.extractor == nil {
		s.extractor = NewCompositeExtractor(NewHeuristicRecognizer().WithKnownNames(s.contacts.Known))
	}
	if s.classifier == nil {
		s.classifier = NewKeywordClassifier()
	}
	if s.suggestions == nil {
		s.suggestions = NewSuggestionEngine(s.now, 0)
	}
	if s.window == nil {
		s.window = NewWindow(DefaultWindowSize)
	}
	if ce, ok := s.extractor.(*CompositeExtractor); ok && s.metrics != nil {
		ce.OnFailure(func(name string, _ error) { s.metrics.extractionFailed(name) })
	}
	return s
}

func (s *System) UserID() string { return s.userID }

func (s *System) Contacts() *ContactStore { return s.contacts }

func (s *System) Extractor() Extractor { return s.extractor }

// ProcessUserMessage runs one user utterance through the pipeline.
func (s *System) ProcessUserMessage(ctx context.Context, content string) ProcessResult {
	return s.ProcessMessage(ctx, SpeakerUser, content)
}

// ProcessMessage records an utterance and derives entities, intent, contact
// updates and suggestions from it. Collaborator failures are logged and
// absorbed; the turn always completes.
func (s *System) ProcessMessage(ctx context.Context, speaker Speaker, content string) ProcessResult {
	started := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	thread := s.ensureThreadLocked()
	msg := &Message{
		ID:        uuid.NewString(),
		ThreadID:  thread.ID,
		Timestamp: s.now(),
		Speaker:   speaker,
		Content:   content,
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		msg.Entities = s.safeExtract(content)
	}()
	go func() {
		defer wg.Done()
		msg.Intent = s.safeClassify(content)
	}()
	wg.Wait()

	thread.Messages = append(thread.Messages, msg)
	thread.LastActive = msg.Timestamp
	s.addParticipantLocked(thread, speaker)

	s.window.Push(msg)

	updates, created := s.processContacts(ctx, msg)
	suggestions := s.suggestions.Analyze(msg, s.window.Snapshot(), updates)

	if s.longTerm != nil {
		if err := s.longTerm.StoreMessage(ctx, msg); err != nil {
			s.metrics.persistenceFailed()
			logger.WarnCF("memory", "Long-term store write failed", map[string]interface{}{
				"message_id": msg.ID,
				"error":      fmt.Errorf("%w: %v", ErrPersistence, err).Error(),
			})
		}
	}

	res := ProcessResult{
		MessageID:      msg.ID,
		ThreadID:       thread.ID,
		Entities:       msg.Entities,
		Intent:         msg.Intent,
		ContactUpdates: updates,
		Suggestions:    suggestions,
		ContextSummary: s.contextSummary(),
	}
	s.metrics.observeTurn(res, created, s.window.Len(), time.Since(started))
	logger.DebugCF("memory", "Message processed", map[string]interface{}{
		"message_id":  msg.ID,
		"thread_id":   thread.ID,
		"intent":      msg.Intent,
		"entities":    len(msg.Entities),
		"updates":     len(updates),
		"suggestions": len(suggestions),
	})
	return res
}

func (s *System) safeExtract(text string) (out []Entity) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("memory", "Entity extraction panicked", map[string]interface{}{"panic": fmt.Sprint(r)})
			s.metrics.extractionFailed("extractor")
			out = []Entity{}
		}
	}()
	out = s.extractor.Extract(text)
	if out == nil {
		out = []Entity{}
	}
	return out
}

func (s *System) safeClassify(text string) (intent string) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("memory", "Intent classification panicked", map[string]interface{}{"panic": fmt.Sprint(r)})
			intent = IntentStatement
		}
	}()
	intent = s.classifier.Classify(text)
	if intent == "" {
		intent = IntentStatement
	}
	return intent
}

// processContacts resolves each distinct person named in msg once and
// attaches co-occurring email, phone, address and organization entities to
// the nearest person mention. Spellings that resolve to the same contact
// share one update.
func (s *System) processContacts(ctx context.Context, msg *Message) ([]ContactUpdate, int) {
	updates := []ContactUpdate{}
	created := 0
	snippet := truncateRunes(msg.Content, updateContextRunes)

	type mention struct {
		span   Span
		update int
	}
	mentions := []mention{}
	byName := map[string]int{}
	byID := map[string]int{}

	for _, e := range msg.Entities {
		if e.Type != EntityPerson {
			continue
		}
		key := normalizeName(e.Value)
		if idx, seen := byName[key]; seen {
			mentions = append(mentions, mention{span: e.Span, update: idx})
			continue
		}
		c, isNew, err := s.contacts.ResolveOrCreate(ctx, e.Value)
		if err != nil {
			logger.WarnCF("memory", "Contact resolution failed", map[string]interface{}{
				"name":  e.Value,
				"error": err.Error(),
			})
			continue
		}
		if idx, seen := byID[c.ID]; seen {
			byName[key] = idx
			mentions = append(mentions, mention{span: e.Span, update: idx})
			continue
		}
		if isNew {
			created++
			s.contacts.logCreation(ctx, c.ID, msg.ID, msg.Timestamp, snippet)
		} else if _, err := s.contacts.RecordInteraction(ctx, c.ID, msg.ID, msg.Timestamp, snippet); err != nil {
			logger.WarnCF("memory", "Record interaction failed", map[string]interface{}{
				"contact_id": c.ID,
				"error":      err.Error(),
			})
		}
		byName[key] = len(updates)
		byID[c.ID] = len(updates)
		mentions = append(mentions, mention{span: e.Span, update: len(updates)})
		updates = append(updates, ContactUpdate{
			ContactID:  c.ID,
			Name:       c.Name,
			UpdateType: UpdateInteraction,
			Details:    map[string]string{"context": snippet},
			Created:    isNew,
		})
	}
	if len(mentions) == 0 {
		return updates, created
	}

	for _, e := range msg.Entities {
		switch e.Type {
		case EntityEmail, EntityPhone, EntityAddress, EntityOrganization:
		default:
			continue
		}
		best := -1
		for i, m := range mentions {
			if m.span.Start <= e.Span.Start {
				best = i
			}
		}
		if best < 0 {
			best = 0
		}
		u := &updates[mentions[best].update]
		field, changed, err := s.contacts.ApplyEntity(ctx, u.ContactID, e)
		if err != nil {
			logger.WarnCF("memory", "Contact attribute merge failed", map[string]interface{}{
				"contact_id": u.ContactID,
				"error":      err.Error(),
			})
			continue
		}
		if changed {
			u.Changes = append(u.Changes, field)
		}
	}
	return updates, created
}

// contextSummary digests the most recent window messages.
func (s *System) contextSummary() string {
	recent := s.window.Last(s.summaryN)
	if len(recent) == 0 {
		return noActiveContext
	}
	parts := make([]string, 0, len(recent))
	for _, m := range recent {
		snippet := truncateRunes(m.Content, summarySnippetRunes)
		if snippet != m.Content {
			snippet += "..."
		}
		parts = append(parts, fmt.Sprintf("%s: %s", m.Speaker, snippet))
	}
	return fmt.Sprintf("Recent conversation (%d messages): %s", len(recent), strings.Join(parts, " | "))
}

// ContextSummary returns the digest of the most recent window messages.
func (s *System) ContextSummary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contextSummary()
}

// Context returns copies of the messages in the short-term window.
func (s *System) Context() []Message {
	snap := s.window.Snapshot()
	out := make([]Message, len(snap))
	for i, m := range snap {
		out[i] = *m
	}
	return out
}

func (s *System) ClearContext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window.Clear()
	s.metrics.windowCleared()
}

func (s *System) SearchContacts(query string) []Contact {
	return s.contacts.Search(query)
}

func (s *System) GetContactHistory(ctx context.Context, contactID string) (ContactHistory, error) {
	return s.contacts.History(ctx, contactID)
}

// Rehydrate refills the window with up to limit recently stored messages.
func (s *System) Rehydrate(ctx context.Context, loader MessageLoader, limit int) (int, error) {
	if loader == nil {
		return 0, nil
	}
	if limit <= 0 {
		limit = s.window.Capacity()
	}
	msgs, err := loader.RecentMessages(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("rehydrate window: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.window.Push(m)
	}
	return len(msgs), nil
}

// searcher finds a search-capable store, looking through wrappers.
func (s *System) searcher() MessageSearcher {
	store := s.longTerm
	for store != nil {
		if ms, ok := store.(MessageSearcher); ok {
			return ms
		}
		u, ok := store.(interface{ Unwrap() LongTermStore })
		if !ok {
			return nil
		}
		store = u.Unwrap()
	}
	return nil
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
