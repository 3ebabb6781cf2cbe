package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dotsetgreg/dotrecall/pkg/logger"
	"github.com/google/uuid"
)

const defaultInteractionLog = 50

type ContactStoreOptions struct {
	// Fuzzy enables approximate name matching when non-nil.
	Fuzzy          FuzzyMatcher
	FuzzyThreshold float64
	Repository     ContactRepository
	Clock          Clock
	// MaxInteractions bounds the in-memory interaction log per contact.
	MaxInteractions int
}

// ContactStore owns deduplicated contact records. Every mutation of the
// id map and the name index happens under mu so the two never disagree.
type ContactStore struct {
	mu           sync.Mutex
	contacts     map[string]*Contact
	nameIndex    map[string]string
	interactions map[string][]Interaction

	fuzzy     FuzzyMatcher
	threshold float64
	repo      ContactRepository
	now       Clock
	maxLog    int
}

func NewContactStore(opts ContactStoreOptions) *ContactStore {
	if opts.FuzzyThreshold <= 0 {
		opts.FuzzyThreshold = 0.85
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.MaxInteractions <= 0 {
		opts.MaxInteractions = defaultInteractionLog
	}
	return &ContactStore{
		contacts:     map[string]*Contact{},
		nameIndex:    map[string]string{},
		interactions: map[string][]Interaction{},
		fuzzy:        opts.Fuzzy,
		threshold:    opts.FuzzyThreshold,
		repo:         opts.Repository,
		now:          opts.Clock,
		maxLog:       opts.MaxInteractions,
	}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Load replaces in-memory state with the repository contents.
func (s *ContactStore) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	list, err := s.repo.LoadContacts(ctx)
	if err != nil {
		return fmt.Errorf("load contacts: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts = map[string]*Contact{}
	s.nameIndex = map[string]string{}
	for i := range list {
		c := list[i].clone()
		s.contacts[c.ID] = &c
		s.indexLocked(&c)
	}
	return nil
}

func (s *ContactStore) indexLocked(c *Contact) {
	s.nameIndex[normalizeName(c.Name)] = c.ID
	for _, a := range c.Aliases {
		s.nameIndex[normalizeName(a)] = c.ID
	}
}

// ResolveOrCreate maps a surface name to a contact, creating one with an
// interaction count of 1 when nothing matches. Resolving an existing contact
// does not touch its counters.
func (s *ContactStore) ResolveOrCreate(ctx context.Context, name string) (Contact, bool, error) {
	key := normalizeName(name)
	if key == "" {
		return Contact{}, false, fmt.Errorf("contact name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if c := s.findLocked(key); c != nil {
		return c.clone(), false, nil
	}
	if c := s.fuzzyLocked(key); c != nil {
		c.Aliases = append(c.Aliases, strings.TrimSpace(name))
		c.UpdatedAt = s.now()
		s.nameIndex[key] = c.ID
		s.persistLocked(ctx, c)
		logger.DebugCF("memory", "Fuzzy contact match", map[string]interface{}{
			"alias":      name,
			"contact_id": c.ID,
			"name":       c.Name,
		})
		return c.clone(), false, nil
	}

	now := s.now()
	c := &Contact{
		ID:               uuid.NewString(),
		Name:             strings.Join(strings.Fields(name), " "),
		InteractionCount: 1,
		LastInteraction:  &now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.contacts[c.ID] = c
	s.indexLocked(c)
	s.persistLocked(ctx, c)
	return c.clone(), true, nil
}

// Lookup resolves a name without creating or aliasing anything.
func (s *ContactStore) Lookup(name string) (Contact, bool) {
	key := normalizeName(name)
	if key == "" {
		return Contact{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.findLocked(key); c != nil {
		return c.clone(), true
	}
	if c := s.fuzzyLocked(key); c != nil {
		return c.clone(), true
	}
	return Contact{}, false
}

// Known reports whether name is an existing contact name or alias. Unlike
// Lookup it never falls back to fuzzy matching.
func (s *ContactStore) Known(name string) bool {
	key := normalizeName(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(key) != nil
}

func (s *ContactStore) findLocked(key string) *Contact {
	if id, ok := s.nameIndex[key]; ok {
		return s.contacts[id]
	}
	return nil
}

func (s *ContactStore) fuzzyLocked(key string) *Contact {
	if s.fuzzy == nil {
		return nil
	}
	var best *Contact
	bestScore := 0.0
	for indexed, id := range s.nameIndex {
		score := s.fuzzy.Similarity(key, indexed)
		if score < s.threshold {
			continue
		}
		c := s.contacts[id]
		if score > bestScore || (score == bestScore && best != nil && c.ID < best.ID) {
			best, bestScore = c, score
		}
	}
	return best
}

// RecordInteraction bumps the interaction counter and logs a summary.
func (s *ContactStore) RecordInteraction(ctx context.Context, id, messageID string, at time.Time, summary string) (Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok {
		return Contact{}, fmt.Errorf("record interaction %s: %w", id, ErrContactNotFound)
	}
	c.InteractionCount++
	t := at
	c.LastInteraction = &t
	c.UpdatedAt = at
	in := Interaction{ContactID: id, MessageID: messageID, At: at, Summary: summary}
	s.appendInteractionLocked(in)
	s.persistLocked(ctx, c)
	if s.repo != nil {
		if err := s.repo.AppendInteraction(ctx, in); err != nil {
			logger.WarnCF("memory", "Interaction write-through failed", map[string]interface{}{
				"contact_id": id,
				"error":      err.Error(),
			})
		}
	}
	return c.clone(), nil
}

// logCreation records the first-mention interaction of a new contact
// without changing its counter.
func (s *ContactStore) logCreation(ctx context.Context, id, messageID string, at time.Time, summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contacts[id]; !ok {
		return
	}
	in := Interaction{ContactID: id, MessageID: messageID, At: at, Summary: summary}
	s.appendInteractionLocked(in)
	if s.repo != nil {
		if err := s.repo.AppendInteraction(ctx, in); err != nil {
			logger.WarnCF("memory", "Interaction write-through failed", map[string]interface{}{
				"contact_id": id,
				"error":      err.Error(),
			})
		}
	}
}

func (s *ContactStore) appendInteractionLocked(in Interaction) {
	log := append(s.interactions[in.ContactID], in)
	if len(log) > s.maxLog {
		log = log[len(log)-s.maxLog:]
	}
	s.interactions[in.ContactID] = log
}

// ApplyEntity merges an email, phone, address or organization entity into
// the contact; organizations land in Company.
// Empty values are ignored and other entity types are a no-op. A replaced
// value is kept as a note.
func (s *ContactStore) ApplyEntity(ctx context.Context, id string, e Entity) (string, bool, error) {
	value := strings.TrimSpace(e.Value)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok {
		return "", false, fmt.Errorf("apply entity %s: %w", id, ErrContactNotFound)
	}
	var field *string
	switch e.Type {
	case EntityEmail:
		field = &c.Email
	case EntityPhone:
		field = &c.Phone
	case EntityAddress:
		field = &c.Address
	case EntityOrganization:
		field = &c.Company
	default:
		return "", false, nil
	}
	name := string(e.Type)
	if e.Type == EntityOrganization {
		name = "company"
	}
	if value == "" || *field == value {
		return name, false, nil
	}
	if *field != "" {
		c.Notes = append(c.Notes, fmt.Sprintf("previous %s: %s", name, *field))
	}
	*field = value
	c.UpdatedAt = s.now()
	s.persistLocked(ctx, c)
	return name, true, nil
}

// AddNote appends a free-text note.
func (s *ContactStore) AddNote(ctx context.Context, id, note string) (Contact, error) {
	note = strings.TrimSpace(note)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok {
		return Contact{}, fmt.Errorf("add note %s: %w", id, ErrContactNotFound)
	}
	if note == "" {
		return c.clone(), nil
	}
	c.Notes = append(c.Notes, note)
	c.UpdatedAt = s.now()
	s.persistLocked(ctx, c)
	return c.clone(), nil
}

// Get returns the contact with the given id.
func (s *ContactStore) Get(id string) (Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok {
		return Contact{}, fmt.Errorf("get contact %s: %w", id, ErrContactNotFound)
	}
	return c.clone(), nil
}

// Search matches query case-insensitively against name, aliases, email and
// company. An empty query lists everything. Results are ordered by name then id.
func (s *ContactStore) Search(query string) []Contact {
	q := strings.ToLower(strings.TrimSpace(query))
	s.mu.Lock()
	out := make([]Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		if q == "" || contactMatches(c, q) {
			out = append(out, c.clone())
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		ni, nj := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if ni != nj {
			return ni < nj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func contactMatches(c *Contact, q string) bool {
	if strings.Contains(strings.ToLower(c.Name), q) ||
		strings.Contains(strings.ToLower(c.Email), q) ||
		strings.Contains(strings.ToLower(c.Company), q) {
		return true
	}
	for _, a := range c.Aliases {
		if strings.Contains(strings.ToLower(a), q) {
			return true
		}
	}
	return false
}

// Recent lists contacts by most recent interaction first.
func (s *ContactStore) Recent(limit int) []Contact {
	all := s.Search("")
	sort.SliceStable(all, func(i, j int) bool {
		return lastSeen(all[i]).After(lastSeen(all[j]))
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

func lastSeen(c Contact) time.Time {
	if c.LastInteraction == nil {
		return c.CreatedAt
	}
	return *c.LastInteraction
}

// History reports a contact's interaction record.
func (s *ContactStore) History(ctx context.Context, id string) (ContactHistory, error) {
	s.mu.Lock()
	c, ok := s.contacts[id]
	if !ok {
		s.mu.Unlock()
		return ContactHistory{}, fmt.Errorf("contact history %s: %w", id, ErrContactNotFound)
	}
	snapshot := c.clone()
	log := append([]Interaction(nil), s.interactions[id]...)
	s.mu.Unlock()

	if len(log) == 0 && s.repo != nil {
		persisted, err := s.repo.ListInteractions(ctx, id, s.maxLog)
		if err != nil {
			logger.WarnCF("memory", "Interaction history unavailable", map[string]interface{}{
				"contact_id": id,
				"error":      err.Error(),
			})
		} else {
			log = persisted
		}
	}
	if log == nil {
		log = []Interaction{}
	}
	notes := snapshot.Notes
	if notes == nil {
		notes = []string{}
	}
	return ContactHistory{
		Contact:          snapshot,
		InteractionCount: snapshot.InteractionCount,
		LastInteraction:  snapshot.LastInteraction,
		Notes:            notes,
		Interactions:     log,
	}, nil
}

func (s *ContactStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contacts)
}

func (s *ContactStore) persistLocked(ctx context.Context, c *Contact) {
	if s.repo == nil {
		return
	}
	if err := s.repo.UpsertContact(ctx, c.clone()); err != nil {
		logger.WarnCF("memory", "Contact write-through failed", map[string]interface{}{
			"contact_id": c.ID,
			"error":      err.Error(),
		})
	}
}
