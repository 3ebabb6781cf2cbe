package memory

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

func (s *System) ensureThreadLocked() *Thread {
	if s.active != nil && s.active.IsActive {
		return s.active
	}
	return s.newThreadLocked("")
}

func (s *System) newThreadLocked(topic string) *Thread {
	if s.active != nil {
		s.active.IsActive = false
	}
	now := s.now()
	t := &Thread{
		ID:           uuid.NewString(),
		UserID:       s.userID,
		StartedAt:    now,
		LastActive:   now,
		Topic:        topic,
		Participants: []string{},
		IsActive:     true,
	}
	s.threads[t.ID] = t
	s.threadOrder = append(s.threadOrder, t.ID)
	s.active = t
	return t
}

func (s *System) addParticipantLocked(t *Thread, speaker Speaker) {
	var who string
	switch speaker {
	case SpeakerUser:
		who = s.userID
	case SpeakerAgent:
		who = string(SpeakerAgent)
	default:
		return
	}
	if who == "" {
		return
	}
	for _, p := range t.Participants {
		if p == who {
			return
		}
	}
	t.Participants = append(t.Participants, who)
}

// NewThread deactivates the current thread and starts a fresh one.
func (s *System) NewThread(topic string) ThreadInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return threadInfo(s.newThreadLocked(topic))
}

func (s *System) ActiveThread() (ThreadInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || !s.active.IsActive {
		return ThreadInfo{}, false
	}
	return threadInfo(s.active), true
}

// Thread returns a copy of the thread including its messages.
func (s *System) Thread(id string) (Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		return Thread{}, fmt.Errorf("thread %s: %w", id, ErrThreadNotFound)
	}
	out := *t
	out.Participants = append([]string(nil), t.Participants...)
	out.Messages = append([]*Message(nil), t.Messages...)
	return out, nil
}

// Threads lists every thread of this session, oldest first.
func (s *System) Threads() []ThreadInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ThreadInfo, 0, len(s.threadOrder))
	for _, id := range s.threadOrder {
		out = append(out, threadInfo(s.threads[id]))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// ArchiveThread closes a thread and stores a short digest as its summary.
// The next message after archiving the active thread starts a new one.
func (s *System) ArchiveThread(id string) (ThreadInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		return ThreadInfo{}, fmt.Errorf("archive thread %s: %w", id, ErrThreadNotFound)
	}
	t.IsActive = false
	if t.Summary == "" && len(t.Messages) > 0 {
		last := t.Messages[len(t.Messages)-1]
		t.Summary = fmt.Sprintf("%d messages; last: %s", len(t.Messages), truncateRunes(last.Content, summarySnippetRunes))
	}
	if s.active == t {
		s.active = nil
	}
	return threadInfo(t), nil
}

func threadInfo(t *Thread) ThreadInfo {
	return ThreadInfo{
		ID:           t.ID,
		UserID:       t.UserID,
		StartedAt:    t.StartedAt,
		LastActive:   t.LastActive,
		Topic:        t.Topic,
		Participants: append([]string(nil), t.Participants...),
		MessageCount: len(t.Messages),
		Summary:      t.Summary,
		IsActive:     t.IsActive,
	}
}
