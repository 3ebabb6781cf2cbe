package memory

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"
)

// ChromemStore is a vector-backed long-term store. Messages are embedded
// locally and searched by cosine similarity. Each user gets a collection.
type ChromemStore struct {
	db       *chromem.DB
	embedder Embedder
	userID   string

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// NewChromemStore opens a persistent store at path, or an in-memory one when
// path is empty.
func NewChromemStore(path, userID string, embedder Embedder) (*ChromemStore, error) {
	if embedder == nil {
		var err error
		if embedder, err = NewEmbedder(""); err != nil {
			return nil, err
		}
	}
	var db *chromem.DB
	if strings.TrimSpace(path) == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}
	return &ChromemStore{
		db:          db,
		embedder:    embedder,
		userID:      userID,
		collections: map[string]*chromem.Collection{},
	}, nil
}

func (s *ChromemStore) collection() (*chromem.Collection, error) {
	s.mu.RLock()
	col, ok := s.collections[s.userID]
	s.mu.RUnlock()
	if ok {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[s.userID]; ok {
		return col, nil
	}
	name := "messages_global"
	if s.userID != "" {
		name = "messages_" + s.userID
	}
	col, err := s.db.GetOrCreateCollection(name, nil, EmbedFunc(s.embedder))
	if err != nil {
		return nil, fmt.Errorf("get or create collection %s: %w", name, err)
	}
	s.collections[s.userID] = col
	return col, nil
}

func (s *ChromemStore) StoreMessage(ctx context.Context, msg *Message) error {
	if msg == nil || strings.TrimSpace(msg.ID) == "" {
		return fmt.Errorf("store message: empty id")
	}
	if strings.TrimSpace(msg.Content) == "" {
		return nil
	}
	col, err := s.collection()
	if err != nil {
		return err
	}
	doc := chromem.Document{
		ID:        msg.ID,
		Content:   msg.Content,
		Embedding: s.embedder.Embed(msg.Content),
		Metadata: map[string]string{
			"thread_id": msg.ThreadID,
			"speaker":   string(msg.Speaker),
			"intent":    msg.Intent,
			"ts_ms":     strconv.FormatInt(msg.Timestamp.UnixMilli(), 10),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

func (s *ChromemStore) SearchMessages(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}
	if strings.TrimSpace(query) == "" {
		return []SearchHit{}, nil
	}
	col, err := s.collection()
	if err != nil {
		return nil, err
	}
	// chromem rejects nResults larger than the collection.
	if n := col.Count(); n < limit {
		limit = n
	}
	if limit == 0 {
		return []SearchHit{}, nil
	}
	results, err := col.QueryEmbedding(ctx, s.embedder.Embed(query), limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}
	out := make([]SearchHit, 0, len(results))
	for _, r := range results {
		ms, _ := strconv.ParseInt(r.Metadata["ts_ms"], 10, 64)
		out = append(out, SearchHit{
			MessageID: r.ID,
			ThreadID:  r.Metadata["thread_id"],
			Speaker:   Speaker(r.Metadata["speaker"]),
			Content:   r.Content,
			Timestamp: time.UnixMilli(ms),
			Score:     float64(r.Similarity),
		})
	}
	return out, nil
}

// Close is a no-op; persistent databases write through on every add.
func (s *ChromemStore) Close() error { return nil }
