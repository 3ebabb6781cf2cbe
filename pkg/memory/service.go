package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dotsetgreg/dotrecall/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	BackendSQLite  = "sqlite"
	BackendChromem = "chromem"
	BackendNone    = "none"
)

// Config configures a memory Service.
type Config struct {
	Workspace         string
	UserID            string
	WindowSize        int
	SummaryMessages   int
	RehydrateMessages int
	RecognizerEnabled bool
	FuzzyMatch        bool
	FuzzyThreshold    float64
	LaterDelay        time.Duration
	// Backend selects the long-term message store: sqlite, chromem or none.
	// Contacts persist to SQLite unless Backend is none.
	Backend            string
	AsyncQueueSize     int
	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration
	EmbeddingModel     string
	// Registerer receives the engine metrics. Nil disables metrics.
	Registerer prometheus.Registerer
}

// Service owns a System, its Recall and the stores behind them.
type Service struct {
	cfg     Config
	system  *System
	recall  *Recall
	metrics *Metrics
	sqlite  *SQLiteStore
	breaker *BreakerStore
	store   LongTermStore

	closeOnce sync.Once
	closeErr  error
}

func NewService(ctx context.Context, cfg Config) (*Service, error) {
	if strings.TrimSpace(cfg.Workspace) == "" {
		return nil, fmt.Errorf("memory workspace is required")
	}
	if cfg.UserID == "" {
		cfg.UserID = "local"
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.RehydrateMessages < 0 {
		cfg.RehydrateMessages = 0
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if cfg.Backend == "" {
		cfg.Backend = BackendSQLite
	}

	svc := &Service{cfg: cfg}
	if cfg.Registerer != nil {
		svc.metrics = NewMetrics(cfg.Registerer)
	}

	stateDir := filepath.Join(cfg.Workspace, "state")
	var inner LongTermStore
	switch cfg.Backend {
	case BackendNone:
	case BackendSQLite, BackendChromem:
		sqlite, err := NewSQLiteStore(filepath.Join(stateDir, "memory.db"), cfg.UserID)
		if err != nil {
			return nil, err
		}
		svc.sqlite = sqlite
		inner = sqlite
		if cfg.Backend == BackendChromem {
			embedder, err := NewEmbedder(cfg.EmbeddingModel)
			if err != nil {
				_ = sqlite.Close()
				return nil, err
			}
			vectors, err := NewChromemStore(filepath.Join(stateDir, "vectors"), cfg.UserID, embedder)
			if err != nil {
				_ = sqlite.Close()
				return nil, err
			}
			inner = NewFanoutStore(vectors, sqlite)
		}
	default:
		return nil, fmt.Errorf("unknown long-term backend %q", cfg.Backend)
	}
	if inner != nil {
		svc.breaker = NewBreakerStore(inner, BreakerConfig{MaxFailures: cfg.BreakerMaxFailures, Timeout: cfg.BreakerTimeout})
		svc.store = NewAsyncStore(svc.breaker, cfg.AsyncQueueSize, svc.metrics)
	}

	contactOpts := ContactStoreOptions{FuzzyThreshold: cfg.FuzzyThreshold}
	if cfg.FuzzyMatch {
		contactOpts.Fuzzy = LevenshteinMatcher{}
	}
	if svc.sqlite != nil {
		contactOpts.Repository = svc.sqlite
	}
	contacts := NewContactStore(contactOpts)

	var recognizers []Recognizer
	if cfg.RecognizerEnabled {
		recognizers = append(recognizers, NewHeuristicRecognizer().WithKnownNames(contacts.Known))
	}
	opts := []Option{
		WithExtractor(NewCompositeExtractor(recognizers...)),
		WithContactStore(contacts),
		WithSuggestionEngine(NewSuggestionEngine(nil, cfg.LaterDelay)),
		WithWindowSize(cfg.WindowSize),
		WithSummaryMessages(cfg.SummaryMessages),
		WithMetrics(svc.metrics),
	}
	if svc.store != nil {
		opts = append(opts, WithLongTermStore(svc.store))
	}
	svc.system = NewSystem(cfg.UserID, opts...)
	svc.recall = NewRecall(svc.system)

	if err := contacts.Load(ctx); err != nil {
		_ = svc.Close()
		return nil, err
	}
	if svc.sqlite != nil && cfg.RehydrateMessages > 0 {
		n, err := svc.system.Rehydrate(ctx, svc.sqlite, cfg.RehydrateMessages)
		if err != nil {
			_ = svc.Close()
			return nil, err
		}
		logger.DebugCF("memory", "Window rehydrated", map[string]interface{}{"messages": n, "contacts": contacts.Len()})
	}
	return svc, nil
}

func (s *Service) System() *System { return s.system }

func (s *Service) Recall() *Recall { return s.recall }

func (s *Service) Process(ctx context.Context, speaker Speaker, content string) ProcessResult {
	return s.system.ProcessMessage(ctx, speaker, content)
}

func (s *Service) Query(ctx context.Context, question string) Answer {
	return s.recall.Query(ctx, question)
}

// Status summarizes the service for operators.
type Status struct {
	UserID        string      `json:"user_id"`
	Backend       string      `json:"backend"`
	WindowLen     int         `json:"window_messages"`
	WindowCap     int         `json:"window_capacity"`
	Contacts      int         `json:"contacts"`
	BreakerState  string      `json:"breaker_state,omitempty"`
	DroppedWrites uint64      `json:"dropped_writes"`
	Stored        *StoreStats `json:"stored,omitempty"`
}

func (s *Service) Status(ctx context.Context) (Status, error) {
	st := Status{
		UserID:    s.cfg.UserID,
		Backend:   s.cfg.Backend,
		WindowLen: s.system.window.Len(),
		WindowCap: s.system.window.Capacity(),
		Contacts:  s.system.contacts.Len(),
	}
	if s.breaker != nil {
		st.BreakerState = s.breaker.State()
	}
	if as, ok := s.store.(*AsyncStore); ok {
		st.DroppedWrites = as.Dropped()
	}
	if s.sqlite != nil {
		stats, err := s.sqlite.Stats(ctx)
		if err != nil {
			return st, err
		}
		st.Stored = &stats
	}
	return st, nil
}

// Close drains pending writes and closes every store.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		if s.store != nil {
			s.closeErr = s.store.Close()
		}
	})
	return s.closeErr
}
