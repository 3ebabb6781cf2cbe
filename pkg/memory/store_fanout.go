package memory

import (
	"context"
	"errors"
)

// FanoutStore writes every message to all stores. Searches go to the first
// store that can search.
type FanoutStore struct {
	stores []LongTermStore
}

func NewFanoutStore(stores ...LongTermStore) *FanoutStore {
	return &FanoutStore{stores: stores}
}

func (f *FanoutStore) StoreMessage(ctx context.Context, msg *Message) error {
	var errs []error
	for _, s := range f.stores {
		if err := s.StoreMessage(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *FanoutStore) SearchMessages(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	for _, s := range f.stores {
		if ms, ok := s.(MessageSearcher); ok {
			return ms.SearchMessages(ctx, query, limit)
		}
	}
	return []SearchHit{}, nil
}

func (f *FanoutStore) Close() error {
	var errs []error
	for _, s := range f.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
