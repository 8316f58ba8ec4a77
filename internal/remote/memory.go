package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mkorchagin/finsync/internal/common"
	"github.com/mkorchagin/finsync/internal/syncable"
)

// Memory is a map-backed Store used by tests and offline development. The
// Fail* fields inject the corresponding failure until cleared, so transient
// outages and aborted batches can be simulated deterministically.
type Memory struct {
	mu          sync.RWMutex
	owner       string
	collections map[string]map[string]syncable.Document

	FailUpsert  error
	FailGet     error
	FailChanged error
	FailDelete  error
	FailTx      error
}

func NewMemory(owner string) *Memory {
	return &Memory{
		owner:       owner,
		collections: make(map[string]map[string]syncable.Document),
	}
}

// Seed plants a document directly, bypassing the owner checks. Intended for
// tests that simulate writes made by other devices.
func (s *Memory) Seed(collection, id string, doc syncable.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collection(collection)[id] = copyDoc(doc)
}

// Len reports the number of documents in a collection.
func (s *Memory) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

func (s *Memory) Upsert(ctx context.Context, collection, id string, doc syncable.Document) error {
	if s.FailUpsert != nil {
		return fmt.Errorf("%w: %v", common.ErrRemoteUnavailable, s.FailUpsert)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsert(collection, id, doc)
}

func (s *Memory) upsert(collection, id string, doc syncable.Document) error {
	docOwner, _ := syncable.OptionalString(doc, syncable.KeyUserID)
	if docOwner != s.owner {
		return fmt.Errorf("%w: document %s/%s belongs to %q", common.ErrPermissionDenied, collection, id, docOwner)
	}
	col := s.collection(collection)
	if existing, ok := col[id]; ok {
		owner, _ := syncable.OptionalString(existing, syncable.KeyUserID)
		if owner != s.owner {
			return fmt.Errorf("%w: document %s/%s owned by another user", common.ErrPermissionDenied, collection, id)
		}
	}
	col[id] = copyDoc(doc)
	return nil
}

func (s *Memory) Get(ctx context.Context, collection, id string) (syncable.Document, error) {
	if s.FailGet != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrRemoteUnavailable, s.FailGet)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, nil
	}
	return copyDoc(doc), nil
}

func (s *Memory) ChangedSince(ctx context.Context, collection string, since time.Time) (map[string]syncable.Document, error) {
	if s.FailChanged != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrRemoteUnavailable, s.FailChanged)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]syncable.Document)
	for id, doc := range s.collections[collection] {
		owner, _ := syncable.OptionalString(doc, syncable.KeyUserID)
		if owner != s.owner {
			continue
		}
		if syncable.BestTimestamp(doc).After(since) {
			result[id] = copyDoc(doc)
		}
	}
	return result, nil
}

func (s *Memory) Delete(ctx context.Context, collection, id string) error {
	if s.FailDelete != nil {
		return fmt.Errorf("%w: %v", common.ErrRemoteUnavailable, s.FailDelete)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], id)
	return nil
}

func (s *Memory) ExecuteTransaction(ctx context.Context, ops []Operation) error {
	if s.FailTx != nil {
		return fmt.Errorf("%w: %v", common.ErrTransactionAborted, s.FailTx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// Stage on copies so a rejected sub-operation leaves nothing applied.
	staged := make(map[string]map[string]syncable.Document)
	for _, op := range ops {
		if _, ok := staged[op.Collection]; !ok {
			staged[op.Collection] = copyCollection(s.collection(op.Collection))
		}
	}

	backup := s.collections
	next := make(map[string]map[string]syncable.Document, len(s.collections))
	for name, col := range s.collections {
		next[name] = col
	}
	for name, col := range staged {
		next[name] = col
	}
	s.collections = next

	for _, op := range ops {
		var err error
		switch op.Kind {
		case OpUpsert:
			err = s.upsert(op.Collection, op.ID, op.Doc)
		case OpDelete:
			delete(s.collections[op.Collection], op.ID)
		default:
			err = fmt.Errorf("unknown operation kind %q", op.Kind)
		}
		if err != nil {
			s.collections = backup
			return fmt.Errorf("%w: %w", common.ErrTransactionAborted, err)
		}
	}
	return nil
}

func (s *Memory) collection(name string) map[string]syncable.Document {
	if _, ok := s.collections[name]; !ok {
		s.collections[name] = make(map[string]syncable.Document)
	}
	return s.collections[name]
}

func copyDoc(doc syncable.Document) syncable.Document {
	out := make(syncable.Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

func copyCollection(col map[string]syncable.Document) map[string]syncable.Document {
	out := make(map[string]syncable.Document, len(col))
	for id, doc := range col {
		out[id] = copyDoc(doc)
	}
	return out
}
