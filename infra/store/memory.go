package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mstgnz/academypay/payment"
)

// MemoryStore keeps payments in process memory. Records are copied on the
// way in and out so callers never share state with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	byID        map[string]*payment.Record
	byIdemKey   map[string]string
	byReference map[string]string
}

// NewMemoryStore creates an empty in-memory payment store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:        make(map[string]*payment.Record),
		byIdemKey:   make(map[string]string),
		byReference: make(map[string]string),
	}
}

func compositeKey(a, b string) string {
	return a + "\x00" + b
}

func (s *MemoryStore) Load(_ context.Context, paymentID string) (*payment.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[paymentID]
	if !ok {
		return nil, payment.ErrPaymentNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) LoadByIdempotencyKey(_ context.Context, tenantID, key string) (*payment.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byIdemKey[compositeKey(tenantID, key)]
	if !ok {
		return nil, payment.ErrPaymentNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *MemoryStore) LoadByGatewayReference(_ context.Context, gateway, reference string) (*payment.Record, error) {
	if reference == "" {
		return nil, payment.ErrPaymentNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byReference[compositeKey(gateway, reference)]
	if !ok {
		return nil, payment.ErrPaymentNotFound
	}
	return s.byID[id].Clone(), nil
}

// Save inserts when expectedVersion is 0, otherwise swaps the record if the
// stored version still matches
func (s *MemoryStore) Save(_ context.Context, rec *payment.Record, expectedVersion int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	refKey := ""
	if rec.GatewayReference != "" {
		refKey = compositeKey(rec.Gateway, rec.GatewayReference)
	}

	if expectedVersion == 0 {
		idemKey := compositeKey(rec.TenantID, rec.IdempotencyKey)
		if _, exists := s.byID[rec.ID]; exists {
			return false, nil
		}
		if _, exists := s.byIdemKey[idemKey]; exists {
			return false, nil
		}
		if _, exists := s.byReference[refKey]; refKey != "" && exists {
			return false, nil
		}

		s.byID[rec.ID] = rec.Clone()
		s.byIdemKey[idemKey] = rec.ID
		if refKey != "" {
			s.byReference[refKey] = rec.ID
		}
		return true, nil
	}

	current, ok := s.byID[rec.ID]
	if !ok || current.Version != expectedVersion {
		return false, nil
	}
	if owner, exists := s.byReference[refKey]; refKey != "" && exists && owner != rec.ID {
		return false, nil
	}

	if current.GatewayReference != "" && current.GatewayReference != rec.GatewayReference {
		delete(s.byReference, compositeKey(current.Gateway, current.GatewayReference))
	}
	s.byID[rec.ID] = rec.Clone()
	if refKey != "" {
		s.byReference[refKey] = rec.ID
	}
	return true, nil
}

// ListStale returns non-terminal payments last updated before cutoff,
// oldest first
func (s *MemoryStore) ListStale(_ context.Context, cutoff time.Time, limit int) ([]*payment.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*payment.Record
	for _, rec := range s.byID {
		if rec.Status.Terminal() || !rec.UpdatedAt.Before(cutoff) {
			continue
		}
		out = append(out, rec.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
