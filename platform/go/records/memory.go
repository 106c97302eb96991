package records

import (
	"context"
	"sync"
)

// MemoryUserStore is an in-memory UserStore used by tests and local runs.
// QueryByID iterates records in insertion order, matching the "first
// encountered" semantics of the secondary index contract.
type MemoryUserStore struct {
	mu      sync.Mutex
	records []UserRecord
}

// NewMemoryUserStore constructs an empty in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{}
}

func (s *MemoryUserStore) Get(ctx context.Context, tenantID, id string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.TenantID == tenantID && r.ID == id {
			return r, nil
		}
	}
	return UserRecord{}, ErrNotFound
}

func (s *MemoryUserStore) QueryByID(ctx context.Context, id string) ([]UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matches []UserRecord
	for _, r := range s.records {
		if r.ID == id {
			matches = append(matches, r)
		}
	}
	return matches, nil
}

func (s *MemoryUserStore) Put(ctx context.Context, record UserRecord) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.records {
		if r.TenantID == record.TenantID && r.ID == record.ID {
			s.records[i] = record
			return record, nil
		}
	}
	s.records = append(s.records, record)
	return record, nil
}

func (s *MemoryUserStore) Delete(ctx context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.records {
		if r.TenantID == tenantID && r.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// MemoryTenantStore is an in-memory TenantStore for tests and local runs.
type MemoryTenantStore struct {
	mu      sync.Mutex
	records []TenantRecord
}

// NewMemoryTenantStore constructs an empty in-memory tenant store.
func NewMemoryTenantStore() *MemoryTenantStore {
	return &MemoryTenantStore{}
}

func (s *MemoryTenantStore) Put(ctx context.Context, record TenantRecord) (TenantRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.records {
		if r.ID == record.ID {
			s.records[i] = record
			return record, nil
		}
	}
	s.records = append(s.records, record)
	return record, nil
}

func (s *MemoryTenantStore) ListWithInfrastructure(ctx context.Context) ([]TenantRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matches []TenantRecord
	for _, r := range s.records {
		if r.HasInfrastructure() {
			matches = append(matches, r)
		}
	}
	return matches, nil
}

func (s *MemoryTenantStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.records {
		if r.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}
