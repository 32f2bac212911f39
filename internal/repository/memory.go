package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/sheetsnap/sheetsnap/internal/common"
	"github.com/sheetsnap/sheetsnap/internal/entity"
)

// MemoryStore is a mutex-guarded Store for tests and ephemeral runs. Its
// AtomicIncrementPages matches the SQL adapters: compare and increment
// under one lock acquisition.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*entity.UsageAccount
	codes    map[string]uuid.UUID
	docs     map[uuid.UUID]*entity.Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[uuid.UUID]*entity.UsageAccount),
		codes:    make(map[string]uuid.UUID),
		docs:     make(map[uuid.UUID]*entity.Document),
	}
}

func (s *MemoryStore) ReadUsage(_ context.Context, userID uuid.UUID) (*entity.UsageAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[userID]
	if !ok {
		return nil, fmt.Errorf("%w: usage account %s", common.ErrNotFound, userID)
	}
	cp := *acct
	return &cp, nil
}

func (s *MemoryStore) AtomicIncrementPages(_ context.Context, userID uuid.UUID, delta, ceiling int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[userID]
	if !ok {
		return false, fmt.Errorf("%w: usage account %s", common.ErrNotFound, userID)
	}
	if acct.PagesUsed+delta > ceiling {
		return false, nil
	}
	acct.PagesUsed += delta
	return true, nil
}

func (s *MemoryStore) AssignInviteCode(_ context.Context, userID uuid.UUID, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[userID]
	if !ok {
		return fmt.Errorf("%w: usage account %s", common.ErrNotFound, userID)
	}
	if acct.InviteCode != "" {
		return ErrAlreadyHasCode
	}
	if _, taken := s.codes[code]; taken {
		return ErrCodeTaken
	}
	acct.InviteCode = code
	s.codes[code] = userID
	return nil
}

func (s *MemoryStore) AddInviteBonus(_ context.Context, inviterID uuid.UUID, bonusPages int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[inviterID]
	if !ok {
		return fmt.Errorf("%w: usage account %s", common.ErrNotFound, inviterID)
	}
	acct.InvitePages += bonusPages
	acct.InviteCount++
	return nil
}

func (s *MemoryStore) CreateAccount(_ context.Context, acct *entity.UsageAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[acct.UserID]; exists {
		return fmt.Errorf("usage account %s already exists", acct.UserID)
	}
	cp := *acct
	s.accounts[acct.UserID] = &cp
	if cp.InviteCode != "" {
		s.codes[cp.InviteCode] = cp.UserID
	}
	return nil
}

func (s *MemoryStore) SaveDocument(_ context.Context, doc *entity.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.ID]; exists {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	cp := *doc
	s.docs[doc.ID] = &cp
	return nil
}

func (s *MemoryStore) GetDocument(_ context.Context, id, userID uuid.UUID) (*entity.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok || doc.UserID != userID {
		return nil, fmt.Errorf("%w: document %s", common.ErrNotFound, id)
	}
	cp := *doc
	return &cp, nil
}

func (s *MemoryStore) ListDocuments(_ context.Context, userID uuid.UUID) ([]*entity.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.Document
	for _, doc := range s.docs {
		if doc.UserID == userID {
			cp := *doc
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) DeleteDocument(_ context.Context, id, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok || doc.UserID != userID {
		return fmt.Errorf("%w: document %s", common.ErrNotFound, id)
	}
	delete(s.docs, id)
	return nil
}
