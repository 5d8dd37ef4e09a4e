package store

import (
	"sync"

	"resellboost/internal/model"
)

// PendingStore persists purchases awaiting payment checks and cashouts
// awaiting approval. Take removes and returns an entry in one step, so a
// staff button can only consume it once.
type PendingStore struct {
	mu   sync.Mutex
	path string
	doc  *model.PendingActions
}

func NewPendingStore(path string) *PendingStore {
	return &PendingStore{path: path}
}

func (s *PendingStore) loadLocked() error {
	if s.doc != nil {
		return nil
	}
	doc := model.NewPendingActions()
	if err := readFileOrInit(s.path, doc, model.NewPendingActions()); err != nil {
		return err
	}
	if doc.Transactions == nil {
		doc.Transactions = make(map[string]model.PendingTransaction)
	}
	if doc.Cashouts == nil {
		doc.Cashouts = make(map[string]model.PendingCashout)
	}
	s.doc = doc
	return nil
}

func (s *PendingStore) mutate(fn func(doc *model.PendingActions) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return err
	}
	if !fn(s.doc) {
		return nil
	}
	return writeFileAtomic(s.path, s.doc)
}

func (s *PendingStore) PutTransaction(id string, tx model.PendingTransaction) error {
	return s.mutate(func(doc *model.PendingActions) bool {
		doc.Transactions[id] = tx
		return true
	})
}

func (s *PendingStore) TakeTransaction(id string) (model.PendingTransaction, bool, error) {
	var (
		tx    model.PendingTransaction
		found bool
	)
	err := s.mutate(func(doc *model.PendingActions) bool {
		tx, found = doc.Transactions[id]
		delete(doc.Transactions, id)
		return found
	})
	if err != nil {
		return model.PendingTransaction{}, false, err
	}
	return tx, found, nil
}

func (s *PendingStore) GetTransaction(id string) (model.PendingTransaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return model.PendingTransaction{}, false, err
	}
	tx, ok := s.doc.Transactions[id]
	return tx, ok, nil
}

func (s *PendingStore) PutCashout(messageID string, c model.PendingCashout) error {
	return s.mutate(func(doc *model.PendingActions) bool {
		doc.Cashouts[messageID] = c
		return true
	})
}

func (s *PendingStore) TakeCashout(messageID string) (model.PendingCashout, bool, error) {
	var (
		c     model.PendingCashout
		found bool
	)
	err := s.mutate(func(doc *model.PendingActions) bool {
		c, found = doc.Cashouts[messageID]
		delete(doc.Cashouts, messageID)
		return found
	})
	if err != nil {
		return model.PendingCashout{}, false, err
	}
	return c, found, nil
}

func (s *PendingStore) GetCashout(messageID string) (model.PendingCashout, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return model.PendingCashout{}, false, err
	}
	c, ok := s.doc.Cashouts[messageID]
	return c, ok, nil
}

// ChallengeStore holds the current community challenge document.
type ChallengeStore struct {
	mu   sync.Mutex
	path string
}

func NewChallengeStore(path string) *ChallengeStore {
	return &ChallengeStore{path: path}
}

func (s *ChallengeStore) Get() (model.CommunityChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := model.CommunityChallenge{}
	if err := readFileOrInit(s.path, &c, model.CommunityChallenge{}); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ChallengeStore) Set(c model.CommunityChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c == nil {
		c = model.CommunityChallenge{}
	}
	return writeFileAtomic(s.path, c)
}
