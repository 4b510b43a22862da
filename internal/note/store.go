// store.go - In-memory note store, partitioned by token address.
//
// The store is the engine's one long-lived mutable state. Writes (Save,
// MarkSpent) are serialized behind a mutex; readers get snapshot slices.
// Durable persistence lives outside the core.

package note

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Store indexes notes by token for listing and by nullifier for O(1) lookup
// when spend-side events arrive.
type Store struct {
	mu          sync.RWMutex
	byToken     map[common.Address][]*Note
	byNullifier map[string]*Note
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		byToken:     make(map[common.Address][]*Note),
		byNullifier: make(map[string]*Note),
	}
}

// Save records a note. Finalized notes are additionally indexed by their
// nullifier.
func (s *Store) Save(n *Note) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byToken[n.TokenAddress] = append(s.byToken[n.TokenAddress], n)
	if n.Nullifier != nil {
		s.byNullifier[n.Nullifier.String()] = n
	}
}

// GetAll returns a snapshot of every note for the token. A nil token selects
// all partitions.
func (s *Store) GetAll(token *common.Address) []*Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(token, false)
}

// GetUnspent returns a snapshot of the unspent notes for the token. A nil
// token selects all partitions.
func (s *Store) GetUnspent(token *common.Address) []*Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(token, true)
}

func (s *Store) collect(token *common.Address, unspentOnly bool) []*Note {
	var out []*Note
	appendFrom := func(notes []*Note) {
		for _, n := range notes {
			if unspentOnly && n.Spent {
				continue
			}
			out = append(out, n)
		}
	}
	if token != nil {
		appendFrom(s.byToken[*token])
		return out
	}
	for _, notes := range s.byToken {
		appendFrom(notes)
	}
	return out
}

// MarkSpent flips the note with the given nullifier to spent. Returns false
// if no such note is known. Call only after the nullifier has been observed
// on-chain, never on local submission.
func (s *Store) MarkSpent(nullifier string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.byNullifier[nullifier]
	if !ok {
		return false
	}
	n.Spent = true
	return true
}

// MarkUnspent reverts a spent flag, used when a submitted spend is rejected
// by the chain. Returns false if the nullifier is unknown.
func (s *Store) MarkUnspent(nullifier string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.byNullifier[nullifier]
	if !ok {
		return false
	}
	n.Spent = false
	return true
}
