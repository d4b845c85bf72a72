// Package memory provides an in-process CredentialStore backed by maps and
// a single mutex. It is the store used in tests and the example app; real
// deployments use store/redisstore or their own implementation.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/openclinic/portalauth"
)

// Store implements portalauth.CredentialStore. The mutex covers every
// compound operation, so the single-active-record invariants hold under
// concurrent access.
type Store struct {
	mu        sync.Mutex
	users     map[string]*portalauth.User // by id
	emails    map[string]string           // lowercase email -> id
	resets    map[string]string           // reset token -> id
	cards     map[string][]portalauth.CreditCard
	addresses map[string][]portalauth.Address
	visits    map[string][]portalauth.Visit
}

var _ portalauth.CredentialStore = (*Store)(nil)

func New() *Store {
	return &Store{
		users:     make(map[string]*portalauth.User),
		emails:    make(map[string]string),
		resets:    make(map[string]string),
		cards:     make(map[string][]portalauth.CreditCard),
		addresses: make(map[string][]portalauth.Address),
		visits:    make(map[string][]portalauth.Visit),
	}
}

func (s *Store) GetUserByID(_ context.Context, id string) (*portalauth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, portalauth.ErrUserNotFound
	}
	return cloneUser(user), nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*portalauth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return nil, portalauth.ErrUserNotFound
	}
	return cloneUser(s.users[id]), nil
}

func (s *Store) GetUserByResetToken(_ context.Context, token string) (*portalauth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token == "" {
		return nil, portalauth.ErrUserNotFound
	}
	id, ok := s.resets[token]
	if !ok {
		return nil, portalauth.ErrUserNotFound
	}
	return cloneUser(s.users[id]), nil
}

func (s *Store) CreateUser(_ context.Context, user *portalauth.User) (*portalauth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, exists := s.emails[email]; exists {
		return nil, portalauth.ErrDuplicateEmail
	}

	stored := cloneUser(user)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.Email = email

	s.users[stored.ID] = stored
	s.emails[email] = stored.ID
	if stored.ResetToken != "" {
		s.resets[stored.ResetToken] = stored.ID
	}

	return cloneUser(stored), nil
}

func (s *Store) UpdateUser(_ context.Context, user *portalauth.User) (*portalauth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.users[user.ID]
	if !ok {
		return nil, portalauth.ErrUserNotFound
	}

	// Keep the secondary indexes in step with the record.
	if current.ResetToken != "" && current.ResetToken != user.ResetToken {
		delete(s.resets, current.ResetToken)
	}

	stored := cloneUser(user)
	// The generation counter is owned by BumpTokenGeneration; a caller
	// updating a copy loaded before a concurrent bump must not roll it back
	// and resurrect revoked refresh tokens.
	stored.TokenGeneration = current.TokenGeneration
	stored.Email = strings.ToLower(stored.Email)
	if stored.Email != current.Email {
		if owner, exists := s.emails[stored.Email]; exists && owner != stored.ID {
			return nil, portalauth.ErrDuplicateEmail
		}
		delete(s.emails, current.Email)
		s.emails[stored.Email] = stored.ID
	}
	if stored.ResetToken != "" {
		s.resets[stored.ResetToken] = stored.ID
	}

	s.users[stored.ID] = stored
	return cloneUser(stored), nil
}

func (s *Store) BumpTokenGeneration(_ context.Context, userID string) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return 0, portalauth.ErrUserNotFound
	}
	user.TokenGeneration++
	return user.TokenGeneration, nil
}

func (s *Store) SwapActiveCard(_ context.Context, userID string, card portalauth.CreditCard) (*portalauth.CreditCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return nil, portalauth.ErrUserNotFound
	}

	owned := s.cards[userID]
	for i := range owned {
		owned[i].Active = false
	}

	card.UserID = userID
	card.Active = true
	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	s.cards[userID] = append(owned, card)

	saved := card
	return &saved, nil
}

func (s *Store) SwapActiveAddress(_ context.Context, userID string, addr portalauth.Address) (*portalauth.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return nil, portalauth.ErrUserNotFound
	}

	owned := s.addresses[userID]
	match := -1
	for i := range owned {
		owned[i].Active = false
		if owned[i].SameContent(addr) {
			match = i
		}
	}

	if match >= 0 {
		owned[match].Active = true
		s.addresses[userID] = owned
		saved := owned[match]
		return &saved, nil
	}

	addr.UserID = userID
	addr.Active = true
	if addr.ID == "" {
		addr.ID = uuid.NewString()
	}
	s.addresses[userID] = append(owned, addr)

	saved := addr
	return &saved, nil
}

func (s *Store) UpsertTemporaryVisit(_ context.Context, userID string, visit portalauth.Visit) (*portalauth.Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return nil, portalauth.ErrUserNotFound
	}

	visit.UserID = userID
	visit.Status = portalauth.VisitTemporary

	owned := s.visits[userID]
	for i := range owned {
		if owned[i].Type == visit.Type && owned[i].Status == portalauth.VisitTemporary {
			visit.ID = owned[i].ID
			owned[i] = visit
			s.visits[userID] = owned
			saved := visit
			return &saved, nil
		}
	}

	if visit.ID == "" {
		visit.ID = uuid.NewString()
	}
	s.visits[userID] = append(owned, visit)

	saved := visit
	return &saved, nil
}

func (s *Store) CardsByUser(_ context.Context, userID string) ([]portalauth.CreditCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]portalauth.CreditCard, len(s.cards[userID]))
	copy(out, s.cards[userID])
	return out, nil
}

func (s *Store) AddressesByUser(_ context.Context, userID string) ([]portalauth.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]portalauth.Address, len(s.addresses[userID]))
	copy(out, s.addresses[userID])
	return out, nil
}

func (s *Store) VisitsByUser(_ context.Context, userID string) ([]portalauth.Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]portalauth.Visit, len(s.visits[userID]))
	copy(out, s.visits[userID])
	return out, nil
}

func cloneUser(u *portalauth.User) *portalauth.User {
	c := *u
	return &c
}
