package handler

import (
	"context"
	"sort"
	"sync"

	"github.com/quickchat/internal/model"
	"github.com/quickchat/internal/repository"
)

// memStore — хранилище пользователей и сообщений в памяти для тестов HTTP-слоя.
type memStore struct {
	mu       sync.Mutex
	users    map[string]*model.User
	messages []*model.Message
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]*model.User)}
}

type memUsers struct{ *memStore }
type memMessages struct{ *memStore }

func (s memUsers) Create(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.users {
		if other.Email == u.Email {
			return repository.ErrConflict
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s memUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s memUsers) ListExcept(_ context.Context, userID string, limit int) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.User, 0, len(s.users))
	for id, u := range s.users {
		if id != userID {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s memUsers) UpdateProfile(_ context.Context, userID, fullName, bio, profilePic string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u.FullName, u.Bio = fullName, bio
	if profilePic != "" {
		u.ProfilePic = profilePic
	}
	cp := *u
	return &cp, nil
}

func (s memMessages) Create(_ context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.messages = append(s.messages, &cp)
	return nil
}

func (s memMessages) GetByID(_ context.Context, id string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s memMessages) GetConversation(_ context.Context, userID, counterpartID string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, 0)
	for _, m := range s.messages {
		if (m.SenderID == userID && m.ReceiverID == counterpartID) ||
			(m.SenderID == counterpartID && m.ReceiverID == userID) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s memMessages) MarkSeen(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id {
			changed := !m.Seen
			m.Seen = true
			return changed, nil
		}
	}
	return false, nil
}

func (s memMessages) CountUnseen(_ context.Context, receiverID, senderID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages {
		if m.ReceiverID == receiverID && m.SenderID == senderID && !m.Seen {
			n++
		}
	}
	return n, nil
}

func (s memMessages) UnseenBySender(_ context.Context, receiverID string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int)
	for _, m := range s.messages {
		if m.ReceiverID == receiverID && !m.Seen {
			out[m.SenderID]++
		}
	}
	return out, nil
}
