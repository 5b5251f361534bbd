package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/quickchat/internal/model"
	"github.com/quickchat/internal/repository"
	"github.com/quickchat/internal/ws"
)

var errStoreDown = errors.New("store down")

type fakeUsers struct {
	mu   sync.Mutex
	byID map[string]*model.User
	fail error
}

func newFakeUsers(ids ...string) *fakeUsers {
	f := &fakeUsers{byID: make(map[string]*model.User)}
	for _, id := range ids {
		f.byID[id] = &model.User{ID: id, FullName: id, Email: id + "@example.com"}
	}
	return f
}

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	for _, other := range f.byID {
		if other.Email == u.Email {
			return repository.ErrConflict
		}
	}
	cp := *u
	f.byID[u.ID] = &cp
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) ListExcept(_ context.Context, userID string, _ int) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.User
	for id, u := range f.byID {
		if id != userID {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeUsers) UpdateProfile(_ context.Context, userID, fullName, bio, profilePic string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	u, ok := f.byID[userID]
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

type fakeMessages struct {
	mu       sync.Mutex
	msgs     []*model.Message
	failSave error
}

func (f *fakeMessages) Create(_ context.Context, m *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSave != nil {
		return f.failSave
	}
	cp := *m
	f.msgs = append(f.msgs, &cp)
	return nil
}

func (f *fakeMessages) GetByID(_ context.Context, id string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.msgs {
		if m.ID == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeMessages) GetConversation(_ context.Context, userID, counterpartID string) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Message
	for _, m := range f.msgs {
		if (m.SenderID == userID && m.ReceiverID == counterpartID) ||
			(m.SenderID == counterpartID && m.ReceiverID == userID) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeMessages) MarkSeen(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.msgs {
		if m.ID == id {
			changed := !m.Seen
			m.Seen = true
			return changed, nil
		}
	}
	return false, nil
}

func (f *fakeMessages) CountUnseen(_ context.Context, receiverID, senderID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.msgs {
		if m.ReceiverID == receiverID && m.SenderID == senderID && !m.Seen {
			n++
		}
	}
	return n, nil
}

func (f *fakeMessages) UnseenBySender(_ context.Context, receiverID string) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int)
	for _, m := range f.msgs {
		if m.ReceiverID == receiverID && !m.Seen {
			out[m.SenderID]++
		}
	}
	return out, nil
}

type pushed struct {
	userID string
	msg    ws.OutgoingMessage
}

// fakePusher treats users in online as connected.
type fakePusher struct {
	mu     sync.Mutex
	online map[string]bool
	log    []pushed
}

func newFakePusher(online ...string) *fakePusher {
	p := &fakePusher{online: make(map[string]bool)}
	for _, id := range online {
		p.online[id] = true
	}
	return p
}

func (p *fakePusher) PushToUser(userID string, msg ws.OutgoingMessage) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.online[userID] {
		return 0
	}
	p.log = append(p.log, pushed{userID: userID, msg: msg})
	return 1
}

func (p *fakePusher) events(userID string, typ ws.EventType) []ws.OutgoingMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []ws.OutgoingMessage
	for _, e := range p.log {
		if e.userID == userID && e.msg.Type == typ {
			out = append(out, e.msg)
		}
	}
	return out
}

type fakeImages struct {
	saved   []string
	deleted []string
	err     error
}

func (f *fakeImages) SaveDataURL(dataURL string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.saved = append(f.saved, dataURL)
	return "/api/files/stored.png", nil
}

func (f *fakeImages) Delete(url string) error {
	f.deleted = append(f.deleted, url)
	return nil
}
