package service

import (
	"context"

	"github.com/quickchat/internal/model"
	"github.com/quickchat/internal/ws"
)

// UserStore is implemented by repository.UserRepository.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	ListExcept(ctx context.Context, userID string, limit int) ([]model.User, error)
	UpdateProfile(ctx context.Context, userID, fullName, bio, profilePic string) (*model.User, error)
}

// MessageStore is implemented by repository.MessageRepository.
type MessageStore interface {
	Create(ctx context.Context, m *model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	GetConversation(ctx context.Context, userID, counterpartID string) ([]model.Message, error)
	MarkSeen(ctx context.Context, id string) (bool, error)
	CountUnseen(ctx context.Context, receiverID, senderID string) (int, error)
	UnseenBySender(ctx context.Context, receiverID string) (map[string]int, error)
}

// Pusher delivers an event to every live connection of a user (ws.Hub).
type Pusher interface {
	PushToUser(userID string, msg ws.OutgoingMessage) int
}

// ImageStore persists inline data-URL images (media.Store).
type ImageStore interface {
	SaveDataURL(dataURL string) (string, error)
	Delete(url string) error
}
