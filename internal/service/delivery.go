package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/quickchat/internal/logger"
	"github.com/quickchat/internal/media"
	"github.com/quickchat/internal/metrics"
	"github.com/quickchat/internal/model"
	"github.com/quickchat/internal/repository"
	"github.com/quickchat/internal/ws"
)

const maxTextLen = 5000

// SendPayload is the body of POST /api/messages/send/{id}. Image is a data URL or an
// already hosted URL.
type SendPayload struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

// DeliveryService persists a message, then pushes it to the receiver's live connections.
// Push is best effort: the stored message is the source of truth.
type DeliveryService struct {
	users    UserStore
	messages MessageStore
	images   ImageStore
	pusher   Pusher
	unseen   *UnseenReconciler
}

func NewDeliveryService(users UserStore, messages MessageStore, images ImageStore, pusher Pusher, unseen *UnseenReconciler) *DeliveryService {
	return &DeliveryService{users: users, messages: messages, images: images, pusher: pusher, unseen: unseen}
}

func (s *DeliveryService) Send(ctx context.Context, senderID, receiverID string, p SendPayload) (*model.Message, error) {
	text := strings.TrimSpace(p.Text)
	image := strings.TrimSpace(p.Image)
	if text == "" && image == "" {
		return nil, fmt.Errorf("%w: empty message", ErrInvalidPayload)
	}
	if senderID == receiverID {
		return nil, fmt.Errorf("%w: cannot message yourself", ErrInvalidPayload)
	}
	if utf8.RuneCountInString(text) > maxTextLen {
		return nil, fmt.Errorf("%w: text too long", ErrInvalidPayload)
	}

	if _, err := s.users.GetByID(ctx, receiverID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	var stored string
	if image != "" {
		switch {
		case media.IsDataURL(image):
			url, err := saveImage(s.images, image)
			if err != nil {
				return nil, err
			}
			image, stored = url, url
		case !isRemoteURL(image):
			return nil, fmt.Errorf("%w: unsupported image reference", ErrInvalidPayload)
		}
	}

	m := &model.Message{
		ID:         uuid.New().String(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		Image:      image,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.messages.Create(ctx, m); err != nil {
		logger.Errorf("delivery.Send: persist %s→%s: %v", senderID, receiverID, err)
		discardImage(s.images, stored)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	metrics.MessagesSent.WithLabelValues(messageKind(m)).Inc()

	if s.unseen != nil {
		s.unseen.OnMessagePersisted(ctx, m)
	}

	// Offline receiver or a dead socket is not an error for the sender.
	if n := s.pusher.PushToUser(receiverID, ws.OutgoingMessage{Type: ws.EventNewMessage, Payload: m}); n == 0 {
		metrics.PushResults.WithLabelValues("offline").Inc()
		logger.Debugf("delivery.Send: receiver %s offline, message %s stored only", receiverID, m.ID)
	} else {
		metrics.PushResults.WithLabelValues("delivered").Inc()
	}
	return m, nil
}

// History returns the conversation between userID and counterpartID, oldest first.
// Reading does not mark messages as seen.
func (s *DeliveryService) History(ctx context.Context, userID, counterpartID string) ([]model.Message, error) {
	if _, err := s.users.GetByID(ctx, counterpartID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	msgs, err := s.messages.GetConversation(ctx, userID, counterpartID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return msgs, nil
}

// saveImage stores an inline image. Rejected content is the caller's fault, anything
// else is a storage failure and is not reported back verbatim.
func saveImage(images ImageStore, dataURL string) (string, error) {
	url, err := images.SaveDataURL(dataURL)
	switch {
	case err == nil:
		return url, nil
	case errors.Is(err, media.ErrInvalidDataURL), errors.Is(err, media.ErrTooLarge), errors.Is(err, media.ErrNotImage):
		return "", fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	logger.Errorf("media.SaveDataURL: %v", err)
	return "", fmt.Errorf("%w: image not stored", ErrPersistence)
}

// discardImage removes an image saved for a write that did not go through.
func discardImage(images ImageStore, url string) {
	if url == "" {
		return
	}
	if err := images.Delete(url); err != nil {
		logger.Errorf("media.Delete %s: %v", url, err)
	}
}

func messageKind(m *model.Message) string {
	switch {
	case m.Text != "" && m.Image != "":
		return "mixed"
	case m.Image != "":
		return "image"
	}
	return "text"
}
