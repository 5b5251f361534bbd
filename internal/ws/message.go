package ws

type EventType string

const (
	// server → client
	EventGetOnlineUsers EventType = "getOnlineUsers"
	EventNewMessage     EventType = "newMessage"
	EventUnseenCount    EventType = "unseenCount"
	EventError          EventType = "error"

	// client → server
	EventFocusConversation EventType = "focusConversation"
	EventMarkSeen          EventType = "markSeen"
)

// IncomingMessage is what the client sends to the server.
type IncomingMessage struct {
	Type EventType `json:"type"`

	// focusConversation: counterpart whose conversation is open; empty clears focus
	UserID string `json:"userId,omitempty"`

	// markSeen
	MessageID string `json:"messageId,omitempty"`
}

// OutgoingMessage is what the server sends to the client.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// UnseenCountPayload carries the receiver's unseen count for one counterpart.
type UnseenCountPayload struct {
	UserID string `json:"userId"`
	Count  int    `json:"count"`
}
