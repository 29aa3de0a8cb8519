package messaging

import "errors"

var (
	// ErrChatNotFound reports a send into a chat that does not exist.
	ErrChatNotFound = errors.New("chat not found")

	// ErrNotParticipant reports a send by a user outside the chat.
	ErrNotParticipant = errors.New("sender is not a chat participant")
)
